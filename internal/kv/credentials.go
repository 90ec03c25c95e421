package kv

import (
	"context"
	"errors"
	"os"
	"strings"
)

// Store keys
const (
	APIKeyKey = "gtm_gemini_key"
	DraftKey  = "gtm_formData"
)

// APIKeyEnv is consulted when the store holds no key.
const APIKeyEnv = "GEMINI_API_KEY"

// ErrNoAPIKey is returned when neither the store nor the environment has a key.
var ErrNoAPIKey = errors.New("no API key configured: set " + APIKeyEnv + " or save one with the key command")

// Credentials resolves the service API key.
type Credentials struct {
	store  Store
	getenv func(string) string
}

// NewCredentials returns credentials backed by store and the process environment.
func NewCredentials(store Store) *Credentials {
	return &Credentials{store: store, getenv: os.Getenv}
}

// APIKey returns the stored key, then the environment key.
func (c *Credentials) APIKey(ctx context.Context) (string, error) {
	if c.store != nil {
		v, ok, err := c.store.Get(ctx, APIKeyKey)
		if err != nil {
			return "", err
		}
		if ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	if v := strings.TrimSpace(c.getenv(APIKeyEnv)); v != "" {
		return v, nil
	}
	return "", ErrNoAPIKey
}

// SaveAPIKey stores key. An empty key clears the stored one.
func (c *Credentials) SaveAPIKey(ctx context.Context, key string) error {
	return c.store.Set(ctx, APIKeyKey, strings.TrimSpace(key))
}
