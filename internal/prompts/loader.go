// Package prompts provides the stage prompt templates. Templates are stored as
// JSON files and embedded at compile time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

var placeholder = regexp.MustCompile(`\{\{\.([A-Za-z][A-Za-z0-9]*)\}\}`)

// Templates is one parsed prompt file, keyed by template name.
type Templates map[string]string

// parsed holds the Templates of every file read so far.
var parsed sync.Map

// Load returns the templates of an embedded file. The filename has no
// directory part (e.g. "gtm.json").
func Load(filename string) (Templates, error) {
	if t, ok := parsed.Load(filename); ok {
		return t.(Templates), nil
	}

	data, err := promptFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	var t Templates
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	actual, _ := parsed.LoadOrStore(filename, t)
	return actual.(Templates), nil
}

// Keys returns the template names, sorted.
func (t Templates) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Get retrieves the template key from filename.
func Get(filename, key string) (string, error) {
	t, err := Load(filename)
	if err != nil {
		return "", err
	}
	template, ok := t[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return template, nil
}

// Format replaces {{.Key}} placeholders with values from data in a single
// pass; substituted values are never expanded again. Placeholders without a
// value are left in place.
func Format(template string, data map[string]string) string {
	out, _ := fill(template, data)
	return out
}

// Render fills the template key of filename. Placeholders left without a value
// are an error so a renamed field cannot silently reach the model.
func Render(filename, key string, data map[string]string) (string, error) {
	template, err := Get(filename, key)
	if err != nil {
		return "", err
	}
	out, missing := fill(template, data)
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %s/%s has unfilled placeholders: %s", filename, key, strings.Join(missing, ", "))
	}
	return out, nil
}

func fill(template string, data map[string]string) (string, []string) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := data[name]; ok {
			return v
		}
		if !slices.Contains(missing, m) {
			missing = append(missing, m)
		}
		return m
	})
	return out, missing
}
