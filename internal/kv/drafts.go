package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/gtm-copilot/internal/types"
)

// Drafts saves the in-progress wizard input between sessions.
type Drafts struct {
	store Store
}

// NewDrafts returns drafts backed by store.
func NewDrafts(store Store) *Drafts {
	return &Drafts{store: store}
}

// Save stores pc as JSON.
func (d *Drafts) Save(ctx context.Context, pc types.ProductContext) error {
	data, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	return d.store.Set(ctx, DraftKey, string(data))
}

// Load returns the saved draft. ok is false when nothing was saved or the
// draft was cleared.
func (d *Drafts) Load(ctx context.Context) (pc types.ProductContext, ok bool, err error) {
	raw, found, err := d.store.Get(ctx, DraftKey)
	if err != nil || !found || raw == "" {
		return pc, false, err
	}
	if err := json.Unmarshal([]byte(raw), &pc); err != nil {
		return pc, false, fmt.Errorf("failed to parse saved draft: %w", err)
	}
	return pc.Normalized(), true, nil
}

// Clear forgets the saved draft.
func (d *Drafts) Clear(ctx context.Context) error {
	return d.store.Set(ctx, DraftKey, "")
}
