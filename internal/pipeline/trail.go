package pipeline

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonathan/gtm-copilot/internal/types"
)

// Trail is the append-only log of one run. Seq and Time are assigned under the
// lock, so entries appended from concurrent stages stay in issuance order.
type Trail struct {
	mu      sync.Mutex
	entries []types.LogEntry
	now     func() time.Time
	// onAppend runs under the lock and must not touch the trail.
	onAppend func(types.LogEntry)
}

// NewTrail creates an empty trail.
func NewTrail() *Trail {
	return &Trail{now: time.Now}
}

// Append records an entry and returns it with its sequence number and time.
func (t *Trail) Append(stage types.Stage, severity types.Severity, message string) types.LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if n := len(t.entries); n > 0 && now.Before(t.entries[n-1].Time) {
		now = t.entries[n-1].Time
	}
	entry := types.LogEntry{
		Seq:      len(t.entries) + 1,
		Time:     now,
		Stage:    stage,
		Severity: severity,
		Message:  message,
	}
	t.entries = append(t.entries, entry)
	if t.onAppend != nil {
		t.onAppend(entry)
	}
	return entry
}

// Entries returns a copy of the trail.
func (t *Trail) Entries() []types.LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.LogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Filter returns the entries at severity.
func (t *Trail) Filter(severity types.Severity) []types.LogEntry {
	var out []types.LogEntry
	for _, e := range t.Entries() {
		if e.Severity == severity {
			out = append(out, e)
		}
	}
	return out
}

// MarshalJSON encodes the trail as its entry list.
func (t *Trail) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.Entries())
}

// UnmarshalJSON restores a trail written by MarshalJSON.
func (t *Trail) UnmarshalJSON(data []byte) error {
	var entries []types.LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = entries
	if t.now == nil {
		t.now = time.Now
	}
	return nil
}
