package server

import (
	"sync"

	"github.com/jonathan/gtm-copilot/internal/pipeline"
)

// DefaultMaxRuns is the registry size when none is configured.
const DefaultMaxRuns = 200

// RunSummary is what the registry knows about a run. Run is set once the run
// reached a terminal status; until then only the latest phase is known.
type RunSummary struct {
	ID     string          `json:"id"`
	Phase  pipeline.Phase  `json:"phase"`
	Status pipeline.Status `json:"status"`
	Done   bool            `json:"done"`
	Run    *pipeline.Run   `json:"-"`
}

// Registry keeps recent runs in memory, oldest evicted first.
type Registry struct {
	mu    sync.RWMutex
	limit int
	runs  map[string]*RunSummary
	order []string
}

// NewRegistry returns a registry holding at most limit runs.
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultMaxRuns
	}
	return &Registry{limit: limit, runs: make(map[string]*RunSummary)}
}

// Progress records the phase of a running run. It is a pipeline.ProgressCallback.
func (reg *Registry) Progress(ev pipeline.ProgressEvent) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	s := reg.entry(ev.RunID)
	if s.Done {
		return
	}
	s.Phase = ev.Phase
	s.Status = ev.Status
}

// Finish stores a run that reached a terminal status.
func (reg *Registry) Finish(run *pipeline.Run) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	s := reg.entry(run.ID.String())
	s.Phase = run.Phase
	s.Status = run.Status
	s.Done = true
	s.Run = run
}

// Get returns a copy of the summary of id.
func (reg *Registry) Get(id string) (RunSummary, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	s, ok := reg.runs[id]
	if !ok {
		return RunSummary{}, false
	}
	return *s, true
}

// List returns the summaries, newest first.
func (reg *Registry) List() []RunSummary {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]RunSummary, 0, len(reg.order))
	for i := len(reg.order) - 1; i >= 0; i-- {
		out = append(out, *reg.runs[reg.order[i]])
	}
	return out
}

// entry returns the summary of id, creating it and evicting the oldest run
// when full. Callers hold mu.
func (reg *Registry) entry(id string) *RunSummary {
	if s, ok := reg.runs[id]; ok {
		return s
	}
	for len(reg.order) >= reg.limit {
		delete(reg.runs, reg.order[0])
		reg.order = reg.order[1:]
	}
	s := &RunSummary{ID: id}
	reg.runs[id] = s
	reg.order = append(reg.order, id)
	return s
}
