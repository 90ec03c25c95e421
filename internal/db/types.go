package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Run is a pipeline run record
type Run struct {
	ID          uuid.UUID       `json:"id"`
	ProductName string          `json:"product_name"`
	Status      string          `json:"status"`
	Phase       string          `json:"phase"`
	Diagnostic  string          `json:"diagnostic,omitempty"`
	Input       json.RawMessage `json:"input"`
	Gate        json.RawMessage `json:"gate,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Artifact is one stage document of a run
type Artifact struct {
	ID        uuid.UUID       `json:"id"`
	RunID     uuid.UUID       `json:"run_id"`
	Stage     string          `json:"stage"`
	Degraded  bool            `json:"degraded"`
	Warnings  []string        `json:"warnings,omitempty"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// RunFilters holds optional filters for listing runs
type RunFilters struct {
	ProductName string
	Status      string
	Limit       int
}
