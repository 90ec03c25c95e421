package db

import (
	"encoding/json"
	"fmt"

	"github.com/jonathan/gtm-copilot/internal/pipeline"
)

// NewRunRecord converts a finished pipeline run into its row.
func NewRunRecord(run *pipeline.Run) (*Run, error) {
	input, err := json.Marshal(run.Input.Normalized())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run input: %w", err)
	}
	rec := &Run{
		ID:          run.ID,
		ProductName: run.Input.ProductName.String(),
		Status:      string(run.Status),
		Phase:       string(run.Phase),
		Diagnostic:  run.Diagnostic,
		Input:       input,
		StartedAt:   run.StartedAt,
	}
	if run.Gate != nil {
		if rec.Gate, err = json.Marshal(run.Gate); err != nil {
			return nil, fmt.Errorf("failed to marshal gate: %w", err)
		}
	}
	if !run.CompletedAt.IsZero() {
		completed := run.CompletedAt
		rec.CompletedAt = &completed
	}
	return rec, nil
}

// ArtifactsFor returns one artifact per document the run produced.
func ArtifactsFor(run *pipeline.Run) ([]Artifact, error) {
	docs := run.Documents()
	out := make([]Artifact, 0, len(docs))
	for _, doc := range docs {
		content, err := json.Marshal(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s artifact: %w", doc.Stage, err)
		}
		out = append(out, Artifact{
			RunID:    run.ID,
			Stage:    string(doc.Stage),
			Degraded: doc.Degraded,
			Warnings: doc.Warnings,
			Content:  content,
		})
	}
	return out, nil
}
