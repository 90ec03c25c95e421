// Package export writes finished pipeline runs to disk.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/jonathan/gtm-copilot/internal/pipeline"
)

// RunFile is the name of the full run record inside a run directory.
const RunFile = "run.json"

// DirExporter writes each run to <Dir>/<run-id>/: one JSON file per document
// plus run.json with status, gate and trail.
type DirExporter struct {
	Dir string
}

// NewDirExporter returns an exporter rooted at dir.
func NewDirExporter(dir string) *DirExporter {
	return &DirExporter{Dir: dir}
}

// RunDir returns the directory a run is written to.
func (e *DirExporter) RunDir(run *pipeline.Run) string {
	return filepath.Join(e.Dir, run.ID.String())
}

// Export implements pipeline.Exporter.
func (e *DirExporter) Export(ctx context.Context, run *pipeline.Run) error {
	outDir := e.RunDir(run)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, doc := range run.Documents() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(outDir, string(doc.Stage)+".json"), doc.Data); err != nil {
			return err
		}
	}
	return writeJSON(filepath.Join(outDir, RunFile), run)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Multi runs every exporter, even after one fails, and combines their errors.
type Multi []pipeline.Exporter

// Export implements pipeline.Exporter.
func (m Multi) Export(ctx context.Context, run *pipeline.Run) error {
	var err error
	for _, e := range m {
		if e == nil {
			continue
		}
		err = multierr.Append(err, e.Export(ctx, run))
	}
	return err
}
