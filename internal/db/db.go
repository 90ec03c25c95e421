// Package db provides PostgreSQL storage for pipeline runs, their stage
// artifacts and their log trails.
package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/gtm-copilot/internal/pipeline"
	"github.com/jonathan/gtm-copilot/internal/types"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate creates the tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Export stores a finished run with its artifacts and trail in one
// transaction. It satisfies pipeline.Exporter.
func (db *DB) Export(ctx context.Context, run *pipeline.Run) error {
	rec, err := NewRunRecord(run)
	if err != nil {
		return err
	}
	artifacts, err := ArtifactsFor(run)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO pipeline_runs (id, product_name, status, phase, diagnostic, input, gate, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET status = $3, phase = $4, diagnostic = $5, gate = $7, completed_at = $9`,
		rec.ID, rec.ProductName, rec.Status, rec.Phase, nullString(rec.Diagnostic),
		[]byte(rec.Input), nullJSON(rec.Gate), rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, a := range artifacts {
		warnings, err := json.Marshal(a.Warnings)
		if err != nil {
			return fmt.Errorf("failed to marshal warnings: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO artifacts (run_id, stage, degraded, warnings, content)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (run_id, stage) DO UPDATE SET degraded = $3, warnings = $4, content = $5, created_at = NOW()`,
			a.RunID, a.Stage, a.Degraded, warnings, []byte(a.Content),
		)
		if err != nil {
			return fmt.Errorf("failed to save artifact %s: %w", a.Stage, err)
		}
	}

	batch := &pgx.Batch{}
	for _, e := range run.Trail.Entries() {
		batch.Queue(
			`INSERT INTO run_log_entries (run_id, seq, logged_at, stage, severity, message)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (run_id, seq) DO NOTHING`,
			run.ID, e.Seq, e.Time, string(e.Stage), string(e.Severity), e.Message,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save log entries: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a pipeline run by ID
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	var run Run
	var diagnostic *string
	var input, gate []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, product_name, status, phase, diagnostic, input, gate, started_at, completed_at, created_at
		 FROM pipeline_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.ProductName, &run.Status, &run.Phase, &diagnostic,
		&input, &gate, &run.StartedAt, &run.CompletedAt, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if diagnostic != nil {
		run.Diagnostic = *diagnostic
	}
	run.Input = input
	if len(gate) > 0 {
		run.Gate = gate
	}
	return &run, nil
}

// ListRuns retrieves runs with optional filters, newest first
func (db *DB) ListRuns(ctx context.Context, filters RunFilters) ([]Run, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	query := `SELECT id, product_name, status, phase, COALESCE(diagnostic, ''), started_at, completed_at, created_at
		FROM pipeline_runs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.ProductName != "" {
		query += fmt.Sprintf(" AND product_name ILIKE $%d", argNum)
		args = append(args, "%"+filters.ProductName+"%")
		argNum++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.ProductName, &run.Status, &run.Phase, &run.Diagnostic,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetArtifact retrieves the artifact of one stage of a run
func (db *DB) GetArtifact(ctx context.Context, runID uuid.UUID, stage types.Stage) (*Artifact, error) {
	var a Artifact
	var warnings, content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, run_id, stage, degraded, warnings, content, created_at
		 FROM artifacts WHERE run_id = $1 AND stage = $2`,
		runID, string(stage),
	).Scan(&a.ID, &a.RunID, &a.Stage, &a.Degraded, &warnings, &content, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact %s: %w", stage, err)
	}
	a.Content = content
	if len(warnings) > 0 {
		_ = json.Unmarshal(warnings, &a.Warnings)
	}
	return &a, nil
}

// ListLogEntries returns the stored trail of a run in sequence order
func (db *DB) ListLogEntries(ctx context.Context, runID uuid.UUID) ([]types.LogEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT seq, logged_at, stage, severity, message
		 FROM run_log_entries WHERE run_id = $1 ORDER BY seq ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	var entries []types.LogEntry
	for rows.Next() {
		var e types.LogEntry
		var stage, severity string
		if err := rows.Scan(&e.Seq, &e.Time, &stage, &severity, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Stage = types.Stage(stage)
		e.Severity = types.Severity(severity)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteRun deletes a pipeline run with its artifacts and trail (via cascade)
func (db *DB) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM pipeline_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
