package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/gtm-copilot/internal/config"
	"github.com/jonathan/gtm-copilot/internal/db"
	"github.com/jonathan/gtm-copilot/internal/export"
	"github.com/jonathan/gtm-copilot/internal/kv"
	"github.com/jonathan/gtm-copilot/internal/llm"
	"github.com/jonathan/gtm-copilot/internal/logging"
	"github.com/jonathan/gtm-copilot/internal/pipeline"
)

// app holds what a command wires together from the configuration.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   kv.Store
	db      *db.DB
	closers []func()
}

// newApp builds the logger and the key-value store. The store is Redis when
// redis_url is set and process memory otherwise.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: logging.New(cfg.LogLevel, cfg.LogFormat)}
	a.closers = append(a.closers, func() { _ = a.logger.Sync() })

	if cfg.RedisURL == "" {
		a.store = kv.NewMemoryStore()
		return a, nil
	}
	store, err := kv.OpenRedis(ctx, cfg.RedisURL, "")
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// apiKey returns override, then the configured key, then the stored or
// environment key.
func (a *app) apiKey(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if a.cfg.APIKey != "" {
		return a.cfg.APIKey, nil
	}
	return kv.NewCredentials(a.store).APIKey(ctx)
}

// transport builds the configured transport.
func (a *app) transport(ctx context.Context, apiKey string) (llm.Transport, error) {
	llmCfg := a.cfg.LLMConfig()
	switch llmCfg.Transport {
	case llm.TransportSDK:
		t, err := llm.NewSDKTransport(ctx, llmCfg, apiKey)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = t.Close() })
		return t, nil
	default:
		return llm.NewRESTTransport(llmCfg, apiKey, nil)
	}
}

// connectDB opens and migrates the database once.
func (a *app) connectDB(ctx context.Context, url string) (*db.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	database, err := db.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	a.db = database
	a.closers = append(a.closers, database.Close)
	return database, nil
}

// exporter combines the output directory and the database, whichever are set.
// It returns nil when neither is.
func (a *app) exporter(ctx context.Context, outputDir, databaseURL string) (pipeline.Exporter, error) {
	var exporters export.Multi
	if outputDir != "" {
		exporters = append(exporters, export.NewDirExporter(outputDir))
	}
	if databaseURL != "" {
		database, err := a.connectDB(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		exporters = append(exporters, database)
	}
	switch len(exporters) {
	case 0:
		return nil, nil
	case 1:
		return exporters[0], nil
	}
	return exporters, nil
}

// orchestrator wires the resilient clients into a pipeline orchestrator.
func (a *app) orchestrator(ctx context.Context, apiKey string, opts pipeline.Options) (*pipeline.Orchestrator, error) {
	transport, err := a.transport(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	client := llm.NewResilientClient(transport, a.cfg.Retry.Policy(), llm.WithLogger(a.logger))
	repair := llm.NewResilientClient(transport, a.cfg.RepairRetry.Policy(), llm.WithLogger(a.logger))
	opts.Logger = a.logger
	return pipeline.New(client, repair, opts), nil
}
