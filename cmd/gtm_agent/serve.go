package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/gtm-copilot/internal/server"
	"github.com/jonathan/gtm-copilot/internal/server/ratelimit"
)

type serveOptions struct {
	addr        string
	apiKey      string
	outputDir   string
	databaseURL string
	maxRuns     int
	runsPerHour int
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long:  `Start an HTTP server that exposes REST and SSE endpoints for running the GTM pipeline.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Address to listen on (default from config, :8080)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "Gemini API key (optional, defaults to the stored key or GEMINI_API_KEY)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Write run documents to this directory")
	cmd.Flags().StringVar(&opts.databaseURL, "db-url", "", "PostgreSQL connection URL for run persistence (optional)")
	cmd.Flags().IntVar(&opts.maxRuns, "max-runs", server.DefaultMaxRuns, "Runs kept in memory for GET /runs")
	cmd.Flags().IntVar(&opts.runsPerHour, "runs-per-hour", ratelimit.DefaultConfig().RunsPerHour, "Runs one client may start per hour (0 disables the limit)")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	ctx := cmd.Context()

	cfg, err := root.load(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = opts.addr
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = opts.outputDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = opts.databaseURL
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	apiKey, err := a.apiKey(ctx, opts.apiKey)
	if err != nil {
		return err
	}

	pipelineOpts := cfg.PipelineOptions()
	if pipelineOpts.Exporter, err = a.exporter(ctx, cfg.OutputDir, cfg.DatabaseURL); err != nil {
		return err
	}
	orch, err := a.orchestrator(ctx, apiKey, pipelineOpts)
	if err != nil {
		return err
	}

	limit := ratelimit.DefaultConfig()
	limit.Enabled = opts.runsPerHour > 0
	limit.RunsPerHour = opts.runsPerHour

	srvCfg := server.Config{
		Addr:      cfg.Addr,
		RateLimit: limit,
		MaxRuns:   opts.maxRuns,
		Logger:    a.logger,
	}
	if a.db != nil {
		srvCfg.Store = a.db
	}

	return server.New(orch, srvCfg).Start(ctx)
}
