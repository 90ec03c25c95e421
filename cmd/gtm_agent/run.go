package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/gtm-copilot/internal/kv"
	"github.com/jonathan/gtm-copilot/internal/observability"
	"github.com/jonathan/gtm-copilot/internal/pipeline"
	"github.com/jonathan/gtm-copilot/internal/types"
)

type runOptions struct {
	input       string
	apiKey      string
	outputDir   string
	databaseURL string
	threshold   float64
	jsonOut     bool
	quiet       bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full GTM pipeline end-to-end",
		Long: `Runs intel -> strategy -> coverage repair -> gating -> battlecards + messaging for one product context.

The product context is read from --input (a wizard form JSON file, "-" for stdin) or, when omitted, from the saved draft.
Configuration can be loaded with --config. Command-line flags override config file values.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Path to product context JSON (defaults to the saved draft)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "Gemini API key (optional, defaults to the stored key or GEMINI_API_KEY)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Write run documents to this directory")
	cmd.Flags().StringVar(&opts.databaseURL, "db-url", "", "PostgreSQL connection URL for run persistence (optional)")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Uncertainty ratio above which asset generation is blocked")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the finished run as JSON instead of a summary")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not stream the log trail to stderr")
	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	ctx := cmd.Context()

	cfg, err := root.load(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = opts.outputDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = opts.databaseURL
	}
	if cmd.Flags().Changed("threshold") {
		cfg.UncertaintyThreshold = opts.threshold
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var pc types.ProductContext
	if opts.input != "" {
		if pc, err = readProductContext(cmd.InOrStdin(), opts.input); err != nil {
			return err
		}
	} else {
		var ok bool
		pc, ok, err = kv.NewDrafts(a.store).Load(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("no product context: pass --input or save a draft first")
		}
	}
	// Fail fast before any key lookup or model call.
	if err := pc.Validate(); err != nil {
		return err
	}

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

	trailPrinter := observability.NewPrinter(cmd.ErrOrStderr())
	run := orch.Stream(ctx, pc, func(ev pipeline.ProgressEvent) {
		if !opts.quiet {
			trailPrinter.PrintTrail([]types.LogEntry{ev.Entry})
		}
	})

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return fmt.Errorf("failed to encode run: %w", err)
		}
	} else {
		p := observability.NewPrinter(out)
		p.PrintRunSummary(run)
		p.PrintIntel(run.Intel)
		p.PrintStrategy(run.Strategy)
		p.PrintBattlecards(run.Battlecards)
		p.PrintMessaging(run.Messaging)
	}

	if run.Status == pipeline.StatusFailed {
		return fmt.Errorf("run failed: %s", run.Diagnostic)
	}
	return nil
}
