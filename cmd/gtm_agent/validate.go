package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/gtm-copilot/internal/extract"
	"github.com/jonathan/gtm-copilot/internal/quality"
	"github.com/jonathan/gtm-copilot/internal/schemas"
	"github.com/jonathan/gtm-copilot/internal/types"
)

type validateOptions struct {
	stage      string
	schemaPath string
	jsonPath   string
	inputPath  string
}

func newValidateCmd() *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a stage document or a product context",
		Long: `Validate a model reply against a stage contract (--stage with --json), a JSON file against a schema file (--schema with --json), or wizard form data (--input).

Stage documents go through the same extraction as pipeline replies, so fenced or chatty output is accepted. Quality findings are printed as warnings and never fail validation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.stage, "stage", "", "Stage contract: intel, strategy, battlecards or messaging")
	cmd.Flags().StringVar(&opts.schemaPath, "schema", "", "Path to a JSON Schema file")
	cmd.Flags().StringVar(&opts.jsonPath, "json", "", "Path to the document to validate (\"-\" for stdin)")
	cmd.Flags().StringVarP(&opts.inputPath, "input", "i", "", "Path to product context JSON")
	cmd.MarkFlagsMutuallyExclusive("stage", "schema", "input")
	cmd.MarkFlagsMutuallyExclusive("json", "input")
	return cmd
}

func runValidate(cmd *cobra.Command, opts *validateOptions) error {
	out := cmd.OutOrStdout()

	switch {
	case opts.inputPath != "":
		pc, err := readProductContext(cmd.InOrStdin(), opts.inputPath)
		if err != nil {
			return err
		}
		if err := pc.Validate(); err != nil {
			fmt.Fprintf(out, "Validation failed: %v\n", err)
			return errors.New("product context is incomplete")
		}
		fmt.Fprintln(out, "Validation passed")
		return nil

	case opts.jsonPath == "":
		return errors.New("--json or --input is required")

	case opts.schemaPath != "":
		if err := schemas.ValidateJSON(opts.schemaPath, opts.jsonPath); err != nil {
			fmt.Fprintf(out, "Validation failed: %v\n", err)
			return errors.New("document does not match schema")
		}
		fmt.Fprintln(out, "Validation passed")
		return nil

	case opts.stage == "":
		return errors.New("--stage or --schema is required with --json")
	}

	stage, err := parseStage(opts.stage)
	if err != nil {
		return err
	}
	raw, err := readFile(cmd.InOrStdin(), opts.jsonPath)
	if err != nil {
		return err
	}
	doc, err := extract.Extract(string(raw))
	if err != nil {
		fmt.Fprintf(out, "Validation failed: %v\n", err)
		return errors.New("no JSON document found")
	}

	if err := schemas.ValidateStage(doc, stage).Err(stage); err != nil {
		fmt.Fprintf(out, "Validation failed: %v\n", err)
		return errors.New("document does not match stage contract")
	}
	fmt.Fprintln(out, "Validation passed")

	report := quality.DefaultAuditor(quality.DefaultThresholds()).Audit(doc, stage)
	for _, w := range report.Warnings {
		fmt.Fprintf(out, "  ! %s\n", w)
	}
	return nil
}

var documentStages = []types.Stage{types.StageIntel, types.StageStrategy, types.StageBattlecards, types.StageMessaging}

func parseStage(name string) (types.Stage, error) {
	for _, s := range documentStages {
		if string(s) == name {
			return s, nil
		}
	}
	names := make([]string, len(documentStages))
	for i, s := range documentStages {
		names[i] = string(s)
	}
	return "", fmt.Errorf("unknown stage %q (expected one of: %s)", name, strings.Join(names, ", "))
}

// encodeIndented writes v as indented JSON followed by a newline.
func encodeIndented(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
