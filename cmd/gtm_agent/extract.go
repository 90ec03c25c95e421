package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/gtm-copilot/internal/extract"
)

func newExtractCmd() *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Recover the JSON document from a raw model reply",
		Long:  "Reads a raw model reply and prints the JSON object it contains. The extraction tier used is reported on stderr.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readFile(cmd.InOrStdin(), inPath)
			if err != nil {
				return err
			}
			doc, tier, err := extract.ExtractWithTier(string(raw))
			if err != nil {
				return err
			}
			if err := encodeIndented(cmd, doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "tier: %s\n", tier)
			return nil
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "-", "Path to the raw reply (\"-\" for stdin)")
	return cmd
}
