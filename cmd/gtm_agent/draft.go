package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/gtm-copilot/internal/kv"
)

func newDraftCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Manage the saved product context draft",
		Long:  "The draft is the product context used by run when --input is omitted. It is kept in Redis when redis_url is configured.",
	}

	var inputPath string
	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Save a product context as the draft",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, root, func(a *app) error {
				pc, err := readProductContext(cmd.InOrStdin(), inputPath)
				if err != nil {
					return err
				}
				if err := kv.NewDrafts(a.store).Save(cmd.Context(), pc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Draft saved (%d fields filled)\n", len(pc.FilledFields()))
				return nil
			})
		},
	}
	saveCmd.Flags().StringVarP(&inputPath, "input", "i", "-", "Path to product context JSON (\"-\" for stdin)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the saved draft",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, root, func(a *app) error {
				pc, ok, err := kv.NewDrafts(a.store).Load(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "No draft saved")
					return nil
				}
				return encodeIndented(cmd, pc)
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard the saved draft",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, root, func(a *app) error {
				if err := kv.NewDrafts(a.store).Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Draft cleared")
				return nil
			})
		},
	}

	cmd.AddCommand(saveCmd, showCmd, clearCmd)
	return cmd
}

func newKeyCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored Gemini API key",
	}

	setCmd := &cobra.Command{
		Use:   "set <api-key>",
		Short: "Store an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, root, func(a *app) error {
				if err := kv.NewCredentials(a.store).SaveAPIKey(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "API key saved")
				return nil
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active API key, masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, root, func(a *app) error {
				key, err := kv.NewCredentials(a.store).APIKey(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), maskKey(key))
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, root, func(a *app) error {
				if err := kv.NewCredentials(a.store).SaveAPIKey(cmd.Context(), ""); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "API key cleared")
				return nil
			})
		},
	}

	cmd.AddCommand(setCmd, showCmd, clearCmd)
	return cmd
}

// withStore loads the configuration and runs fn with an app whose store is
// open.
func withStore(cmd *cobra.Command, root *rootOptions, fn func(a *app) error) error {
	cfg, err := root.load(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// maskKey keeps the last four characters.
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
