package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ytcollector/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, binaries, templates and backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			printPreflight(cmd, results)
			if preflight.Failed(results) {
				return errors.New("preflight checks failed")
			}
			return nil
		},
	}
}

func printPreflight(cmd *cobra.Command, results []preflight.Result) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	writeSection(out, "Preflight", colorize)
	for _, r := range results {
		fmt.Fprintln(out, renderOutcome(r.Name, checkOutcome(r), r.Detail, colorize))
	}
}
