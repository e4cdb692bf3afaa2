package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var maxItems int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Summarize captured transcripts with the configured language model",
		Long: "Sends the captions of the oldest videos in the analysis source queue to the\n" +
			"language model, stores the extracted topics under the analysis tracking key\n" +
			"and moves each video to the analysis destination queue. Runs even when\n" +
			"[analysis] enabled is false, which only controls the pipeline step.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				if maxItems > 0 {
					s.cfg.Analysis.MaxItems = maxItems
				}
				result, err := s.pipeline().Analyze(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if result.Aborted {
					fmt.Fprintf(out, "Analysis skipped: %s\n", result.Reason)
				} else {
					fmt.Fprintf(out, "Analyzed %d videos into %s\n", len(result.Analyzed), s.cfg.Analysis.DestinationQueue)
				}
				if len(result.Skipped) > 0 {
					fmt.Fprintf(out, "Waiting for captions: %s\n", strings.Join(result.Skipped, ", "))
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&maxItems, "max-items", 0, "Override analysis.max_items for this run")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON output")
	return cmd
}
