package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ytcollector/internal/preflight"
	"ytcollector/internal/workflow"
)

func newPipelineCommand(ctx *commandContext) *cobra.Command {
	pipelineCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the full discovery and stage chain",
	}
	pipelineCmd.AddCommand(newPipelineRunCommand(ctx))
	return pipelineCmd
}

func newPipelineRunCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool
	var delayOverride int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Recover, discover, then run every stage in order",
		Long: "Runs discovery followed by every stage of the chain with the configured " +
			"pause between steps. A failing step does not stop the run; the exit " +
			"status reflects whether the last stage succeeded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				if !skipPreflight {
					if results := preflight.RunAll(cmd.Context(), s.cfg); preflight.Failed(results) {
						printPreflight(cmd, results)
						return errors.New("preflight checks failed; fix them or pass --skip-preflight")
					}
				}

				steps, err := s.pipeline().Steps()
				if err != nil {
					return err
				}
				delay := time.Duration(s.cfg.Workflow.InterStageDelaySeconds) * time.Second
				if cmd.Flags().Changed("delay") {
					delay = time.Duration(delayOverride) * time.Second
				}
				seq := workflow.NewSequencer(s.logger, s.cfg.LockPath(),
					workflow.WithDelay(delay),
					workflow.WithNotifier(s.notifier),
				)
				summary, err := seq.Run(cmd.Context(), steps)
				if err != nil {
					return err
				}
				printPipelineSummary(cmd, summary)
				if !summary.LastSucceeded() {
					return &exitError{code: 1, msg: fmt.Sprintf("pipeline finished with %d failed steps; last step failed", summary.Failed())}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Do not run preflight checks first")
	cmd.Flags().IntVar(&delayOverride, "delay", 0, "Override the pause between steps in seconds")
	return cmd
}

func printPipelineSummary(cmd *cobra.Command, summary workflow.Summary) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	writeSection(out, "Pipeline", colorize)
	for _, step := range summary.Outcomes {
		kind, detail := stepOutcome(step)
		fmt.Fprintln(out, renderOutcome(step.Name, kind, detail, colorize))
	}
	fmt.Fprintf(out, "%d steps, %d failed, %s\n", summary.Attempted(), summary.Failed(), summary.Duration.Round(time.Second))
}
