package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ytcollector/internal/stage"
	"ytcollector/internal/stagerun"
	"ytcollector/internal/textutil"
)

func newStageCommand(ctx *commandContext) *cobra.Command {
	stageCmd := &cobra.Command{
		Use:   "stage",
		Short: "Inspect and run pipeline stages",
	}
	stageCmd.AddCommand(newStageListCommand(ctx))
	stageCmd.AddCommand(newStageRunCommand(ctx))
	stageCmd.AddCommand(newStageCompleteCommand(ctx))
	return stageCmd
}

func newStageListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the stage chain and pending counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				rows := make([][]string, 0, len(s.table))
				for _, def := range s.table {
					pending, err := s.queue.Size(cmd.Context(), def.Source)
					if err != nil {
						return err
					}
					settings := s.cfg.StageSettingsFor(def.Name)
					rows = append(rows, []string{
						textutil.DisplayLabel(def.Name),
						def.Source,
						def.Destination,
						strconv.Itoa(pending),
						strconv.Itoa(settings.MaxItems),
						settings.JobName,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(stageColumns, rows, nil))
				return nil
			})
		},
	}
}

func newStageRunCommand(ctx *commandContext) *cobra.Command {
	var maxItems int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:       "run <stage>",
		Short:     "Submit one batch job for a stage's oldest pending videos",
		Args:      cobra.ExactArgs(1),
		ValidArgs: stageNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				p := s.pipeline()
				opts, err := stagerun.OptionsFromConfig(s.cfg, s.table, args[0])
				if err != nil {
					return err
				}
				if maxItems > 0 {
					opts.MaxItems = maxItems
				}
				opts.Logger = s.logger
				opts.Queue = s.queue
				opts.Notifier = s.notifier
				opts.Submitter = p.Submitter

				result, err := stagerun.Run(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if result.Aborted {
					fmt.Fprintf(out, "Stage %s skipped: %s\n", result.Stage, result.Reason)
					return nil
				}
				fmt.Fprintf(out, "Submitted %s with %d videos\n", result.KernelName, len(result.VideoIDs))
				if result.Link != "" {
					fmt.Fprintf(out, "Link: %s\n", result.Link)
				}
				fmt.Fprintf(out, "Output: %s\n", result.OutputDir)
				if opts.AdvanceOnSubmit {
					fmt.Fprintf(out, "Advanced %d videos (%d already advanced)\n", result.Moved, result.AlreadyMoved)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&maxItems, "max-items", 0, "Override the batch size for this run")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON output")
	return cmd
}

func newStageCompleteCommand(ctx *commandContext) *cobra.Command {
	var kernelName string
	var outputDir string
	var idsFile string

	cmd := &cobra.Command{
		Use:   "complete <stage> [video-id...]",
		Short: "Advance videos a finished job processed to the stage's destination queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				def, ok := s.table.Lookup(args[0])
				if !ok {
					return fmt.Errorf("unknown stage %q (known: %s)", args[0], strings.Join(s.table.Names(), ", "))
				}
				ids := args[1:]
				if idsFile != "" {
					fromFile, err := readIDs(cmd, idsFile)
					if err != nil {
						return err
					}
					ids = append(ids, fromFile...)
				}
				if len(ids) == 0 {
					return errors.New("no video ids given")
				}

				tracking := stagerun.Tracking{
					KernelName:  strings.TrimSpace(kernelName),
					OutputDir:   strings.TrimSpace(outputDir),
					VideoCount:  len(ids),
					SubmittedAt: time.Now().UTC(),
				}
				completion, err := stagerun.Complete(cmd.Context(), s.logger, s.queue, def, ids, tracking)
				fmt.Fprintf(cmd.OutOrStdout(), "Moved %d videos from %s to %s (%d already moved)\n",
					completion.Moved, def.Source, def.Destination, completion.AlreadyMoved)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&kernelName, "kernel", "", "Kernel name recorded in the tracking entry")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory recorded in the tracking entry")
	cmd.Flags().StringVar(&idsFile, "ids-file", "", "Read video ids from a file, one per line (- for stdin)")
	return cmd
}

func readIDs(cmd *cobra.Command, path string) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open ids file: %w", err)
		}
		defer f.Close()
		r = f
	}
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ids file: %w", err)
	}
	return ids, nil
}

func stageNames() []string {
	return stage.DefaultTable().Names()
}
