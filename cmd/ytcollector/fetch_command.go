package main

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"ytcollector/internal/discovery"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var only []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Discover new videos on monitored channels and enqueue them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				channels, err := discovery.ChannelsFromConfig(s.cfg.Channels)
				if err != nil {
					return err
				}
				if len(only) > 0 {
					channels = slices.DeleteFunc(channels, func(ch discovery.Channel) bool {
						return !slices.Contains(only, ch.Name)
					})
				}
				if len(channels) == 0 {
					return errors.New("no channels to scan; add [[channels]] to the config")
				}

				summary, err := s.pipeline().Discover(cmd.Context(), channels)
				if err != nil {
					return err
				}
				if jsonOutput {
					if err := writeJSON(cmd, fetchJSON(summary)); err != nil {
						return err
					}
				} else {
					printFetchSummary(cmd, summary)
				}
				if summary.Failed == len(summary.Channels) {
					return fmt.Errorf("all %d channels failed", summary.Failed)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&only, "channel", nil, "Scan only the named channel (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON output")
	return cmd
}

type fetchChannelJSON struct {
	Channel string   `json:"channel"`
	Queue   string   `json:"queue"`
	Added   []string `json:"added"`
	Skipped int      `json:"skipped"`
	Error   string   `json:"error,omitempty"`
}

type fetchSummaryJSON struct {
	Channels  []fetchChannelJSON `json:"channels"`
	Added     int                `json:"added"`
	Failed    int                `json:"failed"`
	QueueSize map[string]int     `json:"queue_size"`
}

func fetchJSON(summary discovery.Summary) fetchSummaryJSON {
	out := fetchSummaryJSON{
		Channels:  make([]fetchChannelJSON, 0, len(summary.Channels)),
		Added:     summary.Added,
		Failed:    summary.Failed,
		QueueSize: summary.QueueSize,
	}
	for _, ch := range summary.Channels {
		entry := fetchChannelJSON{
			Channel: ch.Channel,
			Queue:   ch.Queue,
			Added:   ch.AddedIDs,
			Skipped: ch.Skipped,
		}
		if entry.Added == nil {
			entry.Added = []string{}
		}
		if ch.Err != nil {
			entry.Error = ch.Err.Error()
		}
		out.Channels = append(out.Channels, entry)
	}
	return out
}

func printFetchSummary(cmd *cobra.Command, summary discovery.Summary) {
	rows := make([][]string, 0, len(summary.Channels))
	for _, ch := range summary.Channels {
		errText := ""
		if ch.Err != nil {
			errText = ch.Err.Error()
		}
		rows = append(rows, []string{ch.Channel, ch.Queue, strconv.Itoa(ch.Added), strconv.Itoa(ch.Skipped), errText})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(fetchColumns, rows,
		[]string{"total", "", strconv.Itoa(summary.Added), "", fmt.Sprintf("%d failed", summary.Failed)},
	))
	fmt.Fprintf(out, "Added %d new videos (%d channels failed); %d waiting in entry queues\n",
		summary.Added, summary.Failed, summary.TotalQueued())
}
