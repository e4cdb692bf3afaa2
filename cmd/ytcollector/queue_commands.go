package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ytcollector/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair the job queues",
	}
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRecoverCommand(ctx))
	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show item counts per queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				counts := make(map[string]int)
				rows := make([][]string, 0, len(s.queue.Queues()))
				total := 0
				for _, name := range s.queue.Queues() {
					n, err := s.queue.Size(cmd.Context(), name)
					if err != nil {
						return err
					}
					counts[name] = n
					total += n
					rows = append(rows, []string{name, strconv.Itoa(n)})
				}
				if jsonOutput {
					return writeJSON(cmd, counts)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(queueSizeColumns, rows,
					[]string{"total", strconv.Itoa(total)},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON output")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list <queue>",
		Short: "List items in a queue, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				var (
					items []queue.Item
					err   error
				)
				if limit > 0 {
					items, err = s.queue.ListPending(cmd.Context(), args[0], limit)
				} else {
					items, err = s.queue.Collect(cmd.Context(), args[0])
					queue.SortPending(items)
				}
				if err != nil {
					return err
				}
				if jsonOutput {
					if items == nil {
						items = []queue.Item{}
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintf(out, "Queue %s is empty\n", args[0])
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						item.Channel,
						item.DiscoveredAt.Local().Format("2006-01-02 15:04"),
						truncate(item.Title, 48),
						strings.Join(item.TrackingKeys(), ", "),
					})
				}
				fmt.Fprintln(out, renderTable(queueItemColumns, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many items")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON output")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show where a video is and what each stage recorded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				id := strings.TrimSpace(args[0])
				locations, err := s.queue.Locate(cmd.Context(), id)
				if err != nil {
					return err
				}
				if len(locations) == 0 {
					seen, err := s.queue.Seen(cmd.Context(), id)
					if err != nil {
						return err
					}
					if seen {
						return fmt.Errorf("video %s was seen before but is in no queue", id)
					}
					return fmt.Errorf("video %s: %w", id, queue.ErrNotFound)
				}
				// An item in two queues is an interrupted move; show the
				// furthest copy.
				item, err := s.queue.Get(cmd.Context(), locations[len(locations)-1], id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, struct {
						Queues []string   `json:"queues"`
						Item   queue.Item `json:"item"`
					}{locations, item})
				}
				printItem(cmd, locations, item)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON output")
	return cmd
}

func printItem(cmd *cobra.Command, locations []string, item queue.Item) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", item.ID)
	fmt.Fprintf(out, "Queue:       %s\n", strings.Join(locations, ", "))
	if len(locations) > 1 {
		fmt.Fprintln(out, "             (present in more than one queue; run `ytcollector queue recover`)")
	}
	fmt.Fprintf(out, "Channel:     %s\n", item.Channel)
	fmt.Fprintf(out, "Discovered:  %s\n", item.DiscoveredAt.Format(time.RFC3339))
	if item.Title != "" {
		fmt.Fprintf(out, "Title:       %s\n", item.Title)
	}
	if item.URL != "" {
		fmt.Fprintf(out, "URL:         %s\n", item.URL)
	}
	if item.ViewCount != nil {
		fmt.Fprintf(out, "Views:       %d\n", *item.ViewCount)
	}
	for _, key := range item.TrackingKeys() {
		fmt.Fprintf(out, "%s: %s\n", key, string(item.Tracking[key]))
	}
}

func newQueueRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Repair videos left in two queues by an interrupted move",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(s *session) error {
				repaired, err := s.queue.Recover(cmd.Context(), s.table)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d interrupted moves\n", repaired)
				return nil
			})
		},
	}
}

func truncate(value string, width int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= width {
		return string(runes)
	}
	return string(runes[:width-1]) + "…"
}
