package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Counts are right aligned.
type column struct {
	title string
	count bool
}

var (
	queueSizeColumns = []column{{title: "Queue"}, {title: "Items", count: true}}
	queueItemColumns = []column{{title: "ID"}, {title: "Channel"}, {title: "Discovered"}, {title: "Title"}, {title: "Tracking"}}
	stageColumns     = []column{{title: "Stage"}, {title: "Source"}, {title: "Destination"}, {title: "Pending", count: true}, {title: "Batch", count: true}, {title: "Job"}}
	fetchColumns     = []column{{title: "Channel"}, {title: "Queue"}, {title: "Added", count: true}, {title: "Skipped", count: true}, {title: "Error"}}
)

// renderTable draws rows under columns. footer, when non-nil, is rendered as
// a totals row. Short rows are padded.
func renderTable(columns []column, rows [][]string, footer []string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(asRow(columns, func(i int) string { return columns[i].title }))
	for _, row := range rows {
		tw.AppendRow(asRow(columns, cellAt(row)))
	}
	if footer != nil {
		tw.AppendFooter(asRow(columns, cellAt(footer)))
	}

	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		align := text.AlignLeft
		if col.count {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignFooter: align,
			AlignHeader: text.AlignLeft,
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func asRow(columns []column, cell func(int) string) table.Row {
	row := make(table.Row, len(columns))
	for i := range columns {
		row[i] = cell(i)
	}
	return row
}

func cellAt(values []string) func(int) string {
	return func(i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}
}
