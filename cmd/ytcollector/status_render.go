package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"ytcollector/internal/preflight"
	"ytcollector/internal/workflow"
)

// outcome classifies a preflight check or pipeline step for display.
type outcome int

const (
	outcomePassed outcome = iota
	outcomeWarned
	outcomeFailed
)

var outcomeStyles = map[outcome]struct {
	label  string
	colors text.Colors
}{
	outcomePassed: {"OK", text.Colors{text.FgGreen}},
	outcomeWarned: {"WARN", text.Colors{text.FgYellow}},
	outcomeFailed: {"FAIL", text.Colors{text.FgRed, text.Bold}},
}

const outcomeLabelWidth = 22

func checkOutcome(r preflight.Result) outcome {
	switch {
	case r.Passed:
		return outcomePassed
	case r.Optional:
		return outcomeWarned
	default:
		return outcomeFailed
	}
}

func stepOutcome(o workflow.Outcome) (outcome, string) {
	elapsed := o.Duration.Round(time.Millisecond).String()
	if o.Succeeded() {
		return outcomePassed, elapsed
	}
	return outcomeFailed, fmt.Sprintf("%s (%v)", elapsed, o.Err)
}

// renderOutcome formats one "name: [KIND] detail" line.
func renderOutcome(name string, kind outcome, detail string, colorize bool) string {
	style := outcomeStyles[kind]
	status := "[" + style.label + "]"
	if colorize {
		status = style.colors.Sprint(status)
	}
	line := fmt.Sprintf("  %-*s %s", outcomeLabelWidth, name+":", status)
	if detail != "" {
		line += " " + detail
	}
	return line
}

func writeSection(out io.Writer, title string, colorize bool) {
	heading := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	if colorize {
		heading = text.Colors{text.FgCyan, text.Bold}.Sprint(heading)
	}
	fmt.Fprintln(out, heading)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
