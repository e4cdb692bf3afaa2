// Package logging assembles the structured slog loggers used across
// ytcollector.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context-aware helpers so pipeline code can tag log lines with video IDs,
// stages, channels, and run correlation IDs. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
