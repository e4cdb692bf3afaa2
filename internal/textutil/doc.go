// Package textutil provides text normalization helpers shared by the CLI and
// the pipeline stages.
//
// Slug produces ASCII, filesystem- and URL-safe identifiers (kernel names,
// channel keys) by decomposing Unicode, dropping combining marks, and
// collapsing everything else to hyphens. DisplayLabel turns snake_case stage
// and queue names into title-cased labels for human-facing output.
package textutil
