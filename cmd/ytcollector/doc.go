// Package main hosts the ytcollector CLI entrypoint and command graph.
//
// Every command is a short-lived, single-threaded invocation meant to be
// triggered by cron or a systemd timer: "fetch" discovers new videos, "stage
// run" submits one batch job, "stage complete" advances the videos a finished
// job processed, and "pipeline run" chains them all. Queue inspection,
// configuration scaffolding, preflight checks and notification testing round
// out the tree. The heavy lifting lives in the internal packages; commands
// here only resolve configuration, wire collaborators and render output.
package main
