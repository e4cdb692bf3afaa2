// Package preflight provides readiness checks for the filesystem paths,
// external binaries and services the collector depends on.
//
// The CLI "ytcollector preflight" command prints every result, and the
// pipeline sequencer runs RunAll before discovery so a broken setup fails
// fast instead of half-way through the stage chain.
package preflight
