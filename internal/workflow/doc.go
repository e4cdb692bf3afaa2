// Package workflow runs the collector's stage chain once, in order.
//
// The Sequencer replaces the cron-style shell script that used to drive the
// pipeline: it runs discovery and then every stage of the stage table with a
// configured pause between steps, records each step's outcome, and keeps
// going when a step fails. The exit status of a pipeline run reflects only
// whether the last step succeeded. An advisory file lock keeps two sequencer
// runs from overlapping; queue correctness never depends on it.
package workflow
