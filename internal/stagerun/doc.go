// Package stagerun runs one pipeline stage as a single batch job.
//
// A run lists the oldest pending videos in the stage's source queue, renders
// the stage's job template for them, and hands the result to a Submitter.
// Items leave the source queue only through Complete, which stamps the
// submission's tracking record on each item and moves it to the stage's
// destination. A failed render or submission leaves the source untouched so
// re-running the stage is always safe.
package stagerun
