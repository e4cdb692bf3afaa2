// Package analysis summarizes collected transcripts with an LLM.
//
// Run picks the oldest items in the configured source queue whose caption
// file is present under the output directory recorded by the captions stage,
// flattens the json3 captions to text, asks the model for <topic_block>
// summaries, notifies, and moves each item to the destination queue stamped
// with the analysis tracking key. Items whose captions are missing stay where
// they are and are retried on the next run.
package analysis
