// Package discovery finds new videos on monitored channels and enqueues them
// into each channel's entry queue.
//
// Each channel is scanned newest first. Videos already seen anywhere in the
// pipeline are skipped silently and at most MaxNew videos per channel enter
// the queue per run. A failing channel is logged, notified, and counted; the
// remaining channels still run. A random pause separates consecutive channels.
package discovery
