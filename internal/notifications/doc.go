// Package notifications delivers pipeline events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// discovery and stage code can notify unconditionally. Per-event toggles in
// the [notifications] config section silence individual event families.
package notifications
