// Package services defines shared utilities consumed by pipeline stages and
// their external integrations (yt-dlp, the Kaggle CLI).
//
// Key responsibilities:
//   - Context helpers that stamp stage names, channels, item IDs, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures from external
//     tools carry consistent context and can be classified with Kind.
//   - The Executor abstraction that makes external command execution testable.
package services
