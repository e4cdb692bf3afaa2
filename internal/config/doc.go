// Package config loads, normalizes, and validates ytcollector configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// KAGGLE_USERNAME and YTCOLLECTOR_NTFY_TOPIC. The Config type centralizes every
// knob the CLI and pipeline stages need: queue storage locations, monitored
// channels and their flows, per-run caps, the inter-channel jitter window, and
// batch-job submission settings.
//
// Build the Config once at process start and pass it down explicitly; nothing
// in the pipeline looks configuration up from global state.
package config
