// Package llm talks to an OpenAI-compatible chat completion endpoint.
//
// Transcript analysis sends a system prompt plus the flattened captions and
// receives free-form text (the topic XML). Requests that fail with HTTP
// 408, 429, or 5xx, time out, or come back with empty content are retried
// with exponential backoff; Retry-After is honoured up to the backoff cap.
// Other failures are returned at once, marked with services.ErrExternalTool
// or services.ErrConfiguration.
package llm
