package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ytcollector/internal/config"
	"ytcollector/internal/services"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultAttempts  = 4
	defaultBaseDelay = 2 * time.Second
	defaultMaxDelay  = 30 * time.Second
	maxBodySnippet   = 200
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is a successful chat completion.
type Completion struct {
	Model        string
	Content      string
	FinishReason string
	// Raw is the undecoded response body, kept for the item record.
	Raw json.RawMessage
}

// Client issues chat completion requests.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	referer  string
	title    string
	http     *http.Client

	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	sleep     func(context.Context, time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetry sets the attempt budget and backoff bounds.
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// WithSleep replaces the backoff wait, mostly for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// New builds a client from the [llm] configuration section.
func New(cfg config.LLM, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		endpoint:  strings.TrimSpace(cfg.BaseURL),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		model:     strings.TrimSpace(cfg.Model),
		referer:   strings.TrimSpace(cfg.Referer),
		title:     strings.TrimSpace(cfg.Title),
		http:      &http.Client{Timeout: timeout},
		attempts:  defaultAttempts,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model reports the configured model id.
func (c *Client) Model() string { return c.model }

// Complete sends messages and returns the first non-empty choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (Completion, error) {
	if c.apiKey == "" {
		return Completion{}, services.Wrap(services.ErrConfiguration, "analysis", "llm complete", "llm.api_key is not set", nil)
	}
	if c.endpoint == "" || c.model == "" {
		return Completion{}, services.Wrap(services.ErrConfiguration, "analysis", "llm complete", "llm.base_url and llm.model are required", nil)
	}
	if len(messages) == 0 {
		return Completion{}, errors.New("llm complete: no messages")
	}
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return Completion{}, fmt.Errorf("llm complete: encode request: %w", err)
	}

	attempts := max(c.attempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		completion, err := c.send(ctx, body)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		delay, retry := c.retryAfter(ctx, err, attempt)
		if !retry || attempt == attempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return Completion{}, err
		}
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return Completion{}, services.Wrap(services.ErrTimeout, "analysis", "llm complete", c.model, lastErr)
	}
	return Completion{}, services.Wrap(services.ErrExternalTool, "analysis", "llm complete", c.model, lastErr)
}

// HealthCheck verifies the endpoint accepts the key and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Complete(ctx, []Message{
		{Role: "system", Content: "Reply with the single word OK."},
		{Role: "user", Content: "ping"},
	})
	return err
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		// Some providers answer with the streaming shape even when stream=false.
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

type emptyError struct {
	finishReason string
	refusal      string
}

func (e *emptyError) Error() string {
	if e.refusal != "" {
		return fmt.Sprintf("empty completion (finish_reason=%q, refusal=%q)", e.finishReason, e.refusal)
	}
	return fmt.Sprintf("empty completion (finish_reason=%q)", e.finishReason)
}

func (c *Client) send(ctx context.Context, body []byte) (Completion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Completion{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Completion{}, &statusError{
			code:       resp.StatusCode,
			body:       snippet(string(raw)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Completion{}, fmt.Errorf("decode response: %w (body: %s)", err, snippet(string(raw)))
	}
	if decoded.Error != nil {
		return Completion{}, fmt.Errorf("api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	empty := &emptyError{}
	for _, choice := range decoded.Choices {
		if empty.finishReason == "" {
			empty.finishReason = choice.FinishReason
		}
		if empty.refusal == "" {
			empty.refusal = strings.TrimSpace(choice.Message.Refusal)
		}
		for _, content := range []string{choice.Message.Content, choice.Delta.Content, choice.Text} {
			if strings.TrimSpace(content) == "" {
				continue
			}
			model := decoded.Model
			if model == "" {
				model = c.model
			}
			return Completion{
				Model:        model,
				Content:      strings.TrimSpace(content),
				FinishReason: choice.FinishReason,
				Raw:          json.RawMessage(raw),
			}, nil
		}
	}
	return Completion{}, empty
}

func (c *Client) retryAfter(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return 0, false
	}
	var empty *emptyError
	if errors.As(err, &empty) {
		return c.backoff(attempt), empty.refusal == ""
	}
	var status *statusError
	if errors.As(err, &status) {
		if status.code != http.StatusRequestTimeout && status.code != http.StatusTooManyRequests && status.code < http.StatusInternalServerError {
			return 0, false
		}
		if status.retryAfter > 0 {
			return min(status.retryAfter, c.maxDelay), true
		}
		return c.backoff(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoff(attempt), true
	}
	return 0, false
}

// backoff doubles baseDelay per attempt up to maxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	if c.baseDelay <= 0 {
		return 0
	}
	delay := c.baseDelay
	for i := 1; i < attempt && delay < c.maxDelay; i++ {
		delay *= 2
	}
	if c.maxDelay > 0 && delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(time.Until(when), 0)
	}
	return 0
}

func snippet(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	if clean == "" {
		return "<empty>"
	}
	runes := []rune(clean)
	if len(runes) > maxBodySnippet {
		return string(runes[:maxBodySnippet]) + "..."
	}
	return clean
}
