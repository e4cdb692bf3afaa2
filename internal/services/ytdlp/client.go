// Package ytdlp lists a channel's recent uploads through the yt-dlp CLI.
package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ytcollector/internal/discovery"
	"ytcollector/internal/services"
)

// Client implements discovery.Source.
type Client struct {
	binary             string
	cookiesFromBrowser string
	timeout            time.Duration
	exec               services.Executor
}

// Option customizes a Client.
type Option func(*Client)

// WithExecutor swaps the command runner, mostly for tests.
func WithExecutor(exec services.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithCookiesFromBrowser passes --cookies-from-browser to yt-dlp.
func WithCookiesFromBrowser(browser string) Option {
	return func(c *Client) { c.cookiesFromBrowser = strings.TrimSpace(browser) }
}

// WithTimeout bounds each listing.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New constructs a Client for the given binary.
func New(binary string, opts ...Option) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	c := &Client{binary: binary, exec: services.CommandExecutor{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type entry struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	WebpageURL  string `json:"webpage_url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ViewCount   *int64 `json:"view_count"`
}

// ChannelURL returns the uploads page for a channel handle. Full URLs pass
// through unchanged.
func ChannelURL(channel string) string {
	channel = strings.TrimSpace(channel)
	if strings.HasPrefix(channel, "http://") || strings.HasPrefix(channel, "https://") {
		return channel
	}
	return "https://www.youtube.com/@" + strings.TrimPrefix(channel, "@") + "/videos"
}

// Latest returns up to limit of the channel's newest uploads, newest first.
func (c *Client) Latest(ctx context.Context, channel string, limit int) ([]discovery.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{
		"--flat-playlist",
		"--dump-json",
		"--no-warnings",
		"--skip-download",
		"--playlist-end", fmt.Sprint(limit),
	}
	if c.cookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", c.cookiesFromBrowser)
	}
	args = append(args, ChannelURL(channel))

	var (
		out      []discovery.Candidate
		parseErr error
	)
	err := c.exec.Run(ctx, c.binary, args, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" || parseErr != nil {
			return
		}
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			parseErr = fmt.Errorf("decode yt-dlp entry: %w", err)
			return
		}
		if e.ID == "" {
			return
		}
		url := e.URL
		if url == "" {
			url = e.WebpageURL
		}
		if url == "" {
			url = "https://www.youtube.com/watch?v=" + e.ID
		}
		out = append(out, discovery.Candidate{
			ID:          e.ID,
			URL:         url,
			Title:       e.Title,
			Description: e.Description,
			ViewCount:   e.ViewCount,
		})
	})
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "discovery", "yt-dlp", "list "+channel, err)
	}
	if parseErr != nil {
		return nil, services.Wrap(services.ErrValidation, "discovery", "yt-dlp", "parse output for "+channel, parseErr)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
