package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ytcollector/internal/config"
)

const userAgent = "ytcollector/0.1.0"

// Submission describes an accepted batch job.
type Submission struct {
	Stage      string
	KernelName string
	VideoCount int
	OutputDir  string
	Link       string
}

// Analysis describes the topics extracted from one video's transcript.
type Analysis struct {
	VideoID string
	Title   string
	Channel string
	// Topics holds one pre-formatted block per extracted topic.
	Topics []string
}

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyDiscoveryCompleted(ctx context.Context, channels, added, failed, queueSize int) error
	NotifyChannelFailed(ctx context.Context, channel string, err error) error
	NotifyJobSubmitted(ctx context.Context, sub Submission) error
	NotifyStageAborted(ctx context.Context, stage, reason string) error
	NotifyPipelineCompleted(ctx context.Context, attempted, failed int, duration time.Duration) error
	NotifyAnalysisCompleted(ctx context.Context, report Analysis) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		toggles:  cfg.Notifications,
	}
}

// NewNoop returns a Service that drops every event.
func NewNoop() Service { return noopService{} }

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	toggles  config.Notifications
}

func (n *ntfyService) NotifyDiscoveryCompleted(ctx context.Context, channels, added, failed, queueSize int) error {
	if !n.toggles.Discovery {
		return nil
	}
	title := "ytcollector - Fetch Complete"
	message := fmt.Sprintf("✅ URL fetching completed for %d channels\nNew videos queued: %d\nEntry queue size: %d", channels, added, queueSize)
	if failed > 0 {
		title = "ytcollector - Fetch Complete (with errors)"
		message = fmt.Sprintf("%s\nChannels failed: %d", message, failed)
	}
	return n.send(ctx, payload{
		title:   title,
		message: message,
		tags:    []string{"ytcollector", "fetch", "completed"},
	})
}

func (n *ntfyService) NotifyChannelFailed(ctx context.Context, channel string, err error) error {
	if !n.toggles.Errors {
		return nil
	}
	message := fmt.Sprintf("🚨 Failed to fetch channel %s", strings.TrimSpace(channel))
	if err != nil {
		message = fmt.Sprintf("%s\n%v", message, err)
	}
	return n.send(ctx, payload{
		title:    "ytcollector - Channel Error",
		message:  message,
		tags:     []string{"ytcollector", "fetch", "error"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyJobSubmitted(ctx context.Context, sub Submission) error {
	if !n.toggles.Submission {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 Job submitted for stage %s\n", sub.Stage)
	fmt.Fprintf(&b, "Kernel: %s\n", sub.KernelName)
	fmt.Fprintf(&b, "Videos: %d", sub.VideoCount)
	if sub.OutputDir != "" {
		fmt.Fprintf(&b, "\nOutput: %s", sub.OutputDir)
	}
	if sub.Link != "" {
		fmt.Fprintf(&b, "\nLink: %s", sub.Link)
	}
	return n.send(ctx, payload{
		title:   "ytcollector - Job Submitted",
		message: b.String(),
		tags:    []string{"ytcollector", sub.Stage, "submitted"},
	})
}

func (n *ntfyService) NotifyStageAborted(ctx context.Context, stage, reason string) error {
	if !n.toggles.Aborts {
		return nil
	}
	return n.send(ctx, payload{
		title:    "ytcollector - Job Aborted",
		message:  fmt.Sprintf("🛑 Stage %s aborted: %s", stage, strings.TrimSpace(reason)),
		tags:     []string{"ytcollector", stage, "aborted"},
		priority: "low",
	})
}

func (n *ntfyService) NotifyPipelineCompleted(ctx context.Context, attempted, failed int, duration time.Duration) error {
	duration = max(duration.Round(time.Second), 0)
	title := "ytcollector - Pipeline Complete"
	message := fmt.Sprintf("Pipeline finished: %d stages in %s", attempted, duration)
	if failed > 0 {
		title = "ytcollector - Pipeline Complete (with errors)"
		message = fmt.Sprintf("Pipeline finished: %d of %d stages failed in %s", failed, attempted, duration)
	}
	return n.send(ctx, payload{
		title:   title,
		message: message,
		tags:    []string{"ytcollector", "pipeline", "completed"},
	})
}

func (n *ntfyService) NotifyAnalysisCompleted(ctx context.Context, report Analysis) error {
	if !n.toggles.Analysis {
		return nil
	}
	title := strings.TrimSpace(report.Title)
	if title == "" {
		title = report.VideoID
	}
	var b strings.Builder
	if report.Channel != "" {
		fmt.Fprintf(&b, "📺 %s\n", report.Channel)
	}
	if len(report.Topics) == 0 {
		b.WriteString("No topics extracted")
	} else {
		b.WriteString(strings.Join(report.Topics, "\n\n"))
	}
	return n.send(ctx, payload{
		title:   "ytcollector - Video Analysis: " + title,
		message: b.String(),
		tags:    []string{"ytcollector", "analysis", "completed"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.toggles.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	if err != nil {
		builder.WriteString(": ")
		builder.WriteString(err.Error())
	}
	return n.send(ctx, payload{
		title:    "ytcollector - Error",
		message:  builder.String(),
		tags:     []string{"ytcollector", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "ytcollector - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"ytcollector", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDiscoveryCompleted(context.Context, int, int, int, int) error { return nil }
func (noopService) NotifyChannelFailed(context.Context, string, error) error           { return nil }
func (noopService) NotifyJobSubmitted(context.Context, Submission) error               { return nil }
func (noopService) NotifyStageAborted(context.Context, string, string) error           { return nil }
func (noopService) NotifyPipelineCompleted(context.Context, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyAnalysisCompleted(context.Context, Analysis) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }
