package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"ytcollector/internal/config"
	"ytcollector/internal/logging"
	"ytcollector/internal/notifications"
	"ytcollector/internal/queue"
	"ytcollector/internal/services"
)

const defaultScanLimit = 50

// Candidate is one video reported by a Source.
type Candidate struct {
	ID          string
	URL         string
	Title       string
	Description string
	ViewCount   *int64
}

// Source lists the most recent videos of a channel, newest first.
type Source interface {
	Latest(ctx context.Context, channel string, limit int) ([]Candidate, error)
}

// Enqueuer is the subset of queue.JobQueue discovery needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, item queue.Item) (bool, error)
	Size(ctx context.Context, queue string) (int, error)
}

// Channel is a monitored channel and the queue its new videos enter.
type Channel struct {
	Name       string
	EntryQueue string
}

// ChannelsFromConfig resolves each configured channel's entry queue.
func ChannelsFromConfig(channels []config.Channel) ([]Channel, error) {
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		entry, err := ch.EntryQueue()
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.Name, err)
		}
		out = append(out, Channel{Name: ch.Name, EntryQueue: entry})
	}
	return out, nil
}

// ExternalSourceError isolates a failure to scan one channel.
type ExternalSourceError struct {
	Channel string
	Err     error
}

func (e *ExternalSourceError) Error() string {
	return fmt.Sprintf("scan channel %s: %v", e.Channel, e.Err)
}

func (e *ExternalSourceError) Unwrap() error { return e.Err }

// Options configures a discovery run.
type Options struct {
	Logger   *slog.Logger
	Queue    Enqueuer
	Source   Source
	Notifier notifications.Service
	Channels []Channel
	// MaxNew caps newly enqueued videos per channel per run.
	MaxNew int
	// ScanLimit is how many recent videos to request from the source. Already
	// seen videos do not count against MaxNew, so it should exceed MaxNew.
	ScanLimit int
	// JitterMax bounds the random pause between channels.
	JitterMax time.Duration
	// Sleep and Rand are replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func(n int64) int64
	Now   func() time.Time
}

// ChannelResult reports one channel's scan.
type ChannelResult struct {
	Channel  string
	Queue    string
	Added    int
	AddedIDs []string
	Skipped  int
	Err      error
}

// Summary reports a whole run.
type Summary struct {
	Channels  []ChannelResult
	Added     int
	Failed    int
	QueueSize map[string]int
}

// TotalQueued sums the sizes of every entry queue touched by the run.
func (s Summary) TotalQueued() int {
	total := 0
	for _, n := range s.QueueSize {
		total += n
	}
	return total
}

// Run scans every channel in order. Only context cancellation aborts the run;
// channel failures are recorded in the summary.
func Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Queue == nil || opts.Source == nil {
		return Summary{}, errors.New("discovery: queue and source are required")
	}
	if opts.MaxNew <= 0 {
		return Summary{}, fmt.Errorf("discovery: max new per channel must be positive, got %d", opts.MaxNew)
	}
	logger := logging.NewComponentLogger(opts.Logger, "discovery")
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	randN := opts.Rand
	if randN == nil {
		randN = rand.Int64N
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	scanLimit := opts.ScanLimit
	if scanLimit <= 0 {
		scanLimit = defaultScanLimit
	}
	scanLimit = max(scanLimit, opts.MaxNew)

	summary := Summary{QueueSize: make(map[string]int)}
	for i, ch := range opts.Channels {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		chCtx := services.WithChannel(ctx, ch.Name)
		result := scanChannel(chCtx, logging.WithContext(chCtx, logger), opts, ch, scanLimit, now)
		summary.Channels = append(summary.Channels, result)
		summary.Added += result.Added
		if result.Err != nil {
			summary.Failed++
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			if err := notifier.NotifyChannelFailed(ctx, ch.Name, result.Err); err != nil {
				logger.Debug("channel failure notification failed", logging.Error(err))
			}
		}

		if i < len(opts.Channels)-1 && opts.JitterMax > 0 {
			pause := time.Duration(randN(int64(opts.JitterMax) + 1))
			logger.Debug("pausing before next channel", logging.Duration("jitter", pause))
			if err := sleep(ctx, pause); err != nil {
				return summary, err
			}
		}
	}

	for _, result := range summary.Channels {
		if _, done := summary.QueueSize[result.Queue]; done || result.Queue == "" {
			continue
		}
		size, err := opts.Queue.Size(ctx, result.Queue)
		if err != nil {
			logging.WarnWithContext(logger, "entry queue size unavailable", "queue_size_failed",
				logging.String(logging.FieldQueue, result.Queue),
				logging.Error(err),
			)
			continue
		}
		summary.QueueSize[result.Queue] = size
	}

	logger.Info("discovery complete",
		logging.Int("channels", len(summary.Channels)),
		logging.Int("added", summary.Added),
		logging.Int("failed", summary.Failed),
		logging.Int("queued", summary.TotalQueued()),
	)
	if err := notifier.NotifyDiscoveryCompleted(ctx, len(summary.Channels), summary.Added, summary.Failed, summary.TotalQueued()); err != nil {
		logger.Debug("discovery notification failed", logging.Error(err))
	}
	return summary, nil
}

func scanChannel(ctx context.Context, logger *slog.Logger, opts Options, ch Channel, scanLimit int, now func() time.Time) ChannelResult {
	result := ChannelResult{Channel: ch.Name, Queue: ch.EntryQueue}

	candidates, err := opts.Source.Latest(ctx, ch.Name, scanLimit)
	if err != nil {
		result.Err = &ExternalSourceError{Channel: ch.Name, Err: err}
		logging.WarnWithContext(logger, "channel scan failed", "discovery_channel_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the channel name and yt-dlp output"),
		)
		return result
	}
	logger.Debug("channel scanned", logging.Int("candidates", len(candidates)))

	for _, cand := range candidates {
		if result.Added >= opts.MaxNew {
			logger.Debug("per-channel cap reached", logging.Int("cap", opts.MaxNew))
			break
		}
		id := strings.TrimSpace(cand.ID)
		if id == "" {
			result.Skipped++
			continue
		}
		item := queue.Item{
			ID:           id,
			Channel:      ch.Name,
			DiscoveredAt: now().UTC(),
			URL:          cand.URL,
			Title:        cand.Title,
			Description:  cand.Description,
			ViewCount:    cand.ViewCount,
		}
		added, err := opts.Queue.Enqueue(ctx, ch.EntryQueue, item)
		if err != nil {
			if errors.Is(err, queue.ErrInvalidID) {
				result.Skipped++
				logger.Debug("skipping candidate with unusable id", logging.String(logging.FieldItemID, id))
				continue
			}
			result.Err = fmt.Errorf("enqueue %s: %w", id, err)
			logging.ErrorWithContext(logger, "enqueue failed", "discovery_enqueue_failed",
				logging.String(logging.FieldItemID, id),
				logging.Error(err),
			)
			return result
		}
		if !added {
			result.Skipped++
			continue
		}
		result.Added++
		result.AddedIDs = append(result.AddedIDs, id)
		logger.Info("new video queued",
			logging.String(logging.FieldItemID, id),
			logging.String(logging.FieldQueue, ch.EntryQueue),
			logging.String("title", cand.Title),
		)
	}
	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
