package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ytcollector/internal/config"
	"ytcollector/internal/logging"
	"ytcollector/internal/notifications"
	"ytcollector/internal/queue"
	"ytcollector/internal/services"
	"ytcollector/internal/services/llm"
)

// StepName labels analysis runs in logs, notifications, and the pipeline.
const StepName = "analysis"

// Abort reasons.
const (
	AbortNoPending  = "no pending items"
	AbortNoCaptions = "no items with captions"
)

// Completer sends a chat conversation to a model.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (llm.Completion, error)
}

// Queue is the subset of queue.JobQueue the step uses.
type Queue interface {
	Collect(ctx context.Context, queue string) ([]queue.Item, error)
	Move(ctx context.Context, id, from, to, key string, value any) (queue.Item, error)
}

// Record is stored under the analysis tracking key.
type Record struct {
	Model       string          `json:"model"`
	AnalyzedAt  time.Time       `json:"analyzed_at"`
	CaptionFile string          `json:"caption_file"`
	Topics      []Topic         `json:"topics"`
	Content     string          `json:"content"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// Options configures one analysis run.
type Options struct {
	Logger    *slog.Logger
	Queue     Queue
	Notifier  notifications.Service
	Completer Completer
	Settings  config.Analysis
	// Prompt overrides Settings.PromptFile when set.
	Prompt string
	Now    func() time.Time
}

// Result summarizes an analysis run.
type Result struct {
	RunID        string   `json:"run_id"`
	Aborted      bool     `json:"aborted"`
	Reason       string   `json:"reason,omitempty"`
	Analyzed     []string `json:"analyzed"`
	Skipped      []string `json:"skipped,omitempty"`
	AlreadyMoved int      `json:"already_moved"`
}

// Run analyzes up to Settings.MaxItems items from the source queue, oldest
// first. Items without readable captions are skipped and stay queued. A model
// or move failure stops the run and leaves the item in the source queue.
func Run(ctx context.Context, opts Options) (Result, error) {
	settings := opts.Settings
	if opts.Queue == nil {
		return Result{}, errors.New("analysis: queue is required")
	}
	if opts.Completer == nil {
		return Result{}, errors.New("analysis: completer is required")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	limit := max(settings.MaxItems, 1)

	runID := uuid.NewString()
	runCtx := services.WithRequestID(services.WithStage(ctx, StepName), runID)
	logger := logging.WithContext(runCtx, logging.NewComponentLogger(opts.Logger, "analysis"))
	result := Result{RunID: runID}

	prompt := opts.Prompt
	if prompt == "" {
		loaded, err := LoadPrompt(settings.PromptFile)
		if err != nil {
			return result, fail(runCtx, logger, notifier, services.Wrap(services.ErrConfiguration, StepName, "load prompt", settings.PromptFile, err))
		}
		prompt = loaded
	}

	logger.Info("analysis started",
		logging.String(logging.FieldEventType, "analysis_start"),
		logging.String("source_queue", settings.SourceQueue),
		logging.String("destination_queue", settings.DestinationQueue),
		logging.Int("max_items", limit),
	)

	items, err := opts.Queue.Collect(runCtx, settings.SourceQueue)
	if err != nil {
		return result, fail(runCtx, logger, notifier, fmt.Errorf("list %s: %w", settings.SourceQueue, err))
	}
	queue.SortPending(items)

	for _, item := range items {
		if len(result.Analyzed) >= limit {
			break
		}
		if err := runCtx.Err(); err != nil {
			return result, err
		}
		if item.HasTracking(settings.TrackingKey) {
			continue
		}
		itemLogger := logger.With(logging.String(logging.FieldItemID, item.ID))

		captionFile, transcript, err := loadTranscript(item, settings)
		if err != nil {
			result.Skipped = append(result.Skipped, item.ID)
			logging.WarnWithContext(itemLogger, "transcript unavailable", "analysis_transcript_missing",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the item stays queued until its caption file exists"),
			)
			continue
		}

		completion, err := opts.Completer.Complete(runCtx, []llm.Message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: transcript},
		})
		if err != nil {
			return result, fail(runCtx, itemLogger, notifier, fmt.Errorf("analyze %s: %w", item.ID, err))
		}
		topics := ParseTopics(completion.Content)
		if len(topics) == 0 {
			logging.WarnWithContext(itemLogger, "model returned no topic blocks", "analysis_no_topics",
				logging.String("finish_reason", completion.FinishReason),
			)
		}

		record := Record{
			Model:       completion.Model,
			AnalyzedAt:  now().UTC(),
			CaptionFile: captionFile,
			Topics:      topics,
			Content:     completion.Content,
			Response:    completion.Raw,
		}
		if _, err := opts.Queue.Move(runCtx, item.ID, settings.SourceQueue, settings.DestinationQueue, settings.TrackingKey, record); err != nil {
			if errors.Is(err, queue.ErrNotFound) {
				result.AlreadyMoved++
				itemLogger.Debug("item already analyzed")
				continue
			}
			return result, fail(runCtx, itemLogger, notifier, fmt.Errorf("move %s: %w", item.ID, err))
		}
		result.Analyzed = append(result.Analyzed, item.ID)
		itemLogger.Info("video analyzed",
			logging.String(logging.FieldEventType, "analysis_item_complete"),
			logging.Int("topics", len(topics)),
			logging.String("model", completion.Model),
		)

		report := notifications.Analysis{VideoID: item.ID, Title: item.Title, Channel: item.Channel}
		for _, topic := range topics {
			report.Topics = append(report.Topics, topic.Format())
		}
		if err := notifier.NotifyAnalysisCompleted(runCtx, report); err != nil {
			itemLogger.Debug("analysis notification failed", logging.Error(err))
		}
	}

	if len(result.Analyzed) == 0 && result.AlreadyMoved == 0 {
		result.Aborted = true
		result.Reason = AbortNoPending
		if len(result.Skipped) > 0 {
			result.Reason = AbortNoCaptions
		}
		logger.Info("analysis aborted",
			logging.String(logging.FieldEventType, "analysis_abort"),
			logging.String("reason", result.Reason),
			logging.Int("skipped", len(result.Skipped)),
		)
		if err := notifier.NotifyStageAborted(runCtx, StepName, result.Reason); err != nil {
			logger.Debug("analysis abort notification failed", logging.Error(err))
		}
		return result, nil
	}

	logger.Info("analysis completed",
		logging.String(logging.FieldEventType, "analysis_complete"),
		logging.Int("analyzed", len(result.Analyzed)),
		logging.Int("skipped", len(result.Skipped)),
		logging.Int("already_moved", result.AlreadyMoved),
	)
	return result, nil
}

// captionTracking is the part of the captions stage's tracking entry the
// analysis step reads.
type captionTracking struct {
	OutputDir string `json:"output_dir"`
}

func loadTranscript(item queue.Item, settings config.Analysis) (string, string, error) {
	raw, ok := item.Tracking[settings.CaptionTrackingKey]
	if !ok {
		return "", "", fmt.Errorf("no %s tracking entry", settings.CaptionTrackingKey)
	}
	var tracking captionTracking
	if err := json.Unmarshal(raw, &tracking); err != nil {
		return "", "", fmt.Errorf("decode %s tracking: %w", settings.CaptionTrackingKey, err)
	}
	if strings.TrimSpace(tracking.OutputDir) == "" {
		return "", "", fmt.Errorf("%s tracking has no output_dir", settings.CaptionTrackingKey)
	}
	path := CaptionPath(tracking.OutputDir, item.ID, settings.CaptionLanguage)
	transcript, err := ReadCaptions(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, "", fmt.Errorf("caption file %s not found", path)
		}
		return path, "", err
	}
	if transcript == "" {
		return path, "", fmt.Errorf("caption file %s has no text", path)
	}
	return path, transcript, nil
}

func fail(ctx context.Context, logger *slog.Logger, notifier notifications.Service, err error) error {
	logging.ErrorWithContext(logger, "analysis failed", "analysis_failure",
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
		logging.String(logging.FieldErrorHint, "check llm settings and re-run; the item stays in its queue"),
	)
	if notifyErr := notifier.NotifyError(ctx, err, "analysis"); notifyErr != nil {
		logger.Debug("error notification failed", logging.Error(notifyErr))
	}
	return err
}
