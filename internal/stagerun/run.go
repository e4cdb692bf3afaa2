package stagerun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ytcollector/internal/config"
	"ytcollector/internal/jobtemplate"
	"ytcollector/internal/logging"
	"ytcollector/internal/notifications"
	"ytcollector/internal/queue"
	"ytcollector/internal/services"
	"ytcollector/internal/stage"
)

// KernelPrefix starts every generated batch job name.
const KernelPrefix = config.KernelNamePrefix

// AbortNoPending is the abort reason reported when the source queue is empty.
const AbortNoPending = "no pending items"

// Job is a rendered batch job ready for submission.
type Job struct {
	Stage      string
	KernelName string
	JobName    string
	Script     string
	VideoIDs   []string
	RunID      string
	OutputDir  string
}

// Ack is the external platform's acceptance of a Job.
type Ack struct {
	KernelName string
	Link       string
}

// Submitter hands a rendered Job to the external compute platform.
type Submitter interface {
	Submit(ctx context.Context, job Job) (Ack, error)
}

// SubmissionError reports a job the external platform did not accept.
type SubmissionError struct {
	Stage  string
	Kernel string
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s job %s: %v", e.Stage, e.Kernel, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Queue is the subset of queue.JobQueue a stage run needs.
type Queue interface {
	ListPending(ctx context.Context, queue string, limit int) ([]queue.Item, error)
	Move(ctx context.Context, id, from, to, key string, value any) (queue.Item, error)
}

// Tracking is the record stamped under the stage's tracking key when an item
// moves to the destination queue.
type Tracking struct {
	KernelName  string    `json:"kernel_name"`
	KernelLink  string    `json:"kaggle_kernel_link,omitempty"`
	OutputDir   string    `json:"output_dir"`
	VideoCount  int       `json:"video_count"`
	RunID       string    `json:"run_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Options configures a single stage run.
type Options struct {
	Logger     *slog.Logger
	Queue      Queue
	Notifier   notifications.Service
	Submitter  Submitter
	Definition stage.Definition
	// Template is used as-is when set; otherwise TemplatePath is loaded once
	// pending items are known.
	Template        *jobtemplate.Template
	TemplatePath    string
	JobName         string
	MaxItems        int
	MinutesQuota    int
	OutputRoot      string
	AdvanceOnSubmit bool
	Now             func() time.Time
	NewRunID        func() string
}

// OptionsFromConfig fills Options for the named stage from cfg.
func OptionsFromConfig(cfg *config.Config, table stage.Table, name string) (Options, error) {
	def, ok := table.Lookup(name)
	if !ok {
		return Options{}, fmt.Errorf("unknown stage %q", name)
	}
	settings := cfg.StageSettingsFor(name)
	return Options{
		Definition:      def,
		TemplatePath:    settings.Template,
		JobName:         settings.JobName,
		MaxItems:        settings.MaxItems,
		MinutesQuota:    cfg.Kaggle.MinutesQuota,
		OutputRoot:      cfg.Paths.OutputDir,
		AdvanceOnSubmit: cfg.Kaggle.AdvanceOnSubmit,
	}, nil
}

// Result reports the outcome of a stage run.
type Result struct {
	Stage        string   `json:"stage"`
	RunID        string   `json:"run_id"`
	Aborted      bool     `json:"aborted"`
	Reason       string   `json:"reason,omitempty"`
	KernelName   string   `json:"kernel_name,omitempty"`
	Link         string   `json:"kernel_link,omitempty"`
	OutputDir    string   `json:"output_dir,omitempty"`
	VideoIDs     []string `json:"video_ids,omitempty"`
	Moved        int      `json:"moved"`
	AlreadyMoved int      `json:"already_moved"`
}

// KernelName builds the external job name for a run.
func KernelName(jobName, runID string) string {
	return config.KernelName(jobName, runID)
}

// Run submits one batch job for the oldest pending items in the stage's
// source queue. An empty source queue aborts the run without error.
func Run(ctx context.Context, opts Options) (Result, error) {
	def := opts.Definition
	if opts.Queue == nil {
		return Result{}, errors.New("stagerun: queue is required")
	}
	if opts.Submitter == nil {
		return Result{}, fmt.Errorf("stagerun: submitter unavailable for %s", def.Name)
	}
	if opts.MaxItems <= 0 {
		return Result{}, fmt.Errorf("stagerun: %s max items must be positive, got %d", def.Name, opts.MaxItems)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = func() string { return uuid.NewString() }
	}

	runID := newRunID()
	stageCtx := services.WithRequestID(services.WithStage(ctx, def.Name), runID)
	logger := logging.WithContext(stageCtx, logging.NewComponentLogger(opts.Logger, "stagerun"))
	result := Result{Stage: def.Name, RunID: runID}

	logger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source_queue", def.Source),
		logging.String("destination_queue", def.Destination),
		logging.Int("max_items", opts.MaxItems),
	)

	items, err := opts.Queue.ListPending(stageCtx, def.Source, opts.MaxItems)
	if err != nil {
		return result, handleFailure(stageCtx, logger, notifier, def.Name, fmt.Errorf("list pending %s: %w", def.Source, err))
	}
	if len(items) == 0 {
		result.Aborted = true
		result.Reason = AbortNoPending
		logger.Info(
			"stage aborted",
			logging.String(logging.FieldEventType, "stage_abort"),
			logging.String("reason", result.Reason),
		)
		if err := notifier.NotifyStageAborted(stageCtx, def.Name, result.Reason); err != nil {
			logger.Debug("stage abort notification failed", logging.Error(err))
		}
		return result, nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	result.VideoIDs = ids

	script, err := render(opts, ids)
	if err != nil {
		return result, handleFailure(stageCtx, logger, notifier, def.Name, err)
	}

	kernel := KernelName(opts.JobName, runID)
	job := Job{
		Stage:      def.Name,
		KernelName: kernel,
		JobName:    opts.JobName,
		Script:     script,
		VideoIDs:   ids,
		RunID:      runID,
		OutputDir:  filepath.Join(opts.OutputRoot, kernel),
	}
	result.KernelName = kernel
	result.OutputDir = job.OutputDir

	ack, err := opts.Submitter.Submit(stageCtx, job)
	if err != nil {
		var subErr *SubmissionError
		if !errors.As(err, &subErr) {
			err = &SubmissionError{Stage: def.Name, Kernel: kernel, Err: err}
		}
		return result, handleFailure(stageCtx, logger, notifier, def.Name, err)
	}
	if strings.TrimSpace(ack.KernelName) != "" {
		result.KernelName = ack.KernelName
	}
	result.Link = ack.Link

	logger.Info(
		"job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String("kernel_name", result.KernelName),
		logging.String("kernel_link", result.Link),
		logging.Int("video_count", len(ids)),
		logging.String("output_dir", result.OutputDir),
	)
	if err := notifier.NotifyJobSubmitted(stageCtx, notifications.Submission{
		Stage:      def.Name,
		KernelName: result.KernelName,
		VideoCount: len(ids),
		OutputDir:  result.OutputDir,
		Link:       result.Link,
	}); err != nil {
		logger.Debug("submission notification failed", logging.Error(err))
	}

	if opts.AdvanceOnSubmit {
		tracking := Tracking{
			KernelName:  result.KernelName,
			KernelLink:  result.Link,
			OutputDir:   result.OutputDir,
			VideoCount:  len(ids),
			RunID:       runID,
			SubmittedAt: now().UTC(),
		}
		completion, err := Complete(stageCtx, logger, opts.Queue, def, ids, tracking)
		result.Moved = completion.Moved
		result.AlreadyMoved = completion.AlreadyMoved
		if err != nil {
			return result, handleFailure(stageCtx, logger, notifier, def.Name, err)
		}
	}

	logger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("moved", result.Moved),
		logging.Int("already_moved", result.AlreadyMoved),
	)
	return result, nil
}

func render(opts Options, ids []string) (string, error) {
	tmpl := opts.Template
	if tmpl == nil {
		loaded, err := jobtemplate.Load(opts.TemplatePath, jobtemplate.StageRequired...)
		if err != nil {
			return "", err
		}
		tmpl = loaded
	}
	bindings, err := jobtemplate.StageBindings(ids, opts.Definition, opts.MinutesQuota)
	if err != nil {
		return "", err
	}
	return tmpl.Render(bindings)
}

// Completion counts the items a Complete call advanced.
type Completion struct {
	Moved        int
	AlreadyMoved int
}

// Complete moves each id from the stage's source to its destination, stamping
// value under the stage's tracking key. Items already gone from the source
// were advanced by an earlier or concurrent run and are counted, not failed.
// Every id is attempted; failures are joined into the returned error.
func Complete(ctx context.Context, logger *slog.Logger, q Queue, def stage.Definition, ids []string, value any) (Completion, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var (
		out  Completion
		errs []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := q.Move(ctx, id, def.Source, def.Destination, def.TrackingKey, value)
		switch {
		case err == nil:
			out.Moved++
			logger.Debug("item advanced",
				logging.String(logging.FieldItemID, id),
				logging.String(logging.FieldQueue, def.Destination),
			)
		case errors.Is(err, queue.ErrNotFound):
			out.AlreadyMoved++
			logger.Debug("item already advanced", logging.String(logging.FieldItemID, id))
		default:
			errs = append(errs, fmt.Errorf("move %s: %w", id, err))
			logging.WarnWithContext(logger, "item move failed", "stage_move_failed",
				logging.String(logging.FieldItemID, id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "re-run stage complete for the remaining ids"),
			)
		}
	}
	return out, errors.Join(errs...)
}

func handleFailure(ctx context.Context, logger *slog.Logger, notifier notifications.Service, stageName string, stageErr error) error {
	hint := "re-run the stage once the cause is fixed"
	var tmplErr *jobtemplate.TemplateError
	if errors.As(stageErr, &tmplErr) {
		hint = "check the stage template and its placeholders"
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String("error_kind", services.Kind(stageErr)),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, hint),
	)
	if err := notifier.NotifyError(ctx, stageErr, stageName); err != nil {
		logger.Debug("stage error notification failed", logging.Error(err))
	}
	return stageErr
}
