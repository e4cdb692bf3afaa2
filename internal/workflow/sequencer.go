package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"ytcollector/internal/logging"
	"ytcollector/internal/notifications"
	"ytcollector/internal/services"
)

// ErrAlreadyRunning is returned when another sequencer holds the lock.
var ErrAlreadyRunning = errors.New("another pipeline run is in progress")

// Step is one unit of the chain.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Outcome records how a step finished.
type Outcome struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the step returned no error.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// Summary reports a whole sequencer run.
type Summary struct {
	RunID    string
	Outcomes []Outcome
	Duration time.Duration
}

// Attempted is the number of steps that ran.
func (s Summary) Attempted() int { return len(s.Outcomes) }

// Failed is the number of steps that returned an error.
func (s Summary) Failed() int {
	failed := 0
	for _, o := range s.Outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	return failed
}

// LastSucceeded reports whether the final step ran and succeeded.
func (s Summary) LastSucceeded() bool {
	if len(s.Outcomes) == 0 {
		return false
	}
	return s.Outcomes[len(s.Outcomes)-1].Succeeded()
}

// Sequencer runs steps in order with a pause between them.
type Sequencer struct {
	logger   *slog.Logger
	notifier notifications.Service
	lockPath string
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithNotifier sets the notification service.
func WithNotifier(n notifications.Service) Option {
	return func(s *Sequencer) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithDelay sets the pause between consecutive steps.
func WithDelay(d time.Duration) Option {
	return func(s *Sequencer) { s.delay = d }
}

// WithSleep replaces the delay implementation, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Sequencer) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// NewSequencer builds a Sequencer that locks lockPath while running. An empty
// lockPath disables locking.
func NewSequencer(logger *slog.Logger, lockPath string, opts ...Option) *Sequencer {
	s := &Sequencer{
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifications.NewNoop(),
		lockPath: lockPath,
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes every step. A failing step is logged and the next one still
// runs; only context cancellation or a held lock stops the run early.
func (s *Sequencer) Run(ctx context.Context, steps []Step) (Summary, error) {
	if s.lockPath != "" {
		lock := flock.New(s.lockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return Summary{}, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return Summary{}, ErrAlreadyRunning
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				s.logger.Warn("failed to release pipeline lock", logging.Error(err))
			}
		}()
	}

	summary := Summary{RunID: uuid.NewString()}
	runCtx := services.WithRequestID(ctx, summary.RunID)
	logger := logging.WithContext(runCtx, s.logger)
	start := s.now()

	logger.Info("pipeline started", logging.Int("steps", len(steps)))
	for i, step := range steps {
		if i > 0 && s.delay > 0 {
			logger.Debug("pausing before next step",
				logging.String("next", step.Name),
				logging.Duration("delay", s.delay),
			)
			if err := s.sleep(ctx, s.delay); err != nil {
				summary.Duration = s.now().Sub(start)
				return summary, err
			}
		}
		if err := ctx.Err(); err != nil {
			summary.Duration = s.now().Sub(start)
			return summary, err
		}

		outcome := s.runStep(runCtx, logger, step)
		summary.Outcomes = append(summary.Outcomes, outcome)
	}
	summary.Duration = s.now().Sub(start)

	logger.Info("pipeline finished",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Int("attempted", summary.Attempted()),
		logging.Int("failed", summary.Failed()),
		logging.Bool("last_succeeded", summary.LastSucceeded()),
		logging.Duration("duration", summary.Duration),
	)
	if err := s.notifier.NotifyPipelineCompleted(ctx, summary.Attempted(), summary.Failed(), summary.Duration); err != nil {
		logger.Debug("pipeline notification failed", logging.Error(err))
	}
	return summary, nil
}

func (s *Sequencer) runStep(ctx context.Context, logger *slog.Logger, step Step) Outcome {
	stepLogger := logger.With(logging.String(logging.FieldStage, step.Name))
	started := s.now()
	outcome := Outcome{Name: step.Name}
	if step.Run == nil {
		outcome.Err = fmt.Errorf("step %s has no runner", step.Name)
	} else {
		outcome.Err = step.Run(ctx)
	}
	outcome.Duration = s.now().Sub(started)

	if outcome.Err != nil {
		logging.ErrorWithContext(stepLogger, "step failed; continuing with next step", "step_failed",
			logging.String("error_kind", services.Kind(outcome.Err)),
			logging.Error(outcome.Err),
			logging.Duration("duration", outcome.Duration),
		)
		return outcome
	}
	stepLogger.Info("step succeeded", logging.Duration("duration", outcome.Duration))
	return outcome
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
