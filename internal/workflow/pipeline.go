package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ytcollector/internal/analysis"
	"ytcollector/internal/config"
	"ytcollector/internal/discovery"
	"ytcollector/internal/logging"
	"ytcollector/internal/notifications"
	"ytcollector/internal/queue"
	"ytcollector/internal/stage"
	"ytcollector/internal/stagerun"
)

// Names of the pipeline steps that are not Kaggle stages.
const (
	StepRecover   = "recover"
	StepDiscovery = "discovery"
	StepAnalysis  = analysis.StepName
)

// Pipeline holds the collaborators shared by every step.
type Pipeline struct {
	Config    *config.Config
	Table     stage.Table
	Queue     *queue.JobQueue
	Source    discovery.Source
	Submitter stagerun.Submitter
	// Analyzer is required when analysis is enabled.
	Analyzer analysis.Completer
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Steps returns recovery, discovery, one step per stage in chain order, and
// transcript analysis when it is enabled.
func (p Pipeline) Steps() ([]Step, error) {
	if p.Config == nil || p.Queue == nil {
		return nil, fmt.Errorf("pipeline requires config and queue")
	}
	if err := p.Table.Validate(); err != nil {
		return nil, fmt.Errorf("stage table: %w", err)
	}
	channels, err := discovery.ChannelsFromConfig(p.Config.Channels)
	if err != nil {
		return nil, err
	}

	steps := []Step{
		{Name: StepRecover, Run: p.recover},
		{Name: StepDiscovery, Run: func(ctx context.Context) error {
			_, err := p.Discover(ctx, channels)
			return err
		}},
	}
	for _, name := range p.Table.Names() {
		steps = append(steps, Step{Name: name, Run: func(ctx context.Context) error {
			_, err := p.RunStage(ctx, name)
			return err
		}})
	}
	if p.Config.Analysis.Enabled {
		if p.Analyzer == nil {
			return nil, fmt.Errorf("analysis is enabled but no model client is configured")
		}
		steps = append(steps, Step{Name: StepAnalysis, Run: func(ctx context.Context) error {
			_, err := p.Analyze(ctx)
			return err
		}})
	}
	return steps, nil
}

// Analyze runs one transcript analysis pass.
func (p Pipeline) Analyze(ctx context.Context) (analysis.Result, error) {
	if p.Analyzer == nil {
		return analysis.Result{}, fmt.Errorf("analysis: no model client configured")
	}
	return analysis.Run(ctx, analysis.Options{
		Logger:    p.Logger,
		Queue:     p.Queue,
		Notifier:  p.Notifier,
		Completer: p.Analyzer,
		Settings:  p.Config.Analysis,
	})
}

// Discover scans channels and enqueues new videos.
func (p Pipeline) Discover(ctx context.Context, channels []discovery.Channel) (discovery.Summary, error) {
	cfg := p.Config
	return discovery.Run(ctx, discovery.Options{
		Logger:    p.Logger,
		Queue:     p.Queue,
		Source:    p.Source,
		Notifier:  p.Notifier,
		Channels:  channels,
		MaxNew:    cfg.Discovery.MaxNewPerChannel,
		ScanLimit: cfg.Discovery.ScanLimit,
		JitterMax: time.Duration(cfg.Discovery.JitterMaxSeconds) * time.Second,
	})
}

// RunStage submits one batch job for the named stage.
func (p Pipeline) RunStage(ctx context.Context, name string) (stagerun.Result, error) {
	opts, err := stagerun.OptionsFromConfig(p.Config, p.Table, name)
	if err != nil {
		return stagerun.Result{}, err
	}
	opts.Logger = p.Logger
	opts.Queue = p.Queue
	opts.Notifier = p.Notifier
	opts.Submitter = p.Submitter
	return stagerun.Run(ctx, opts)
}

func (p Pipeline) recover(ctx context.Context) error {
	repaired, err := p.Queue.Recover(ctx, p.Table)
	if err != nil {
		return err
	}
	if p.Config.Analysis.Enabled {
		n, err := p.Queue.RecoverPair(ctx, p.Config.Analysis.SourceQueue, p.Config.Analysis.DestinationQueue)
		repaired += n
		if err != nil {
			return err
		}
	}
	if repaired > 0 {
		logging.NewComponentLogger(p.Logger, "workflow").Info("interrupted moves repaired", logging.Int("items", repaired))
	}
	return nil
}
