package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"ytcollector/internal/config"
	"ytcollector/internal/logging"
	"ytcollector/internal/notifications"
	"ytcollector/internal/queue"
	"ytcollector/internal/services/kaggle"
	"ytcollector/internal/services/llm"
	"ytcollector/internal/services/ytdlp"
	"ytcollector/internal/stage"
	"ytcollector/internal/workflow"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// session bundles what most commands need: config, logger, an open queue and
// the notifier.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	queue    *queue.JobQueue
	notifier notifications.Service
	table    stage.Table
}

func (s *session) Close() error {
	if s.queue == nil {
		return nil
	}
	return s.queue.Close()
}

func (c *commandContext) openSession(ctx context.Context) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	table := stage.DefaultTable()
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("stage table: %w", err)
	}
	q, err := queue.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	q.SetLogger(logger)
	return &session{
		cfg:      cfg,
		logger:   logger,
		queue:    q,
		notifier: notifications.NewService(cfg),
		table:    table,
	}, nil
}

func (s *session) pipeline() workflow.Pipeline {
	cfg := s.cfg
	return workflow.Pipeline{
		Config: cfg,
		Table:  s.table,
		Queue:  s.queue,
		Source: ytdlp.New(cfg.Discovery.YtDlpBinary,
			ytdlp.WithCookiesFromBrowser(cfg.Discovery.CookiesFromBrowser),
			ytdlp.WithTimeout(time.Duration(cfg.Discovery.YtDlpTimeout)*time.Second),
		),
		Submitter: kaggle.New(cfg),
		Analyzer:  llm.New(cfg.LLM),
		Notifier:  s.notifier,
		Logger:    s.logger,
	}
}

func (c *commandContext) withSession(cmd *cobra.Command, fn func(*session) error) error {
	s, err := c.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// exitError carries a specific process exit status.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}
