package config

import (
	"errors"
	"fmt"
	"strings"

	"ytcollector/internal/stage"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateChannels(); err != nil {
		return err
	}
	if err := c.validateKaggle(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case BackendFiles, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("queue.backend must be one of %q, %q, %q (got %q)", BackendFiles, BackendSQLite, BackendRedis, c.Queue.Backend)
	}
	if c.Queue.Backend == BackendRedis && c.Queue.RedisAddr == "" {
		return errors.New("queue.redis_addr must be set when queue.backend is redis")
	}
	if c.Queue.RedisDB < 0 {
		return errors.New("queue.redis_db must be >= 0")
	}

	known := make(map[string]struct{})
	for _, name := range stage.AllQueues() {
		known[name] = struct{}{}
	}
	for name := range c.Queue.Dirs {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("queue.dirs: unknown queue %q", name)
		}
	}
	owners := make(map[string]string)
	for name, dir := range c.QueueDirs() {
		if other, dup := owners[dir]; dup {
			return fmt.Errorf("queue.dirs: queues %q and %q share directory %q", other, name, dir)
		}
		owners[dir] = name
	}
	return nil
}

func (c *Config) validateDiscovery() error {
	if c.Discovery.MaxNewPerChannel <= 0 {
		return errors.New("discovery.max_new_per_channel must be positive")
	}
	if c.Discovery.JitterMaxSeconds < 0 {
		return errors.New("discovery.jitter_max_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateChannels() error {
	seen := make(map[string]struct{}, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channels[%d]: name is required", i)
		}
		key := strings.ToLower(ch.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("channels[%d]: duplicate channel %q", i, ch.Name)
		}
		seen[key] = struct{}{}
		if _, err := ch.EntryQueue(); err != nil {
			return fmt.Errorf("channels[%d] (%s): %w", i, ch.Name, err)
		}
	}
	return nil
}

func (c *Config) validateKaggle() error {
	if c.Kaggle.MaxItemsPerJob <= 0 {
		return errors.New("kaggle.max_items_per_job must be positive")
	}
	if c.Kaggle.MinutesQuota <= 0 {
		return errors.New("kaggle.minutes_quota must be positive")
	}
	return nil
}

func (c *Config) validateStages() error {
	table := stage.DefaultTable()
	for name, settings := range c.Stages {
		if _, ok := table.Lookup(name); !ok {
			return fmt.Errorf("stages.%s: unknown stage (expected one of %s)", name, strings.Join(table.Names(), ", "))
		}
		if settings.MaxItems < 0 {
			return fmt.Errorf("stages.%s.max_items must be >= 0", name)
		}
	}
	for _, name := range table.Names() {
		if err := validateKernelName(name, c.StageSettingsFor(name).JobName); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.InterStageDelaySeconds < 0 {
		return errors.New("workflow.inter_stage_delay_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	a := c.Analysis
	known := make(map[string]struct{})
	for _, name := range stage.AllQueues() {
		known[name] = struct{}{}
	}
	if _, ok := known[a.SourceQueue]; !ok {
		return fmt.Errorf("analysis.source_queue: unknown queue %q", a.SourceQueue)
	}
	if _, ok := known[a.DestinationQueue]; !ok {
		return fmt.Errorf("analysis.destination_queue: unknown queue %q", a.DestinationQueue)
	}
	if a.SourceQueue == a.DestinationQueue {
		return fmt.Errorf("analysis: source and destination are both %q", a.SourceQueue)
	}
	table := stage.DefaultTable()
	if def, ok := table.ReadsFrom(a.SourceQueue); ok {
		return fmt.Errorf("analysis.source_queue %q is already consumed by stage %s", a.SourceQueue, def.Name)
	}
	if def, ok := table.ReadsFrom(a.DestinationQueue); ok {
		return fmt.Errorf("analysis.destination_queue %q feeds stage %s", a.DestinationQueue, def.Name)
	}
	for _, def := range table {
		if def.TrackingKey == a.TrackingKey {
			return fmt.Errorf("analysis.tracking_key %q is already used by stage %s", a.TrackingKey, def.Name)
		}
	}
	if c.LLM.TimeoutSeconds < 0 {
		return errors.New("llm.timeout_seconds must be >= 0")
	}
	return nil
}
