package config

import (
	"fmt"
	"os"
	"strings"

	"ytcollector/internal/stage"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	c.normalizeDiscovery()
	c.normalizeChannels()
	c.normalizeKaggle()
	if err := c.normalizeStages(); err != nil {
		return err
	}
	c.normalizeLLM()
	if err := c.normalizeAnalysis(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TemplateDir) == "" {
		c.Paths.TemplateDir = defaultTemplateDir
	}
	if c.Paths.TemplateDir, err = expandPath(c.Paths.TemplateDir); err != nil {
		return fmt.Errorf("paths.template_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.KernelDir) == "" {
		c.Paths.KernelDir = defaultKernelDir
	}
	if c.Paths.KernelDir, err = expandPath(c.Paths.KernelDir); err != nil {
		return fmt.Errorf("paths.kernel_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeQueue() error {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	dirs := make(map[string]string, len(c.Queue.Dirs))
	for name, dir := range c.Queue.Dirs {
		name = strings.TrimSpace(name)
		if strings.TrimSpace(dir) == "" {
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("queue.dirs.%s: %w", name, err)
		}
		dirs[name] = expanded
	}
	c.Queue.Dirs = dirs
	c.Queue.RedisAddr = strings.TrimSpace(c.Queue.RedisAddr)
	if c.Queue.RedisAddr == "" {
		c.Queue.RedisAddr = defaultRedisAddr
	}
	if c.Queue.RedisPassword == "" {
		if value, ok := os.LookupEnv("YTCOLLECTOR_REDIS_PASSWORD"); ok {
			c.Queue.RedisPassword = strings.TrimSpace(value)
		}
	}
	c.Queue.RedisPrefix = strings.Trim(strings.TrimSpace(c.Queue.RedisPrefix), ":")
	if c.Queue.RedisPrefix == "" {
		c.Queue.RedisPrefix = defaultRedisPrefix
	}
	return nil
}

func (c *Config) normalizeDiscovery() {
	c.Discovery.YtDlpBinary = strings.TrimSpace(c.Discovery.YtDlpBinary)
	if c.Discovery.YtDlpBinary == "" {
		c.Discovery.YtDlpBinary = defaultYtDlpBinary
	}
	if c.Discovery.ScanLimit <= 0 {
		c.Discovery.ScanLimit = defaultScanLimit
	}
	if c.Discovery.ScanLimit < c.Discovery.MaxNewPerChannel {
		c.Discovery.ScanLimit = c.Discovery.MaxNewPerChannel
	}
	if c.Discovery.YtDlpTimeout <= 0 {
		c.Discovery.YtDlpTimeout = defaultYtDlpTimeout
	}
	c.Discovery.CookiesFromBrowser = strings.TrimSpace(c.Discovery.CookiesFromBrowser)
}

func (c *Config) normalizeChannels() {
	for i := range c.Channels {
		name := strings.TrimSpace(c.Channels[i].Name)
		c.Channels[i].Name = strings.TrimPrefix(name, "@")
		c.Channels[i].Flow = strings.ToLower(strings.TrimSpace(c.Channels[i].Flow))
		if c.Channels[i].Flow == "" {
			c.Channels[i].Flow = "captions"
		}
	}
}

func (c *Config) normalizeKaggle() {
	c.Kaggle.Binary = strings.TrimSpace(c.Kaggle.Binary)
	if c.Kaggle.Binary == "" {
		c.Kaggle.Binary = defaultKaggleBinary
	}
	c.Kaggle.Username = strings.TrimSpace(c.Kaggle.Username)
	if c.Kaggle.Username == "" {
		if value, ok := os.LookupEnv("KAGGLE_USERNAME"); ok {
			c.Kaggle.Username = strings.TrimSpace(value)
		}
	}
	if c.Kaggle.SubmitTimeout <= 0 {
		c.Kaggle.SubmitTimeout = defaultKaggleSubmitTimeout
	}
}

func (c *Config) normalizeStages() error {
	stages := make(map[string]StageSettings, len(c.Stages))
	for name, settings := range c.Stages {
		name = strings.ToLower(strings.TrimSpace(name))
		settings.JobName = strings.TrimSpace(settings.JobName)
		if strings.TrimSpace(settings.Template) != "" {
			expanded, err := expandPath(settings.Template)
			if err != nil {
				return fmt.Errorf("stages.%s.template: %w", name, err)
			}
			settings.Template = expanded
		}
		stages[name] = settings
	}
	c.Stages = stages
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("YTCOLLECTOR_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeAnalysis() error {
	a := &c.Analysis
	a.SourceQueue = strings.TrimSpace(a.SourceQueue)
	if a.SourceQueue == "" {
		a.SourceQueue = stage.QueueResting
	}
	a.DestinationQueue = strings.TrimSpace(a.DestinationQueue)
	if a.DestinationQueue == "" {
		a.DestinationQueue = stage.QueueAnalyzed
	}
	a.TrackingKey = strings.TrimSpace(a.TrackingKey)
	if a.TrackingKey == "" {
		a.TrackingKey = defaultAnalysisTrackingKey
	}
	a.CaptionTrackingKey = strings.TrimSpace(a.CaptionTrackingKey)
	if a.CaptionTrackingKey == "" {
		a.CaptionTrackingKey = captionTrackingKey()
	}
	a.CaptionLanguage = strings.TrimSpace(a.CaptionLanguage)
	if a.CaptionLanguage == "" {
		a.CaptionLanguage = defaultCaptionLanguage
	}
	if a.MaxItems <= 0 {
		a.MaxItems = defaultAnalysisMaxItems
	}
	if strings.TrimSpace(a.PromptFile) != "" {
		expanded, err := expandPath(a.PromptFile)
		if err != nil {
			return fmt.Errorf("analysis.prompt_file: %w", err)
		}
		a.PromptFile = expanded
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("YTCOLLECTOR_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
