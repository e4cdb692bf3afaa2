package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"ytcollector/internal/stage"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	TemplateDir string `toml:"template_dir"`
	KernelDir   string `toml:"kernel_dir"`
	OutputDir   string `toml:"output_dir"`
}

// Queue selects the queue storage backend and its locations.
type Queue struct {
	Backend       string            `toml:"backend"`
	Dirs          map[string]string `toml:"dirs"`
	RedisAddr     string            `toml:"redis_addr"`
	RedisPassword string            `toml:"redis_password"`
	RedisDB       int               `toml:"redis_db"`
	RedisPrefix   string            `toml:"redis_prefix"`
}

// Discovery contains the per-run caps and pacing for channel discovery.
type Discovery struct {
	MaxNewPerChannel   int    `toml:"max_new_per_channel"`
	ScanLimit          int    `toml:"scan_limit"`
	JitterMaxSeconds   int    `toml:"jitter_max_seconds"`
	YtDlpBinary        string `toml:"ytdlp_binary"`
	YtDlpTimeout       int    `toml:"ytdlp_timeout"`
	CookiesFromBrowser string `toml:"cookies_from_browser"`
}

// Channel is one monitored channel and the flow its videos enter.
type Channel struct {
	Name string `toml:"name"`
	Flow string `toml:"flow"`
}

// Kaggle contains batch job submission settings.
type Kaggle struct {
	Binary          string `toml:"binary"`
	Username        string `toml:"username"`
	MinutesQuota    int    `toml:"minutes_quota"`
	MaxItemsPerJob  int    `toml:"max_items_per_job"`
	EnableGPU       bool   `toml:"enable_gpu"`
	EnableInternet  bool   `toml:"enable_internet"`
	SubmitTimeout   int    `toml:"submit_timeout"`
	AdvanceOnSubmit bool   `toml:"advance_on_submit"`
}

// StageSettings overrides per-stage job generation parameters.
type StageSettings struct {
	Template string `toml:"template"`
	JobName  string `toml:"job_name"`
	MaxItems int    `toml:"max_items"`
}

// Workflow contains configuration for the stage chain sequencer.
type Workflow struct {
	InterStageDelaySeconds int `toml:"inter_stage_delay_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Discovery      bool   `toml:"discovery"`
	Submission     bool   `toml:"submission"`
	Aborts         bool   `toml:"aborts"`
	Errors         bool   `toml:"errors"`
	Analysis       bool   `toml:"analysis"`
}

// LLM contains the OpenAI-compatible chat completion endpoint used by
// transcript analysis.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Analysis configures the transcript analysis step that runs after captions
// have been collected.
type Analysis struct {
	Enabled            bool   `toml:"enabled"`
	SourceQueue        string `toml:"source_queue"`
	DestinationQueue   string `toml:"destination_queue"`
	TrackingKey        string `toml:"tracking_key"`
	CaptionTrackingKey string `toml:"caption_tracking_key"`
	CaptionLanguage    string `toml:"caption_language"`
	MaxItems           int    `toml:"max_items"`
	PromptFile         string `toml:"prompt_file"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for ytcollector.
//
// Configuration sections by subsystem:
//   - Paths: state, log, template, kernel, and output directories
//   - Queue: storage backend and per-queue locations
//   - Discovery: per-channel caps, scan depth, jitter, yt-dlp settings
//   - Channels: monitored channels with their flow selection
//   - Kaggle: batch job submission settings and per-run item cap
//   - Stages: per-stage template, job name, and cap overrides
//   - Workflow: delay between stages when running the whole chain
//   - LLM: chat completion endpoint for transcript analysis
//   - Analysis: optional transcript analysis step and its queues
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths                    `toml:"paths"`
	Queue         Queue                    `toml:"queue"`
	Discovery     Discovery                `toml:"discovery"`
	Channels      []Channel                `toml:"channels"`
	Kaggle        Kaggle                   `toml:"kaggle"`
	Stages        map[string]StageSettings `toml:"stages"`
	Workflow      Workflow                 `toml:"workflow"`
	LLM           LLM                      `toml:"llm"`
	Analysis      Analysis                 `toml:"analysis"`
	Notifications Notifications            `toml:"notifications"`
	Logging       Logging                  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("ytcollector.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, log, kernel, and output directories and,
// for the files backend, every queue directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.KernelDir, c.Paths.OutputDir}
	if c.Queue.Backend == BackendFiles {
		for _, name := range stage.AllQueues() {
			dirs = append(dirs, c.QueueDir(name))
		}
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDir returns the directory backing the named queue (files backend).
func (c *Config) QueueDir(name string) string {
	if dir, ok := c.Queue.Dirs[name]; ok && strings.TrimSpace(dir) != "" {
		return dir
	}
	return filepath.Join(c.Paths.StateDir, "queues", name)
}

// QueueDirs returns the directory of every pipeline queue keyed by queue name.
func (c *Config) QueueDirs() map[string]string {
	out := make(map[string]string)
	for _, name := range stage.AllQueues() {
		out[name] = c.QueueDir(name)
	}
	return out
}

// StageSettingsFor returns the effective settings for a stage, with defaults
// applied for anything not overridden.
func (c *Config) StageSettingsFor(name string) StageSettings {
	settings := c.Stages[name]
	if strings.TrimSpace(settings.Template) == "" {
		settings.Template = filepath.Join(c.Paths.TemplateDir, name+".py.tmpl")
	}
	if strings.TrimSpace(settings.JobName) == "" {
		settings.JobName = defaultJobName(name)
	}
	if settings.MaxItems <= 0 {
		settings.MaxItems = c.Kaggle.MaxItemsPerJob
	}
	return settings
}

// EntryQueue returns the queue a channel's newly discovered videos enter.
func (ch Channel) EntryQueue() (string, error) {
	return stage.EntryQueueForFlow(ch.Flow)
}

// QueueDatabasePath is the SQLite file used by the sqlite backend and the
// discovery history ledger.
func (c *Config) QueueDatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath is the advisory lock file held while the stage chain runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "pipeline.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
