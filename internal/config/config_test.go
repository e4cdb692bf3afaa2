package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"ytcollector/internal/config"
	"ytcollector/internal/stage"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("KAGGLE_USERNAME", "collector")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "ytcollector")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if got := cfg.QueueDir(stage.QueueCaptions); got != filepath.Join(wantState, "queues", "captions") {
		t.Fatalf("unexpected captions queue dir: %q", got)
	}
	if cfg.Queue.Backend != config.BackendFiles {
		t.Fatalf("expected files backend by default, got %q", cfg.Queue.Backend)
	}
	if cfg.Kaggle.Username != "collector" {
		t.Fatalf("expected kaggle username from env, got %q", cfg.Kaggle.Username)
	}
	if !cfg.Kaggle.AdvanceOnSubmit {
		t.Fatal("expected advance_on_submit enabled by default")
	}
	if cfg.Discovery.JitterMaxSeconds != 60 {
		t.Fatalf("unexpected jitter default: %d", cfg.Discovery.JitterMaxSeconds)
	}
	if len(cfg.Channels) != 0 {
		t.Fatalf("expected no channels by default, got %v", cfg.Channels)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "ytcollector.toml")

	type channel struct {
		Name string `toml:"name"`
		Flow string `toml:"flow"`
	}
	type payload struct {
		Paths struct {
			StateDir string `toml:"state_dir"`
		} `toml:"paths"`
		Queue struct {
			Backend string `toml:"backend"`
		} `toml:"queue"`
		Discovery struct {
			MaxNewPerChannel int `toml:"max_new_per_channel"`
		} `toml:"discovery"`
		Channels []channel `toml:"channels"`
		Stages   map[string]struct {
			MaxItems int    `toml:"max_items"`
			JobName  string `toml:"job_name"`
		} `toml:"stages"`
	}
	custom := payload{}
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Queue.Backend = "SQLite"
	custom.Discovery.MaxNewPerChannel = 3
	custom.Channels = []channel{{Name: "@SomeChannel", Flow: "Download"}, {Name: "other"}}
	custom.Stages = map[string]struct {
		MaxItems int    `toml:"max_items"`
		JobName  string `toml:"job_name"`
	}{"captions": {MaxItems: 7, JobName: "captions-override"}}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Queue.Backend != config.BackendSQLite {
		t.Fatalf("expected backend normalized to sqlite, got %q", cfg.Queue.Backend)
	}
	if cfg.Discovery.MaxNewPerChannel != 3 {
		t.Fatalf("expected max new 3, got %d", cfg.Discovery.MaxNewPerChannel)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(cfg.Channels))
	}
	if cfg.Channels[0].Name != "SomeChannel" || cfg.Channels[0].Flow != "download" {
		t.Fatalf("unexpected first channel: %+v", cfg.Channels[0])
	}
	if queue, err := cfg.Channels[0].EntryQueue(); err != nil || queue != stage.QueueDownloads {
		t.Fatalf("expected downloads entry queue, got %q (%v)", queue, err)
	}
	if queue, err := cfg.Channels[1].EntryQueue(); err != nil || queue != stage.QueueCaptions {
		t.Fatalf("expected captions entry queue for default flow, got %q (%v)", queue, err)
	}

	settings := cfg.StageSettingsFor(stage.Captions)
	if settings.MaxItems != 7 || settings.JobName != "captions-override" {
		t.Fatalf("unexpected captions settings: %+v", settings)
	}
	if !strings.HasSuffix(settings.Template, "captions.py.tmpl") {
		t.Fatalf("expected default template path, got %q", settings.Template)
	}
	defaults := cfg.StageSettingsFor(stage.VideoDownload)
	if defaults.MaxItems != cfg.Kaggle.MaxItemsPerJob || defaults.JobName != "yt-video-downloader" {
		t.Fatalf("unexpected default stage settings: %+v", defaults)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "ytcollector.toml")
	if err := os.WriteFile(configPath, []byte("[discovery]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestEnvFallbacksDoNotOverrideFileValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "ytcollector.toml")
	contents := "[kaggle]\nusername = \"from-file\"\n\n[notifications]\nntfy_topic = \"https://ntfy.example/file\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("KAGGLE_USERNAME", "from-env")
	t.Setenv("YTCOLLECTOR_NTFY_TOPIC", "https://ntfy.example/env")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Kaggle.Username != "from-file" {
		t.Errorf("expected kaggle username from file, got %q", cfg.Kaggle.Username)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/file" {
		t.Errorf("expected ntfy topic from file, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "max_new_per_channel") {
		t.Fatalf("sample config missing discovery caps: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StateDir, "ytcollector") {
		t.Fatalf("expected state dir to contain ytcollector, got %q", cfg.Paths.StateDir)
	}
	if len(cfg.Channels) == 0 {
		t.Fatal("expected sample channels")
	}

	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not validate: %v", err)
	}
	if loaded.Channels[1].Flow != "download" {
		t.Fatalf("unexpected sample flow: %q", loaded.Channels[1].Flow)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown backend", func(c *config.Config) { c.Queue.Backend = "postgres" }},
		{"zero cap", func(c *config.Config) { c.Discovery.MaxNewPerChannel = 0 }},
		{"negative jitter", func(c *config.Config) { c.Discovery.JitterMaxSeconds = -1 }},
		{"zero job cap", func(c *config.Config) { c.Kaggle.MaxItemsPerJob = 0 }},
		{"zero minutes", func(c *config.Config) { c.Kaggle.MinutesQuota = 0 }},
		{"negative delay", func(c *config.Config) { c.Workflow.InterStageDelaySeconds = -5 }},
		{"unknown flow", func(c *config.Config) {
			c.Channels = []config.Channel{{Name: "a", Flow: "transcode"}}
		}},
		{"duplicate channel", func(c *config.Config) {
			c.Channels = []config.Channel{{Name: "a", Flow: "captions"}, {Name: "A", Flow: "download"}}
		}},
		{"empty channel", func(c *config.Config) { c.Channels = []config.Channel{{Flow: "captions"}} }},
		{"unknown stage", func(c *config.Config) { c.Stages = map[string]config.StageSettings{"transcode": {}} }},
		{"unknown queue dir", func(c *config.Config) { c.Queue.Dirs = map[string]string{"archive": "/tmp/a"} }},
		{"shared queue dir", func(c *config.Config) {
			c.Queue.Dirs = map[string]string{"captions": "/tmp/q", "downloads": "/tmp/q"}
		}},
		{"long job name", func(c *config.Config) {
			c.Stages = map[string]config.StageSettings{
				"captions": {JobName: "yt-caption-collector-with-a-very-long-descriptive-name"},
			}
		}},
		{"redis without addr", func(c *config.Config) {
			c.Queue.Backend = config.BackendRedis
			c.Queue.RedisAddr = ""
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestEnsureDirectoriesCreatesQueueDirs(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		StateDir:  filepath.Join(base, "state"),
		LogDir:    filepath.Join(base, "logs"),
		KernelDir: filepath.Join(base, "kernels"),
		OutputDir: filepath.Join(base, "output"),
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, name := range stage.DefaultTable().Queues() {
		info, err := os.Stat(cfg.QueueDir(name))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected queue dir for %s: %v", name, err)
		}
	}
}

func TestKernelNameFitsLimitForDefaults(t *testing.T) {
	cfg := config.Default()
	for _, name := range []string{"video_download", "captions", "info_collection"} {
		kernel := config.KernelName(cfg.StageSettingsFor(name).JobName, "0f1e2d3c-aaaa-bbbb")
		if len(kernel) > config.MaxKernelNameLength {
			t.Fatalf("%s: kernel name %q exceeds %d", name, kernel, config.MaxKernelNameLength)
		}
		if !strings.HasPrefix(kernel, config.KernelNamePrefix+"-") || !strings.HasSuffix(kernel, "-0f1e2d3c") {
			t.Fatalf("%s: unexpected kernel name %q", name, kernel)
		}
	}
}
