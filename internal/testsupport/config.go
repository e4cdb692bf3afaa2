package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"ytcollector/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Jitter and inter-stage delays are zeroed so tests never sleep.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths = config.Paths{
		StateDir:    filepath.Join(base, "state"),
		LogDir:      filepath.Join(base, "logs"),
		TemplateDir: filepath.Join(base, "templates"),
		KernelDir:   filepath.Join(base, "kernels"),
		OutputDir:   filepath.Join(base, "output"),
	}
	cfgVal.Kaggle.Username = "tester"
	cfgVal.Discovery.JitterMaxSeconds = 0
	cfgVal.Workflow.InterStageDelaySeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBackend selects the queue storage backend.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Backend = backend
	}
}

// WithChannels replaces the monitored channel list.
func WithChannels(channels ...config.Channel) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channels = channels
	}
}

// WithTemplate writes body as the template for stageName under the config's
// template directory.
func WithTemplate(stageName, body string) ConfigOption {
	return func(b *configBuilder) {
		dir := b.cfg.Paths.TemplateDir
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.t.Fatalf("mkdir template dir: %v", err)
		}
		path := filepath.Join(dir, stageName+".py.tmpl")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			b.t.Fatalf("write template %s: %v", stageName, err)
		}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, yt-dlp and kaggle are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "kaggle"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
