package preflight

import (
	"context"

	"ytcollector/internal/config"
	"ytcollector/internal/stage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional checks are reported but never fail the run.
	Optional bool
}

// RunAll executes every applicable preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Kernel directory", cfg.Paths.KernelDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
	}

	switch cfg.Queue.Backend {
	case config.BackendFiles, "":
		for _, name := range stage.AllQueues() {
			results = append(results, CheckDirectoryAccess("Queue "+name, cfg.QueueDir(name)))
		}
	case config.BackendRedis:
		results = append(results, CheckRedis(ctx, cfg.Queue))
	}

	results = append(results, CheckBinaries(Requirements(cfg))...)

	for _, def := range stage.DefaultTable() {
		results = append(results, CheckTemplate(def.Name, cfg.StageSettingsFor(def.Name).Template))
	}

	if cfg.Analysis.Enabled {
		results = append(results, CheckAnalysis(cfg.LLM, cfg.Analysis)...)
	}

	if cfg.Kaggle.Username == "" {
		results = append(results, Result{Name: "Kaggle account", Detail: "kaggle.username is not set"})
	} else {
		results = append(results, Result{Name: "Kaggle account", Passed: true, Detail: cfg.Kaggle.Username})
	}
	return results
}

// Failed reports whether any required check did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}
