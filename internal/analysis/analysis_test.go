package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ytcollector/internal/analysis"
	"ytcollector/internal/config"
	"ytcollector/internal/queue"
	"ytcollector/internal/services/llm"
	"ytcollector/internal/stage"
	"ytcollector/internal/testsupport"
)

type scriptedModel struct {
	content string
	err     error
	calls   []string
}

func (m *scriptedModel) Complete(_ context.Context, messages []llm.Message) (llm.Completion, error) {
	m.calls = append(m.calls, messages[len(messages)-1].Content)
	if m.err != nil {
		return llm.Completion{}, m.err
	}
	return llm.Completion{Model: "demo-model", Content: m.content, Raw: json.RawMessage(`{"id":"cmpl-1"}`)}, nil
}

// restItem places an item in the resting queue with a captions tracking entry
// pointing at outputDir.
func restItem(t *testing.T, q *queue.JobQueue, id string, offset int, outputDir string) {
	t.Helper()
	item := testsupport.NewItem(id, "arjancodes", offset)
	item.Title = "Video " + id
	if err := item.SetTracking("kaggle_job_yt_captions", map[string]any{"output_dir": outputDir}); err != nil {
		t.Fatalf("SetTracking: %v", err)
	}
	testsupport.MustEnqueue(t, q, stage.QueueResting, item)
}

func writeCaptions(t *testing.T, dir, id, text string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	doc, _ := json.Marshal(map[string]any{"events": []any{map[string]any{"segs": []any{map[string]string{"utf8": text}}}}})
	if err := os.WriteFile(analysis.CaptionPath(dir, id, "en"), doc, 0o644); err != nil {
		t.Fatalf("write captions: %v", err)
	}
}

func analysisOptions(cfg *config.Config, q *queue.JobQueue, model analysis.Completer) analysis.Options {
	settings := cfg.Analysis
	settings.MaxItems = 5
	return analysis.Options{Queue: q, Completer: model, Settings: settings}
}

func TestRunAnalyzesItemsWithCaptionsAndSkipsTheRest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	out := filepath.Join(cfg.Paths.OutputDir, "crongle-job-yt-caption-collector-0f1e2d3c")
	restItem(t, q, "has-captions", 0, out)
	restItem(t, q, "missing-file", 1, out)
	writeCaptions(t, out, "has-captions", "today we talk about context objects")

	model := &scriptedModel{content: sampleResponse}
	result, err := analysis.Run(context.Background(), analysisOptions(cfg, q, model))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Analyzed) != 1 || result.Analyzed[0] != "has-captions" {
		t.Fatalf("unexpected analyzed %v", result.Analyzed)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "missing-file" {
		t.Fatalf("unexpected skipped %v", result.Skipped)
	}
	if len(model.calls) != 1 || model.calls[0] != "today we talk about context objects" {
		t.Fatalf("unexpected model input %v", model.calls)
	}

	moved, err := q.Get(context.Background(), stage.QueueAnalyzed, "has-captions")
	if err != nil {
		t.Fatalf("Get analyzed: %v", err)
	}
	var record analysis.Record
	if err := json.Unmarshal(moved.Tracking["llm_analysis"], &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.Model != "demo-model" || len(record.Topics) != 2 || record.Topics[0].Topic != "Context objects" {
		t.Fatalf("unexpected record %+v", record)
	}
	if !moved.HasTracking("kaggle_job_yt_captions") {
		t.Fatal("earlier tracking must be kept")
	}
	if _, err := q.Get(context.Background(), stage.QueueResting, "missing-file"); err != nil {
		t.Fatalf("skipped item should stay resting: %v", err)
	}
}

func TestRunRespectsMaxItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	out := filepath.Join(cfg.Paths.OutputDir, "run")
	for i, id := range []string{"a", "b", "c"} {
		restItem(t, q, id, i, out)
		writeCaptions(t, out, id, "text "+id)
	}
	opts := analysisOptions(cfg, q, &scriptedModel{content: sampleResponse})
	opts.Settings.MaxItems = 2
	result, err := analysis.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Analyzed) != 2 || result.Analyzed[0] != "a" || result.Analyzed[1] != "b" {
		t.Fatalf("expected oldest two analyzed, got %v", result.Analyzed)
	}
}

func TestRunAbortsWhenNothingIsReady(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	model := &scriptedModel{content: sampleResponse}

	result, err := analysis.Run(context.Background(), analysisOptions(cfg, q, model))
	if err != nil || !result.Aborted || result.Reason != analysis.AbortNoPending {
		t.Fatalf("empty queue: %+v, %v", result, err)
	}

	restItem(t, q, "no-file", 0, filepath.Join(cfg.Paths.OutputDir, "missing"))
	result, err = analysis.Run(context.Background(), analysisOptions(cfg, q, model))
	if err != nil || !result.Aborted || result.Reason != analysis.AbortNoCaptions {
		t.Fatalf("no captions: %+v, %v", result, err)
	}
	if len(model.calls) != 0 {
		t.Fatalf("model should not be called, got %d calls", len(model.calls))
	}
}

func TestRunModelFailureLeavesItemQueued(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	out := filepath.Join(cfg.Paths.OutputDir, "run")
	restItem(t, q, "vid", 0, out)
	writeCaptions(t, out, "vid", "text")

	boom := errors.New("rate limited")
	_, err := analysis.Run(context.Background(), analysisOptions(cfg, q, &scriptedModel{err: boom}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected model error, got %v", err)
	}
	if _, err := q.Get(context.Background(), stage.QueueResting, "vid"); err != nil {
		t.Fatalf("item should stay resting: %v", err)
	}
}

func TestRunUsesPromptFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	q := testsupport.MustOpenQueue(t, cfg)
	opts := analysisOptions(cfg, q, &scriptedModel{})
	opts.Settings.PromptFile = filepath.Join(t.TempDir(), "absent.txt")
	if _, err := analysis.Run(context.Background(), opts); err == nil {
		t.Fatal("expected error for unreadable prompt file")
	}
}
