package workflow_test

import (
	"context"
	"os"
	"testing"

	"ytcollector/internal/analysis"
	"ytcollector/internal/config"
	"ytcollector/internal/discovery"
	"ytcollector/internal/services/llm"
	"ytcollector/internal/stage"
	"ytcollector/internal/stagerun"
	"ytcollector/internal/testsupport"
	"ytcollector/internal/workflow"
)

const stageTemplate = "ids = {{video_ids_list}}\nkey = '{{tracking_key}}'\ndest = '{{destination_queue}}'\nminutes = {{minutes_to_use}}\n"

type staticSource map[string][]discovery.Candidate

func (s staticSource) Latest(_ context.Context, channel string, limit int) ([]discovery.Candidate, error) {
	videos := s[channel]
	if len(videos) > limit {
		videos = videos[:limit]
	}
	return videos, nil
}

type acceptingSubmitter struct {
	stages []string
}

func (a *acceptingSubmitter) Submit(_ context.Context, job stagerun.Job) (stagerun.Ack, error) {
	a.stages = append(a.stages, job.Stage)
	return stagerun.Ack{KernelName: job.KernelName, Link: "https://example.invalid/" + job.KernelName}, nil
}

func TestPipelineCarriesNewVideosThroughTheChain(t *testing.T) {
	opts := []testsupport.ConfigOption{
		testsupport.WithChannels(config.Channel{Name: "chan1", Flow: stage.FlowCaptions}),
	}
	for _, def := range stage.DefaultTable() {
		opts = append(opts, testsupport.WithTemplate(def.Name, stageTemplate))
	}
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Kaggle.AdvanceOnSubmit = true
	q := testsupport.MustOpenQueue(t, cfg)
	sub := &acceptingSubmitter{}

	pipeline := workflow.Pipeline{
		Config: cfg,
		Table:  stage.DefaultTable(),
		Queue:  q,
		Source: staticSource{"chan1": {
			{ID: "vid2", Title: "Second"},
			{ID: "vid1", Title: "First"},
		}},
		Submitter: sub,
	}
	steps, err := pipeline.Steps()
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Name)
	}
	want := []string{workflow.StepRecover, workflow.StepDiscovery, stage.VideoDownload, stage.Captions, stage.InfoCollection}
	if len(names) != len(want) {
		t.Fatalf("steps %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("steps %v, want %v", names, want)
		}
	}

	summary, err := workflow.NewSequencer(nil, cfg.LockPath()).Run(context.Background(), steps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed() != 0 || !summary.LastSucceeded() {
		t.Fatalf("unexpected outcomes %+v", summary.Outcomes)
	}

	// The download stage has nothing pending for a captions-flow channel and
	// aborts without submitting.
	if len(sub.stages) != 2 || sub.stages[0] != stage.Captions || sub.stages[1] != stage.InfoCollection {
		t.Fatalf("unexpected submissions %v", sub.stages)
	}
	resting, err := q.Collect(context.Background(), stage.QueueResting)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(resting) != 2 {
		t.Fatalf("expected both videos resting, got %d", len(resting))
	}
	for _, item := range resting {
		for _, key := range []string{"kaggle_job_yt_captions", "kaggle_job_yt_info_collection"} {
			if !item.HasTracking(key) {
				t.Fatalf("item %s missing tracking %s", item.ID, key)
			}
		}
	}
}

func TestPipelineStepsRejectsBadChannelFlow(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithChannels(config.Channel{Name: "chan1", Flow: "unknown"}))
	q := testsupport.MustOpenQueue(t, cfg)
	_, err := workflow.Pipeline{Config: cfg, Table: stage.DefaultTable(), Queue: q}.Steps()
	if err == nil {
		t.Fatal("expected error for unknown flow")
	}
}

// captionWritingSubmitter accepts every job and leaves a caption file for each
// video of a captions job, as a finished remote run would.
type captionWritingSubmitter struct {
	t *testing.T
}

func (c captionWritingSubmitter) Submit(_ context.Context, job stagerun.Job) (stagerun.Ack, error) {
	if job.Stage == stage.Captions {
		if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
			c.t.Fatalf("mkdir output: %v", err)
		}
		for _, id := range job.VideoIDs {
			doc := []byte(`{"events":[{"segs":[{"utf8":"transcript of ` + id + `"}]}]}`)
			if err := os.WriteFile(analysis.CaptionPath(job.OutputDir, id, "en"), doc, 0o644); err != nil {
				c.t.Fatalf("write captions: %v", err)
			}
		}
	}
	return stagerun.Ack{KernelName: job.KernelName}, nil
}

type cannedModel struct {
	inputs []string
}

func (m *cannedModel) Complete(_ context.Context, messages []llm.Message) (llm.Completion, error) {
	m.inputs = append(m.inputs, messages[len(messages)-1].Content)
	return llm.Completion{Model: "canned", Content: "<topic_block><topic>Testing</topic></topic_block>"}, nil
}

func TestPipelineAnalyzesRestingVideosWhenEnabled(t *testing.T) {
	opts := []testsupport.ConfigOption{
		testsupport.WithChannels(config.Channel{Name: "chan1", Flow: stage.FlowCaptions}),
	}
	for _, def := range stage.DefaultTable() {
		opts = append(opts, testsupport.WithTemplate(def.Name, stageTemplate))
	}
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Kaggle.AdvanceOnSubmit = true
	cfg.Analysis.Enabled = true
	cfg.Analysis.MaxItems = 5
	q := testsupport.MustOpenQueue(t, cfg)
	model := &cannedModel{}

	pipeline := workflow.Pipeline{
		Config:    cfg,
		Table:     stage.DefaultTable(),
		Queue:     q,
		Source:    staticSource{"chan1": {{ID: "vid1", Title: "First"}}},
		Submitter: captionWritingSubmitter{t: t},
		Analyzer:  model,
	}
	steps, err := pipeline.Steps()
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if last := steps[len(steps)-1].Name; last != workflow.StepAnalysis {
		t.Fatalf("expected analysis to run last, got %s", last)
	}

	summary, err := workflow.NewSequencer(nil, cfg.LockPath()).Run(context.Background(), steps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed() != 0 {
		t.Fatalf("unexpected outcomes %+v", summary.Outcomes)
	}
	if len(model.inputs) != 1 || model.inputs[0] != "transcript of vid1" {
		t.Fatalf("unexpected model inputs %v", model.inputs)
	}
	item, err := q.Get(context.Background(), stage.QueueAnalyzed, "vid1")
	if err != nil {
		t.Fatalf("Get analyzed: %v", err)
	}
	if !item.HasTracking(cfg.Analysis.TrackingKey) {
		t.Fatalf("missing %s tracking", cfg.Analysis.TrackingKey)
	}
	if size, err := q.Size(context.Background(), stage.QueueResting); err != nil || size != 0 {
		t.Fatalf("resting size = %d, %v", size, err)
	}
}

func TestPipelineStepsRequiresAnalyzerWhenAnalysisEnabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithChannels(config.Channel{Name: "chan1", Flow: stage.FlowCaptions}))
	cfg.Analysis.Enabled = true
	q := testsupport.MustOpenQueue(t, cfg)
	_, err := workflow.Pipeline{Config: cfg, Table: stage.DefaultTable(), Queue: q}.Steps()
	if err == nil {
		t.Fatal("expected error without an analyzer")
	}
}
