package analysis_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ytcollector/internal/analysis"
)

const sampleResponse = `Here you go:
<topic_block>
  <topic>Context objects</topic>
  <problem_it_solves>Passing the same parameters through many functions.</problem_it_solves>
  <how_it_works>Group shared runtime data in one object.</how_it_works>
  <when_to_use>Shared config and dependency injection.</when_to_use>
  <WHEN_NOT_TO_USE>Low-level utilities.</WHEN_NOT_TO_USE>
  <example>a Context dataclass passed to handlers</example>
  <example>a request scope</example>
</topic_block>
<topic_block>
  <topic>Protocols</topic>
  <how_it_works>Structural typing.</how_it_works>
</topic_block>
<topic_block><problem_it_solves>orphan without a topic</problem_it_solves></topic_block>`

func TestParseTopics(t *testing.T) {
	topics := analysis.ParseTopics(sampleResponse)
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d: %+v", len(topics), topics)
	}
	first := topics[0]
	if first.Topic != "Context objects" || first.WhenNotToUse != "Low-level utilities." {
		t.Fatalf("unexpected first topic %+v", first)
	}
	if len(first.Examples) != 2 || first.Examples[1] != "a request scope" {
		t.Fatalf("unexpected examples %v", first.Examples)
	}
	if topics[1].Topic != "Protocols" || topics[1].ProblemItSolves != "" {
		t.Fatalf("unexpected second topic %+v", topics[1])
	}
	if got := analysis.ParseTopics("no xml here"); got != nil {
		t.Fatalf("expected no topics, got %+v", got)
	}
}

func TestTopicFormat(t *testing.T) {
	text := analysis.ParseTopics(sampleResponse)[0].Format()
	for _, want := range []string{"Context objects", "> Problem it solves: Passing", "> When not to use: Low-level", "• a request scope"} {
		if !strings.Contains(text, want) {
			t.Fatalf("formatted topic missing %q:\n%s", want, text)
		}
	}
}

func TestReadCaptionsFlattensSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vid.en.json3")
	doc := `{"events":[{"segs":[{"utf8":"Hello "},{"utf8":"there"}]},{"tStartMs":1},{"segs":[{"utf8":"\n"},{"utf8":"world"}]}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write captions: %v", err)
	}
	text, err := analysis.ReadCaptions(path)
	if err != nil {
		t.Fatalf("ReadCaptions: %v", err)
	}
	if text != "Hello there\nworld" {
		t.Fatalf("unexpected transcript %q", text)
	}

	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write corrupt captions: %v", err)
	}
	if _, err := analysis.ReadCaptions(path); err == nil {
		t.Fatal("expected decode error for corrupt captions")
	}
}

func TestCaptionPath(t *testing.T) {
	if got := analysis.CaptionPath("/out/run", "abc", "en"); got != filepath.Join("/out/run", "abc.en.json3") {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestLoadPrompt(t *testing.T) {
	prompt, err := analysis.LoadPrompt("")
	if err != nil || prompt != analysis.DefaultSystemPrompt {
		t.Fatalf("expected default prompt, got %q, %v", prompt, err)
	}
	path := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(path, []byte("  summarize  \n"), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	if prompt, err := analysis.LoadPrompt(path); err != nil || prompt != "summarize" {
		t.Fatalf("LoadPrompt = %q, %v", prompt, err)
	}
	if err := os.WriteFile(path, []byte("  "), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	if _, err := analysis.LoadPrompt(path); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
