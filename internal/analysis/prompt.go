package analysis

import (
	"fmt"
	"os"
	"strings"
)

// DefaultSystemPrompt asks for <topic_block> summaries of a programming
// tutorial transcript.
const DefaultSystemPrompt = `You analyze transcripts of programming tutorials and extract structured insights.

For each main topic taught in the transcript, output one block:

<topic_block>
  <topic>name of the topic</topic>
  <problem_it_solves>the core problem or pain point it addresses</problem_it_solves>
  <how_it_works>the mechanism, pattern, technique, or workflow</how_it_works>
  <when_to_use>cases where it helps</when_to_use>
  <when_not_to_use>cases where it introduces drawbacks</when_not_to_use>
  <example>optional concrete example from the transcript</example>
</topic_block>

Rules:
- Output only XML.
- Repeat <topic_block> for every distinct topic.
- Keep explanations concise without dropping important steps.
- Use only information present in the transcript.`

// LoadPrompt returns the prompt stored at path, or DefaultSystemPrompt when
// path is empty.
func LoadPrompt(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read analysis prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("analysis prompt %s is empty", path)
	}
	return prompt, nil
}
