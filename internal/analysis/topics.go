package analysis

import (
	"fmt"
	"regexp"
	"strings"
)

// Topic is one <topic_block> extracted from a model response.
type Topic struct {
	Topic           string   `json:"topic"`
	ProblemItSolves string   `json:"problem_it_solves,omitempty"`
	HowItWorks      string   `json:"how_it_works,omitempty"`
	WhenToUse       string   `json:"when_to_use,omitempty"`
	WhenNotToUse    string   `json:"when_not_to_use,omitempty"`
	Examples        []string `json:"examples,omitempty"`
}

var tagPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, tag := range []string{"topic_block", "topic", "problem_it_solves", "how_it_works", "when_to_use", "when_not_to_use", "example"} {
		tagPatterns[tag] = regexp.MustCompile(`(?is)<` + tag + `>\s*(.*?)\s*</` + tag + `>`)
	}
}

// ParseTopics extracts every <topic_block> from text. Model output is not
// guaranteed to be well-formed XML, so tags are matched leniently and
// case-insensitively; blocks without a <topic> are dropped.
func ParseTopics(text string) []Topic {
	var topics []Topic
	for _, block := range allTags(text, "topic_block") {
		topic := Topic{
			Topic:           firstTag(block, "topic"),
			ProblemItSolves: firstTag(block, "problem_it_solves"),
			HowItWorks:      firstTag(block, "how_it_works"),
			WhenToUse:       firstTag(block, "when_to_use"),
			WhenNotToUse:    firstTag(block, "when_not_to_use"),
			Examples:        allTags(block, "example"),
		}
		if topic.Topic == "" {
			continue
		}
		topics = append(topics, topic)
	}
	return topics
}

func firstTag(text, tag string) string {
	m := tagPatterns[tag].FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func allTags(text, tag string) []string {
	matches := tagPatterns[tag].FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// Format renders a topic as a short plain-text block for notifications.
func (t Topic) Format() string {
	var b strings.Builder
	b.WriteString(t.Topic)
	for _, field := range []struct{ label, value string }{
		{"Problem it solves", t.ProblemItSolves},
		{"How it works", t.HowItWorks},
		{"When to use", t.WhenToUse},
		{"When not to use", t.WhenNotToUse},
	} {
		if field.value != "" {
			fmt.Fprintf(&b, "\n> %s: %s", field.label, field.value)
		}
	}
	if len(t.Examples) > 0 {
		b.WriteString("\nExamples:")
		for _, ex := range t.Examples {
			fmt.Fprintf(&b, "\n  • %s", ex)
		}
	}
	return b.String()
}
