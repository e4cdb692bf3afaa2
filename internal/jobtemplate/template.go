package jobtemplate

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"ytcollector/internal/stage"
)

// Binding names substituted into stage job templates.
const (
	BindingVideoIDs         = "video_ids_list"
	BindingTrackingKey      = "tracking_key"
	BindingDestinationQueue = "destination_queue"
	BindingMinutesToUse     = "minutes_to_use"
)

// StageRequired lists the bindings every stage job template must receive.
var StageRequired = []string{BindingVideoIDs, BindingTrackingKey, BindingDestinationQueue, BindingMinutesToUse}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Bindings maps placeholder names to their substituted text.
type Bindings map[string]string

// TemplateError reports a template that cannot be rendered.
type TemplateError struct {
	Template string
	Binding  string
	Reason   string
}

func (e *TemplateError) Error() string {
	if e.Binding == "" {
		return fmt.Sprintf("template %s: %s", e.Template, e.Reason)
	}
	return fmt.Sprintf("template %s: binding %q %s", e.Template, e.Binding, e.Reason)
}

// Template is a parsed job template.
type Template struct {
	name         string
	text         string
	placeholders []string
	required     []string
}

// New parses text. required names bindings that must be non-empty at render
// time whether or not the text references them.
func New(name, text string, required ...string) *Template {
	seen := make(map[string]struct{})
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[match[1]]; ok {
			continue
		}
		seen[match[1]] = struct{}{}
		names = append(names, match[1])
	}
	req := slices.Clone(required)
	slices.Sort(req)
	return &Template{
		name:         name,
		text:         text,
		placeholders: names,
		required:     slices.Compact(req),
	}
}

// Load reads a template file.
func Load(path string, required ...string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateError{Template: path, Reason: fmt.Sprintf("cannot be read: %v", err)}
	}
	return New(path, string(data), required...), nil
}

// Name returns the template's name, usually its path.
func (t *Template) Name() string { return t.name }

// Placeholders returns the distinct placeholder names in order of first use.
func (t *Template) Placeholders() []string { return slices.Clone(t.placeholders) }

// Render substitutes every placeholder with its binding.
func (t *Template) Render(bindings Bindings) (string, error) {
	for _, name := range t.required {
		value, ok := bindings[name]
		if !ok {
			return "", &TemplateError{Template: t.name, Binding: name, Reason: "is required but missing"}
		}
		if strings.TrimSpace(value) == "" {
			return "", &TemplateError{Template: t.name, Binding: name, Reason: "is required but empty"}
		}
	}
	for _, name := range t.placeholders {
		if _, ok := bindings[name]; !ok {
			return "", &TemplateError{Template: t.name, Binding: name, Reason: "is referenced but not bound"}
		}
	}
	return placeholderPattern.ReplaceAllStringFunc(t.text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return bindings[name]
	}), nil
}

// StageBindings builds the bindings for a stage job. An empty id list leaves
// video_ids_list unbound so rendering fails instead of producing an empty job.
func StageBindings(ids []string, def stage.Definition, minutes int) (Bindings, error) {
	bindings := Bindings{
		BindingTrackingKey:      def.TrackingKey,
		BindingDestinationQueue: def.Destination,
		BindingMinutesToUse:     strconv.Itoa(minutes),
	}
	if len(ids) > 0 {
		encoded, err := json.Marshal(ids)
		if err != nil {
			return nil, fmt.Errorf("encode video ids: %w", err)
		}
		bindings[BindingVideoIDs] = string(encoded)
	}
	return bindings, nil
}
