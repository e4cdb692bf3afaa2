package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CaptionPath is where the captions stage leaves a video's json3 captions.
func CaptionPath(outputDir, videoID, language string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s.%s.json3", videoID, language))
}

type json3 struct {
	Events []struct {
		Segs []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// ReadCaptions flattens a YouTube json3 caption file into plain transcript
// text.
func ReadCaptions(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc json3
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("decode captions %s: %w", path, err)
	}
	var b strings.Builder
	for _, event := range doc.Events {
		for _, seg := range event.Segs {
			b.WriteString(seg.UTF8)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
