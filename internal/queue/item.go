package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

const maxIDLength = 128

// Item is one video tracked through the pipeline.
type Item struct {
	ID           string                     `json:"video_id"`
	Channel      string                     `json:"channel"`
	DiscoveredAt time.Time                  `json:"discovered_at"`
	URL          string                     `json:"url,omitempty"`
	Title        string                     `json:"title,omitempty"`
	Description  string                     `json:"description,omitempty"`
	ViewCount    *int64                     `json:"view_count,omitempty"`
	Tracking     map[string]json.RawMessage `json:"tracking,omitempty"`
}

// Clone returns a deep copy so callers never share tracking maps.
func (i Item) Clone() Item {
	out := i
	if i.ViewCount != nil {
		v := *i.ViewCount
		out.ViewCount = &v
	}
	if i.Tracking != nil {
		out.Tracking = make(map[string]json.RawMessage, len(i.Tracking))
		for k, v := range i.Tracking {
			out.Tracking[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// SetTracking stores value, encoded as JSON, under key.
func (i *Item) SetTracking(key string, value any) error {
	raw, err := encodeTracking(value)
	if err != nil {
		return fmt.Errorf("encode tracking %s: %w", key, err)
	}
	if i.Tracking == nil {
		i.Tracking = make(map[string]json.RawMessage, 1)
	}
	i.Tracking[key] = raw
	return nil
}

// HasTracking reports whether the stage owning key already stamped the item.
func (i Item) HasTracking(key string) bool {
	_, ok := i.Tracking[key]
	return ok
}

// TrackingKeys returns the stamped keys in sorted order.
func (i Item) TrackingKeys() []string {
	return slices.Sorted(maps.Keys(i.Tracking))
}

// mergeMissing copies tracking entries from other that i does not carry yet.
// Entries already present on i win.
func (i *Item) mergeMissing(other Item) bool {
	changed := false
	for k, v := range other.Tracking {
		if _, ok := i.Tracking[k]; ok {
			continue
		}
		if i.Tracking == nil {
			i.Tracking = make(map[string]json.RawMessage, len(other.Tracking))
		}
		i.Tracking[k] = append(json.RawMessage(nil), v...)
		changed = true
	}
	return changed
}

func encodeTracking(value any) (json.RawMessage, error) {
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return json.Marshal(value)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

// ValidateID checks that id can key a record in every backend: non-empty,
// bounded, no path separators, and not hidden or temporary on disk.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case id != strings.TrimSpace(id):
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidID, id)
	case len(id) > maxIDLength:
		return fmt.Errorf("%w: %q longer than %d bytes", ErrInvalidID, id, maxIDLength)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidID, id)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidID, id)
	}
	return nil
}

func encodeItem(item Item) ([]byte, error) {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	return append(data, '\n'), nil
}

func decodeItem(id string, data []byte) (Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return Item{}, fmt.Errorf("decode item %s: %w: %w", id, ErrCorruptRecord, err)
	}
	if item.ID == "" {
		item.ID = id
	}
	if item.ID != id {
		return Item{}, fmt.Errorf("decode item %s: %w: record carries id %q", id, ErrCorruptRecord, item.ID)
	}
	return item, nil
}
