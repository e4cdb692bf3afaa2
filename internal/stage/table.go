package stage

import (
	"errors"
	"fmt"
	"strings"
)

// Queue names used by the pipeline.
const (
	QueueDownloads      = "downloads"
	QueueCaptions       = "captions"
	QueueInfoCollection = "info_collection"
	QueueResting        = "resting"
	// QueueAnalyzed receives items once transcript analysis has run.
	QueueAnalyzed = "analyzed"
)

// Stage names.
const (
	VideoDownload  = "video_download"
	Captions       = "captions"
	InfoCollection = "info_collection"
)

// Channel flows select the entry queue discovery writes into.
const (
	FlowCaptions = "captions"
	FlowDownload = "download"
)

// Definition is one stage of the pipeline.
type Definition struct {
	Name        string
	Source      string
	Destination string
	TrackingKey string
}

// Table is the ordered list of stages; order is chain order.
type Table []Definition

// DefaultTable returns the stage chain run by the collector.
func DefaultTable() Table {
	return Table{
		{
			Name:        VideoDownload,
			Source:      QueueDownloads,
			Destination: QueueCaptions,
			TrackingKey: "kaggle_job_yt_video_download",
		},
		{
			Name:        Captions,
			Source:      QueueCaptions,
			Destination: QueueInfoCollection,
			TrackingKey: "kaggle_job_yt_captions",
		},
		{
			Name:        InfoCollection,
			Source:      QueueInfoCollection,
			Destination: QueueResting,
			TrackingKey: "kaggle_job_yt_info_collection",
		},
	}
}

// Validate checks that the table forms a single linear chain: every stage after
// the first reads from the destination of exactly one earlier stage, no queue
// feeds two stages, and no stage writes back into an earlier source.
func (t Table) Validate() error {
	if len(t) == 0 {
		return errors.New("stage table is empty")
	}
	names := make(map[string]struct{}, len(t))
	keys := make(map[string]struct{}, len(t))
	sources := make(map[string]string, len(t))
	destinations := make(map[string]string, len(t))

	for i, def := range t {
		if strings.TrimSpace(def.Name) == "" {
			return fmt.Errorf("stage %d: name is required", i)
		}
		if def.Source == "" || def.Destination == "" {
			return fmt.Errorf("stage %s: source and destination queues are required", def.Name)
		}
		if def.TrackingKey == "" {
			return fmt.Errorf("stage %s: tracking key is required", def.Name)
		}
		if def.Source == def.Destination {
			return fmt.Errorf("stage %s: source and destination are both %q", def.Name, def.Source)
		}
		if _, dup := names[def.Name]; dup {
			return fmt.Errorf("stage %s: duplicate stage name", def.Name)
		}
		if _, dup := keys[def.TrackingKey]; dup {
			return fmt.Errorf("stage %s: tracking key %q already used", def.Name, def.TrackingKey)
		}
		if owner, dup := sources[def.Source]; dup {
			return fmt.Errorf("stage %s: queue %q already read by stage %s", def.Name, def.Source, owner)
		}
		if owner, dup := destinations[def.Destination]; dup {
			return fmt.Errorf("stage %s: queue %q already written by stage %s", def.Name, def.Destination, owner)
		}
		if owner, ok := sources[def.Destination]; ok {
			return fmt.Errorf("stage %s: writes to %q which stage %s reads (cycle)", def.Name, def.Destination, owner)
		}

		if i > 0 {
			feeders := 0
			for _, earlier := range t[:i] {
				if earlier.Destination == def.Source {
					feeders++
				}
			}
			if feeders != 1 {
				return fmt.Errorf("stage %s: source %q must be the destination of exactly one earlier stage, found %d", def.Name, def.Source, feeders)
			}
		}

		names[def.Name] = struct{}{}
		keys[def.TrackingKey] = struct{}{}
		sources[def.Source] = def.Name
		destinations[def.Destination] = def.Name
	}
	return nil
}

// Lookup returns the stage with the given name.
func (t Table) Lookup(name string) (Definition, bool) {
	name = strings.TrimSpace(name)
	for _, def := range t {
		if def.Name == name {
			return def, true
		}
	}
	return Definition{}, false
}

// Names returns stage names in chain order.
func (t Table) Names() []string {
	out := make([]string, 0, len(t))
	for _, def := range t {
		out = append(out, def.Name)
	}
	return out
}

// Queues returns every queue referenced by the table in chain order.
func (t Table) Queues() []string {
	seen := make(map[string]struct{}, len(t)+1)
	out := make([]string, 0, len(t)+1)
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, def := range t {
		add(def.Source)
		add(def.Destination)
	}
	return out
}

// AllQueues returns the default chain's queues followed by the analysis
// output queue. Storage is provisioned for exactly these names.
func AllQueues() []string {
	return append(DefaultTable().Queues(), QueueAnalyzed)
}

// ReadsFrom returns the stage whose source is queue.
func (t Table) ReadsFrom(queue string) (Definition, bool) {
	for _, def := range t {
		if def.Source == queue {
			return def, true
		}
	}
	return Definition{}, false
}

// EntryQueueForFlow maps a channel flow to the queue discovery enqueues into.
func EntryQueueForFlow(flow string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(flow)) {
	case FlowCaptions, "":
		return QueueCaptions, nil
	case FlowDownload:
		return QueueDownloads, nil
	default:
		return "", fmt.Errorf("unknown channel flow %q (expected %q or %q)", flow, FlowCaptions, FlowDownload)
	}
}
