package stage

import (
	"strings"
	"testing"
)

func TestDefaultTableIsValid(t *testing.T) {
	table := DefaultTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	want := []string{QueueDownloads, QueueCaptions, QueueInfoCollection, QueueResting}
	got := table.Queues()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Queues() = %v, want %v", got, want)
	}
}

func TestAllQueuesAppendsAnalyzed(t *testing.T) {
	got := AllQueues()
	if len(got) != len(DefaultTable().Queues())+1 || got[len(got)-1] != QueueAnalyzed {
		t.Fatalf("AllQueues() = %v", got)
	}
	if _, ok := DefaultTable().ReadsFrom(QueueAnalyzed); ok {
		t.Fatal("no stage should read from the analyzed queue")
	}
}

func TestValidateRejectsBrokenChains(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		wantErr string
	}{
		{
			name:    "empty",
			table:   Table{},
			wantErr: "empty",
		},
		{
			name: "self loop",
			table: Table{
				{Name: "a", Source: "q1", Destination: "q1", TrackingKey: "k"},
			},
			wantErr: "source and destination",
		},
		{
			name: "disconnected",
			table: Table{
				{Name: "a", Source: "q1", Destination: "q2", TrackingKey: "ka"},
				{Name: "b", Source: "q3", Destination: "q4", TrackingKey: "kb"},
			},
			wantErr: "exactly one earlier stage",
		},
		{
			name: "branching reader",
			table: Table{
				{Name: "a", Source: "q1", Destination: "q2", TrackingKey: "ka"},
				{Name: "b", Source: "q2", Destination: "q3", TrackingKey: "kb"},
				{Name: "c", Source: "q2", Destination: "q4", TrackingKey: "kc"},
			},
			wantErr: "already read",
		},
		{
			name: "merging writers",
			table: Table{
				{Name: "a", Source: "q1", Destination: "q2", TrackingKey: "ka"},
				{Name: "b", Source: "q2", Destination: "q3", TrackingKey: "kb"},
				{Name: "c", Source: "q3", Destination: "q2", TrackingKey: "kc"},
			},
			wantErr: "already written",
		},
		{
			name: "cycle to start",
			table: Table{
				{Name: "a", Source: "q1", Destination: "q2", TrackingKey: "ka"},
				{Name: "b", Source: "q2", Destination: "q1", TrackingKey: "kb"},
			},
			wantErr: "cycle",
		},
		{
			name: "duplicate tracking key",
			table: Table{
				{Name: "a", Source: "q1", Destination: "q2", TrackingKey: "k"},
				{Name: "b", Source: "q2", Destination: "q3", TrackingKey: "k"},
			},
			wantErr: "tracking key",
		},
		{
			name: "duplicate name",
			table: Table{
				{Name: "a", Source: "q1", Destination: "q2", TrackingKey: "ka"},
				{Name: "a", Source: "q2", Destination: "q3", TrackingKey: "kb"},
			},
			wantErr: "duplicate stage name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLookupAndReadsFrom(t *testing.T) {
	table := DefaultTable()
	def, ok := table.Lookup("captions")
	if !ok {
		t.Fatal("expected captions stage")
	}
	if def.Destination != QueueInfoCollection || def.TrackingKey != "kaggle_job_yt_captions" {
		t.Fatalf("unexpected captions stage: %+v", def)
	}
	if _, ok := table.Lookup("missing"); ok {
		t.Fatal("unexpected stage for unknown name")
	}
	reader, ok := table.ReadsFrom(QueueInfoCollection)
	if !ok || reader.Name != InfoCollection {
		t.Fatalf("ReadsFrom(info_collection) = %+v, %v", reader, ok)
	}
	if _, ok := table.ReadsFrom(QueueResting); ok {
		t.Fatal("resting queue is terminal")
	}
}

func TestEntryQueueForFlow(t *testing.T) {
	tests := map[string]string{
		"captions": QueueCaptions,
		"":         QueueCaptions,
		"Download": QueueDownloads,
	}
	for flow, want := range tests {
		got, err := EntryQueueForFlow(flow)
		if err != nil {
			t.Fatalf("EntryQueueForFlow(%q): %v", flow, err)
		}
		if got != want {
			t.Fatalf("EntryQueueForFlow(%q) = %q, want %q", flow, got, want)
		}
	}
	if _, err := EntryQueueForFlow("audio"); err == nil {
		t.Fatal("expected error for unknown flow")
	}
}
