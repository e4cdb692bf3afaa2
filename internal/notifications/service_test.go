package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ytcollector/internal/config"
	"ytcollector/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newRecorder(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), reqs...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyError(context.Background(), errors.New("boom"), "fetch"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "discovery completed",
			send: func(s notifications.Service) error {
				return s.NotifyDiscoveryCompleted(context.Background(), 3, 7, 0, 42)
			},
			expectTitle:   "ytcollector - Fetch Complete",
			expectMessage: "New videos queued: 7",
			expectTags:    "ytcollector,fetch,completed",
		},
		{
			name: "discovery with failures",
			send: func(s notifications.Service) error {
				return s.NotifyDiscoveryCompleted(context.Background(), 3, 2, 1, 10)
			},
			expectTitle:   "ytcollector - Fetch Complete (with errors)",
			expectMessage: "Channels failed: 1",
			expectTags:    "ytcollector,fetch,completed",
		},
		{
			name: "job submitted",
			send: func(s notifications.Service) error {
				return s.NotifyJobSubmitted(context.Background(), notifications.Submission{
					Stage:      "captions",
					KernelName: "crongle-job-yt-caption-collector-1234abcd",
					VideoCount: 5,
					Link:       "https://www.kaggle.com/code/u/k",
				})
			},
			expectTitle:   "ytcollector - Job Submitted",
			expectMessage: "Videos: 5",
			expectTags:    "ytcollector,captions,submitted",
		},
		{
			name: "stage aborted",
			send: func(s notifications.Service) error {
				return s.NotifyStageAborted(context.Background(), "captions", "no pending videos")
			},
			expectTitle:    "ytcollector - Job Aborted",
			expectMessage:  "🛑 Stage captions aborted: no pending videos",
			expectTags:     "ytcollector,captions,aborted",
			expectPriority: "low",
		},
		{
			name: "pipeline completed",
			send: func(s notifications.Service) error {
				return s.NotifyPipelineCompleted(context.Background(), 4, 1, 90*time.Second)
			},
			expectTitle:   "ytcollector - Pipeline Complete (with errors)",
			expectMessage: "1 of 4 stages failed in 1m30s",
			expectTags:    "ytcollector,pipeline,completed",
		},
		{
			name: "analysis completed",
			send: func(s notifications.Service) error {
				return s.NotifyAnalysisCompleted(context.Background(), notifications.Analysis{
					VideoID: "abc123",
					Title:   "Context objects",
					Channel: "arjancodes",
					Topics:  []string{"Context objects\nProblem it solves: repeated parameters"},
				})
			},
			expectTitle:   "ytcollector - Video Analysis: Context objects",
			expectMessage: "Problem it solves: repeated parameters",
			expectTags:    "ytcollector,analysis,completed",
		},
		{
			name: "error",
			send: func(s notifications.Service) error {
				return s.NotifyError(context.Background(), errors.New("disk full"), "stage captions")
			},
			expectTitle:    "ytcollector - Error",
			expectMessage:  "❌ Error in stage captions: disk full",
			expectTags:     "ytcollector,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, requests := newRecorder(t, http.StatusOK)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = srv.URL
			svc := notifications.NewService(&cfg)

			if err := tc.send(svc); err != nil {
				t.Fatalf("send: %v", err)
			}
			got := requests()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle {
				t.Errorf("title: got %q want %q", got[0].title, tc.expectTitle)
			}
			if !strings.Contains(got[0].body, tc.expectMessage) {
				t.Errorf("body %q does not contain %q", got[0].body, tc.expectMessage)
			}
			if got[0].tags != tc.expectTags {
				t.Errorf("tags: got %q want %q", got[0].tags, tc.expectTags)
			}
			if got[0].priority != tc.expectPriority {
				t.Errorf("priority: got %q want %q", got[0].priority, tc.expectPriority)
			}
		})
	}
}

func TestTogglesSilenceEvents(t *testing.T) {
	srv, requests := newRecorder(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Discovery = false
	cfg.Notifications.Aborts = false
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	if err := svc.NotifyDiscoveryCompleted(ctx, 1, 1, 0, 1); err != nil {
		t.Fatalf("discovery: %v", err)
	}
	if err := svc.NotifyStageAborted(ctx, "captions", "empty"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("test: %v", err)
	}
	got := requests()
	if len(got) != 1 || got[0].title != "ytcollector - Test" {
		t.Fatalf("expected only the test notification, got %+v", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newRecorder(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
