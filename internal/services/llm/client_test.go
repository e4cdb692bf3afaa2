package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ytcollector/internal/config"
	"ytcollector/internal/services"
	"ytcollector/internal/services/llm"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newClient(t *testing.T, handler http.HandlerFunc, opts ...llm.Option) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.LLM{APIKey: "secret", BaseURL: srv.URL, Model: "demo-model", Title: "ytcollector"}
	return llm.New(cfg, append([]llm.Option{llm.WithSleep(noSleep)}, opts...)...)
}

func writeChoice(t *testing.T, w http.ResponseWriter, choice map[string]any) {
	t.Helper()
	payload := map[string]any{"model": "demo-model", "choices": []any{choice}}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestCompleteSendsPromptAndReturnsContent(t *testing.T) {
	var got struct {
		Model    string        `json:"model"`
		Messages []llm.Message `json:"messages"`
	}
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Title") != "ytcollector" {
			t.Errorf("unexpected title header %q", r.Header.Get("X-Title"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeChoice(t, w, map[string]any{
			"finish_reason": "stop",
			"message":       map[string]any{"content": "<topic_block><topic>Context objects</topic></topic_block>"},
		})
	})

	completion, err := client.Complete(context.Background(), []llm.Message{
		{Role: "system", Content: "analyze"},
		{Role: "user", Content: "transcript"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Model != "demo-model" || len(got.Messages) != 2 || got.Messages[1].Content != "transcript" {
		t.Fatalf("unexpected request %+v", got)
	}
	if !strings.Contains(completion.Content, "<topic>Context objects</topic>") {
		t.Fatalf("unexpected content %q", completion.Content)
	}
	if completion.Model != "demo-model" || completion.FinishReason != "stop" || len(completion.Raw) == 0 {
		t.Fatalf("unexpected completion %+v", completion)
	}
}

func TestCompleteAcceptsDeltaShapedResponses(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeChoice(t, w, map[string]any{"delta": map[string]any{"content": "streamed"}})
	})
	completion, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "x"}})
	if err != nil || completion.Content != "streamed" {
		t.Fatalf("Complete = %+v, %v", completion, err)
	}
}

func TestCompleteRetriesRateLimitsAndServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			writeChoice(t, w, map[string]any{"message": map[string]any{"content": "ok"}})
		}
	})
	completion, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "x"}})
	if err != nil || completion.Content != "ok" {
		t.Fatalf("Complete = %+v, %v", completion, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	})
	_, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "x"}})
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected external tool error with status, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestCompleteGivesUpOnEmptyContent(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeChoice(t, w, map[string]any{"finish_reason": "length", "message": map[string]any{"content": ""}})
	}, llm.WithRetry(2, 0, 0))
	_, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "x"}})
	if err == nil || !strings.Contains(err.Error(), `finish_reason="length"`) {
		t.Fatalf("expected empty completion error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := llm.New(config.LLM{BaseURL: "http://127.0.0.1:1", Model: "m"})
	_, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "x"}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeChoice(t, w, map[string]any{"message": map[string]any{"content": "OK"}})
	})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
