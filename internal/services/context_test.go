package services_test

import (
	"context"
	"testing"

	"ytcollector/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, "dQw4w9WgXcQ")
	ctx = services.WithStage(ctx, "captions")
	ctx = services.WithChannel(ctx, "SimonSquibb")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ItemIDFromContext(ctx); !ok || id != "dQw4w9WgXcQ" {
		t.Fatalf("unexpected item id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "captions" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if channel, ok := services.ChannelFromContext(ctx); !ok || channel != "SimonSquibb" {
		t.Fatalf("unexpected channel: %v %v", channel, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithItemID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.ItemIDFromContext(ctx); ok {
		t.Fatal("expected no item id value")
	}
}
