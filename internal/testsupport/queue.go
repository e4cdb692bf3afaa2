package testsupport

import (
	"context"
	"testing"
	"time"

	"ytcollector/internal/config"
	"ytcollector/internal/queue"
)

// MustOpenQueue opens the configured JobQueue and closes it when the test ends.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.JobQueue {
	t.Helper()
	q, err := queue.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = q.Close()
	})
	return q
}

// NewItem builds an item discovered at base plus offset minutes.
func NewItem(id, channel string, offsetMinutes int) queue.Item {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return queue.Item{
		ID:           id,
		Channel:      channel,
		DiscoveredAt: base.Add(time.Duration(offsetMinutes) * time.Minute),
		URL:          "https://www.youtube.com/watch?v=" + id,
	}
}

// MustEnqueue enqueues item and fails the test unless it was added.
func MustEnqueue(t testing.TB, q *queue.JobQueue, queueName string, item queue.Item) {
	t.Helper()
	added, err := q.Enqueue(context.Background(), queueName, item)
	if err != nil {
		t.Fatalf("enqueue %s into %s: %v", item.ID, queueName, err)
	}
	if !added {
		t.Fatalf("enqueue %s into %s: unexpectedly skipped", item.ID, queueName)
	}
}
