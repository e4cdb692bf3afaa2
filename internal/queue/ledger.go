package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger remembers every id ever enqueued, including ids that have since
// left the pipeline, so discovery never brings them back.
type Ledger interface {
	Seen(ctx context.Context, id string) (bool, error)
	// MarkSeen records id with the queue it first entered. Marking an id twice
	// keeps the first record.
	MarkSeen(ctx context.Context, id, queue string) error
	Close() error
}

type sqliteLedger struct {
	db    *sql.DB
	owned bool
}

// OpenSQLiteLedger opens the seen-set stored in the SQLite database at path.
func OpenSQLiteLedger(ctx context.Context, path string) (Ledger, error) {
	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return &sqliteLedger{db: db, owned: true}, nil
}

func (l *sqliteLedger) Seen(ctx context.Context, id string) (bool, error) {
	var count int
	err := retryOnBusy(ctx, func() error {
		return l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM seen_items WHERE id = ?`, id).Scan(&count)
	})
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", id, err)
	}
	return count > 0, nil
}

func (l *sqliteLedger) MarkSeen(ctx context.Context, id, queue string) error {
	_, err := execWithRetry(ctx, l.db,
		`INSERT INTO seen_items (id, queue, first_seen_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, queue, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("ledger record %s: %w", id, err)
	}
	return nil
}

func (l *sqliteLedger) Close() error {
	if !l.owned {
		return nil
	}
	return l.db.Close()
}

type redisLedger struct {
	client *redis.Client
	key    string
}

func newRedisLedger(client *redis.Client, prefix string) Ledger {
	if prefix == "" {
		prefix = "ytcollector"
	}
	return &redisLedger{client: client, key: prefix + ":seen"}
}

func (l *redisLedger) Seen(ctx context.Context, id string) (bool, error) {
	ok, err := l.client.HExists(ctx, l.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", id, err)
	}
	return ok, nil
}

func (l *redisLedger) MarkSeen(ctx context.Context, id, queue string) error {
	if err := l.client.HSetNX(ctx, l.key, id, queue).Err(); err != nil {
		return fmt.Errorf("ledger record %s: %w", id, err)
	}
	return nil
}

// Close is a no-op; the client belongs to the RedisStore.
func (l *redisLedger) Close() error { return nil }
