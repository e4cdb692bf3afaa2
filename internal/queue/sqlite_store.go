package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"
)

// SQLiteStore keeps queue records as rows keyed by (queue, id).
type SQLiteStore struct {
	db     *sql.DB
	queues map[string]struct{}
	owned  bool
}

// OpenSQLiteStore opens the database at path and serves the named queues.
func OpenSQLiteStore(ctx context.Context, path string, queues []string) (*SQLiteStore, error) {
	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	store := newSQLiteStore(db, queues)
	store.owned = true
	return store, nil
}

func newSQLiteStore(db *sql.DB, queues []string) *SQLiteStore {
	known := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		known[q] = struct{}{}
	}
	return &SQLiteStore{db: db, queues: known}
}

func (s *SQLiteStore) check(queue, id string) error {
	if _, ok := s.queues[queue]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	return ValidateID(id)
}

func (s *SQLiteStore) Write(ctx context.Context, queue string, item Item) error {
	if err := s.check(queue, item.ID); err != nil {
		return err
	}
	payload, err := encodeItem(item)
	if err != nil {
		return err
	}
	res, err := execWithRetry(ctx, s.db,
		`INSERT INTO queue_items (queue, id, channel, discovered_at, payload, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(queue, id) DO NOTHING`,
		queue, item.ID, item.Channel, formatTime(item.DiscoveredAt), string(payload), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", queue, item.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write %s/%s: rows affected: %w", queue, item.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s/%s: %w", queue, item.ID, ErrAlreadyExists)
	}
	return nil
}

func (s *SQLiteStore) Read(ctx context.Context, queue, id string) (Item, error) {
	if err := s.check(queue, id); err != nil {
		return Item{}, err
	}
	var payload string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT payload FROM queue_items WHERE queue = ? AND id = ?`, queue, id,
		).Scan(&payload)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, fmt.Errorf("%s/%s: %w", queue, id, ErrNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("read %s/%s: %w", queue, id, err)
	}
	return decodeItem(id, []byte(payload))
}

// List snapshots the ids in the queue, then loads each record on demand.
// Rows deleted mid-iteration are skipped.
func (s *SQLiteStore) List(ctx context.Context, queue string) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		if _, ok := s.queues[queue]; !ok {
			yield(Item{}, fmt.Errorf("%w: %s", ErrUnknownQueue, queue))
			return
		}
		ids, err := s.ids(ctx, queue)
		if err != nil {
			yield(Item{}, err)
			return
		}
		for _, id := range ids {
			item, err := s.Read(ctx, queue, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if !yield(item, err) {
				return
			}
		}
	}
}

// ListPending pages through the queue in pending order using the
// (queue, discovered_at, id) index. Each page is read in full before it is
// yielded, so callers may mutate the store while iterating.
func (s *SQLiteStore) ListPending(ctx context.Context, queue string, pageSize int) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		if _, ok := s.queues[queue]; !ok {
			yield(Item{}, fmt.Errorf("%w: %s", ErrUnknownQueue, queue))
			return
		}
		if pageSize <= 0 {
			pageSize = 100
		}
		var after *pendingRow
		for {
			page, err := s.pendingPage(ctx, queue, after, pageSize)
			if err != nil {
				yield(Item{}, err)
				return
			}
			for i := range page {
				item, err := decodeItem(page[i].id, []byte(page[i].payload))
				if !yield(item, err) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = &page[len(page)-1]
		}
	}
}

type pendingRow struct {
	id           string
	discoveredAt string
	payload      string
}

func (s *SQLiteStore) pendingPage(ctx context.Context, queue string, after *pendingRow, limit int) ([]pendingRow, error) {
	query := `SELECT id, discovered_at, payload FROM queue_items
         WHERE queue = ?
         ORDER BY discovered_at, id
         LIMIT ?`
	args := []any{queue, limit}
	if after != nil {
		query = `SELECT id, discovered_at, payload FROM queue_items
         WHERE queue = ? AND (discovered_at, id) > (?, ?)
         ORDER BY discovered_at, id
         LIMIT ?`
		args = []any{queue, after.discoveredAt, after.id, limit}
	}
	var page []pendingRow
	err := retryOnBusy(ctx, func() error {
		page = page[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var row pendingRow
			if err := rows.Scan(&row.id, &row.discoveredAt, &row.payload); err != nil {
				return err
			}
			page = append(page, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list pending %s: %w", queue, err)
	}
	return page, nil
}

func (s *SQLiteStore) ids(ctx context.Context, queue string) ([]string, error) {
	var ids []string
	err := retryOnBusy(ctx, func() error {
		ids = ids[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT id FROM queue_items WHERE queue = ? ORDER BY id`, queue)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", queue, err)
	}
	return ids, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, queue, id string) error {
	if err := s.check(queue, id); err != nil {
		return err
	}
	res, err := execWithRetry(ctx, s.db, `DELETE FROM queue_items WHERE queue = ? AND id = ?`, queue, id)
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", queue, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove %s/%s: rows affected: %w", queue, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s/%s: %w", queue, id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, queue, id string) (bool, error) {
	if err := s.check(queue, id); err != nil {
		return false, err
	}
	var count int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM queue_items WHERE queue = ? AND id = ?`, queue, id,
		).Scan(&count)
	})
	if err != nil {
		return false, fmt.Errorf("exists %s/%s: %w", queue, id, err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) Replace(ctx context.Context, queue string, item Item) error {
	if err := s.check(queue, item.ID); err != nil {
		return err
	}
	payload, err := encodeItem(item)
	if err != nil {
		return err
	}
	_, err = execWithRetry(ctx, s.db,
		`INSERT INTO queue_items (queue, id, channel, discovered_at, payload, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(queue, id) DO UPDATE SET
             channel = excluded.channel,
             discovered_at = excluded.discovered_at,
             payload = excluded.payload,
             updated_at = excluded.updated_at`,
		queue, item.ID, item.Channel, formatTime(item.DiscoveredAt), string(payload), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("replace %s/%s: %w", queue, item.ID, err)
	}
	return nil
}

// Close closes the database when the store opened it.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}
