package queue

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"

	"ytcollector/internal/config"
	"ytcollector/internal/logging"
	"ytcollector/internal/stage"
)

// JobQueue enforces the pipeline rules on top of a Store. It is the only
// component that mutates queue storage.
type JobQueue struct {
	store  Store
	ledger Ledger
	queues []string
	logger *slog.Logger

	mu      sync.Mutex
	corrupt map[string]struct{}
}

// New wraps store. ledger may be nil, in which case duplicate detection relies
// on queue membership alone.
func New(store Store, ledger Ledger, queues []string) *JobQueue {
	return &JobQueue{
		store:   store,
		ledger:  ledger,
		queues:  slices.Clone(queues),
		logger:  logging.NewNop(),
		corrupt: make(map[string]struct{}),
	}
}

// SetLogger routes queue warnings to logger.
func (q *JobQueue) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	q.logger = logging.NewComponentLogger(logger, "queue")
}

// Open builds the JobQueue for the configured backend over every queue of the
// default stage table.
func Open(ctx context.Context, cfg *config.Config) (*JobQueue, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	queues := stage.AllQueues()

	switch cfg.Queue.Backend {
	case config.BackendFiles, "":
		store, err := NewDirStore(cfg.QueueDirs())
		if err != nil {
			return nil, err
		}
		ledger, err := OpenSQLiteLedger(ctx, cfg.QueueDatabasePath())
		if err != nil {
			return nil, err
		}
		return New(store, ledger, queues), nil
	case config.BackendSQLite:
		db, err := openSQLite(ctx, cfg.QueueDatabasePath())
		if err != nil {
			return nil, err
		}
		store := newSQLiteStore(db, queues)
		store.owned = true
		return New(store, &sqliteLedger{db: db}, queues), nil
	case config.BackendRedis:
		client, err := ConnectRedis(ctx, RedisOptions{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		store := NewRedisStore(client, cfg.Queue.RedisPrefix, queues, true)
		return New(store, newRedisLedger(client, cfg.Queue.RedisPrefix), queues), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}
}

// Close releases the ledger and the store.
func (q *JobQueue) Close() error {
	var errs []error
	if q.ledger != nil {
		errs = append(errs, q.ledger.Close())
	}
	errs = append(errs, q.store.Close())
	return errors.Join(errs...)
}

// Queues returns the queue names this JobQueue manages.
func (q *JobQueue) Queues() []string {
	return slices.Clone(q.queues)
}

func (q *JobQueue) known(name string) error {
	if !slices.Contains(q.queues, name) {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	return nil
}

// Seen reports whether id was ever enqueued or currently sits in any queue.
func (q *JobQueue) Seen(ctx context.Context, id string) (bool, error) {
	if q.ledger != nil {
		seen, err := q.ledger.Seen(ctx, id)
		if err != nil || seen {
			return seen, err
		}
	}
	for _, name := range q.queues {
		exists, err := q.store.Exists(ctx, name, id)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

// Enqueue adds item to queue. It returns false, without error, when the id was
// seen before anywhere in the pipeline.
func (q *JobQueue) Enqueue(ctx context.Context, queue string, item Item) (bool, error) {
	if err := q.known(queue); err != nil {
		return false, err
	}
	if err := ValidateID(item.ID); err != nil {
		return false, err
	}
	seen, err := q.Seen(ctx, item.ID)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", item.ID, err)
	}
	if seen {
		return false, nil
	}
	if err := q.store.Write(ctx, queue, item.Clone()); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return false, nil
		}
		return false, err
	}
	if q.ledger != nil {
		if err := q.ledger.MarkSeen(ctx, item.ID, queue); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Move stamps tracking[key] = value on the item and transfers it from one
// queue to another. The destination write happens before the source removal,
// so an interrupted move leaves the item in both queues, never in neither.
//
// When the destination already holds the id (a previous interrupted move),
// the records are folded: destination tracking entries are kept, missing ones
// are added, and the source copy is removed. A second Move of an item that
// already left the source fails with ErrNotFound.
func (q *JobQueue) Move(ctx context.Context, id, from, to, key string, value any) (Item, error) {
	if err := q.known(from); err != nil {
		return Item{}, err
	}
	if err := q.known(to); err != nil {
		return Item{}, err
	}
	if from == to {
		return Item{}, fmt.Errorf("move %s: source and destination are both %s", id, from)
	}

	item, err := q.store.Read(ctx, from, id)
	if err != nil {
		return Item{}, err
	}
	moved := item.Clone()
	if err := moved.SetTracking(key, value); err != nil {
		return Item{}, err
	}

	written, err := q.place(ctx, to, moved)
	if err != nil {
		return Item{}, err
	}
	if err := q.store.Remove(ctx, from, id); err != nil && !errors.Is(err, ErrNotFound) {
		return written, fmt.Errorf("remove %s from %s after move: %w", id, from, err)
	}
	return written, nil
}

// place writes item into queue, folding it into an existing record if the
// queue already holds the id.
func (q *JobQueue) place(ctx context.Context, queue string, item Item) (Item, error) {
	err := q.store.Write(ctx, queue, item)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		return Item{}, err
	}
	existing, err := q.store.Read(ctx, queue, item.ID)
	if err != nil {
		return Item{}, err
	}
	if existing.mergeMissing(item) {
		if err := q.store.Replace(ctx, queue, existing); err != nil {
			return Item{}, err
		}
	}
	return existing, nil
}

// List yields every item in queue. Records that cannot be decoded are logged
// once and skipped; Get still reports them.
func (q *JobQueue) List(ctx context.Context, queue string) iter.Seq2[Item, error] {
	return q.skipCorrupt(queue, q.store.List(ctx, queue))
}

func (q *JobQueue) skipCorrupt(queue string, seq iter.Seq2[Item, error]) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for item, err := range seq {
			if err != nil && errors.Is(err, ErrCorruptRecord) {
				q.reportCorrupt(queue, err)
				continue
			}
			if !yield(item, err) {
				return
			}
		}
	}
}

func (q *JobQueue) reportCorrupt(queue string, err error) {
	key := queue + "\x00" + err.Error()
	q.mu.Lock()
	_, seen := q.corrupt[key]
	if !seen {
		q.corrupt[key] = struct{}{}
	}
	q.mu.Unlock()
	if seen {
		return
	}
	logging.WarnWithContext(q.logger, "skipping unreadable queue record", "queue_record_corrupt",
		logging.String("queue", queue),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "fix or remove the record file; the item stays out of stage runs until then"),
	)
}

// Collect drains List into a slice.
func (q *JobQueue) Collect(ctx context.Context, queue string) ([]Item, error) {
	if err := q.known(queue); err != nil {
		return nil, err
	}
	var items []Item
	for item, err := range q.List(ctx, queue) {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// ListPending returns at most limit items from queue, oldest discovered_at
// first with ties broken by id.
func (q *JobQueue) ListPending(ctx context.Context, queue string, limit int) ([]Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	if lister, ok := q.store.(PendingLister); ok {
		if err := q.known(queue); err != nil {
			return nil, err
		}
		items := make([]Item, 0, min(limit, 256))
		for item, err := range q.skipCorrupt(queue, lister.ListPending(ctx, queue, limit)) {
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if len(items) == limit {
				break
			}
		}
		return items, nil
	}
	items, err := q.Collect(ctx, queue)
	if err != nil {
		return nil, err
	}
	SortPending(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// SortPending orders items the way ListPending returns them.
func SortPending(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		if c := a.DiscoveredAt.Compare(b.DiscoveredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Get returns the record for id in queue.
func (q *JobQueue) Get(ctx context.Context, queue, id string) (Item, error) {
	if err := q.known(queue); err != nil {
		return Item{}, err
	}
	return q.store.Read(ctx, queue, id)
}

// Locate finds every queue currently holding id. More than one result means
// an interrupted move that Recover will fold.
func (q *JobQueue) Locate(ctx context.Context, id string) ([]string, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	var found []string
	for _, name := range q.queues {
		exists, err := q.store.Exists(ctx, name, id)
		if err != nil {
			return nil, err
		}
		if exists {
			found = append(found, name)
		}
	}
	return found, nil
}

// Remove deletes id from queue.
func (q *JobQueue) Remove(ctx context.Context, queue, id string) error {
	if err := q.known(queue); err != nil {
		return err
	}
	return q.store.Remove(ctx, queue, id)
}

// Size counts the items in queue.
func (q *JobQueue) Size(ctx context.Context, queue string) (int, error) {
	if err := q.known(queue); err != nil {
		return 0, err
	}
	n := 0
	for _, err := range q.List(ctx, queue) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// Recover folds items left in both a stage's source and destination queue by
// an interrupted move. The destination record absorbs any tracking entries it
// lacks and the source copy is removed. It returns the number of duplicates
// repaired.
func (q *JobQueue) Recover(ctx context.Context, table stage.Table) (int, error) {
	repaired := 0
	for _, def := range table {
		n, err := q.RecoverPair(ctx, def.Source, def.Destination)
		repaired += n
		if err != nil {
			return repaired, err
		}
	}
	return repaired, nil
}

// RecoverPair folds duplicates between one source and destination queue.
func (q *JobQueue) RecoverPair(ctx context.Context, from, to string) (int, error) {
	if err := q.known(to); err != nil {
		return 0, err
	}
	items, err := q.Collect(ctx, from)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, item := range items {
		exists, err := q.store.Exists(ctx, to, item.ID)
		if err != nil {
			return repaired, err
		}
		if !exists {
			continue
		}
		if _, err := q.place(ctx, to, item); err != nil {
			return repaired, err
		}
		if err := q.store.Remove(ctx, from, item.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}
