package queue

import (
	"context"
	"iter"
)

// Store is durable per-queue item storage. Implementations guarantee that a
// single Write or Replace is atomic: readers observe the whole record or none
// of it.
type Store interface {
	// Write persists item under its id, failing with ErrAlreadyExists when the
	// queue already holds that id.
	Write(ctx context.Context, queue string, item Item) error
	// Read returns the record for id or ErrNotFound.
	Read(ctx context.Context, queue, id string) (Item, error)
	// List yields every item in the queue. The sequence is lazy and may be
	// iterated more than once; order is stable within one pass only.
	List(ctx context.Context, queue string) iter.Seq2[Item, error]
	// Remove deletes the record for id or fails with ErrNotFound.
	Remove(ctx context.Context, queue, id string) error
	// Exists reports whether the queue holds a record for id.
	Exists(ctx context.Context, queue, id string) (bool, error)
	// Replace overwrites an existing record; used only to fold duplicates.
	Replace(ctx context.Context, queue string, item Item) error
	Close() error
}

// PendingLister is implemented by stores that can yield a queue already in
// pending order (oldest discovered_at first, ties by id) without loading the
// whole queue. pageSize bounds each underlying read.
type PendingLister interface {
	ListPending(ctx context.Context, queue string, pageSize int) iter.Seq2[Item, error]
}
