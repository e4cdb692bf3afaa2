package queue

import "errors"

var (
	// ErrAlreadyExists reports that a queue already holds a record for the id.
	ErrAlreadyExists = errors.New("item already exists in queue")
	// ErrNotFound reports that a queue holds no record for the id. During a
	// move it usually means a concurrent run already moved the item.
	ErrNotFound = errors.New("item not found in queue")
	// ErrUnknownQueue reports a queue name the store was not configured with.
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrInvalidID reports an identifier that cannot key a queue record.
	ErrInvalidID = errors.New("invalid item id")
	// ErrCorruptRecord reports a stored record that cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt queue record")
)
