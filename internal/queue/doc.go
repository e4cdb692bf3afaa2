// Package queue persists pipeline work items and moves them between the named
// queues of the stage chain.
//
// A Store holds one record per item per queue and guarantees atomic per-item
// writes. Three backends satisfy it: DirStore keeps one JSON file per item in
// a directory per queue, SQLiteStore keeps rows in an embedded database, and
// RedisStore keeps one hash per queue. JobQueue layers the pipeline rules on
// top: silent duplicate suppression on enqueue, write-before-remove moves that
// favour duplication over loss, deterministic pending listings, and a
// recovery pass that folds crash-window duplicates back together.
//
// JobQueue is the only writer of queue storage; other packages receive Items
// as values.
package queue
