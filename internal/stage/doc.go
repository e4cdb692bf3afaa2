// Package stage declares the static pipeline stage table.
//
// Each Definition binds a stage name to the queue it reads, the queue it
// writes, and the tracking key it stamps on every item it advances. The table
// is configuration data, not logic: DefaultTable is validated once at startup
// and must form a single linear chain.
package stage
