// Package fanout carries permission cache invalidations between nodes over
// Kafka.
//
// The Publisher subscribes to user.RolesChanged on the engine's event bus
// and writes one message per change, keyed by user id. Every node runs a
// Consumer with its own consumer group so each node sees every message, and
// drops the user's entry from its local permission cache. Messages a node
// published itself are skipped; its cache was already invalidated in
// process.
package fanout
