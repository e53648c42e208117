package fanout

import "time"

// Invalidation is the wire form of one cross-node invalidation.
type Invalidation struct {
	UserID string    `json:"user_id"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}
