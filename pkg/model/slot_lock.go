package model

import "time"

// SlotLock is an advisory lock document keyed by owner and slot coordinates.
// It narrows the window in which two requests for the same slot reach the
// transactional overlap check; correctness does not depend on it.
type SlotLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
