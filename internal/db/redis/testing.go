package redis

import (
	"time"

	"github.com/redis/rueidis"
)

// NewStoreForTest creates a Store over the provided rueidis client with a
// short readiness poll (test-only).
func NewStoreForTest(c rueidis.Client) *Store {
	return newStore(c, time.Millisecond)
}
