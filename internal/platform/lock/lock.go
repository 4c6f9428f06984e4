// Package lock provides per-key exclusive locks used to serialize
// order-mutating operations for a single purchaser. Locks never span
// unrelated keys; two different purchasers proceed independently.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired reports that the lock could not be obtained before the
// context deadline.
var ErrNotAcquired = errors.New("lock: not acquired")

// Lease represents a held lock. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

// Guard hands out exclusive per-key leases. Acquire blocks until the lock is
// obtained or ctx is done.
type Guard interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}
