package lock

import (
	"context"
	"sync"
)

// MemoryGuard implements Guard with in-process locks, one per key. Suitable
// for single-node deployments and tests.
type MemoryGuard struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMemoryGuard constructs an empty MemoryGuard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{locks: make(map[string]chan struct{})}
}

// Acquire obtains the per-key lock, waiting until the holder releases it or
// ctx is done.
func (g *MemoryGuard) Acquire(ctx context.Context, key string) (Lease, error) {
	for {
		g.mu.Lock()
		held, ok := g.locks[key]
		if !ok {
			ch := make(chan struct{})
			g.locks[key] = ch
			g.mu.Unlock()
			return &memoryLease{guard: g, key: key, ch: ch}, nil
		}
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ErrNotAcquired
		case <-held:
			// Holder released; race the other waiters for the lock.
		}
	}
}

type memoryLease struct {
	guard *MemoryGuard
	key   string
	ch    chan struct{}
	once  sync.Once
}

func (l *memoryLease) Release(context.Context) error {
	l.once.Do(func() {
		l.guard.mu.Lock()
		if current, ok := l.guard.locks[l.key]; ok && current == l.ch {
			delete(l.guard.locks, l.key)
		}
		l.guard.mu.Unlock()
		close(l.ch)
	})
	return nil
}
