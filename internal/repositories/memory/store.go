package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/journeyforge/api/internal/domain"
)

// Store keeps every collection behind one mutex so transactional sections
// observe a consistent snapshot. It backs local development and tests; the
// Firestore repositories are the production path.
type Store struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	numbers  map[string]string
	grants   map[string]domain.UserJourney
	journeys map[string]domain.Journey
	users    map[string]domain.User
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		orders:   make(map[string]domain.Order),
		numbers:  make(map[string]string),
		grants:   make(map[string]domain.UserJourney),
		journeys: make(map[string]domain.Journey),
		users:    make(map[string]domain.User),
	}
}

// SeedJourney inserts or replaces a catalog entry.
func (s *Store) SeedJourney(journey domain.Journey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journeys[journey.ID] = journey
}

// SeedUser inserts or replaces an identity projection.
func (s *Store) SeedUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	held, _ := ctx.Value(txKey{}).(bool)
	return held
}

// lock acquires the store mutex unless the context already runs inside a
// transaction, which holds the mutex for its whole duration.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// UnitOfWork serialises transactional sections on the store mutex.
type UnitOfWork struct {
	store *Store
}

// NewUnitOfWork constructs a unit of work over the store.
func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

// RunInTx holds the store mutex across fn. Nested calls join the outer
// transaction. Changes are applied directly; fn returning an error does not
// roll them back, so transactional callers must write only after their checks
// pass, which mirrors how the Firestore transaction queues its writes last.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

type storeError struct {
	msg      string
	notFound bool
	conflict bool
}

func (e *storeError) Error() string       { return e.msg }
func (e *storeError) IsNotFound() bool    { return e.notFound }
func (e *storeError) IsConflict() bool    { return e.conflict }
func (e *storeError) IsUnavailable() bool { return false }

func notFoundError(format string, args ...any) error {
	return &storeError{msg: fmt.Sprintf(format, args...), notFound: true}
}

func conflictError(format string, args ...any) error {
	return &storeError{msg: fmt.Sprintf(format, args...), conflict: true}
}
