package repositories

import (
	"context"
	"time"

	domain "github.com/journeyforge/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with the categories
// services branch on.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations into one transactional boundary.
// Repository methods called inside fn observe and join the transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter selects a page of a user's orders, newest first.
type OrderListFilter struct {
	UserID string
	Page   int
	Limit  int
}

// OrderRepository persists order headers with their embedded items. Items are
// owned by the order document: they are written, read, and deleted with it.
type OrderRepository interface {
	// Insert persists a new order and reserves its order number. A duplicate
	// order number surfaces as a conflict error.
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	// FindByIDAndUser returns the order only when owned by userID; absence and
	// ownership mismatch are both not-found.
	FindByIDAndUser(ctx context.Context, orderID, userID string) (domain.Order, error)
	// FindUnpaidByUserAndJourney returns the most recent unpaid order the user
	// holds for the journey.
	FindUnpaidByUserAndJourney(ctx context.Context, userID, journeyID string) (domain.Order, error)
	ListByUser(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	// ListOverdue returns unpaid orders whose expiry deadline precedes now.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Order, error)
}

// UserJourneyRepository persists access grants. Create enforces at most one
// active grant per (user, journey) pair and reports a duplicate as a conflict.
type UserJourneyRepository interface {
	Create(ctx context.Context, grant domain.UserJourney) error
	Exists(ctx context.Context, userID, journeyID string) (bool, error)
}

// JourneyRepository reads the price catalog. The order core never writes it.
type JourneyRepository interface {
	// FindActive returns the journey only when it exists and is not deleted.
	FindActive(ctx context.Context, journeyID string) (domain.Journey, error)
}

// UserRepository reads identity projections used when rendering orders.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
}
