package memory

import (
	"context"
	"sort"
	"time"

	domain "github.com/journeyforge/api/internal/domain"
	"github.com/journeyforge/api/internal/repositories"
)

// OrderRepository implements repositories.OrderRepository on the store.
type OrderRepository struct {
	store *Store
}

// NewOrderRepository constructs an in-memory order repository.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// Insert stores the order after reserving its number.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	if _, exists := r.store.numbers[order.OrderNumber]; exists {
		return conflictError("order number %q already reserved", order.OrderNumber)
	}
	if _, exists := r.store.orders[order.ID]; exists {
		return conflictError("order %q already exists", order.ID)
	}
	r.store.numbers[order.OrderNumber] = order.ID
	r.store.orders[order.ID] = cloneOrder(order)
	return nil
}

// Update overwrites an existing order.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	if _, exists := r.store.orders[order.ID]; !exists {
		return notFoundError("order %q not found", order.ID)
	}
	r.store.orders[order.ID] = cloneOrder(order)
	return nil
}

// FindByIDAndUser returns the order only when owned by userID and not deleted.
func (r *OrderRepository) FindByIDAndUser(ctx context.Context, orderID, userID string) (domain.Order, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	order, exists := r.store.orders[orderID]
	if !exists || order.IsDeleted() || order.UserID != userID {
		return domain.Order{}, notFoundError("order %q not found", orderID)
	}
	return cloneOrder(order), nil
}

// FindUnpaidByUserAndJourney returns the newest unpaid order containing the journey.
func (r *OrderRepository) FindUnpaidByUserAndJourney(ctx context.Context, userID, journeyID string) (domain.Order, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var found *domain.Order
	for id := range r.store.orders {
		order := r.store.orders[id]
		if order.IsDeleted() || order.UserID != userID || order.Status != domain.OrderStatusUnpaid {
			continue
		}
		if !containsJourney(order, journeyID) {
			continue
		}
		if found == nil || order.CreatedAt.After(found.CreatedAt) {
			o := order
			found = &o
		}
	}
	if found == nil {
		return domain.Order{}, notFoundError("no unpaid order for journey %q", journeyID)
	}
	return cloneOrder(*found), nil
}

// ListByUser returns one page of the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 1
	}

	var all []domain.Order
	for id := range r.store.orders {
		order := r.store.orders[id]
		if order.IsDeleted() || order.UserID != filter.UserID {
			continue
		}
		all = append(all, cloneOrder(order))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	offset := (page - 1) * limit
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}
	return domain.Page[domain.Order]{Items: all, Page: page, Limit: limit, HasMore: hasMore}, nil
}

// ListOverdue returns unpaid orders past their deadline, oldest deadline first.
func (r *OrderRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var overdue []domain.Order
	for id := range r.store.orders {
		order := r.store.orders[id]
		if order.IsDeleted() || !order.DeadlinePassed(now) {
			continue
		}
		overdue = append(overdue, cloneOrder(order))
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].ExpiresAt.Before(*overdue[j].ExpiresAt) })
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}

func containsJourney(order domain.Order, journeyID string) bool {
	for _, id := range order.JourneyIDs {
		if id == journeyID {
			return true
		}
	}
	return false
}

func cloneOrder(order domain.Order) domain.Order {
	clone := order
	clone.Items = append([]domain.OrderItem(nil), order.Items...)
	clone.JourneyIDs = append([]string(nil), order.JourneyIDs...)
	clone.PaidAt = cloneTime(order.PaidAt)
	clone.ExpiresAt = cloneTime(order.ExpiresAt)
	clone.DeletedAt = cloneTime(order.DeletedAt)
	return clone
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
