package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/journeyforge/api/internal/domain"
	pfirestore "github.com/journeyforge/api/internal/platform/firestore"
	"github.com/journeyforge/api/internal/repositories"
)

const (
	orderCollection       = "orders"
	orderNumberCollection = "orderNumbers"

	defaultOverdueLimit = 100
)

// orderNumberDocument reserves an order number. The document ID is the number
// itself, so a transactional create doubles as the uniqueness constraint.
type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// OrderRepository persists orders within Firestore. Order items live inside
// the order document and share its lifecycle.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

// Insert creates the order document together with its order-number
// reservation. When a reservation for the same number already exists the
// whole write fails with a conflict, leaving no partial state behind.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}
	number := strings.TrimSpace(order.OrderNumber)
	if number == "" {
		return errors.New("order repository: order number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("order.insert", err)
	}

	orderRef := client.Collection(orderCollection).Doc(orderID)
	numberRef := client.Collection(orderNumberCollection).Doc(number)
	reservation := orderNumberDocument{
		OrderID:   orderID,
		UserID:    order.UserID,
		CreatedAt: order.CreatedAt,
	}

	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		if err := tx.Create(numberRef, reservation); err != nil {
			return pfirestore.WrapError("order.insert.number", err)
		}
		if err := tx.Create(orderRef, order); err != nil {
			return pfirestore.WrapError("order.insert", err)
		}
		return nil
	}

	err = pfirestore.RunTransaction(ctx, client, func(_ context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(numberRef, reservation); err != nil {
			return pfirestore.WrapError("order.insert.number", err)
		}
		return pfirestore.WrapError("order.insert", tx.Create(orderRef, order))
	})
	return err
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("order.update", err)
	}

	ref := client.Collection(orderCollection).Doc(orderID)
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		return pfirestore.WrapError("order.update", tx.Set(ref, order))
	}
	_, err = ref.Set(ctx, order)
	return pfirestore.WrapError("order.update", err)
}

// FindByIDAndUser loads the order and verifies ownership. An order that
// belongs to another user, or that was soft deleted, is reported as
// not-found so callers cannot distinguish it from a missing document.
func (r *OrderRepository) FindByIDAndUser(ctx context.Context, orderID, userID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, pfirestore.NewNotFound("order.find", errors.New("order id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("order.find", err)
	}

	ref := client.Collection(orderCollection).Doc(orderID)
	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("order.find", err)
	}

	order, err := decodeOrder(snap)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("order.find", err)
	}
	if order.IsDeleted() || order.UserID != strings.TrimSpace(userID) {
		return domain.Order{}, pfirestore.NewNotFound("order.find", errors.New("order not found"))
	}
	return order, nil
}

// FindUnpaidByUserAndJourney returns the newest unpaid order the user holds
// that contains the journey. Not-found means no reusable order exists.
func (r *OrderRepository) FindUnpaidByUserAndJourney(ctx context.Context, userID, journeyID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("order.findUnpaid", err)
	}

	query := client.Collection(orderCollection).
		Where("userId", "==", strings.TrimSpace(userID)).
		Where("status", "==", string(domain.OrderStatusUnpaid)).
		Where("journeyIds", "array-contains", strings.TrimSpace(journeyID)).
		OrderBy("createdAt", firestore.Desc).
		Limit(5)

	orders, err := r.runQuery(ctx, query, "order.findUnpaid")
	if err != nil {
		return domain.Order{}, err
	}
	for _, order := range orders {
		if !order.IsDeleted() {
			return order, nil
		}
	}
	return domain.Order{}, pfirestore.NewNotFound("order.findUnpaid", errors.New("no unpaid order for journey"))
}

// ListByUser returns one page of the user's orders, newest first. It reads
// one row beyond the page to learn whether more pages follow.
func (r *OrderRepository) ListByUser(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 1
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Order]{}, pfirestore.WrapError("order.list", err)
	}

	query := client.Collection(orderCollection).
		Where("userId", "==", strings.TrimSpace(filter.UserID)).
		OrderBy("createdAt", firestore.Desc).
		Offset((page - 1) * limit).
		Limit(limit + 1)

	orders, err := r.runQuery(ctx, query, "order.list")
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}
	return domain.Page[domain.Order]{
		Items:   orders,
		Page:    page,
		Limit:   limit,
		HasMore: hasMore,
	}, nil
}

// ListOverdue returns unpaid orders whose payment deadline precedes now,
// oldest deadline first, capped at limit per sweep.
func (r *OrderRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	if limit <= 0 {
		limit = defaultOverdueLimit
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("order.listOverdue", err)
	}

	query := client.Collection(orderCollection).
		Where("status", "==", string(domain.OrderStatusUnpaid)).
		Where("expiresAt", "<", now.UTC()).
		OrderBy("expiresAt", firestore.Asc).
		Limit(limit)

	orders, err := r.runQuery(ctx, query, "order.listOverdue")
	if err != nil {
		return nil, err
	}
	overdue := orders[:0]
	for _, order := range orders {
		if !order.IsDeleted() {
			overdue = append(overdue, order)
		}
	}
	return overdue, nil
}

func (r *OrderRepository) runQuery(ctx context.Context, query firestore.Query, op string) ([]domain.Order, error) {
	var iter *firestore.DocumentIterator
	if tx, ok := pfirestore.TransactionFrom(ctx); ok {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		order, err := decodeOrder(snap)
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func decodeOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var order domain.Order
	if err := snap.DataTo(&order); err != nil {
		return domain.Order{}, err
	}
	order.ID = snap.Ref.ID
	return order, nil
}
