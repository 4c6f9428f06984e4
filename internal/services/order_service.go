package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/journeyforge/api/internal/domain"
	"github.com/journeyforge/api/internal/platform/lock"
	"github.com/journeyforge/api/internal/repositories"
)

const (
	orderEventCreated = "order.created"
	orderEventPaid    = "order.paid"
	orderEventExpired = "order.expired"

	orderIDPrefix = "ord_"
	grantIDPrefix = "grt_"

	orderNumberAttempts = 3

	defaultExpiryWindow   = 72 * time.Hour
	defaultSweepBatchSize = 100
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located for the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderAlreadyPaid indicates payment already completed for the order.
	ErrOrderAlreadyPaid = errors.New("order: already paid")
	// ErrOrderExpired indicates the order can no longer be paid.
	ErrOrderExpired = errors.New("order: expired")
	// ErrOrderUnavailable indicates order dependencies are currently unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
	// ErrJourneyNotFound indicates the journey is missing or withdrawn from sale.
	ErrJourneyNotFound = errors.New("order: journey not found")
	// ErrJourneyAlreadyPurchased indicates the user already holds access to the journey.
	ErrJourneyAlreadyPurchased = errors.New("order: journey already purchased")

	errOrderNumberTaken = errors.New("order: order number already taken")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Grants      repositories.UserJourneyRepository
	Journeys    repositories.JourneyRepository
	UnitOfWork  repositories.UnitOfWork
	Guard       lock.Guard
	Numbers     *OrderNumberGenerator
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Meter       metric.Meter
	// ExpiryWindow is how long an unpaid order stays payable.
	ExpiryWindow   time.Duration
	SweepBatchSize int
}

type orderService struct {
	orders     repositories.OrderRepository
	grants     repositories.UserJourneyRepository
	journeys   repositories.JourneyRepository
	unitOfWork repositories.UnitOfWork
	guard      lock.Guard
	numbers    *OrderNumberGenerator
	events     OrderEventPublisher
	clock      func() time.Time
	newID      func() string
	logger     func(ctx context.Context, event string, fields map[string]any)

	expiryWindow time.Duration
	sweepBatch   int

	createdCounter metric.Int64Counter
	paidCounter    metric.Int64Counter
	expiredCounter metric.Int64Counter
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Grants == nil {
		return nil, errors.New("order service: user journey repository is required")
	}
	if deps.Journeys == nil {
		return nil, errors.New("order service: journey repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("order service: unit of work is required")
	}
	if deps.Guard == nil {
		return nil, errors.New("order service: concurrency guard is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	numbers := deps.Numbers
	if numbers == nil {
		numbers = NewOrderNumberGenerator(nil)
	}
	window := deps.ExpiryWindow
	if window <= 0 {
		window = defaultExpiryWindow
	}
	batch := deps.SweepBatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}

	s := &orderService{
		orders:     deps.Orders,
		grants:     deps.Grants,
		journeys:   deps.Journeys,
		unitOfWork: deps.UnitOfWork,
		guard:      deps.Guard,
		numbers:    numbers,
		events:     deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:        newID,
		logger:       logger,
		expiryWindow: window,
		sweepBatch:   batch,
	}

	if deps.Meter != nil {
		var err error
		s.createdCounter, err = deps.Meter.Int64Counter("orders.created.count",
			metric.WithDescription("Count of orders minted"))
		if err != nil {
			return nil, fmt.Errorf("order service: created counter: %w", err)
		}
		s.paidCounter, err = deps.Meter.Int64Counter("orders.paid.count",
			metric.WithDescription("Count of orders paid"))
		if err != nil {
			return nil, fmt.Errorf("order service: paid counter: %w", err)
		}
		s.expiredCounter, err = deps.Meter.Int64Counter("orders.expired.count",
			metric.WithDescription("Count of orders expired"))
		if err != nil {
			return nil, fmt.Errorf("order service: expired counter: %w", err)
		}
	}
	return s, nil
}

// CreateOrder returns the user's reusable unpaid order for the journey when
// one exists, and mints a new order otherwise. Calls for the same user are
// serialised on the concurrency guard, so two simultaneous requests cannot
// both mint.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderCreationResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	journeyID := strings.TrimSpace(cmd.JourneyID)
	if userID == "" || journeyID == "" {
		return OrderCreationResult{}, fmt.Errorf("%w: user id and journey id are required", ErrOrderInvalidInput)
	}
	quantity := cmd.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return OrderCreationResult{}, fmt.Errorf("%w: quantity must be positive", ErrOrderInvalidInput)
	}

	lease, err := s.guard.Acquire(ctx, "orders:create:"+userID)
	if err != nil {
		return OrderCreationResult{}, fmt.Errorf("%w: acquire purchaser lock: %v", ErrOrderUnavailable, err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger(ctx, "order.create.lock_release_failed", map[string]any{"user_id": userID, "error": err.Error()})
		}
	}()

	var result OrderCreationResult
	for attempt := 1; ; attempt++ {
		result, err = s.createOrderOnce(ctx, userID, journeyID, quantity)
		if !errors.Is(err, errOrderNumberTaken) {
			break
		}
		s.logger(ctx, "order.create.number_conflict", map[string]any{"user_id": userID, "attempt": attempt})
		if attempt >= orderNumberAttempts {
			return OrderCreationResult{}, fmt.Errorf("%w: order number generation exhausted after %d attempts", ErrOrderUnavailable, attempt)
		}
	}
	if err != nil {
		return OrderCreationResult{}, err
	}

	if result.Outcome == OutcomeCreated {
		s.addCount(ctx, s.createdCounter)
		s.publish(ctx, orderEventCreated, result.Order)
	}
	return result, nil
}

func (s *orderService) createOrderOnce(ctx context.Context, userID, journeyID string, quantity int) (OrderCreationResult, error) {
	now := s.clock()
	number, err := s.numbers.Generate(now, userID)
	if err != nil {
		return OrderCreationResult{}, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}

	var result OrderCreationResult
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		owned, err := s.grants.Exists(txCtx, userID, journeyID)
		if err != nil {
			return s.translateRepoError(err, nil, nil)
		}
		if owned {
			return ErrJourneyAlreadyPurchased
		}

		existing, err := s.orders.FindUnpaidByUserAndJourney(txCtx, userID, journeyID)
		switch {
		case err == nil:
			if !existing.DeadlinePassed(now) {
				result = OrderCreationResult{Outcome: OutcomeExisting, Order: existing}
				return nil
			}
			// Overdue but not yet swept: mint a fresh order and leave the
			// stale row for the sweeper. Both stay unpaid until the next
			// sweep flips the old one.
		case isRepoNotFound(err):
		default:
			return s.translateRepoError(err, nil, nil)
		}

		journey, err := s.journeys.FindActive(txCtx, journeyID)
		if err != nil {
			return s.translateRepoError(err, ErrJourneyNotFound, nil)
		}

		order := s.buildOrder(userID, journey, quantity, number, now)
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.translateRepoError(err, nil, errOrderNumberTaken)
		}
		result = OrderCreationResult{Outcome: OutcomeCreated, Order: order}
		return nil
	})
	if err != nil {
		// The number reservation is the only write in this transaction that
		// can hit a uniqueness violation at commit.
		return OrderCreationResult{}, s.translateTxError(err, errOrderNumberTaken)
	}
	return result, nil
}

// buildOrder snapshots the journey's current price into the order. The
// snapshot never changes afterwards, even when the catalog price does.
func (s *orderService) buildOrder(userID string, journey domain.Journey, quantity int, number string, now time.Time) domain.Order {
	originalPrice := journey.Price * int64(quantity)
	var discount int64
	expiresAt := now.Add(s.expiryWindow)

	item := domain.OrderItem{
		JourneyID:     journey.ID,
		Quantity:      quantity,
		OriginalPrice: originalPrice,
		Discount:      discount,
		Price:         originalPrice - discount,
	}
	return domain.Order{
		ID:            orderIDPrefix + s.newID(),
		OrderNumber:   number,
		UserID:        userID,
		Status:        domain.OrderStatusUnpaid,
		OriginalPrice: item.OriginalPrice,
		Discount:      item.Discount,
		Price:         item.Price,
		Items:         []domain.OrderItem{item},
		JourneyIDs:    []string{journey.ID},
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     &expiresAt,
	}
}

// GetOrder returns the order as stored; it never mutates state.
func (s *orderService) GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if userID == "" || orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: user id and order id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByIDAndUser(ctx, orderID, userID)
	if err != nil {
		return domain.Order{}, s.translateRepoError(err, ErrOrderNotFound, nil)
	}
	return order, nil
}

// ListUserOrders returns one page of the user's orders, newest first.
func (s *orderService) ListUserOrders(ctx context.Context, cmd ListUserOrdersCommand) (domain.Page[domain.Order], error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Page[domain.Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.ListByUser(ctx, repositories.OrderListFilter{
		UserID: userID,
		Page:   cmd.Page,
		Limit:  cmd.Limit,
	})
	if err != nil {
		return domain.Page[domain.Order]{}, s.translateRepoError(err, nil, nil)
	}
	return page, nil
}

// PayOrder marks the order paid and issues one access grant per item, all in
// one transaction. An order discovered past its deadline is flipped to
// expired instead; the flip is committed before the error is returned.
func (s *orderService) PayOrder(ctx context.Context, cmd PayOrderCommand) (PaymentReceipt, error) {
	userID := strings.TrimSpace(cmd.UserID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if userID == "" || orderID == "" {
		return PaymentReceipt{}, fmt.Errorf("%w: user id and order id are required", ErrOrderInvalidInput)
	}

	var (
		receipt    PaymentReceipt
		expiredNow bool
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByIDAndUser(txCtx, orderID, userID)
		if err != nil {
			return s.translateRepoError(err, ErrOrderNotFound, nil)
		}
		if order.IsPaid() {
			return ErrOrderAlreadyPaid
		}
		if order.IsExpired() {
			return ErrOrderExpired
		}

		now := s.clock()
		if order.DeadlinePassed(now) {
			order.Status = domain.OrderStatusExpired
			order.UpdatedAt = now
			if err := s.orders.Update(txCtx, order); err != nil {
				return s.translateRepoError(err, nil, nil)
			}
			receipt.Order = order
			expiredNow = true
			return nil
		}

		// Grants are written before the status flip so a grant conflict can
		// never leave an order marked paid without its grants.
		grants := make([]domain.UserJourney, 0, len(order.Items))
		for _, item := range order.Items {
			grant := domain.UserJourney{
				ID:          grantIDPrefix + s.newID(),
				UserID:      order.UserID,
				JourneyID:   item.JourneyID,
				OrderID:     order.ID,
				PurchasedAt: now,
			}
			if err := s.grants.Create(txCtx, grant); err != nil {
				return s.translateRepoError(err, nil, ErrJourneyAlreadyPurchased)
			}
			grants = append(grants, grant)
		}

		order.Status = domain.OrderStatusPaid
		order.PaidAt = &now
		order.ExpiresAt = nil
		order.UpdatedAt = now
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.translateRepoError(err, nil, nil)
		}

		receipt = PaymentReceipt{Order: order, Grants: grants}
		return nil
	})
	if err != nil {
		return PaymentReceipt{}, s.translateTxError(err, ErrJourneyAlreadyPurchased)
	}

	if expiredNow {
		s.addCount(ctx, s.expiredCounter)
		s.publish(ctx, orderEventExpired, receipt.Order)
		return PaymentReceipt{}, fmt.Errorf("%w: payment window closed", ErrOrderExpired)
	}

	s.addCount(ctx, s.paidCounter)
	s.publish(ctx, orderEventPaid, receipt.Order)
	return receipt, nil
}

// ExpireOverdueOrders flips unpaid orders past their deadline to expired.
// Each flip re-checks status in its own transaction, so the sweep is safe to
// run concurrently with payments and with other sweeps.
func (s *orderService) ExpireOverdueOrders(ctx context.Context) (int, error) {
	now := s.clock()
	overdue, err := s.orders.ListOverdue(ctx, now, s.sweepBatch)
	if err != nil {
		return 0, s.translateRepoError(err, nil, nil)
	}

	expired := 0
	for _, candidate := range overdue {
		flipped := false
		err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
			order, err := s.orders.FindByIDAndUser(txCtx, candidate.ID, candidate.UserID)
			if err != nil {
				if isRepoNotFound(err) {
					return nil
				}
				return s.translateRepoError(err, nil, nil)
			}
			if !order.DeadlinePassed(now) {
				return nil
			}
			order.Status = domain.OrderStatusExpired
			order.UpdatedAt = now
			if err := s.orders.Update(txCtx, order); err != nil {
				return s.translateRepoError(err, nil, nil)
			}
			candidate = order
			flipped = true
			return nil
		})
		if err != nil {
			s.logger(ctx, "order.expire.failed", map[string]any{"order_id": candidate.ID, "error": err.Error()})
			continue
		}
		if flipped {
			expired++
			s.addCount(ctx, s.expiredCounter)
			s.publish(ctx, orderEventExpired, candidate)
		}
	}
	return expired, nil
}

func (s *orderService) publish(ctx context.Context, eventType string, order domain.Order) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		OccurredAt:  s.clock(),
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"event_type": eventType,
			"order_id":   order.ID,
			"error":      err.Error(),
		})
	}
}

func (s *orderService) addCount(ctx context.Context, counter metric.Int64Counter) {
	if counter != nil {
		counter.Add(ctx, 1)
	}
}

// translateRepoError maps repository error categories onto service
// sentinels. notFound and conflict choose which sentinel those categories
// map to at each call site; nil falls back to ErrOrderUnavailable.
func (s *orderService) translateRepoError(err error, notFound, conflict error) error {
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) {
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	switch {
	case repoErr.IsNotFound() && notFound != nil:
		return fmt.Errorf("%w: %v", notFound, err)
	case repoErr.IsConflict() && conflict != nil:
		return fmt.Errorf("%w: %v", conflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
}

// translateTxError maps failures that surface only when a transaction
// commits. Queued writes are applied at commit, so a uniqueness violation
// inside the transaction is reported by RunInTx rather than by the
// repository call that queued the write. Errors the transaction body already
// mapped carry no repository category and pass through unchanged.
func (s *orderService) translateTxError(err error, conflict error) error {
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) {
		return err
	}
	if !repoErr.IsNotFound() && !repoErr.IsConflict() && !repoErr.IsUnavailable() {
		return err
	}
	return s.translateRepoError(err, nil, conflict)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
