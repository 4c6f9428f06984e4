package services

import (
	"context"
	"time"

	domain "github.com/journeyforge/api/internal/domain"
)

// CreateOrderCommand captures the input for creating an order. A zero
// Quantity is treated as one.
type CreateOrderCommand struct {
	UserID    string
	JourneyID string
	Quantity  int
}

// OrderOutcome distinguishes a fresh order from a reused one.
type OrderOutcome string

const (
	// OutcomeCreated marks an order minted by this call.
	OutcomeCreated OrderOutcome = "created"
	// OutcomeExisting marks a prior unpaid order returned instead of a new one.
	OutcomeExisting OrderOutcome = "existing"
)

// OrderCreationResult reports the order together with whether it was minted
// by this call or reused from a prior unpaid attempt.
type OrderCreationResult struct {
	Outcome OrderOutcome
	Order   domain.Order
}

// PayOrderCommand captures the input for paying an order.
type PayOrderCommand struct {
	UserID  string
	OrderID string
}

// PaymentReceipt reports the paid order and the access grants it produced.
type PaymentReceipt struct {
	Order  domain.Order
	Grants []domain.UserJourney
}

// ListUserOrdersCommand selects a page of a user's orders.
type ListUserOrdersCommand struct {
	UserID string
	Page   int
	Limit  int
}

// OrderService owns the order lifecycle: idempotent creation with price
// snapshotting, payment with access-grant issuance, and expiration of
// overdue orders.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderCreationResult, error)
	GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error)
	ListUserOrders(ctx context.Context, cmd ListUserOrdersCommand) (domain.Page[domain.Order], error)
	PayOrder(ctx context.Context, cmd PayOrderCommand) (PaymentReceipt, error)
	// ExpireOverdueOrders flips unpaid orders past their deadline to expired
	// and returns how many were flipped.
	ExpireOverdueOrders(ctx context.Context) (int, error)
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type        string
	OrderID     string
	OrderNumber string
	UserID      string
	Status      string
	OccurredAt  time.Time
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// UserDirectory resolves identity projections for rendering order views.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
}

// JourneyCatalog resolves catalog projections for rendering order views.
type JourneyCatalog interface {
	GetJourney(ctx context.Context, journeyID string) (domain.Journey, error)
}
