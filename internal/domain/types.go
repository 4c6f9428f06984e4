package domain

import "time"

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusUnpaid marks a freshly created order awaiting payment.
	OrderStatusUnpaid OrderStatus = "unpaid"
	// OrderStatusPaid marks an order whose payment completed. Terminal.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusExpired marks an unpaid order whose deadline passed. Terminal.
	OrderStatusExpired OrderStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusExpired
}

// Order is a single purchase transaction. Items are owned exclusively by the
// order and live inside its document; they are never shared or re-parented.
//
// Price = OriginalPrice - Discount, fixed at creation time. PaidAt is set iff
// Status is paid. ExpiresAt is set while the order is unpaid and cleared by
// payment.
type Order struct {
	ID            string      `firestore:"-"`
	OrderNumber   string      `firestore:"orderNumber"`
	UserID        string      `firestore:"userId"`
	Status        OrderStatus `firestore:"status"`
	OriginalPrice int64       `firestore:"originalPrice"`
	Discount      int64       `firestore:"discount"`
	Price         int64       `firestore:"price"`
	Items         []OrderItem `firestore:"items"`
	// JourneyIDs mirrors Items[].JourneyID so queries can match orders by
	// journey without unpacking the item maps.
	JourneyIDs []string   `firestore:"journeyIds"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	UpdatedAt  time.Time  `firestore:"updatedAt"`
	PaidAt     *time.Time `firestore:"paidAt"`
	ExpiresAt  *time.Time `firestore:"expiresAt"`
	DeletedAt  *time.Time `firestore:"deletedAt"`
}

// IsPaid reports whether payment already completed for this order.
func (o Order) IsPaid() bool { return o.Status == OrderStatusPaid }

// IsExpired reports whether the order was swept or discovered overdue.
func (o Order) IsExpired() bool { return o.Status == OrderStatusExpired }

// IsDeleted reports whether the order was soft deleted.
func (o Order) IsDeleted() bool { return o.DeletedAt != nil }

// DeadlinePassed reports whether an unpaid order is past its payment window.
func (o Order) DeadlinePassed(now time.Time) bool {
	return o.Status == OrderStatusUnpaid && o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

// OrderItem is one priced line within an order. The price fields are a
// snapshot of the catalog at order-creation time; later catalog changes must
// never flow back into an existing item.
type OrderItem struct {
	JourneyID     string `firestore:"journeyId"`
	Quantity      int    `firestore:"quantity"`
	OriginalPrice int64  `firestore:"originalPrice"`
	Discount      int64  `firestore:"discount"`
	Price         int64  `firestore:"price"`
}

// UserJourney records that a user may access a journey, granted by the order
// that paid for it. At most one active grant exists per (user, journey) pair;
// the grant's existence is the sole authority for "has purchased".
type UserJourney struct {
	// ID is stored inside the document; the document key is derived from the
	// (user, journey) pair to enforce grant uniqueness.
	ID          string     `firestore:"grantId"`
	UserID      string     `firestore:"userId"`
	JourneyID   string     `firestore:"journeyId"`
	OrderID     string     `firestore:"orderId"`
	PurchasedAt time.Time  `firestore:"purchasedAt"`
	DeletedAt   *time.Time `firestore:"deletedAt"`
}

// Journey is the read-side catalog projection the order core consumes: the
// current sale price and soft-delete state of a purchasable course.
type Journey struct {
	ID        string     `firestore:"-"`
	Title     string     `firestore:"title"`
	Price     int64      `firestore:"price"`
	DeletedAt *time.Time `firestore:"deletedAt"`
}

// IsDeleted reports whether the journey has been withdrawn from sale.
func (j Journey) IsDeleted() bool { return j.DeletedAt != nil }

// User is the read-side identity projection used when rendering orders.
type User struct {
	ID       string `firestore:"-"`
	Username string `firestore:"username"`
}

// Page is an offset-paginated result set, newest first.
type Page[T any] struct {
	Items   []T
	Page    int
	Limit   int
	HasMore bool
}
