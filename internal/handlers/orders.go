package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/journeyforge/api/internal/domain"
	"github.com/journeyforge/api/internal/platform/auth"
	"github.com/journeyforge/api/internal/platform/httpx"
	"github.com/journeyforge/api/internal/platform/pagination"
	"github.com/journeyforge/api/internal/platform/requestctx"
	"github.com/journeyforge/api/internal/services"
)

const maxOrderBodySize = 4 * 1024

type createOrderRequest struct {
	JourneyID string `json:"journeyId"`
	Quantity  int    `json:"quantity"`
}

type orderItemPayload struct {
	JourneyID     string `json:"journeyId"`
	JourneyTitle  string `json:"journeyTitle,omitempty"`
	Quantity      int    `json:"quantity"`
	OriginalPrice int64  `json:"originalPrice"`
	Discount      int64  `json:"discount"`
	Price         int64  `json:"price"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	OrderNumber   string             `json:"orderNumber"`
	Status        string             `json:"status"`
	Purchaser     string             `json:"purchaser,omitempty"`
	OriginalPrice int64              `json:"originalPrice"`
	Discount      int64              `json:"discount"`
	Price         int64              `json:"price"`
	Items         []orderItemPayload `json:"items"`
	CreatedAt     string             `json:"createdAt"`
	ExpiresAt     *string            `json:"expiresAt,omitempty"`
	PaidAt        *int64             `json:"paidAt,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	Price       int64  `json:"price"`
	CreatedAt   string `json:"createdAt"`
}

type orderListResponse struct {
	Items   []orderSummaryPayload `json:"items"`
	Page    int                   `json:"page"`
	Limit   int                   `json:"limit"`
	HasMore bool                  `json:"hasMore"`
}

type payOrderResponse struct {
	Message     string `json:"message"`
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	PaidAt      int64  `json:"paidAt"`
}

// OrderHandlers exposes the order lifecycle endpoints for authenticated users.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	users    services.UserDirectory
	journeys services.JourneyCatalog
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, users services.UserDirectory, journeys services.JourneyCatalog) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		orders:   orders,
		users:    users,
		journeys: journeys,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/action/pay", h.payOrder)
}

// UserRoutes registers the /users endpoints owned by the order surface.
func (h *OrderHandlers) UserRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/{userID}/orders", h.listUserOrders)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	body := http.MaxBytesReader(w, r.Body, maxOrderBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.JourneyID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "journeyId is required", http.StatusBadRequest))
		return
	}

	result, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		UserID:    identity.UID,
		JourneyID: req.JourneyID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == services.OutcomeCreated {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, status, h.orderPayload(r, result.Order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.GetOrder(ctx, identity.UID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.orderPayload(r, order))
}

func (h *OrderHandlers) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	receipt, err := h.orders.PayOrder(ctx, services.PayOrderCommand{
		UserID:  identity.UID,
		OrderID: orderID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	var paidAt int64
	if receipt.Order.PaidAt != nil {
		paidAt = receipt.Order.PaidAt.UnixMilli()
	}
	httpx.WriteJSON(w, http.StatusOK, payOrderResponse{
		Message:     "payment completed",
		OrderID:     receipt.Order.ID,
		OrderNumber: receipt.Order.OrderNumber,
		Status:      wireStatus(receipt.Order.Status),
		PaidAt:      paidAt,
	})
}

func (h *OrderHandlers) listUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID != strings.TrimSpace(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "orders are only visible to their owner", http.StatusForbidden))
		return
	}

	params, err := pagination.Parse(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListUserOrders(ctx, services.ListUserOrdersCommand{
		UserID: userID,
		Page:   params.Page,
		Limit:  params.Limit,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, orderSummaryPayload{
			ID:          order.ID,
			OrderNumber: order.OrderNumber,
			Status:      wireStatus(order.Status),
			Price:       order.Price,
			CreatedAt:   order.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{
		Items:   items,
		Page:    page.Page,
		Limit:   page.Limit,
		HasMore: page.HasMore,
	})
}

// orderPayload renders the order with purchaser and journey names resolved at
// read time. Lookup failures degrade to the bare order rather than failing
// the request.
func (h *OrderHandlers) orderPayload(r *http.Request, order domain.Order) orderPayload {
	ctx := r.Context()

	payload := orderPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        wireStatus(order.Status),
		OriginalPrice: order.OriginalPrice,
		Discount:      order.Discount,
		Price:         order.Price,
		CreatedAt:     order.CreatedAt.UTC().Format(time.RFC3339),
	}
	if order.ExpiresAt != nil {
		expires := order.ExpiresAt.UTC().Format(time.RFC3339)
		payload.ExpiresAt = &expires
	}
	if order.PaidAt != nil {
		paidAt := order.PaidAt.UnixMilli()
		payload.PaidAt = &paidAt
	}

	if h.users != nil {
		if user, err := h.users.GetUser(ctx, order.UserID); err == nil {
			payload.Purchaser = user.Username
		} else {
			requestctx.Logger(ctx).Debug("purchaser lookup failed", zap.String("user_id", order.UserID), zap.Error(err))
		}
	}

	payload.Items = make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		itemPayload := orderItemPayload{
			JourneyID:     item.JourneyID,
			Quantity:      item.Quantity,
			OriginalPrice: item.OriginalPrice,
			Discount:      item.Discount,
			Price:         item.Price,
		}
		if h.journeys != nil {
			if journey, err := h.journeys.GetJourney(ctx, item.JourneyID); err == nil {
				itemPayload.JourneyTitle = journey.Title
			}
		}
		payload.Items = append(payload.Items, itemPayload)
	}
	return payload
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func wireStatus(status domain.OrderStatus) string {
	return strings.ToUpper(string(status))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid order request", http.StatusBadRequest))
	case errors.Is(err, services.ErrJourneyNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("journey_not_found", "journey does not exist or was withdrawn", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrJourneyAlreadyPurchased):
		httpx.WriteError(ctx, w, httpx.NewError("journey_already_purchased", "journey was already purchased", http.StatusConflict))
	case errors.Is(err, services.ErrOrderAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_paid", "order was already paid", http.StatusConflict))
	case errors.Is(err, services.ErrOrderExpired):
		httpx.WriteError(ctx, w, httpx.NewError("order_expired", "order payment window has closed", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		requestctx.Logger(ctx).Error("order request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
