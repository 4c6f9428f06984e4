package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/journeyforge/api/internal/domain"
	"github.com/journeyforge/api/internal/platform/auth"
	"github.com/journeyforge/api/internal/services"
)

type stubOrderService struct {
	createFn func(context.Context, services.CreateOrderCommand) (services.OrderCreationResult, error)
	getFn    func(context.Context, string, string) (domain.Order, error)
	listFn   func(context.Context, services.ListUserOrdersCommand) (domain.Page[domain.Order], error)
	payFn    func(context.Context, services.PayOrderCommand) (services.PaymentReceipt, error)
	expireFn func(context.Context) (int, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderCreationResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.OrderCreationResult{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, userID, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, cmd services.ListUserOrdersCommand) (domain.Page[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return domain.Page[domain.Order]{}, errors.New("not implemented")
}

func (s *stubOrderService) PayOrder(ctx context.Context, cmd services.PayOrderCommand) (services.PaymentReceipt, error) {
	if s.payFn != nil {
		return s.payFn(ctx, cmd)
	}
	return services.PaymentReceipt{}, errors.New("not implemented")
}

func (s *stubOrderService) ExpireOverdueOrders(ctx context.Context) (int, error) {
	if s.expireFn != nil {
		return s.expireFn(ctx)
	}
	return 0, errors.New("not implemented")
}

type stubUserDirectory struct {
	getFn func(context.Context, string) (domain.User, error)
}

func (s *stubUserDirectory) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return domain.User{}, errors.New("not implemented")
}

type stubJourneyCatalog struct {
	getFn func(context.Context, string) (domain.Journey, error)
}

func (s *stubJourneyCatalog) GetJourney(ctx context.Context, journeyID string) (domain.Journey, error) {
	if s.getFn != nil {
		return s.getFn(ctx, journeyID)
	}
	return domain.Journey{}, errors.New("not implemented")
}

func newOrderTestRouter(service services.OrderService) chi.Router {
	handler := NewOrderHandlers(nil, service,
		&stubUserDirectory{getFn: func(_ context.Context, userID string) (domain.User, error) {
			return domain.User{ID: userID, Username: "miyuki"}, nil
		}},
		&stubJourneyCatalog{getFn: func(_ context.Context, journeyID string) (domain.Journey, error) {
			return domain.Journey{ID: journeyID, Title: "Backend in Go"}, nil
		}},
	)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	router.Route("/users", handler.UserRoutes)
	return router
}

func authedRequest(method, target string, body []byte, uid string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
}

func sampleOrder() domain.Order {
	created := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	expires := created.Add(72 * time.Hour)
	return domain.Order{
		ID:            "ord_01HTEST",
		OrderNumber:   "2026031415usr_1A1B2C",
		UserID:        "usr_1",
		Status:        domain.OrderStatusUnpaid,
		OriginalPrice: 129_00,
		Price:         129_00,
		Items: []domain.OrderItem{{
			JourneyID:     "jny_go",
			Quantity:      1,
			OriginalPrice: 129_00,
			Price:         129_00,
		}},
		JourneyIDs: []string{"jny_go"},
		CreatedAt:  created,
		UpdatedAt:  created,
		ExpiresAt:  &expires,
	}
}

func TestCreateOrderReturns201ForMintedOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	service := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.OrderCreationResult, error) {
			captured = cmd
			return services.OrderCreationResult{Outcome: services.OutcomeCreated, Order: sampleOrder()}, nil
		},
	}
	router := newOrderTestRouter(service)

	body := []byte(`{"journeyId":"jny_go"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/orders/", body, "usr_1"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "usr_1" || captured.JourneyID != "jny_go" {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Status != "UNPAID" {
		t.Fatalf("expected wire status UNPAID, got %q", resp.Status)
	}
	if resp.Purchaser != "miyuki" {
		t.Fatalf("expected purchaser username, got %q", resp.Purchaser)
	}
	if len(resp.Items) != 1 || resp.Items[0].JourneyTitle != "Backend in Go" {
		t.Fatalf("expected enriched items, got %+v", resp.Items)
	}
	if resp.ExpiresAt == nil {
		t.Fatal("expected expiresAt on unpaid order")
	}
}

func TestCreateOrderReturns200ForExistingOrder(t *testing.T) {
	service := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.OrderCreationResult, error) {
			return services.OrderCreationResult{Outcome: services.OutcomeExisting, Order: sampleOrder()}, nil
		},
	}
	router := newOrderTestRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/orders/", []byte(`{"journeyId":"jny_go"}`), "usr_1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for reused order, got %d", rr.Code)
	}
}

func TestCreateOrderRequiresJourneyID(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/orders/", []byte(`{}`), "usr_1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateOrderRequiresIdentity(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewReader([]byte(`{"journeyId":"jny_go"}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOrderErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{services.ErrOrderInvalidInput, http.StatusBadRequest},
		{services.ErrJourneyNotFound, http.StatusNotFound},
		{services.ErrJourneyAlreadyPurchased, http.StatusConflict},
		{services.ErrOrderUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		service := &stubOrderService{
			createFn: func(context.Context, services.CreateOrderCommand) (services.OrderCreationResult, error) {
				return services.OrderCreationResult{}, fmt.Errorf("create: %w", tc.err)
			},
		}
		router := newOrderTestRouter(service)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(http.MethodPost, "/orders/", []byte(`{"journeyId":"jny_go"}`), "usr_1"))

		if rr.Code != tc.status {
			t.Fatalf("expected %d for %v, got %d", tc.status, tc.err, rr.Code)
		}
	}
}

func TestGetOrderReturnsOwnedOrder(t *testing.T) {
	service := &stubOrderService{
		getFn: func(_ context.Context, userID, orderID string) (domain.Order, error) {
			if userID != "usr_1" || orderID != "ord_01HTEST" {
				t.Fatalf("unexpected lookup %s/%s", userID, orderID)
			}
			return sampleOrder(), nil
		},
	}
	router := newOrderTestRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/orders/ord_01HTEST", nil, "usr_1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	service := &stubOrderService{
		getFn: func(context.Context, string, string) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("lookup: %w", services.ErrOrderNotFound)
		},
	}
	router := newOrderTestRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/orders/ord_unknown", nil, "usr_1"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPayOrderReturnsReceipt(t *testing.T) {
	paidAt := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)
	service := &stubOrderService{
		payFn: func(_ context.Context, cmd services.PayOrderCommand) (services.PaymentReceipt, error) {
			if cmd.UserID != "usr_1" || cmd.OrderID != "ord_01HTEST" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusPaid
			order.PaidAt = &paidAt
			order.ExpiresAt = nil
			return services.PaymentReceipt{Order: order}, nil
		},
	}
	router := newOrderTestRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodPost, "/orders/ord_01HTEST/action/pay", nil, "usr_1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp payOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Status != "PAID" {
		t.Fatalf("expected PAID, got %q", resp.Status)
	}
	if resp.PaidAt != paidAt.UnixMilli() {
		t.Fatalf("expected paidAt %d, got %d", paidAt.UnixMilli(), resp.PaidAt)
	}
	if resp.Message == "" {
		t.Fatal("expected completion message")
	}
}

func TestPayOrderConflictStatuses(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{services.ErrOrderAlreadyPaid, http.StatusConflict},
		{services.ErrOrderExpired, http.StatusConflict},
		{services.ErrOrderNotFound, http.StatusNotFound},
	} {
		service := &stubOrderService{
			payFn: func(context.Context, services.PayOrderCommand) (services.PaymentReceipt, error) {
				return services.PaymentReceipt{}, fmt.Errorf("pay: %w", tc.err)
			},
		}
		router := newOrderTestRouter(service)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authedRequest(http.MethodPost, "/orders/ord_01HTEST/action/pay", nil, "usr_1"))

		if rr.Code != tc.code {
			t.Fatalf("expected %d for %v, got %d", tc.code, tc.err, rr.Code)
		}
	}
}

func TestListUserOrdersIsOwnerOnly(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/users/usr_2/orders", nil, "usr_1"))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestListUserOrdersReturnsSummaries(t *testing.T) {
	var captured services.ListUserOrdersCommand
	service := &stubOrderService{
		listFn: func(_ context.Context, cmd services.ListUserOrdersCommand) (domain.Page[domain.Order], error) {
			captured = cmd
			return domain.Page[domain.Order]{
				Items:   []domain.Order{sampleOrder()},
				Page:    2,
				Limit:   5,
				HasMore: true,
			}, nil
		},
	}
	router := newOrderTestRouter(service)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/users/usr_1/orders?page=2&limit=5", nil, "usr_1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.Page != 2 || captured.Limit != 5 {
		t.Fatalf("unexpected command %+v", captured)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Items) != 1 || !resp.HasMore {
		t.Fatalf("unexpected response %+v", resp)
	}
	summary := resp.Items[0]
	if summary.ID != "ord_01HTEST" || summary.Status != "UNPAID" || summary.Price != 129_00 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestListUserOrdersRejectsMalformedPaging(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/users/usr_1/orders?page=zero", nil, "usr_1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
