package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/journeyforge/api/internal/domain"
	"github.com/journeyforge/api/internal/services"
)

type stubOrderService struct {
	expireFn func(ctx context.Context) (int, error)
	calls    atomic.Int64
}

func (s *stubOrderService) CreateOrder(context.Context, services.CreateOrderCommand) (services.OrderCreationResult, error) {
	return services.OrderCreationResult{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(context.Context, string, string) (domain.Order, error) {
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListUserOrders(context.Context, services.ListUserOrdersCommand) (domain.Page[domain.Order], error) {
	return domain.Page[domain.Order]{}, errors.New("not implemented")
}

func (s *stubOrderService) PayOrder(context.Context, services.PayOrderCommand) (services.PaymentReceipt, error) {
	return services.PaymentReceipt{}, errors.New("not implemented")
}

func (s *stubOrderService) ExpireOverdueOrders(ctx context.Context) (int, error) {
	s.calls.Add(1)
	if s.expireFn != nil {
		return s.expireFn(ctx)
	}
	return 0, nil
}

func TestSweeperRunsOnStartupAndOnTicks(t *testing.T) {
	svc := &stubOrderService{}
	ticks := make(chan struct{}, 16)
	svc.expireFn = func(context.Context) (int, error) {
		select {
		case ticks <- struct{}{}:
		default:
		}
		return 1, nil
	}

	sweeper, err := NewSweeper(SweeperDeps{Orders: svc, Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatalf("sweep %d never ran", i+1)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}

	if svc.calls.Load() < 3 {
		t.Fatalf("expected at least 3 sweeps, got %d", svc.calls.Load())
	}
}

func TestSweeperRequiresOrderService(t *testing.T) {
	if _, err := NewSweeper(SweeperDeps{}); err == nil {
		t.Fatal("expected error for missing order service")
	}
}
