package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/journeyforge/api/internal/services"
)

const defaultSweepInterval = time.Hour

// SweeperDeps bundles collaborators for the expiration sweeper.
type SweeperDeps struct {
	Orders   services.OrderService
	Interval time.Duration
	Logger   *zap.Logger
	Meter    metric.Meter
}

// Sweeper periodically expires overdue orders. It exists so orders still
// expire when nobody attempts to pay them; payment-time discovery handles
// the rest.
type Sweeper struct {
	orders   services.OrderService
	interval time.Duration
	logger   *zap.Logger

	runs    metric.Int64Counter
	latency metric.Float64Histogram
}

// NewSweeper constructs a sweeper validating required dependencies.
func NewSweeper(deps SweeperDeps) (*Sweeper, error) {
	if deps.Orders == nil {
		return nil, errors.New("sweeper: order service is required")
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Sweeper{
		orders:   deps.Orders,
		interval: interval,
		logger:   logger,
	}
	if deps.Meter != nil {
		var err error
		s.runs, err = deps.Meter.Int64Counter("orders.sweep.runs",
			metric.WithDescription("Count of expiration sweep runs"))
		if err != nil {
			return nil, fmt.Errorf("sweeper: runs counter: %w", err)
		}
		s.latency, err = deps.Meter.Float64Histogram("orders.sweep.duration",
			metric.WithUnit("ms"),
			metric.WithDescription("Latency in milliseconds for expiration sweeps"))
		if err != nil {
			return nil, fmt.Errorf("sweeper: latency histogram: %w", err)
		}
	}
	return s, nil
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiration sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	started := time.Now()
	expired, err := s.orders.ExpireOverdueOrders(ctx)
	elapsed := time.Since(started)

	if s.runs != nil {
		s.runs.Add(ctx, 1)
	}
	if s.latency != nil {
		s.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond))
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("expiration sweep failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return
	}
	if expired > 0 {
		s.logger.Info("expiration sweep completed",
			zap.Int("expired", expired),
			zap.Duration("elapsed", elapsed))
	}
}
