package services

import (
	"context"
	"errors"
	"time"

	"github.com/blockbazaar/api/internal/repositories"
)

const (
	defaultSweepInterval  = 10 * time.Minute
	defaultOrphanAge      = 30 * time.Minute
	defaultSweepBatchSize = 50

	orderEventOrphanSwept = "order.orphan.swept"
)

// OrderSweeperDeps bundles collaborators for the orphan reconciliation sweep.
type OrderSweeperDeps struct {
	Orders    repositories.OrderRepository
	Clock     func() time.Time
	Interval  time.Duration
	OrphanAge time.Duration
	BatchSize int
	Events    OrderEventPublisher
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type orderSweeperService struct {
	orders    repositories.OrderRepository
	clock     func() time.Time
	interval  time.Duration
	orphanAge time.Duration
	batchSize int
	events    OrderEventPublisher
	logger    func(context.Context, string, map[string]any)
}

// NewOrderSweeperService builds the background job that deletes header-only
// orders left behind when a creation was interrupted between the header and
// item writes.
func NewOrderSweeperService(deps OrderSweeperDeps) (OrderSweeperService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order sweeper: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	orphanAge := deps.OrphanAge
	if orphanAge <= 0 {
		orphanAge = defaultOrphanAge
	}

	batchSize := deps.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderSweeperService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		interval:  interval,
		orphanAge: orphanAge,
		batchSize: batchSize,
		events:    deps.Events,
		logger:    logger,
	}, nil
}

// SweepOnce deletes orphan headers older than the configured age. Orders
// young enough to still be mid-creation are left alone.
func (s *orderSweeperService) SweepOnce(ctx context.Context) (SweepResult, error) {
	started := s.clock()
	cutoff := started.Add(-s.orphanAge)

	orphans, err := s.orders.ListOrphanHeaders(ctx, cutoff, s.batchSize)
	if err != nil {
		return SweepResult{StartedAt: started, Cutoff: cutoff}, err
	}

	result := SweepResult{
		Scanned:   len(orphans),
		Cutoff:    cutoff,
		StartedAt: started,
	}

	for _, orphan := range orphans {
		if err := s.orders.DeleteHeader(ctx, orphan.ID); err != nil {
			result.Failed++
			s.logger(ctx, "order.sweep.delete.failed", map[string]any{
				"order": orphan.ID,
				"error": err.Error(),
			})
			continue
		}
		result.Deleted++
		s.logger(ctx, "order.sweep.deleted", map[string]any{
			"order":       orphan.ID,
			"orderNumber": orphan.OrderNumber,
			"createdAt":   orphan.CreatedAt,
		})
		if s.events != nil {
			event := OrderEvent{
				Type:        orderEventOrphanSwept,
				OrderID:     orphan.ID,
				OrderNumber: orphan.OrderNumber,
				UserID:      orphan.UserID,
				OccurredAt:  s.clock(),
			}
			if err := s.events.PublishOrderEvent(ctx, event); err != nil {
				s.logger(ctx, "order.event.publish.failed", map[string]any{
					"type":  event.Type,
					"order": event.OrderID,
					"error": err.Error(),
				})
			}
		}
	}

	return result, nil
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *orderSweeperService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			result, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger(ctx, "order.sweep.failed", map[string]any{
					"error": err.Error(),
				})
				continue
			}
			if result.Scanned > 0 {
				s.logger(ctx, "order.sweep.completed", map[string]any{
					"scanned": result.Scanned,
					"deleted": result.Deleted,
					"failed":  result.Failed,
				})
			}
		}
	}
}
