package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Z1Code/gastrocloud-sub000/internal/broadcast"
	"github.com/Z1Code/gastrocloud-sub000/internal/cache"
	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
	"github.com/Z1Code/gastrocloud-sub000/internal/metrics"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// Service glues normalization, the idempotency guard, persistence, and the
// kitchen display broadcast.
type Service struct {
	store        repo.Store
	catalog      *Catalog
	hub          *broadcast.Hub
	redis        *cache.Redis
	metrics      *metrics.Metrics
	logger       *slog.Logger
	dedupeWindow time.Duration
	now          func() time.Time
}

// ServiceConfig carries service tunables.
type ServiceConfig struct {
	// DedupeWindow is the best-effort idempotency window for channels with
	// no stable external order id. Channels that carry one are deduped by
	// the database unique constraint instead.
	DedupeWindow time.Duration
}

// NewService builds the order service. Redis is optional; when present it
// serves as a fast path in front of the database checks.
func NewService(store repo.Store, catalog *Catalog, hub *broadcast.Hub, redis *cache.Redis, metricRegistry *metrics.Metrics, logger *slog.Logger, cfg ServiceConfig) *Service {
	window := cfg.DedupeWindow
	if window <= 0 {
		window = 60 * time.Second
	}
	return &Service{
		store:        store,
		catalog:      catalog,
		hub:          hub,
		redis:        redis,
		metrics:      metricRegistry,
		logger:       logger.With("component", "orders"),
		dedupeWindow: window,
		now:          time.Now,
	}
}

// CreateFromChannel normalizes a channel payload and persists it exactly
// once. The returned bool reports whether a new order was created; false
// means the idempotency guard recognized a duplicate delivery.
func (s *Service) CreateFromChannel(ctx context.Context, tenantID string, co ChannelOrder) (*repo.Order, bool, error) {
	idx, err := s.catalog.Index(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}

	order, warnings := co.Normalize(idx)
	order.TenantID = tenantID
	for _, warn := range warnings {
		s.logger.Warn("unmatched catalog line",
			"tenant_id", tenantID,
			"channel", string(order.Channel),
			"title", warn.Title,
			"external_ref", warn.ExternalRef,
		)
		if s.metrics != nil {
			s.metrics.UnmatchedItems.WithLabelValues(string(order.Channel)).Inc()
		}
	}

	if existing, dup, err := s.checkDuplicate(ctx, &order); err != nil {
		return nil, false, err
	} else if dup {
		return existing, false, nil
	}

	EstimateReadyTime(&order, s.now())

	stored, inserted, err := s.store.InsertOrderWithItems(ctx, order)
	if err != nil {
		return nil, false, fmt.Errorf("persist order: %w", err)
	}
	if !inserted {
		// Lost the check-then-insert race; the unique index was the guard.
		s.markDuplicate(order.Channel, "constraint")
		s.logger.Info("duplicate delivery skipped at insert",
			"tenant_id", tenantID, "channel", string(order.Channel), "order_id", stored.ID)
		return stored, false, nil
	}

	if s.metrics != nil {
		s.metrics.OrdersCreated.WithLabelValues(string(order.Channel)).Inc()
	}
	s.logger.Info("order created",
		"tenant_id", tenantID,
		"channel", string(order.Channel),
		"order_id", stored.ID,
		"total", stored.Total,
		"items", len(stored.Items),
	)

	s.publish(tenantID, broadcast.EventOrderCreated, stored)
	return stored, true, nil
}

// checkDuplicate is the in-code fast path of the idempotency guard. The
// storage-level unique index stays authoritative for external ids; the
// time-window heuristic for chat orders is best-effort by design.
func (s *Service) checkDuplicate(ctx context.Context, order *repo.Order) (*repo.Order, bool, error) {
	if order.ExternalOrderID != nil {
		existing, err := s.store.GetOrderByExternalID(ctx, order.TenantID, order.Channel, *order.ExternalOrderID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		s.markDuplicate(order.Channel, "external_id")
		s.logger.Info("duplicate delivery skipped",
			"tenant_id", order.TenantID,
			"channel", string(order.Channel),
			"external_order_id", *order.ExternalOrderID,
		)
		return existing, true, nil
	}

	if order.CustomerPhone == nil || *order.CustomerPhone == "" {
		return nil, false, nil
	}

	if s.redis != nil {
		key := cache.DedupeKey(order.TenantID, string(order.Channel), *order.CustomerPhone)
		fresh, err := s.redis.SetNX(ctx, key, s.now().Format(time.RFC3339), s.dedupeWindow)
		if err != nil {
			s.logger.Warn("dedupe fast path unavailable", "error", err)
		} else if !fresh {
			if existing, err := s.store.LatestOrderSince(ctx, order.TenantID, order.Channel, *order.CustomerPhone, s.now().Add(-s.dedupeWindow)); err == nil {
				s.markDuplicate(order.Channel, "window")
				return existing, true, nil
			}
			// Marker without a matching row: fall through to the database check.
		}
	}

	existing, err := s.store.LatestOrderSince(ctx, order.TenantID, order.Channel, *order.CustomerPhone, s.now().Add(-s.dedupeWindow))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.markDuplicate(order.Channel, "window")
	s.logger.Info("duplicate order within window skipped",
		"tenant_id", order.TenantID,
		"channel", string(order.Channel),
		"customer_phone", *order.CustomerPhone,
	)
	return existing, true, nil
}

func (s *Service) markDuplicate(ch channel.Channel, strategy string) {
	if s.metrics != nil {
		s.metrics.DuplicateSkips.WithLabelValues(string(ch), strategy).Inc()
	}
}

// Advance moves an order to its next status and broadcasts the change.
func (s *Service) Advance(ctx context.Context, tenantID, orderID string) (*repo.Order, error) {
	current, err := s.store.GetOrderByID(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	next, ok := current.Status.Next()
	if !ok {
		return nil, repo.ErrInvalidTransition
	}

	updated, err := s.store.AdvanceOrderStatus(ctx, tenantID, orderID, current.Status, next)
	if err != nil {
		return nil, err
	}
	s.logger.Info("order status advanced",
		"tenant_id", tenantID, "order_id", orderID,
		"from", string(current.Status), "to", string(next))
	s.publish(tenantID, broadcast.EventStatusChanged, updated)
	return updated, nil
}

// Cancel marks an order cancelled and broadcasts the removal.
func (s *Service) Cancel(ctx context.Context, tenantID, orderID string) (*repo.Order, error) {
	updated, err := s.store.CancelOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("order cancelled", "tenant_id", tenantID, "order_id", orderID)
	s.publish(tenantID, broadcast.EventOrderCancelled, updated)
	return updated, nil
}

// CancelByExternalID handles marketplace cancellation webhooks. A cancel for
// an unknown order is logged and dropped, not an error.
func (s *Service) CancelByExternalID(ctx context.Context, tenantID string, ch channel.Channel, externalOrderID string) (*repo.Order, error) {
	existing, err := s.store.GetOrderByExternalID(ctx, tenantID, ch, externalOrderID)
	if errors.Is(err, repo.ErrNotFound) {
		s.logger.Warn("cancellation for unknown order dropped",
			"tenant_id", tenantID, "channel", string(ch), "external_order_id", externalOrderID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.Status.Terminal() {
		return existing, nil
	}
	return s.Cancel(ctx, tenantID, existing.ID)
}

// Snapshot returns the tenant's active orders for display (re)connection.
func (s *Service) Snapshot(ctx context.Context, tenantID string) ([]repo.Order, error) {
	return s.store.ListActiveOrders(ctx, tenantID)
}

func (s *Service) publish(tenantID string, eventType broadcast.EventType, order *repo.Order) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(tenantID, broadcast.Event{
		Type:    eventType,
		OrderID: order.ID,
		Order:   order,
	})
}
