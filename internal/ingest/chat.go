package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Z1Code/gastrocloud-sub000/internal/bot"
	"github.com/Z1Code/gastrocloud-sub000/internal/metrics"
)

// ChatRouter attributes inbound chat turns to a tenant and hands them to the
// conversational engine. Messages for unknown business numbers are dropped.
type ChatRouter struct {
	resolver *Resolver
	engine   *bot.Engine
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewChatRouter builds the chat ingest router.
func NewChatRouter(resolver *Resolver, engine *bot.Engine, metricRegistry *metrics.Metrics, logger *slog.Logger) *ChatRouter {
	return &ChatRouter{
		resolver: resolver,
		engine:   engine,
		metrics:  metricRegistry,
		logger:   logger.With("component", "chat_router"),
	}
}

// HandleInbound resolves the tenant by recipient number and runs the turn.
func (c *ChatRouter) HandleInbound(ctx context.Context, businessPhone, customerPhone string, in bot.Input) {
	cfg, err := c.resolver.ByRecipient(ctx, businessPhone)
	if errors.Is(err, ErrNoTenant) {
		c.logger.Warn("chat message for unknown business number dropped", "business_phone", businessPhone)
		if c.metrics != nil {
			c.metrics.WebhookEvents.WithLabelValues("whatsapp", "dropped").Inc()
		}
		return
	}
	if err != nil {
		c.logger.Error("chat tenant resolution failed", "error", err)
		if c.metrics != nil {
			c.metrics.Errors.WithLabelValues("chat_resolve").Inc()
		}
		return
	}

	if err := c.engine.ProcessInbound(ctx, cfg.TenantID, customerPhone, in); err != nil {
		c.logger.Error("chat turn failed",
			"tenant_id", cfg.TenantID, "customer_phone", customerPhone, "error", err)
		if c.metrics != nil {
			c.metrics.Errors.WithLabelValues("chat_turn").Inc()
		}
	}
}
