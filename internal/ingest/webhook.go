// Package ingest receives untrusted channel events, attributes them to a
// tenant, and hands normalized orders to the order service.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
	"github.com/Z1Code/gastrocloud-sub000/internal/metrics"
	"github.com/Z1Code/gastrocloud-sub000/internal/order"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// WebhookHandler receives one marketplace's webhook deliveries. Every
// internally handled outcome is acknowledged with 200 so senders cannot
// distinguish a dropped event from an accepted one; only persistence
// unavailability surfaces as a retryable 5xx.
type WebhookHandler struct {
	channel  channel.Channel
	logger   *slog.Logger
	metrics  *metrics.Metrics
	resolver *Resolver
	orders   *order.Service
}

// NewRappiWebhook builds the Rappi intake handler (signature-scan resolution).
func NewRappiWebhook(logger *slog.Logger, metricRegistry *metrics.Metrics, resolver *Resolver, orders *order.Service) *WebhookHandler {
	return &WebhookHandler{
		channel:  channel.Rappi,
		logger:   logger.With("component", "rappi_webhook"),
		metrics:  metricRegistry,
		resolver: resolver,
		orders:   orders,
	}
}

// NewPedidosYaWebhook builds the PedidosYa intake handler (identifier-lookup
// resolution).
func NewPedidosYaWebhook(logger *slog.Logger, metricRegistry *metrics.Metrics, resolver *Resolver, orders *order.Service) *WebhookHandler {
	return &WebhookHandler{
		channel:  channel.PedidosYa,
		logger:   logger.With("component", "pedidosya_webhook"),
		metrics:  metricRegistry,
		resolver: resolver,
		orders:   orders,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.WebhookLatency.WithLabelValues(string(h.channel)).Observe(time.Since(start).Seconds())
		}
	}()

	// The raw bytes must be read before any parsing or signature
	// verification is unsound.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	signature := strings.TrimSpace(r.Header.Get(h.channel.SignatureHeader()))

	cfg, err := h.resolve(r.Context(), body, signature)
	if errors.Is(err, ErrNoTenant) {
		// Deliberate: ack and drop so a hostile or misconfigured sender
		// learns nothing and does not retry-storm us.
		h.logger.Warn("unattributable webhook dropped", "channel", string(h.channel))
		h.count("dropped")
		ack(w)
		return
	}
	if err != nil {
		h.logger.Error("tenant resolution failed", "error", err, "channel", string(h.channel))
		h.count("error")
		http.Error(w, "temporary failure", http.StatusServiceUnavailable)
		return
	}

	if err := h.dispatch(r.Context(), cfg.TenantID, body); err != nil {
		h.logger.Error("failed processing webhook", "error", err,
			"channel", string(h.channel), "tenant_id", cfg.TenantID)
		h.count("error")
		http.Error(w, "temporary failure", http.StatusServiceUnavailable)
		return
	}

	h.count("ok")
	ack(w)
}

func (h *WebhookHandler) resolve(ctx context.Context, body []byte, signature string) (*repo.TenantChannelConfig, error) {
	switch h.channel {
	case channel.PedidosYa:
		return h.resolver.ByExternalID(ctx, h.channel, PeekIntegrationID(body), body, signature)
	default:
		return h.resolver.BySignature(ctx, h.channel, body, signature)
	}
}

func (h *WebhookHandler) dispatch(ctx context.Context, tenantID string, body []byte) error {
	var (
		event   string
		variant order.ChannelOrder
		extID   string
		err     error
	)
	switch h.channel {
	case channel.Rappi:
		var payload RappiOrder
		event, payload, err = ParseRappi(body)
		variant, extID = payload, payload.ID
	case channel.PedidosYa:
		var payload PedidosYaOrder
		event, _, payload, err = ParsePedidosYa(body)
		variant, extID = payload, payload.Code
	}
	if err != nil {
		// Malformed but attributed payloads are logged and dropped.
		h.logger.Warn("unparseable payload dropped", "error", err, "tenant_id", tenantID)
		return nil
	}

	switch normalizeEvent(event) {
	case "created":
		_, created, err := h.orders.CreateFromChannel(ctx, tenantID, variant)
		if err != nil {
			return err
		}
		if !created {
			h.logger.Info("duplicate delivery acknowledged",
				"tenant_id", tenantID, "channel", string(h.channel), "external_order_id", extID)
		}
		return nil
	case "cancelled":
		_, err := h.orders.CancelByExternalID(ctx, tenantID, h.channel, extID)
		return err
	default:
		h.logger.Info("unhandled event type ignored", "event", event, "tenant_id", tenantID)
		return nil
	}
}

func (h *WebhookHandler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.WebhookEvents.WithLabelValues(string(h.channel), outcome).Inc()
	}
}

func normalizeEvent(event string) string {
	event = strings.ToLower(strings.TrimSpace(event))
	switch {
	case strings.Contains(event, "cancel"):
		return "cancelled"
	case strings.Contains(event, "creat"), strings.Contains(event, "new"):
		return "created"
	}
	return event
}

func ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
