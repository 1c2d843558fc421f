package kds

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Z1Code/gastrocloud-sub000/internal/broadcast"
	"github.com/Z1Code/gastrocloud-sub000/internal/order"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// Handler exposes the kitchen display surface: a websocket event stream, a
// snapshot endpoint for (re)connection, and the operator ticket actions.
type Handler struct {
	orders     *order.Service
	hub        *broadcast.Hub
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time
	snapshot   func(ctx context.Context, tenantID string) ([]repo.Order, error)
}

// NewHandler builds the kitchen display handler.
func NewHandler(orders *order.Service, hub *broadcast.Hub, thresholds Thresholds, logger *slog.Logger) *Handler {
	return &Handler{
		orders:     orders,
		hub:        hub,
		thresholds: thresholds.withDefaults(),
		logger:     logger.With("component", "kds"),
		now:        time.Now,
		snapshot:   orders.Snapshot,
	}
}

// Register mounts the display routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /kds/{tenant}/orders", h.handleSnapshot)
	mux.HandleFunc("GET /kds/{tenant}/ws", h.handleWS)
	mux.HandleFunc("POST /kds/{tenant}/orders/{order}/advance", h.handleAdvance)
	mux.HandleFunc("POST /kds/{tenant}/orders/{order}/cancel", h.handleCancel)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	station := repo.Station(r.URL.Query().Get("station"))

	orders, err := h.snapshot(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("snapshot failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshot unavailable"})
		return
	}

	board := NewBoard(h.thresholds)
	board.Reset(orders)
	writeJSON(w, http.StatusOK, map[string]any{"orders": board.Views(h.now(), station)})
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	station := repo.Station(r.URL.Query().Get("station"))
	h.serveWS(w, r, tenantID, station)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	orderID := r.PathValue("order")

	updated, err := h.orders.Advance(r.Context(), tenantID, orderID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, repo.ErrInvalidTransition):
		// Stale button press: the ticket already moved on another display.
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order already advanced"})
	case err != nil:
		h.logger.Error("advance failed", "tenant_id", tenantID, "order_id", orderID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "advance failed"})
	default:
		view := Project(*updated, h.now(), h.thresholds)
		writeJSON(w, http.StatusOK, map[string]any{"order": view})
	}
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant")
	orderID := r.PathValue("order")

	updated, err := h.orders.Cancel(r.Context(), tenantID, orderID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, repo.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order already closed"})
	case err != nil:
		h.logger.Error("cancel failed", "tenant_id", tenantID, "order_id", orderID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cancel failed"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"order": map[string]any{"id": updated.ID, "status": updated.Status}})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
