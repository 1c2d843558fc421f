package kds

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Z1Code/gastrocloud-sub000/internal/broadcast"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Displays run on the local network; origin checks happen upstream.
		return true
	},
}

// frame is one message pushed to a display: the initial snapshot, then one
// frame per order event.
type frame struct {
	Type    string      `json:"type"`
	OrderID string      `json:"orderId,omitempty"`
	Order   *OrderView  `json:"order,omitempty"`
	Board   []OrderView `json:"board,omitempty"`
}

// wsConn is one connected display.
type wsConn struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// serveWS runs one display connection: snapshot first, then the tenant's
// event stream filtered by station until either side disconnects.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request, tenantID string, station repo.Station) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ws := &wsConn{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: h.logger,
	}

	// Subscribe before the snapshot read: an order placed while the query
	// runs then waits in the subscriber buffer, and Apply upserts it over
	// the fresh board instead of vanishing into a gap the display cannot
	// detect.
	sub := h.hub.Subscribe(tenantID)

	snapshot, err := h.snapshot(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("snapshot for display failed", "tenant_id", tenantID, "error", err)
		sub.Close()
		conn.Close()
		return
	}

	board := NewBoard(h.thresholds)
	board.Reset(snapshot)
	ws.enqueue(frame{Type: "snapshot", Board: board.Views(h.now(), station)})

	go ws.writePump()
	go ws.readPump(sub)
	h.streamEvents(ws, sub, board, station)
}

// streamEvents reduces hub events into the connection's board and pushes one
// frame per relevant event. Ends when the subscriber is dropped or closed.
func (h *Handler) streamEvents(ws *wsConn, sub *broadcast.Subscriber, board *Board, station repo.Station) {
	defer close(ws.send)

	for evt := range sub.Events() {
		if evt.Order == nil {
			continue
		}
		board.Apply(evt)

		if station != "" && !hasStation(*evt.Order, station) {
			continue
		}

		// The frame always carries the projected order, including the
		// transition that leaves the active set, so displays can show a
		// short confirmation before removing the ticket.
		out := frame{Type: string(evt.Type), OrderID: evt.OrderID}
		view := Project(*evt.Order, h.now(), h.thresholds)
		out.Order = &view
		if !ws.enqueue(out) {
			sub.Close()
			// Drain so the hub-side close does not block on us.
			for range sub.Events() {
			}
			return
		}
	}
}

// enqueue hands a frame to the write pump without blocking the event loop.
func (c *wsConn) enqueue(f frame) bool {
	payload, err := json.Marshal(f)
	if err != nil {
		c.logger.Error("frame marshal failed", "error", err)
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.logger.Warn("display send buffer full, dropping connection")
		return false
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound data; displays are read-only consumers. It exists
// to service pong frames and to detach the subscriber when the peer goes away.
func (c *wsConn) readPump(sub *broadcast.Subscriber) {
	defer sub.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
