package kds

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Z1Code/gastrocloud-sub000/internal/broadcast"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

func dialWS(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(payload, &f))
	return f
}

// An order placed while the snapshot query runs is in neither the snapshot
// nor, without the early subscription, any later frame. The display must
// still receive it.
func TestServeWSDeliversOrderPlacedDuringSnapshotRead(t *testing.T) {
	handler, _, mux := newTestHandler(t)

	racy := repo.Order{
		ID:       "ord-racy",
		TenantID: "t1",
		Status:   repo.StatusPending,
		Items:    []repo.OrderItem{{Name: "Pizza Margarita", Quantity: 1, Station: repo.StationKitchen}},
	}
	handler.snapshot = func(ctx context.Context, tenantID string) ([]repo.Order, error) {
		handler.hub.Publish(tenantID, broadcast.Event{
			Type:    broadcast.EventOrderCreated,
			OrderID: racy.ID,
			Order:   &racy,
		})
		return nil, nil
	}

	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialWS(t, server, "/kds/t1/ws")
	defer conn.Close()

	first := readFrame(t, conn)
	require.Equal(t, "snapshot", first.Type)
	assert.Empty(t, first.Board)

	second := readFrame(t, conn)
	assert.Equal(t, string(broadcast.EventOrderCreated), second.Type)
	assert.Equal(t, racy.ID, second.OrderID)
	require.NotNil(t, second.Order)
	assert.Equal(t, repo.StatusPending, second.Order.Status)
}

func TestServeWSSnapshotThenStatusChange(t *testing.T) {
	_, store, mux := newTestHandler(t)
	created := seedOrder(t, store, repo.StatusPending, repo.StationKitchen)

	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialWS(t, server, "/kds/t1/ws")
	defer conn.Close()

	first := readFrame(t, conn)
	require.Equal(t, "snapshot", first.Type)
	require.Len(t, first.Board, 1)
	assert.Equal(t, created.ID, first.Board[0].ID)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/kds/t1/orders/"+created.ID+"/advance", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	second := readFrame(t, conn)
	assert.Equal(t, string(broadcast.EventStatusChanged), second.Type)
	assert.Equal(t, created.ID, second.OrderID)
	require.NotNil(t, second.Order)
	assert.Equal(t, repo.StatusAccepted, second.Order.Status)
}
