package order

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Z1Code/gastrocloud-sub000/internal/broadcast"
	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo/repotest"
)

// marketplaceOrder is a minimal ChannelOrder with a stable external id, the
// shape the marketplace webhooks produce.
type marketplaceOrder struct {
	externalID string
	phone      string
	lines      []string
}

func (m marketplaceOrder) Channel() channel.Channel { return channel.Rappi }

func (m marketplaceOrder) Normalize(idx *CatalogIndex) (repo.Order, []UnmatchedWarning) {
	var warnings []UnmatchedWarning
	items := make([]repo.OrderItem, 0, len(m.lines))
	for _, name := range m.lines {
		item, warn := ResolveLine(idx, name, "", 1, 0, nil, nil)
		if warn != nil {
			warnings = append(warnings, *warn)
		}
		items = append(items, item)
	}
	subtotal := SumItems(items)
	order := repo.Order{
		Channel:      channel.Rappi,
		OrderType:    repo.OrderTypeDelivery,
		Status:       repo.StatusPending,
		CustomerName: "Ana",
		Subtotal:     subtotal,
		Total:        subtotal,
		Items:        items,
	}
	extID := m.externalID
	order.ExternalOrderID = &extID
	if m.phone != "" {
		phone := m.phone
		order.CustomerPhone = &phone
	}
	return order, warnings
}

func newTestService(t *testing.T) (*Service, *repotest.Store, *broadcast.Hub, *time.Time) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := repotest.New()
	store.Catalog = []repo.CatalogItem{
		{ID: "item-pizza", TenantID: "t1", Name: "Pizza Margarita", Price: 8990, Station: repo.StationKitchen, Active: true},
		{ID: "item-beer", TenantID: "t1", Name: "Cerveza Artesanal", Price: 3500, Station: repo.StationBar, Active: true},
	}

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := &now
	store.Now = func() time.Time { return *clock }

	hub := broadcast.NewHub(logger, nil, 8)
	catalog := NewCatalog(store, nil, time.Minute, logger)
	svc := NewService(store, catalog, hub, nil, nil, logger, ServiceConfig{DedupeWindow: 60 * time.Second})
	svc.now = func() time.Time { return *clock }
	return svc, store, hub, clock
}

func TestCreateFromChannelPersistsAndBroadcasts(t *testing.T) {
	svc, store, hub, _ := newTestService(t)
	sub := hub.Subscribe("t1")
	defer sub.Close()

	created, fresh, err := svc.CreateFromChannel(context.Background(), "t1", marketplaceOrder{
		externalID: "RAP-100",
		lines:      []string{"Pizza Margarita", "Cerveza Artesanal"},
	})
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, int64(8990+3500), created.Total)
	assert.Positive(t, created.TotalSeconds)
	require.NotNil(t, created.EstimatedReadyAt)
	assert.Len(t, store.AllOrders(), 1)

	evt := <-sub.Events()
	assert.Equal(t, broadcast.EventOrderCreated, evt.Type)
	assert.Equal(t, created.ID, evt.OrderID)
}

func TestCreateFromChannelExternalIDDuplicate(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	payload := marketplaceOrder{externalID: "RAP-200", lines: []string{"Pizza Margarita"}}

	first, fresh, err := svc.CreateFromChannel(ctx, "t1", payload)
	require.NoError(t, err)
	require.True(t, fresh)

	second, fresh, err := svc.CreateFromChannel(ctx, "t1", payload)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.AllOrders(), 1)
	// The duplicate never reached the insert path.
	assert.Equal(t, 1, store.InsertAttempts)
}

func TestCreateFromChannelUnmatchedLineStillCreates(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	created, fresh, err := svc.CreateFromChannel(context.Background(), "t1", marketplaceOrder{
		externalID: "RAP-300",
		lines:      []string{"Pizza Margarita", "Nonexistent Item 12345"},
	})
	require.NoError(t, err)
	require.True(t, fresh)
	require.Len(t, created.Items, 2)
	assert.False(t, created.Items[0].Unmatched())
	assert.True(t, created.Items[1].Unmatched())
	assert.Len(t, store.AllOrders(), 1)
}

func TestCreateFromChannelChatWindowDedupe(t *testing.T) {
	svc, store, _, clock := newTestService(t)
	ctx := context.Background()
	cart := ChatCart{
		CustomerPhone: "+56911111111",
		Lines: []repo.CartLine{
			{CatalogItemID: "item-pizza", Name: "Pizza Margarita", Quantity: 1, UnitPrice: 8990, Station: repo.StationKitchen},
		},
	}

	first, fresh, err := svc.CreateFromChannel(ctx, "t1", cart)
	require.NoError(t, err)
	require.True(t, fresh)

	// Second confirmation 10 seconds later lands in the window.
	*clock = clock.Add(10 * time.Second)
	second, fresh, err := svc.CreateFromChannel(ctx, "t1", cart)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, first.ID, second.ID)

	// Past the window a same-phone order is a genuinely new order.
	*clock = clock.Add(2 * time.Minute)
	third, fresh, err := svc.CreateFromChannel(ctx, "t1", cart)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Len(t, store.AllOrders(), 2)
}

func TestAdvanceWalksLifecycleAndBroadcasts(t *testing.T) {
	svc, _, hub, _ := newTestService(t)
	ctx := context.Background()

	created, _, err := svc.CreateFromChannel(ctx, "t1", marketplaceOrder{
		externalID: "RAP-400", lines: []string{"Pizza Margarita"},
	})
	require.NoError(t, err)

	sub := hub.Subscribe("t1")
	defer sub.Close()

	want := []repo.OrderStatus{repo.StatusAccepted, repo.StatusPreparing, repo.StatusReady}
	for _, expected := range want {
		updated, err := svc.Advance(ctx, "t1", created.ID)
		require.NoError(t, err)
		assert.Equal(t, expected, updated.Status)

		evt := <-sub.Events()
		assert.Equal(t, broadcast.EventStatusChanged, evt.Type)
		assert.Equal(t, expected, evt.Order.Status)
	}
}

func TestAdvanceUnknownOrder(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Advance(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCancelByExternalID(t *testing.T) {
	svc, _, hub, _ := newTestService(t)
	ctx := context.Background()

	created, _, err := svc.CreateFromChannel(ctx, "t1", marketplaceOrder{
		externalID: "RAP-500", lines: []string{"Pizza Margarita"},
	})
	require.NoError(t, err)

	sub := hub.Subscribe("t1")
	defer sub.Close()

	cancelled, err := svc.CancelByExternalID(ctx, "t1", channel.Rappi, "RAP-500")
	require.NoError(t, err)
	assert.Equal(t, repo.StatusCancelled, cancelled.Status)
	assert.Equal(t, created.ID, cancelled.ID)

	evt := <-sub.Events()
	assert.Equal(t, broadcast.EventOrderCancelled, evt.Type)

	// Cancelling again is a no-op on a terminal order.
	again, err := svc.CancelByExternalID(ctx, "t1", channel.Rappi, "RAP-500")
	require.NoError(t, err)
	assert.Equal(t, repo.StatusCancelled, again.Status)

	// A cancel for an order we never saw is acked and dropped.
	missing, err := svc.CancelByExternalID(ctx, "t1", channel.Rappi, "RAP-999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
