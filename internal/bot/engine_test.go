package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Z1Code/gastrocloud-sub000/internal/broadcast"
	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
	"github.com/Z1Code/gastrocloud-sub000/internal/order"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo/repotest"
)

type fakeMessenger struct {
	mu            sync.Mutex
	texts         []string
	confirmations []*repo.Order
	markedRead    []string
}

func (m *fakeMessenger) SendText(ctx context.Context, to, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *fakeMessenger) SendButtons(ctx context.Context, to, body string, buttons []Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, body)
	return nil
}

func (m *fakeMessenger) SendList(ctx context.Context, to, body, buttonText string, sections []ListSection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, body)
	return nil
}

func (m *fakeMessenger) SendOrderConfirmation(ctx context.Context, to string, order *repo.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations = append(m.confirmations, order)
	return nil
}

func (m *fakeMessenger) MarkRead(ctx context.Context, to string, messageIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markedRead = append(m.markedRead, messageIDs...)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *repotest.Store, *fakeMessenger) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := repotest.New()
	store.Catalog = []repo.CatalogItem{
		{ID: "item-pizza", TenantID: "t1", Category: "Pizzas", Name: "Pizza Margarita", Price: 8990, Station: repo.StationKitchen, Active: true},
		{ID: "item-beer", TenantID: "t1", Category: "Bebidas", Name: "Cerveza Artesanal", Price: 3500, Station: repo.StationBar, Active: true},
	}

	hub := broadcast.NewHub(logger, nil, 8)
	catalog := order.NewCatalog(store, nil, time.Minute, logger)
	orders := order.NewService(store, catalog, hub, nil, nil, logger, order.ServiceConfig{})
	messenger := &fakeMessenger{}
	engine := NewEngine(store, catalog, orders, messenger, nil, logger, EngineConfig{IdleReset: 30 * time.Minute})
	return engine, store, messenger
}

func TestEngineFullConversationCreatesOrderOnce(t *testing.T) {
	engine, store, messenger := newTestEngine(t)
	ctx := context.Background()
	phone := "+56911112222"

	turns := []Input{
		{Text: "hola", MessageID: "m1"},
		{ButtonID: "menu"},
		{ListRowID: "item:item-pizza"},
		{Text: "dos"},
		{ButtonID: "checkout"},
		{ButtonID: "confirm"},
		{ButtonID: "type:pickup"},
		{Text: "Ana Torres"},
	}
	for _, in := range turns {
		require.NoError(t, engine.ProcessInbound(ctx, "t1", phone, in))
	}

	orders := store.AllOrders()
	require.Len(t, orders, 1)
	created := orders[0]
	assert.Equal(t, channel.WhatsApp, created.Channel)
	assert.Equal(t, repo.OrderTypePickup, created.OrderType)
	assert.Equal(t, "Ana Torres", created.CustomerName)
	assert.Equal(t, int64(2*8990), created.Total)
	assert.Equal(t, 1, store.InsertAttempts)

	require.Len(t, messenger.confirmations, 1)
	assert.Equal(t, created.ID, messenger.confirmations[0].ID)
	assert.Contains(t, messenger.markedRead, "m1")

	// The session is back at greeting with an empty cart, name remembered.
	session := store.Session("t1", phone)
	require.NotNil(t, session)
	assert.Equal(t, repo.StateGreeting, session.State)
	assert.Empty(t, session.Cart.Lines)
	require.NotNil(t, session.CustomerName)
	assert.Equal(t, "Ana Torres", *session.CustomerName)
}

func TestEngineIdleSessionResetsBeforeTurn(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	phone := "+56933334444"

	_, err := store.GetOrCreateSession(ctx, "t1", phone)
	require.NoError(t, err)
	stale := store.Sessions["t1|"+phone]
	stale.State = repo.StateAddingItems
	stale.Pending = &repo.PendingSelection{CatalogItemID: "item-pizza", Name: "Pizza Margarita", UnitPrice: 8990, Station: repo.StationKitchen}
	stale.LastMessageAt = time.Now().Add(-time.Hour)

	// Without the idle reset this "2" would land two pizzas in the cart.
	require.NoError(t, engine.ProcessInbound(ctx, "t1", phone, Input{Text: "2"}))

	session := store.Session("t1", phone)
	require.NotNil(t, session)
	assert.Equal(t, repo.StateGreeting, session.State)
	assert.Empty(t, session.Cart.Lines)
	assert.Nil(t, session.Pending)
	assert.Empty(t, store.AllOrders())
}

func TestEngineTrackingReportsActiveOrder(t *testing.T) {
	engine, store, messenger := newTestEngine(t)
	ctx := context.Background()
	phone := "+56955556666"

	phoneCopy := phone
	_, _, err := store.InsertOrderWithItems(ctx, repo.Order{
		TenantID:      "t1",
		Channel:       channel.WhatsApp,
		OrderType:     repo.OrderTypePickup,
		Status:        repo.StatusPreparing,
		CustomerName:  "Benito",
		CustomerPhone: &phoneCopy,
		Total:         8990,
	})
	require.NoError(t, err)

	require.NoError(t, engine.ProcessInbound(ctx, "t1", phone, Input{Text: "estado"}))

	require.NotEmpty(t, messenger.texts)
	last := messenger.texts[len(messenger.texts)-1]
	assert.Contains(t, last, "preparación")

	session := store.Session("t1", phone)
	require.NotNil(t, session)
	assert.Equal(t, repo.StateGreeting, session.State)
}

func TestEngineTrackingWithoutOrders(t *testing.T) {
	engine, _, messenger := newTestEngine(t)

	require.NoError(t, engine.ProcessInbound(context.Background(), "t1", "+56900000000", Input{Text: "seguimiento"}))
	require.NotEmpty(t, messenger.texts)
	assert.True(t, strings.Contains(messenger.texts[len(messenger.texts)-1], "No encontré"))
}

func TestEngineSessionLocksEvictedAfterTurns(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	phones := []string{"+56910000001", "+56910000002", "+56910000003"}

	var wg sync.WaitGroup
	for _, phone := range phones {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				assert.NoError(t, engine.ProcessInbound(ctx, "t1", p, Input{Text: "hola"}))
			}(phone)
		}
	}
	wg.Wait()

	// No turn in flight, so the lock map holds nothing.
	engine.mu.Lock()
	defer engine.mu.Unlock()
	assert.Empty(t, engine.locks)
}

func TestEngineCancelMidCheckout(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	phone := "+56977778888"

	require.NoError(t, engine.ProcessInbound(ctx, "t1", phone, Input{Text: "hola"}))
	require.NoError(t, engine.ProcessInbound(ctx, "t1", phone, Input{ButtonID: "menu"}))
	require.NoError(t, engine.ProcessInbound(ctx, "t1", phone, Input{ListRowID: "item:item-beer"}))
	require.NoError(t, engine.ProcessInbound(ctx, "t1", phone, Input{Text: "1"}))
	require.NoError(t, engine.ProcessInbound(ctx, "t1", phone, Input{Text: "cancelar"}))

	session := store.Session("t1", phone)
	require.NotNil(t, session)
	assert.Equal(t, repo.StateGreeting, session.State)
	assert.Empty(t, session.Cart.Lines)
	assert.Empty(t, store.AllOrders())
}
