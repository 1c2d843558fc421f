package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Z1Code/gastrocloud-sub000/internal/bot"
	"github.com/Z1Code/gastrocloud-sub000/internal/broadcast"
	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
	"github.com/Z1Code/gastrocloud-sub000/internal/order"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo/repotest"
	"github.com/Z1Code/gastrocloud-sub000/internal/secrets"
)

const (
	testKey         = "6368616e676520746869732070617373776f726420746f206120736563726574"
	rappiSecretOne  = "rappi-secret-tenant-one"
	rappiSecretTwo  = "rappi-secret-tenant-two"
	peyaSecret      = "peya-secret"
	peyaIntegration = "PEYA-REST-77"
	businessPhone   = "56228765432"
)

type webhookEnv struct {
	store    *repotest.Store
	resolver *Resolver
	orders   *order.Service
	logger   *slog.Logger
}

func strPtr(s string) *string { return &s }

func newWebhookEnv(t *testing.T) *webhookEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	box, err := secrets.NewBox(testKey)
	require.NoError(t, err)

	seal := func(secret string) string {
		sealed, err := box.Seal(secret)
		require.NoError(t, err)
		return sealed
	}

	store := repotest.New()
	store.Configs = []repo.TenantChannelConfig{
		{ID: "cfg-1", TenantID: "t1", Channel: channel.Rappi, WebhookSecret: seal(rappiSecretOne), Active: true},
		{ID: "cfg-2", TenantID: "t2", Channel: channel.Rappi, WebhookSecret: seal(rappiSecretTwo), Active: true},
		{ID: "cfg-3", TenantID: "t1", Channel: channel.PedidosYa, ExternalID: strPtr(peyaIntegration), WebhookSecret: seal(peyaSecret), Active: true},
		{ID: "cfg-4", TenantID: "t1", Channel: channel.WhatsApp, ExternalID: strPtr(businessPhone), WebhookSecret: seal("unused"), Active: true},
	}
	for _, tenantID := range []string{"t1", "t2"} {
		store.Catalog = append(store.Catalog,
			repo.CatalogItem{ID: tenantID + "-pizza", TenantID: tenantID, Name: "Pizza Margarita", Price: 8990, Station: repo.StationKitchen, Active: true},
			repo.CatalogItem{ID: tenantID + "-beer", TenantID: tenantID, Name: "Cerveza Artesanal", Price: 3500, Station: repo.StationBar, Active: true},
		)
	}

	hub := broadcast.NewHub(logger, nil, 8)
	catalog := order.NewCatalog(store, nil, time.Minute, logger)
	orders := order.NewService(store, catalog, hub, nil, nil, logger, order.ServiceConfig{})

	return &webhookEnv{
		store:    store,
		resolver: NewResolver(store, box, logger),
		orders:   orders,
		logger:   logger,
	}
}

func signedRequest(t *testing.T, target, header, secret string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, channel.Sign(body, secret))
	return req
}

func rappiBody(event, orderID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": %q,
		"order": {
			"id": %q,
			"customer": {"name": "Ana Torres", "phone": "+56911112222"},
			"items": [
				{"sku": "SKU-1", "name": "Pizza Margarita", "units": 2, "unit_price": 8990},
				{"sku": "SKU-2", "name": "Cerveza Artesanal", "units": 1, "unit_price": 3500}
			],
			"totals": {"subtotal": 21480, "total": 21480}
		}
	}`, event, orderID))
}

func TestRappiWebhookCreatesOrder(t *testing.T) {
	env := newWebhookEnv(t)
	handler := NewRappiWebhook(env.logger, nil, env.resolver, env.orders)

	body := rappiBody("order.created", "RAP-1001")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "/webhooks/rappi", "X-Rappi-Signature", rappiSecretOne, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	created, err := env.store.GetOrderByExternalID(context.Background(), "t1", channel.Rappi, "RAP-1001")
	require.NoError(t, err)
	assert.Equal(t, "Ana Torres", created.CustomerName)
	assert.Equal(t, int64(21480), created.Total)
	assert.Len(t, created.Items, 2)
}

func TestRappiWebhookDuplicateDeliveryIdenticalAck(t *testing.T) {
	env := newWebhookEnv(t)
	handler := NewRappiWebhook(env.logger, nil, env.resolver, env.orders)
	body := rappiBody("order.created", "RAP-2002")

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, signedRequest(t, "/webhooks/rappi", "X-Rappi-Signature", rappiSecretOne, body))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, signedRequest(t, "/webhooks/rappi", "X-Rappi-Signature", rappiSecretOne, body))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Len(t, env.store.AllOrders(), 1)
}

func TestRappiWebhookSignatureScanPicksTenant(t *testing.T) {
	env := newWebhookEnv(t)
	handler := NewRappiWebhook(env.logger, nil, env.resolver, env.orders)

	body := rappiBody("order.created", "RAP-3003")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "/webhooks/rappi", "X-Rappi-Signature", rappiSecretTwo, body))

	require.Equal(t, http.StatusOK, rec.Code)
	_, err := env.store.GetOrderByExternalID(context.Background(), "t2", channel.Rappi, "RAP-3003")
	assert.NoError(t, err)
	_, err = env.store.GetOrderByExternalID(context.Background(), "t1", channel.Rappi, "RAP-3003")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRappiWebhookBadSignatureAckedAndDropped(t *testing.T) {
	env := newWebhookEnv(t)
	handler := NewRappiWebhook(env.logger, nil, env.resolver, env.orders)

	body := rappiBody("order.created", "RAP-4004")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "/webhooks/rappi", "X-Rappi-Signature", "wrong-secret", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Empty(t, env.store.AllOrders())
}

func TestRappiWebhookCancellation(t *testing.T) {
	env := newWebhookEnv(t)
	handler := NewRappiWebhook(env.logger, nil, env.resolver, env.orders)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "/webhooks/rappi", "X-Rappi-Signature", rappiSecretOne, rappiBody("order.created", "RAP-5005")))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "/webhooks/rappi", "X-Rappi-Signature", rappiSecretOne, rappiBody("order.cancelled", "RAP-5005")))
	require.Equal(t, http.StatusOK, rec.Code)

	cancelled, err := env.store.GetOrderByExternalID(context.Background(), "t1", channel.Rappi, "RAP-5005")
	require.NoError(t, err)
	assert.Equal(t, repo.StatusCancelled, cancelled.Status)
}

func TestWebhookRejectsNonPost(t *testing.T) {
	env := newWebhookEnv(t)
	handler := NewRappiWebhook(env.logger, nil, env.resolver, env.orders)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/rappi", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPedidosYaIdentifierLookup(t *testing.T) {
	env := newWebhookEnv(t)
	handler := NewPedidosYaWebhook(env.logger, nil, env.resolver, env.orders)

	body := []byte(fmt.Sprintf(`{
		"event": "order.new",
		"restaurant": {"integration_id": %q},
		"order": {
			"code": "PY-9001",
			"pickup": true,
			"user": {"name": "Benito", "phone": "+56933334444"},
			"products": [{"integration_code": "t1-pizza", "name": "Pizza Margarita", "quantity": 1, "unit_price": 8990}],
			"payment": {"subtotal": 8990, "total": 8990}
		}
	}`, peyaIntegration))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "/webhooks/pedidosya", "X-Peya-Signature", peyaSecret, body))

	require.Equal(t, http.StatusOK, rec.Code)
	created, err := env.store.GetOrderByExternalID(context.Background(), "t1", channel.PedidosYa, "PY-9001")
	require.NoError(t, err)
	assert.Equal(t, repo.OrderTypePickup, created.OrderType)
}

func TestPedidosYaUnknownIntegrationDropped(t *testing.T) {
	env := newWebhookEnv(t)
	handler := NewPedidosYaWebhook(env.logger, nil, env.resolver, env.orders)

	body := []byte(`{
		"event": "order.new",
		"restaurant": {"integration_id": "NOBODY-HOME"},
		"order": {"code": "PY-9002", "products": [], "payment": {}}
	}`)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "/webhooks/pedidosya", "X-Peya-Signature", peyaSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.store.AllOrders())
}

type recordingMessenger struct {
	texts []string
}

func (m *recordingMessenger) SendText(ctx context.Context, to, text string) error {
	m.texts = append(m.texts, text)
	return nil
}

func (m *recordingMessenger) SendButtons(ctx context.Context, to, body string, buttons []bot.Button) error {
	m.texts = append(m.texts, body)
	return nil
}

func (m *recordingMessenger) SendList(ctx context.Context, to, body, buttonText string, sections []bot.ListSection) error {
	m.texts = append(m.texts, body)
	return nil
}

func (m *recordingMessenger) SendOrderConfirmation(ctx context.Context, to string, order *repo.Order) error {
	m.texts = append(m.texts, "confirmation "+order.ID)
	return nil
}

func (m *recordingMessenger) MarkRead(ctx context.Context, to string, messageIDs []string) error {
	return nil
}

func TestChatRouterResolvesByRecipient(t *testing.T) {
	env := newWebhookEnv(t)
	messenger := &recordingMessenger{}
	catalog := order.NewCatalog(env.store, nil, time.Minute, env.logger)
	engine := bot.NewEngine(env.store, catalog, env.orders, messenger, nil, env.logger, bot.EngineConfig{})
	router := NewChatRouter(env.resolver, engine, nil, env.logger)

	router.HandleInbound(context.Background(), businessPhone, "+56955556666", bot.Input{Text: "hola"})

	session := env.store.Session("t1", "+56955556666")
	require.NotNil(t, session)
	assert.Equal(t, repo.StateGreeting, session.State)
	require.NotEmpty(t, messenger.texts)
	assert.True(t, strings.Contains(strings.ToLower(messenger.texts[0]), "hola") ||
		strings.Contains(strings.ToLower(messenger.texts[0]), "bienvenid"))
}

func TestChatRouterUnknownBusinessDropped(t *testing.T) {
	env := newWebhookEnv(t)
	messenger := &recordingMessenger{}
	catalog := order.NewCatalog(env.store, nil, time.Minute, env.logger)
	engine := bot.NewEngine(env.store, catalog, env.orders, messenger, nil, env.logger, bot.EngineConfig{})
	router := NewChatRouter(env.resolver, engine, nil, env.logger)

	router.HandleInbound(context.Background(), "000000000", "+56955556666", bot.Input{Text: "hola"})

	assert.Nil(t, env.store.Session("t1", "+56955556666"))
	assert.Empty(t, messenger.texts)
}
