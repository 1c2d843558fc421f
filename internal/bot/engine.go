// Package bot drives the chat-commerce ordering conversation: a per-customer
// finite-state machine over catalog browsing, cart assembly, and checkout.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Z1Code/gastrocloud-sub000/internal/metrics"
	"github.com/Z1Code/gastrocloud-sub000/internal/order"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// Engine serializes conversational turns per session and applies their side
// effects: session persistence, order creation, and outbound messages.
type Engine struct {
	store     repo.Store
	catalog   *order.Catalog
	orders    *order.Service
	messenger Messenger
	metrics   *metrics.Metrics
	logger    *slog.Logger
	idleReset time.Duration

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock serializes turns for one (tenant, phone) conversation. refs
// counts holders and waiters so idle entries can be evicted from the map.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// EngineConfig carries engine tunables.
type EngineConfig struct {
	// IdleReset expires sessions idle longer than this before the next turn.
	IdleReset time.Duration
}

// NewEngine builds the conversational engine.
func NewEngine(store repo.Store, catalog *order.Catalog, orders *order.Service, messenger Messenger, metricRegistry *metrics.Metrics, logger *slog.Logger, cfg EngineConfig) *Engine {
	idle := cfg.IdleReset
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Engine{
		store:     store,
		catalog:   catalog,
		orders:    orders,
		messenger: messenger,
		metrics:   metricRegistry,
		logger:    logger.With("component", "bot"),
		idleReset: idle,
		locks:     map[string]*sessionLock{},
	}
}

// ProcessInbound handles one customer turn. Turns for the same
// (tenant, phone) are serialized; different sessions run in parallel.
func (e *Engine) ProcessInbound(ctx context.Context, tenantID, customerPhone string, in Input) error {
	key := tenantID + "|" + customerPhone
	lock := e.acquireSession(key)
	defer e.releaseSession(key, lock)

	session, err := e.store.GetOrCreateSession(ctx, tenantID, customerPhone)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	// Expired sessions restart from greeting before the turn is processed.
	if session.State != repo.StateGreeting && time.Since(session.LastMessageAt) > e.idleReset {
		e.logger.Info("session expired, resetting",
			"tenant_id", tenantID, "customer_phone", customerPhone, "state", string(session.State))
		session.State = repo.StateGreeting
		session.Cart = repo.CartData{}
		session.Pending = nil
	}

	if e.metrics != nil {
		e.metrics.BotIncoming.WithLabelValues(string(session.State)).Inc()
	}
	e.audit(ctx, session.ID, "in", in.Text)

	if in.MessageID != "" {
		if err := e.messenger.MarkRead(ctx, customerPhone, []string{in.MessageID}); err != nil {
			e.logger.Warn("mark read failed", "error", err)
		}
	}

	idx, err := e.catalog.Index(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	res := step(session, in, idx)

	if res.CreateOrder {
		return e.completeCheckout(ctx, session, res)
	}

	if res.TrackOrder {
		res.Replies = append(res.Replies, e.trackingReply(ctx, tenantID, customerPhone))
		res.State = repo.StateGreeting
	}

	if err := e.saveSession(ctx, session, res); err != nil {
		return err
	}
	e.send(ctx, session, customerPhone, res.Replies)
	return nil
}

// completeCheckout materializes the cart into a canonical order. This is the
// single handler of the CreateOrder signal: the order is created exactly
// once, then the session resets to greeting with the customer name kept.
func (e *Engine) completeCheckout(ctx context.Context, session *repo.ChatSession, res StepResult) error {
	cart := order.ChatCart{
		CustomerPhone: session.CustomerPhone,
		CustomerName:  res.Cart.CustomerName,
		Address:       res.Cart.CustomerAddress,
		OrderType:     res.Cart.OrderType,
		Lines:         res.Cart.Lines,
	}

	created, fresh, err := e.orders.CreateFromChannel(ctx, session.TenantID, cart)
	if err != nil {
		// Persistence failure: keep the session in checkout so the customer
		// can retry the confirming message.
		return fmt.Errorf("materialize cart: %w", err)
	}
	if !fresh {
		e.logger.Info("checkout hit dedupe window, reusing order",
			"tenant_id", session.TenantID, "order_id", created.ID)
	}

	res.State = repo.StateGreeting
	res.Cart = repo.CartData{}
	res.Pending = nil
	if err := e.saveSession(ctx, session, res); err != nil {
		return err
	}

	if err := e.messenger.SendOrderConfirmation(ctx, session.CustomerPhone, created); err != nil {
		// Best-effort: the order exists, the kitchen has it.
		e.logger.Warn("order confirmation send failed", "error", err, "order_id", created.ID)
	} else if e.metrics != nil {
		e.metrics.BotOutgoing.WithLabelValues(string(ReplyConfirmation)).Inc()
	}
	e.audit(ctx, session.ID, "out", "order confirmation "+created.ID)
	return nil
}

func (e *Engine) trackingReply(ctx context.Context, tenantID, customerPhone string) Reply {
	active, err := e.store.LatestActiveOrderByPhone(ctx, tenantID, customerPhone)
	if errors.Is(err, repo.ErrNotFound) {
		return Reply{Kind: ReplyText, Text: "No encontré pedidos activos a tu nombre. Escribe *menú* para hacer uno nuevo."}
	}
	if err != nil {
		e.logger.Warn("tracking lookup failed", "error", err)
		return Reply{Kind: ReplyText, Text: "No pude consultar tu pedido ahora mismo. Intenta de nuevo en unos minutos."}
	}

	status := map[repo.OrderStatus]string{
		repo.StatusPending:   "recibido, esperando confirmación de la cocina",
		repo.StatusAccepted:  "confirmado por la cocina",
		repo.StatusPreparing: "en preparación 🔥",
		repo.StatusReady:     "listo para entrega",
		repo.StatusServed:    "entregado",
	}[active.Status]
	if status == "" {
		status = string(active.Status)
	}
	return Reply{Kind: ReplyText, Text: fmt.Sprintf("Tu pedido está *%s*. Total: $%s", status, formatMoney(active.Total))}
}

func (e *Engine) saveSession(ctx context.Context, session *repo.ChatSession, res StepResult) error {
	session.State = res.State
	session.Cart = res.Cart
	session.Pending = res.Pending
	if res.CustomerName != "" {
		name := res.CustomerName
		session.CustomerName = &name
	}
	if err := e.store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// send delivers replies best-effort. The domain state change already
// happened; messaging failures are logged, never propagated.
func (e *Engine) send(ctx context.Context, session *repo.ChatSession, to string, replies []Reply) {
	for _, reply := range replies {
		var err error
		switch reply.Kind {
		case ReplyButtons:
			buttons := reply.Buttons
			if len(buttons) > maxButtons {
				buttons = buttons[:maxButtons]
			}
			err = e.messenger.SendButtons(ctx, to, reply.Text, buttons)
		case ReplyList:
			err = e.messenger.SendList(ctx, to, reply.Text, reply.ListButton, reply.Sections)
		case ReplyConfirmation:
			err = e.messenger.SendOrderConfirmation(ctx, to, reply.Order)
		default:
			err = e.messenger.SendText(ctx, to, reply.Text)
		}
		if err != nil {
			e.logger.Warn("outbound message failed", "error", err, "kind", string(reply.Kind))
			if e.metrics != nil {
				e.metrics.Errors.WithLabelValues("bot_send").Inc()
			}
			continue
		}
		if e.metrics != nil {
			e.metrics.BotOutgoing.WithLabelValues(string(reply.Kind)).Inc()
		}
		e.audit(ctx, session.ID, "out", reply.Text)
	}
}

func (e *Engine) audit(ctx context.Context, sessionID, direction, body string) {
	if err := e.store.InsertChatMessage(ctx, repo.ChatMessage{
		SessionID: sessionID,
		Direction: direction,
		Body:      body,
	}); err != nil {
		e.logger.Warn("chat audit insert failed", "error", err)
	}
}

// acquireSession blocks until the caller owns the conversation behind key.
func (e *Engine) acquireSession(key string) *sessionLock {
	e.mu.Lock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sessionLock{}
		e.locks[key] = lock
	}
	lock.refs++
	e.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (e *Engine) releaseSession(key string, lock *sessionLock) {
	lock.mu.Unlock()

	e.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(e.locks, key)
	}
	e.mu.Unlock()
}
