// Package repotest provides an in-memory repo.Store for package tests.
package repotest

import (
	"context"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// Store implements repo.Store in memory, including the semantics tests care
// about: the unique external-id constraint, advance-only status updates, and
// single-session-per-phone upserts.
type Store struct {
	mu sync.Mutex

	Configs  []repo.TenantChannelConfig
	Catalog  []repo.CatalogItem
	Orders   map[string]*repo.Order
	Sessions map[string]*repo.ChatSession
	Messages []repo.ChatMessage

	// InsertAttempts counts InsertOrderWithItems calls, duplicates included.
	InsertAttempts int

	// Now is the clock used for created/updated stamps.
	Now func() time.Time
}

var _ repo.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		Orders:   map[string]*repo.Order{},
		Sessions: map[string]*repo.ChatSession{},
		Now:      time.Now,
	}
}

func (s *Store) Close() {}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) RunMigrations(ctx context.Context, _ fs.FS) error { return nil }

func (s *Store) ListActiveChannelConfigs(ctx context.Context, ch channel.Channel) ([]repo.TenantChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repo.TenantChannelConfig
	for _, cfg := range s.Configs {
		if cfg.Channel == ch && cfg.Active {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (s *Store) GetChannelConfigByExternalID(ctx context.Context, ch channel.Channel, externalID string) (*repo.TenantChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx := range s.Configs {
		cfg := s.Configs[idx]
		if cfg.Channel == ch && cfg.Active && cfg.ExternalID != nil && *cfg.ExternalID == externalID {
			return &cfg, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *Store) ListActiveCatalogItems(ctx context.Context, tenantID string) ([]repo.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repo.CatalogItem
	for _, item := range s.Catalog {
		if item.TenantID == tenantID && item.Active {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *Store) InsertOrderWithItems(ctx context.Context, order repo.Order) (*repo.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InsertAttempts++

	if order.ExternalOrderID != nil {
		for _, existing := range s.Orders {
			if existing.TenantID == order.TenantID &&
				existing.Channel == order.Channel &&
				existing.ExternalOrderID != nil &&
				*existing.ExternalOrderID == *order.ExternalOrderID {
				dup := *existing
				return &dup, false, nil
			}
		}
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.Now()
	}
	order.UpdatedAt = order.CreatedAt
	for idx := range order.Items {
		if order.Items[idx].ID == "" {
			order.Items[idx].ID = uuid.NewString()
		}
		order.Items[idx].OrderID = order.ID
	}

	stored := order
	s.Orders[order.ID] = &stored
	result := stored
	return &result, true, nil
}

func (s *Store) GetOrderByID(ctx context.Context, tenantID, orderID string) (*repo.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[orderID]
	if !ok || order.TenantID != tenantID {
		return nil, repo.ErrNotFound
	}
	out := *order
	return &out, nil
}

func (s *Store) GetOrderByExternalID(ctx context.Context, tenantID string, ch channel.Channel, externalOrderID string) (*repo.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.Orders {
		if order.TenantID == tenantID && order.Channel == ch &&
			order.ExternalOrderID != nil && *order.ExternalOrderID == externalOrderID {
			out := *order
			return &out, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *Store) LatestOrderSince(ctx context.Context, tenantID string, ch channel.Channel, customerPhone string, since time.Time) (*repo.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *repo.Order
	for _, order := range s.Orders {
		if order.TenantID != tenantID || order.Channel != ch {
			continue
		}
		if order.CustomerPhone == nil || *order.CustomerPhone != customerPhone {
			continue
		}
		if order.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || order.CreatedAt.After(latest.CreatedAt) {
			latest = order
		}
	}
	if latest == nil {
		return nil, repo.ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (s *Store) LatestActiveOrderByPhone(ctx context.Context, tenantID, customerPhone string) (*repo.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *repo.Order
	for _, order := range s.Orders {
		if order.TenantID != tenantID || order.Status.Terminal() {
			continue
		}
		if order.CustomerPhone == nil || *order.CustomerPhone != customerPhone {
			continue
		}
		if latest == nil || order.CreatedAt.After(latest.CreatedAt) {
			latest = order
		}
	}
	if latest == nil {
		return nil, repo.ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (s *Store) ListActiveOrders(ctx context.Context, tenantID string) ([]repo.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repo.Order
	for _, order := range s.Orders {
		if order.TenantID == tenantID && order.Status.Active() {
			out = append(out, *order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AdvanceOrderStatus(ctx context.Context, tenantID, orderID string, from, to repo.OrderStatus) (*repo.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[orderID]
	if !ok || order.TenantID != tenantID || order.Status != from {
		return nil, repo.ErrInvalidTransition
	}
	order.Status = to
	order.UpdatedAt = s.Now()
	out := *order
	return &out, nil
}

func (s *Store) CancelOrder(ctx context.Context, tenantID, orderID string) (*repo.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[orderID]
	if !ok || order.TenantID != tenantID || order.Status.Terminal() {
		return nil, repo.ErrInvalidTransition
	}
	order.Status = repo.StatusCancelled
	order.UpdatedAt = s.Now()
	out := *order
	return &out, nil
}

func (s *Store) GetOrCreateSession(ctx context.Context, tenantID, customerPhone string) (*repo.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantID + "|" + customerPhone
	if session, ok := s.Sessions[key]; ok {
		out := *session
		return &out, nil
	}
	now := s.Now()
	session := &repo.ChatSession{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		CustomerPhone: customerPhone,
		State:         repo.StateGreeting,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.Sessions[key] = session
	out := *session
	return &out, nil
}

func (s *Store) SaveSession(ctx context.Context, session *repo.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := session.TenantID + "|" + session.CustomerPhone
	now := s.Now()
	stored := *session
	stored.LastMessageAt = now
	stored.UpdatedAt = now
	s.Sessions[key] = &stored
	return nil
}

func (s *Store) InsertChatMessage(ctx context.Context, msg repo.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = s.Now()
	s.Messages = append(s.Messages, msg)
	return nil
}

// Session returns the stored session for (tenant, phone), or nil.
func (s *Store) Session(tenantID, customerPhone string) *repo.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.Sessions[tenantID+"|"+customerPhone]
	if !ok {
		return nil
	}
	out := *session
	return &out
}

// AllOrders returns every stored order.
func (s *Store) AllOrders() []repo.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repo.Order, 0, len(s.Orders))
	for _, order := range s.Orders {
		out = append(out, *order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
