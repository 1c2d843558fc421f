package repo

import (
	"context"
	"io/fs"
	"time"

	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
)

// Store defines the persistence interface consumed by the intake pipeline.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Tenant channel configs
	ListActiveChannelConfigs(ctx context.Context, ch channel.Channel) ([]TenantChannelConfig, error)
	GetChannelConfigByExternalID(ctx context.Context, ch channel.Channel, externalID string) (*TenantChannelConfig, error)

	// Catalog
	ListActiveCatalogItems(ctx context.Context, tenantID string) ([]CatalogItem, error)

	// Orders
	InsertOrderWithItems(ctx context.Context, order Order) (*Order, bool, error)
	GetOrderByID(ctx context.Context, tenantID, orderID string) (*Order, error)
	GetOrderByExternalID(ctx context.Context, tenantID string, ch channel.Channel, externalOrderID string) (*Order, error)
	LatestOrderSince(ctx context.Context, tenantID string, ch channel.Channel, customerPhone string, since time.Time) (*Order, error)
	LatestActiveOrderByPhone(ctx context.Context, tenantID, customerPhone string) (*Order, error)
	ListActiveOrders(ctx context.Context, tenantID string) ([]Order, error)
	AdvanceOrderStatus(ctx context.Context, tenantID, orderID string, from, to OrderStatus) (*Order, error)
	CancelOrder(ctx context.Context, tenantID, orderID string) (*Order, error)

	// Chat sessions
	GetOrCreateSession(ctx context.Context, tenantID, customerPhone string) (*ChatSession, error)
	SaveSession(ctx context.Context, session *ChatSession) error
	InsertChatMessage(ctx context.Context, msg ChatMessage) error
}
