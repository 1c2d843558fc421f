package repo

import (
	"time"

	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
)

// OrderStatus enumerates the canonical order lifecycle.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusAccepted  OrderStatus = "accepted"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusServed    OrderStatus = "served"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// Active reports whether an order in this status still belongs on the
// kitchen display.
func (s OrderStatus) Active() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPreparing:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Next returns the single permitted operator advance from this status.
// Transitions are advance-only; skipping is not allowed.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case StatusPending:
		return StatusAccepted, true
	case StatusAccepted:
		return StatusPreparing, true
	case StatusPreparing:
		return StatusReady, true
	case StatusReady:
		return StatusServed, true
	case StatusServed:
		return StatusCompleted, true
	}
	return "", false
}

// Station identifies a kitchen preparation area.
type Station string

const (
	StationKitchen Station = "kitchen"
	StationBar     Station = "bar"
	StationGrill   Station = "grill"
	StationDessert Station = "dessert"
)

// OrderType distinguishes how the customer receives the order.
type OrderType string

const (
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDelivery OrderType = "delivery"
)

// TenantChannelConfig is one (tenant, channel) integration row. Secrets are
// stored sealed; callers decrypt through secrets.Box.
type TenantChannelConfig struct {
	ID              string
	TenantID        string
	Channel         channel.Channel
	CredentialsBlob string
	ExternalID      *string
	WebhookSecret   string
	Active          bool
	Sandbox         bool
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Order is the canonical, channel-agnostic order representation. Monetary
// fields are integers in the tenant's currency unit.
type Order struct {
	ID               string
	TenantID         string
	BranchID         *string
	Channel          channel.Channel
	OrderType        OrderType
	Status           OrderStatus
	CustomerName     string
	CustomerPhone    *string
	CustomerAddress  *string
	ExternalOrderID  *string
	Subtotal         int64
	Tax              int64
	Tip              int64
	Discount         int64
	Total            int64
	Notes            *string
	TotalSeconds     int
	EstimatedReadyAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Items            []OrderItem
}

// Modifier is a priced add-on attached to an order item.
type Modifier struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// OrderItem is one canonical order line. A nil CatalogItemID marks an
// unmatched external line kept for manual reconciliation; the order is still
// created so the kitchen is not blocked.
type OrderItem struct {
	ID            string
	OrderID       string
	CatalogItemID *string
	Name          string
	Quantity      int
	UnitPrice     int64
	Modifiers     []Modifier
	Station       Station
	Notes         *string
}

// Unmatched reports whether the line could not be resolved to the catalog.
func (i OrderItem) Unmatched() bool {
	return i.CatalogItemID == nil
}

// LineTotal is quantity x (unit price + modifier prices).
func (i OrderItem) LineTotal() int64 {
	total := i.UnitPrice
	for _, m := range i.Modifiers {
		total += m.Price
	}
	return total * int64(i.Quantity)
}

// CatalogItem is one active menu entry readable by the normalizer and bot.
type CatalogItem struct {
	ID          string
	TenantID    string
	CategoryID  *string
	Category    string
	Name        string
	Description *string
	Price       int64
	Station     Station
	ExternalRef *string
	Active      bool
}

// SessionState enumerates the conversational bot states.
type SessionState string

const (
	StateGreeting     SessionState = "greeting"
	StateBrowsingMenu SessionState = "browsing_menu"
	StateAddingItems  SessionState = "adding_items"
	StateCheckout     SessionState = "checkout"
	StateConfirmed    SessionState = "confirmed"
	StateTracking     SessionState = "tracking"
)

// Valid reports whether the stored state is one the engine knows. Unknown
// states fall back to greeting instead of failing the request.
func (s SessionState) Valid() bool {
	switch s {
	case StateGreeting, StateBrowsingMenu, StateAddingItems, StateCheckout, StateConfirmed, StateTracking:
		return true
	}
	return false
}

// CartLine is one provisional line in a chat cart.
type CartLine struct {
	CatalogItemID string     `json:"catalog_item_id"`
	Name          string     `json:"name"`
	Quantity      int        `json:"quantity"`
	UnitPrice     int64      `json:"unit_price"`
	Modifiers     []Modifier `json:"modifiers,omitempty"`
	Station       Station    `json:"station"`
}

// PendingSelection is the short-lived scratch state between the turn that
// picks an item and the turn that supplies a quantity. It lives on the
// session row, never in process memory, so any instance can serve the next
// turn.
type PendingSelection struct {
	CatalogItemID string  `json:"catalog_item_id"`
	Name          string  `json:"name"`
	UnitPrice     int64   `json:"unit_price"`
	Station       Station `json:"station"`
}

// CartData is the persisted chat cart plus the checkout fields gathered so far.
type CartData struct {
	Lines           []CartLine `json:"lines,omitempty"`
	OrderType       OrderType  `json:"order_type,omitempty"`
	CustomerName    string     `json:"customer_name,omitempty"`
	CustomerAddress string     `json:"customer_address,omitempty"`
	CheckoutStarted bool       `json:"checkout_started,omitempty"`
}

// Subtotal sums line totals across the cart.
func (c CartData) Subtotal() int64 {
	var total int64
	for _, line := range c.Lines {
		lineTotal := line.UnitPrice
		for _, m := range line.Modifiers {
			lineTotal += m.Price
		}
		total += lineTotal * int64(line.Quantity)
	}
	return total
}

// ChatSession is one conversational ordering session per (tenant, phone).
type ChatSession struct {
	ID            string
	TenantID      string
	CustomerPhone string
	State         SessionState
	Cart          CartData
	CustomerName  *string
	Pending       *PendingSelection
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChatMessage is one audited inbound or outbound chat turn.
type ChatMessage struct {
	ID        string
	SessionID string
	Direction string
	Body      string
	CreatedAt time.Time
}
