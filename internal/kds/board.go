// Package kds projects the live order stream onto kitchen displays: an
// in-memory board reduced from broadcast events, urgency countdowns, and the
// operator actions that move tickets through the kitchen.
package kds

import (
	"sort"
	"sync"
	"time"

	"github.com/Z1Code/gastrocloud-sub000/internal/broadcast"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// Urgency bands a ticket by how much of its preparation window remains.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// Thresholds are the fractions of remaining time below which a ticket
// escalates. Zero values take the defaults.
type Thresholds struct {
	WarningBelow  float64
	CriticalBelow float64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.WarningBelow <= 0 {
		t.WarningBelow = 0.33
	}
	if t.CriticalBelow <= 0 {
		t.CriticalBelow = 0.10
	}
	return t
}

// ItemView is one ticket line as the kitchen sees it.
type ItemView struct {
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	Station   repo.Station `json:"station"`
	Modifiers []string     `json:"modifiers,omitempty"`
	Notes     *string      `json:"notes,omitempty"`
	Unmatched bool         `json:"unmatched,omitempty"`
}

// OrderView is one ticket on the board, annotated with its countdown.
type OrderView struct {
	ID               string           `json:"id"`
	Channel          string           `json:"channel"`
	OrderType        repo.OrderType   `json:"orderType"`
	Status           repo.OrderStatus `json:"status"`
	CustomerName     string           `json:"customerName"`
	Notes            *string          `json:"notes,omitempty"`
	PlacedAt         time.Time        `json:"placedAt"`
	EstimatedReadyAt *time.Time       `json:"estimatedReadyAt,omitempty"`
	SecondsRemaining int              `json:"secondsRemaining"`
	PercentRemaining float64          `json:"percentRemaining"`
	Urgency          Urgency          `json:"urgency"`
	Items            []ItemView       `json:"items"`
}

// Board holds one tenant's active tickets, reduced from the snapshot plus the
// event stream. The same reduction runs server-side for every connection, so
// a reconnecting display only needs the latest snapshot frame.
type Board struct {
	mu         sync.Mutex
	orders     map[string]repo.Order
	thresholds Thresholds
}

// NewBoard creates an empty board.
func NewBoard(thresholds Thresholds) *Board {
	return &Board{
		orders:     map[string]repo.Order{},
		thresholds: thresholds.withDefaults(),
	}
}

// Reset replaces the board contents with a snapshot of active orders.
func (b *Board) Reset(orders []repo.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = make(map[string]repo.Order, len(orders))
	for _, order := range orders {
		if order.Status.Active() {
			b.orders[order.ID] = order
		}
	}
}

// Apply reduces one event into the board: created and still-active orders are
// upserted, everything else leaves the board.
func (b *Board) Apply(evt broadcast.Event) {
	if evt.Order == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if evt.Type == broadcast.EventOrderCancelled || !evt.Order.Status.Active() {
		delete(b.orders, evt.Order.ID)
		return
	}
	b.orders[evt.Order.ID] = *evt.Order
}

// Views projects the board for display at the given instant, oldest ticket
// first. A non-empty station keeps only tickets with at least one line for
// that station.
func (b *Board) Views(now time.Time, station repo.Station) []OrderView {
	b.mu.Lock()
	defer b.mu.Unlock()

	views := make([]OrderView, 0, len(b.orders))
	for _, order := range b.orders {
		if station != "" && !hasStation(order, station) {
			continue
		}
		views = append(views, Project(order, now, b.thresholds))
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].PlacedAt.Equal(views[j].PlacedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].PlacedAt.Before(views[j].PlacedAt)
	})
	return views
}

// Size reports the number of active tickets.
func (b *Board) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

// Project computes the display view of one order at the given instant.
func Project(order repo.Order, now time.Time, thresholds Thresholds) OrderView {
	thresholds = thresholds.withDefaults()

	view := OrderView{
		ID:               order.ID,
		Channel:          string(order.Channel),
		OrderType:        order.OrderType,
		Status:           order.Status,
		CustomerName:     order.CustomerName,
		Notes:            order.Notes,
		PlacedAt:         order.CreatedAt,
		EstimatedReadyAt: order.EstimatedReadyAt,
		Items:            make([]ItemView, 0, len(order.Items)),
	}

	for _, item := range order.Items {
		mods := make([]string, 0, len(item.Modifiers))
		for _, m := range item.Modifiers {
			mods = append(mods, m.Name)
		}
		view.Items = append(view.Items, ItemView{
			Name:      item.Name,
			Quantity:  item.Quantity,
			Station:   item.Station,
			Modifiers: mods,
			Notes:     item.Notes,
			Unmatched: item.Unmatched(),
		})
	}

	fraction := remainingFraction(order, now)
	view.PercentRemaining = fraction * 100
	if order.EstimatedReadyAt != nil {
		remaining := order.EstimatedReadyAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		view.SecondsRemaining = int(remaining / time.Second)
	}

	switch {
	case order.EstimatedReadyAt == nil:
		view.Urgency = UrgencyNormal
	case fraction < thresholds.CriticalBelow:
		view.Urgency = UrgencyCritical
	case fraction < thresholds.WarningBelow:
		view.Urgency = UrgencyWarning
	default:
		view.Urgency = UrgencyNormal
	}
	return view
}

// remainingFraction is the share of the preparation window still left,
// clamped to [0, 1]. Orders without an estimate report a full window.
func remainingFraction(order repo.Order, now time.Time) float64 {
	if order.EstimatedReadyAt == nil || order.TotalSeconds <= 0 {
		return 1
	}
	remaining := order.EstimatedReadyAt.Sub(now).Seconds()
	fraction := remaining / float64(order.TotalSeconds)
	if fraction < 0 {
		return 0
	}
	if fraction > 1 {
		return 1
	}
	return fraction
}

func hasStation(order repo.Order, station repo.Station) bool {
	for _, item := range order.Items {
		if item.Station == station {
			return true
		}
	}
	return false
}
