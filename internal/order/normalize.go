// Package order holds the canonical order pipeline: catalog resolution,
// channel payload normalization, the idempotency guard, and the service that
// persists and broadcasts accepted orders.
package order

import (
	"math"

	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// UnmatchedWarning flags an external line that could not be resolved to the
// catalog. The order is still created; the line carries the unmatched
// sentinel and is surfaced for manual reconciliation.
type UnmatchedWarning struct {
	Title       string
	ExternalRef string
}

// ChannelOrder is a channel payload normalized through a single interface.
// Each channel contributes its own tagged variant instead of shape-sniffing
// a generic map.
type ChannelOrder interface {
	Channel() channel.Channel
	Normalize(idx *CatalogIndex) (repo.Order, []UnmatchedWarning)
}

// RoundMoney rounds channel-native amounts to integer currency units.
// Fractional currency never travels past ingestion.
func RoundMoney(v float64) int64 {
	return int64(math.Round(v))
}

// ResolveLine matches one external line against the catalog and returns the
// canonical item plus an optional warning. Unmatched lines default to the
// kitchen station.
func ResolveLine(idx *CatalogIndex, title, externalRef string, quantity int, unitPrice int64, modifiers []repo.Modifier, notes *string) (repo.OrderItem, *UnmatchedWarning) {
	if quantity < 1 {
		quantity = 1
	}
	item := repo.OrderItem{
		Name:      title,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Modifiers: modifiers,
		Station:   repo.StationKitchen,
		Notes:     notes,
	}

	matched, ok := idx.Resolve(title, externalRef)
	if !ok {
		return item, &UnmatchedWarning{Title: title, ExternalRef: externalRef}
	}
	id := matched.ID
	item.CatalogItemID = &id
	item.Station = matched.Station
	if item.UnitPrice == 0 {
		item.UnitPrice = matched.Price
	}
	return item, nil
}

// SumItems computes subtotal from canonical lines. Used for channels that
// carry no platform-side totals block.
func SumItems(items []repo.OrderItem) int64 {
	var subtotal int64
	for _, item := range items {
		subtotal += item.LineTotal()
	}
	return subtotal
}

// ChatCart is the chat-commerce variant: a confirmed cart materialized into a
// canonical order. It has no platform totals, so totals are computed from the
// lines, and no stable external order id.
type ChatCart struct {
	CustomerPhone string
	CustomerName  string
	Address       string
	OrderType     repo.OrderType
	Lines         []repo.CartLine
	Notes         string
}

// Channel implements ChannelOrder.
func (c ChatCart) Channel() channel.Channel {
	return channel.WhatsApp
}

// Normalize implements ChannelOrder. Cart lines were already resolved against
// the catalog when the customer picked them, but they are re-resolved here so
// menu edits between picking and confirming still land on current stations
// and ids.
func (c ChatCart) Normalize(idx *CatalogIndex) (repo.Order, []UnmatchedWarning) {
	var warnings []UnmatchedWarning
	items := make([]repo.OrderItem, 0, len(c.Lines))
	for _, line := range c.Lines {
		item, warn := ResolveLine(idx, line.Name, line.CatalogItemID, line.Quantity, line.UnitPrice, line.Modifiers, nil)
		if warn != nil {
			warnings = append(warnings, *warn)
		}
		items = append(items, item)
	}

	name := c.CustomerName
	if name == "" {
		name = channel.WhatsApp.GenericCustomerName()
	}
	orderType := c.OrderType
	if orderType == "" {
		orderType = repo.OrderTypePickup
	}

	subtotal := SumItems(items)
	order := repo.Order{
		Channel:      channel.WhatsApp,
		OrderType:    orderType,
		Status:       repo.StatusPending,
		CustomerName: name,
		Subtotal:     subtotal,
		Total:        subtotal,
		Items:        items,
	}
	if c.CustomerPhone != "" {
		phone := c.CustomerPhone
		order.CustomerPhone = &phone
	}
	if c.Address != "" {
		addr := c.Address
		order.CustomerAddress = &addr
	}
	if c.Notes != "" {
		notes := c.Notes
		order.Notes = &notes
	}
	return order, warnings
}
