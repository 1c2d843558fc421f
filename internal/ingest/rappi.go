package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
	"github.com/Z1Code/gastrocloud-sub000/internal/order"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// rappiEnvelope mirrors the Rappi webhook body.
type rappiEnvelope struct {
	Event string     `json:"event"`
	Order RappiOrder `json:"order"`
}

// RappiOrder is the marketplace's order payload. Amounts arrive as
// channel-native numbers and are rounded to integer currency on ingestion.
type RappiOrder struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Notes    string `json:"notes"`
	Customer struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"customer"`
	Items  []RappiItem `json:"items"`
	Totals struct {
		Subtotal float64 `json:"subtotal"`
		Tax      float64 `json:"tax"`
		Tip      float64 `json:"tip"`
		Discount float64 `json:"discount"`
		Total    float64 `json:"total"`
	} `json:"totals"`
}

// RappiItem is one marketplace line with optional toppings.
type RappiItem struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Units     int     `json:"units"`
	UnitPrice float64 `json:"unit_price"`
	Comments  string  `json:"comments"`
	Toppings  []struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	} `json:"toppings"`
}

// ParseRappi decodes a raw webhook body into the tagged variant plus the
// event name.
func ParseRappi(raw []byte) (string, RappiOrder, error) {
	var env rappiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", RappiOrder{}, fmt.Errorf("decode rappi payload: %w", err)
	}
	return env.Event, env.Order, nil
}

// Channel implements order.ChannelOrder.
func (o RappiOrder) Channel() channel.Channel {
	return channel.Rappi
}

// Normalize implements order.ChannelOrder.
func (o RappiOrder) Normalize(idx *order.CatalogIndex) (repo.Order, []order.UnmatchedWarning) {
	var warnings []order.UnmatchedWarning
	items := make([]repo.OrderItem, 0, len(o.Items))
	for _, line := range o.Items {
		var modifiers []repo.Modifier
		for _, topping := range line.Toppings {
			modifiers = append(modifiers, repo.Modifier{
				Name:  topping.Name,
				Price: order.RoundMoney(topping.Price),
			})
		}
		var notes *string
		if line.Comments != "" {
			comments := line.Comments
			notes = &comments
		}
		item, warn := order.ResolveLine(idx, line.Name, line.SKU, line.Units, order.RoundMoney(line.UnitPrice), modifiers, notes)
		if warn != nil {
			warnings = append(warnings, *warn)
		}
		items = append(items, item)
	}

	name := o.Customer.Name
	if name == "" {
		name = channel.Rappi.GenericCustomerName()
	}
	orderType := repo.OrderTypeDelivery
	if o.Type == "pickup" {
		orderType = repo.OrderTypePickup
	}

	result := repo.Order{
		Channel:      channel.Rappi,
		OrderType:    orderType,
		Status:       repo.StatusPending,
		CustomerName: name,
		Subtotal:     order.RoundMoney(o.Totals.Subtotal),
		Tax:          order.RoundMoney(o.Totals.Tax),
		Tip:          order.RoundMoney(o.Totals.Tip),
		Discount:     order.RoundMoney(o.Totals.Discount),
		Total:        order.RoundMoney(o.Totals.Total),
		Items:        items,
	}
	if o.ID != "" {
		extID := o.ID
		result.ExternalOrderID = &extID
	}
	if o.Customer.Phone != "" {
		phone := o.Customer.Phone
		result.CustomerPhone = &phone
	}
	if o.Notes != "" {
		notes := o.Notes
		result.Notes = &notes
	}
	return result, warnings
}
