package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
	"github.com/Z1Code/gastrocloud-sub000/internal/order"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// peyaEnvelope mirrors the PedidosYa webhook body. The restaurant block
// carries the integration id used for identifier-lookup tenant resolution.
type peyaEnvelope struct {
	Event      string `json:"event"`
	Restaurant struct {
		IntegrationID string `json:"integration_id"`
	} `json:"restaurant"`
	Order PedidosYaOrder `json:"order"`
}

// PedidosYaOrder is the marketplace's order payload.
type PedidosYaOrder struct {
	Code   string `json:"code"`
	Pickup bool   `json:"pickup"`
	Notes  string `json:"notes"`
	User   struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"user"`
	Products []PedidosYaProduct `json:"products"`
	Payment  struct {
		Subtotal float64 `json:"subtotal"`
		Tax      float64 `json:"tax"`
		Tip      float64 `json:"tip"`
		Discount float64 `json:"discount"`
		Total    float64 `json:"total"`
	} `json:"payment"`
}

// PedidosYaProduct is one marketplace line with optional paid options.
type PedidosYaProduct struct {
	IntegrationCode string  `json:"integration_code"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	UnitPrice       float64 `json:"unit_price"`
	Comment         string  `json:"comment"`
	Options         []struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	} `json:"options"`
}

// ParsePedidosYa decodes a raw webhook body into event name, integration id,
// and the tagged order variant.
func ParsePedidosYa(raw []byte) (string, string, PedidosYaOrder, error) {
	var env peyaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", "", PedidosYaOrder{}, fmt.Errorf("decode pedidosya payload: %w", err)
	}
	return env.Event, env.Restaurant.IntegrationID, env.Order, nil
}

// PeekIntegrationID extracts just the restaurant integration id so tenant
// resolution can run before the full payload is trusted.
func PeekIntegrationID(raw []byte) string {
	var env peyaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Restaurant.IntegrationID
}

// Channel implements order.ChannelOrder.
func (o PedidosYaOrder) Channel() channel.Channel {
	return channel.PedidosYa
}

// Normalize implements order.ChannelOrder.
func (o PedidosYaOrder) Normalize(idx *order.CatalogIndex) (repo.Order, []order.UnmatchedWarning) {
	var warnings []order.UnmatchedWarning
	items := make([]repo.OrderItem, 0, len(o.Products))
	for _, product := range o.Products {
		var modifiers []repo.Modifier
		for _, option := range product.Options {
			modifiers = append(modifiers, repo.Modifier{
				Name:  option.Name,
				Price: order.RoundMoney(option.Price),
			})
		}
		var notes *string
		if product.Comment != "" {
			comment := product.Comment
			notes = &comment
		}
		item, warn := order.ResolveLine(idx, product.Name, product.IntegrationCode, product.Quantity, order.RoundMoney(product.UnitPrice), modifiers, notes)
		if warn != nil {
			warnings = append(warnings, *warn)
		}
		items = append(items, item)
	}

	name := o.User.Name
	if name == "" {
		name = channel.PedidosYa.GenericCustomerName()
	}
	orderType := repo.OrderTypeDelivery
	if o.Pickup {
		orderType = repo.OrderTypePickup
	}

	result := repo.Order{
		Channel:      channel.PedidosYa,
		OrderType:    orderType,
		Status:       repo.StatusPending,
		CustomerName: name,
		Subtotal:     order.RoundMoney(o.Payment.Subtotal),
		Tax:          order.RoundMoney(o.Payment.Tax),
		Tip:          order.RoundMoney(o.Payment.Tip),
		Discount:     order.RoundMoney(o.Payment.Discount),
		Total:        order.RoundMoney(o.Payment.Total),
		Items:        items,
	}
	if o.Code != "" {
		extID := o.Code
		result.ExternalOrderID = &extID
	}
	if o.User.Phone != "" {
		phone := o.User.Phone
		result.CustomerPhone = &phone
	}
	if o.Notes != "" {
		notes := o.Notes
		result.Notes = &notes
	}
	return result, warnings
}
