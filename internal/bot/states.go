package bot

import (
	"fmt"
	"strings"

	"github.com/Z1Code/gastrocloud-sub000/internal/order"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// Input is one inbound customer turn: free text or a structured button/list
// reply.
type Input struct {
	Text      string
	ButtonID  string
	ListRowID string
	MessageID string
}

// choice returns the structured reply id, if any.
func (in Input) choice() string {
	if in.ButtonID != "" {
		return in.ButtonID
	}
	return in.ListRowID
}

func (in Input) normalized() string {
	return strings.ToLower(strings.TrimSpace(in.Text))
}

// StepResult is the outcome of one conversational turn. CreateOrder=true is
// the only trigger for materializing the cart into a canonical order and must
// be handled exactly once by the engine.
type StepResult struct {
	State        repo.SessionState
	Cart         repo.CartData
	CustomerName string
	Pending      *repo.PendingSelection
	CreateOrder  bool
	TrackOrder   bool
	Replies      []Reply
}

var (
	greetingKeywords = []string{"hola", "hi", "hello", "buenas", "buenos dias", "buenos días", "hey"}
	cancelKeywords   = []string{"cancelar", "cancel", "salir", "reiniciar", "empezar de nuevo"}
	menuKeywords     = []string{"menu", "menú", "carta", "ver menu", "ver menú", "pedir", "ordenar", "quiero pedir"}
	trackKeywords    = []string{"estado", "seguimiento", "mi pedido", "track", "seguir"}
	cartKeywords     = []string{"carrito", "ver carrito", "cart"}
	checkoutKeywords = []string{"finalizar", "finalizar pedido", "pagar", "checkout", "confirmar pedido"}
	yesKeywords      = []string{"si", "sí", "confirmar", "dale", "ok", "listo"}
)

const (
	btnMenu     = "menu"
	btnTrack    = "track"
	btnCart     = "cart"
	btnCheckout = "checkout"
	btnMore     = "more"
	btnConfirm  = "confirm"
	btnKeepOn   = "keep_shopping"
	btnPickup   = "type:pickup"
	btnDelivery = "type:delivery"
)

// step advances the session one turn. It is pure: all persistence, order
// creation, and sends happen in the engine around it.
func step(session *repo.ChatSession, in Input, idx *order.CatalogIndex) StepResult {
	res := StepResult{
		State:   session.State,
		Cart:    session.Cart,
		Pending: session.Pending,
	}
	if session.CustomerName != nil {
		res.CustomerName = *session.CustomerName
	}

	key := in.choice()
	text := in.normalized()

	// Global resets run from any state.
	if matchesAny(text, greetingKeywords) {
		return resetToGreeting(res.CustomerName, greetingReply())
	}
	if key == "cancel" || matchesAny(text, cancelKeywords) {
		return resetToGreeting(res.CustomerName, Reply{
			Kind: ReplyText,
			Text: "Listo, cancelé tu pedido. Escribe *hola* cuando quieras empezar de nuevo.",
		}, greetingReply())
	}

	state := session.State
	if !state.Valid() {
		// Corrupted/unknown state falls back to greeting instead of failing.
		state = repo.StateGreeting
	}

	switch state {
	case repo.StateGreeting:
		return stepGreeting(res, key, text, idx)
	case repo.StateBrowsingMenu:
		return stepBrowsing(res, key, text, idx)
	case repo.StateAddingItems:
		return stepAddingItems(res, in, key, text, idx)
	case repo.StateCheckout:
		return stepCheckout(res, key, text, in)
	case repo.StateTracking, repo.StateConfirmed:
		// Transient states; the engine resets them after side effects, but a
		// message racing the reset lands here. Start over politely.
		return stepGreeting(res, key, text, idx)
	}
	return resetToGreeting(res.CustomerName, greetingReply())
}

func stepGreeting(res StepResult, key, text string, idx *order.CatalogIndex) StepResult {
	switch {
	case key == btnMenu || matchesAny(text, menuKeywords):
		res.State = repo.StateBrowsingMenu
		res.Replies = []Reply{menuReply(idx)}
	case key == btnTrack || matchesAny(text, trackKeywords):
		res.State = repo.StateTracking
		res.TrackOrder = true
	default:
		res.State = repo.StateGreeting
		res.Replies = []Reply{greetingReply()}
	}
	return res
}

func stepBrowsing(res StepResult, key, text string, idx *order.CatalogIndex) StepResult {
	if key == btnCart || matchesAny(text, cartKeywords) {
		res.Replies = []Reply{cartReply(res.Cart)}
		return res
	}
	if item, ok := resolveSelection(key, text, idx); ok {
		res.State = repo.StateAddingItems
		res.Pending = &repo.PendingSelection{
			CatalogItemID: item.ID,
			Name:          item.Name,
			UnitPrice:     item.Price,
			Station:       item.Station,
		}
		res.Replies = []Reply{quantityReply(item.Name)}
		return res
	}

	res.Replies = []Reply{
		{Kind: ReplyText, Text: "No encontré ese producto. Elige uno de la lista 👇"},
		menuReply(idx),
	}
	return res
}

func stepAddingItems(res StepResult, in Input, key, text string, idx *order.CatalogIndex) StepResult {
	switch {
	case key == btnCart || matchesAny(text, cartKeywords):
		res.Replies = []Reply{cartReply(res.Cart)}
		return res
	case key == btnMore:
		res.State = repo.StateBrowsingMenu
		res.Replies = []Reply{menuReply(idx)}
		return res
	case key == btnCheckout || matchesAny(text, checkoutKeywords):
		return startCheckout(res)
	}

	if res.Pending == nil {
		// No pending selection: maybe the customer picked another item.
		if item, ok := resolveSelection(key, text, idx); ok {
			res.Pending = &repo.PendingSelection{
				CatalogItemID: item.ID,
				Name:          item.Name,
				UnitPrice:     item.Price,
				Station:       item.Station,
			}
			res.Replies = []Reply{quantityReply(item.Name)}
			return res
		}
		res.State = repo.StateBrowsingMenu
		res.Replies = []Reply{menuReply(idx)}
		return res
	}

	qtyText := text
	if strings.HasPrefix(key, "qty:") {
		qtyText = strings.TrimPrefix(key, "qty:")
	}
	qty, err := ParseQuantity(qtyText)
	if err != nil {
		res.Replies = []Reply{{
			Kind: ReplyText,
			Text: fmt.Sprintf("¿Cuántos *%s* quieres? Responde con un número del 1 al 99.", res.Pending.Name),
		}}
		return res
	}

	line := repo.CartLine{
		CatalogItemID: res.Pending.CatalogItemID,
		Name:          res.Pending.Name,
		Quantity:      qty,
		UnitPrice:     res.Pending.UnitPrice,
		Station:       res.Pending.Station,
	}
	res.Cart = mergeCartLine(res.Cart, line)
	res.Pending = nil
	res.Replies = []Reply{{
		Kind: ReplyButtons,
		Text: fmt.Sprintf("Agregué %dx %s. Subtotal: $%s", qty, line.Name, formatMoney(res.Cart.Subtotal())),
		Buttons: []Button{
			{ID: btnMore, Title: "Agregar más"},
			{ID: btnCart, Title: "Ver carrito"},
			{ID: btnCheckout, Title: "Finalizar pedido"},
		},
	}}
	return res
}

func startCheckout(res StepResult) StepResult {
	if len(res.Cart.Lines) == 0 {
		res.Replies = []Reply{{
			Kind: ReplyText,
			Text: "Tu carrito está vacío. Escribe *menú* para ver nuestros productos.",
		}}
		return res
	}
	res.State = repo.StateCheckout
	res.Cart.CheckoutStarted = false
	res.Pending = nil
	res.Replies = []Reply{
		cartReply(res.Cart),
		{
			Kind: ReplyButtons,
			Text: "¿Confirmas tu pedido?",
			Buttons: []Button{
				{ID: btnConfirm, Title: "Sí, continuar"},
				{ID: btnKeepOn, Title: "Seguir agregando"},
			},
		},
	}
	return res
}

// stepCheckout walks the fixed gating order: confirm intent, order type,
// name (plus address for delivery), then hands off order creation.
func stepCheckout(res StepResult, key, text string, in Input) StepResult {
	switch {
	case !res.Cart.CheckoutStarted:
		if key == btnConfirm || matchesAny(text, yesKeywords) {
			res.Cart.CheckoutStarted = true
			res.Replies = []Reply{{
				Kind: ReplyButtons,
				Text: "¿Cómo quieres recibir tu pedido?",
				Buttons: []Button{
					{ID: btnPickup, Title: "Retiro en local"},
					{ID: btnDelivery, Title: "Delivery"},
				},
			}}
			return res
		}
		if key == btnKeepOn {
			res.State = repo.StateBrowsingMenu
			res.Cart.CheckoutStarted = false
			res.Replies = []Reply{{Kind: ReplyText, Text: "Perfecto, sigue agregando. Escribe *finalizar* cuando estés listo."}}
			return res
		}
		res.Replies = []Reply{{
			Kind: ReplyButtons,
			Text: "¿Confirmas tu pedido?",
			Buttons: []Button{
				{ID: btnConfirm, Title: "Sí, continuar"},
				{ID: btnKeepOn, Title: "Seguir agregando"},
			},
		}}
		return res

	case res.Cart.OrderType == "":
		switch {
		case key == btnPickup || strings.Contains(text, "retiro") || strings.Contains(text, "pickup") || strings.Contains(text, "local"):
			res.Cart.OrderType = repo.OrderTypePickup
			res.Replies = []Reply{{Kind: ReplyText, Text: "¿A nombre de quién dejamos el pedido?"}}
		case key == btnDelivery || strings.Contains(text, "delivery") || strings.Contains(text, "domicilio") || strings.Contains(text, "despacho"):
			res.Cart.OrderType = repo.OrderTypeDelivery
			res.Replies = []Reply{{Kind: ReplyText, Text: "Envíame tu *nombre y dirección* separados por coma. Ej: Ana Pérez, Av. Italia 1234"}}
		default:
			res.Replies = []Reply{{
				Kind: ReplyButtons,
				Text: "¿Cómo quieres recibir tu pedido?",
				Buttons: []Button{
					{ID: btnPickup, Title: "Retiro en local"},
					{ID: btnDelivery, Title: "Delivery"},
				},
			}}
		}
		return res

	case res.Cart.CustomerName == "":
		raw := strings.TrimSpace(in.Text)
		if raw == "" {
			res.Replies = []Reply{{Kind: ReplyText, Text: "¿A nombre de quién dejamos el pedido?"}}
			return res
		}
		if res.Cart.OrderType == repo.OrderTypeDelivery {
			name, address := splitNameAddress(raw)
			res.Cart.CustomerName = name
			res.CustomerName = name
			if address == "" {
				res.Replies = []Reply{{Kind: ReplyText, Text: fmt.Sprintf("Gracias %s. ¿A qué dirección enviamos tu pedido?", name)}}
				return res
			}
			res.Cart.CustomerAddress = address
			return finishCheckout(res)
		}
		res.Cart.CustomerName = raw
		res.CustomerName = raw
		return finishCheckout(res)

	case res.Cart.OrderType == repo.OrderTypeDelivery && res.Cart.CustomerAddress == "":
		raw := strings.TrimSpace(in.Text)
		if raw == "" {
			res.Replies = []Reply{{Kind: ReplyText, Text: "¿A qué dirección enviamos tu pedido?"}}
			return res
		}
		res.Cart.CustomerAddress = raw
		return finishCheckout(res)
	}

	return finishCheckout(res)
}

func finishCheckout(res StepResult) StepResult {
	res.State = repo.StateConfirmed
	res.CreateOrder = true
	res.Replies = nil // the engine sends the confirmation with real order data
	return res
}

func resetToGreeting(customerName string, replies ...Reply) StepResult {
	return StepResult{
		State:        repo.StateGreeting,
		Cart:         repo.CartData{},
		CustomerName: customerName,
		Replies:      replies,
	}
}

func greetingReply() Reply {
	return Reply{
		Kind: ReplyButtons,
		Text: "¡Hola! 👋 Soy el asistente de pedidos. ¿Qué deseas hacer?",
		Buttons: []Button{
			{ID: btnMenu, Title: "Ver menú"},
			{ID: btnTrack, Title: "Seguir mi pedido"},
		},
	}
}

func quantityReply(itemName string) Reply {
	return Reply{
		Kind: ReplyButtons,
		Text: fmt.Sprintf("¿Cuántos *%s* quieres?", itemName),
		Buttons: []Button{
			{ID: "qty:1", Title: "1"},
			{ID: "qty:2", Title: "2"},
			{ID: "qty:3", Title: "3"},
		},
	}
}

func cartReply(cart repo.CartData) Reply {
	reply := Reply{Kind: ReplyText, Text: renderCart(cart)}
	if len(cart.Lines) > 0 {
		reply.Kind = ReplyButtons
		reply.Buttons = []Button{
			{ID: btnMore, Title: "Agregar más"},
			{ID: btnCheckout, Title: "Finalizar pedido"},
		}
	}
	return reply
}

// menuReply renders the catalog as a sectioned list within platform limits.
func menuReply(idx *order.CatalogIndex) Reply {
	sections := buildMenuSections(idx.Items())
	if len(sections) == 0 {
		return Reply{Kind: ReplyText, Text: "Por ahora no tenemos productos disponibles. Intenta más tarde 🙏"}
	}
	return Reply{
		Kind:       ReplyList,
		Text:       "Este es nuestro menú. Toca *Ver opciones* y elige un producto.",
		ListButton: "Ver opciones",
		Sections:   sections,
	}
}

func buildMenuSections(items []repo.CatalogItem) []ListSection {
	var sections []ListSection
	index := map[string]int{}
	for _, item := range items {
		category := item.Category
		if category == "" {
			category = "Otros"
		}
		pos, ok := index[category]
		if !ok {
			if len(sections) >= maxListSections {
				continue
			}
			sections = append(sections, ListSection{Title: truncate(category, maxTitleLength)})
			pos = len(sections) - 1
			index[category] = pos
		}
		if len(sections[pos].Rows) >= maxListRows {
			continue
		}
		desc := "$" + formatMoney(item.Price)
		if item.Description != nil && *item.Description != "" {
			desc += " — " + *item.Description
		}
		sections[pos].Rows = append(sections[pos].Rows, ListRow{
			ID:          "item:" + item.ID,
			Title:       truncate(item.Name, maxTitleLength),
			Description: truncate(desc, maxDescLength),
		})
	}
	return sections
}

func resolveSelection(key, text string, idx *order.CatalogIndex) (repo.CatalogItem, bool) {
	if strings.HasPrefix(key, "item:") {
		return idx.ByID(strings.TrimPrefix(key, "item:"))
	}
	if text == "" {
		return repo.CatalogItem{}, false
	}
	return idx.Resolve(text, "")
}

func splitNameAddress(raw string) (string, string) {
	parts := strings.SplitN(raw, ",", 2)
	name := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return name, ""
	}
	return name, strings.TrimSpace(parts[1])
}

func matchesAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	for _, keyword := range keywords {
		if text == keyword {
			return true
		}
	}
	return false
}
