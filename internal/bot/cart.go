package bot

import (
	"fmt"
	"strings"

	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// mergeCartLine adds a line to the cart, summing quantity when the same
// catalog item is already present.
func mergeCartLine(cart repo.CartData, line repo.CartLine) repo.CartData {
	for idx := range cart.Lines {
		if cart.Lines[idx].CatalogItemID == line.CatalogItemID {
			cart.Lines[idx].Quantity += line.Quantity
			return cart
		}
	}
	cart.Lines = append(cart.Lines, line)
	return cart
}

// renderCart produces the running-subtotal view.
func renderCart(cart repo.CartData) string {
	if len(cart.Lines) == 0 {
		return "Tu carrito está vacío. Escribe *menú* para ver nuestros productos."
	}

	var b strings.Builder
	b.WriteString("🛒 Tu pedido:\n")
	for _, line := range cart.Lines {
		lineTotal := line.UnitPrice
		for _, m := range line.Modifiers {
			lineTotal += m.Price
		}
		lineTotal *= int64(line.Quantity)
		fmt.Fprintf(&b, "• %dx %s — $%s\n", line.Quantity, line.Name, formatMoney(lineTotal))
	}
	fmt.Fprintf(&b, "\nSubtotal: $%s", formatMoney(cart.Subtotal()))
	return b.String()
}

// RenderConfirmation builds the itemized order summary with total and ETA.
// Transports send it verbatim after checkout completes.
func RenderConfirmation(order *repo.Order) string {
	var b strings.Builder
	b.WriteString("✅ ¡Pedido confirmado!\n\n")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "• %dx %s — $%s\n", item.Quantity, item.Name, formatMoney(item.LineTotal()))
		for _, m := range item.Modifiers {
			fmt.Fprintf(&b, "   + %s\n", m.Name)
		}
	}
	fmt.Fprintf(&b, "\nTotal: $%s\n", formatMoney(order.Total))
	if order.OrderType == repo.OrderTypeDelivery && order.CustomerAddress != nil {
		fmt.Fprintf(&b, "Entrega en: %s\n", *order.CustomerAddress)
	}
	if order.EstimatedReadyAt != nil {
		minutes := order.TotalSeconds / 60
		if minutes < 1 {
			minutes = 1
		}
		fmt.Fprintf(&b, "Tiempo estimado: %d minutos", minutes)
	}
	return strings.TrimSpace(b.String())
}

// formatMoney renders integer currency with thousands separators, the way
// amounts are written locally ($5.990).
func formatMoney(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for idx, r := range digits {
		if idx > 0 && (len(digits)-idx)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}
