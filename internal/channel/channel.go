// Package channel defines the external order-origination integrations and the
// webhook signature scheme shared by the marketplace channels.
package channel

// Channel identifies an external order-origination integration.
type Channel string

const (
	Rappi     Channel = "rappi"
	PedidosYa Channel = "pedidosya"
	WhatsApp  Channel = "whatsapp"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case Rappi, PedidosYa, WhatsApp:
		return true
	}
	return false
}

// SignatureHeader returns the HTTP header carrying the webhook signature for
// marketplace channels. The chat channel has no webhook and returns "".
func (c Channel) SignatureHeader() string {
	switch c {
	case Rappi:
		return "X-Rappi-Signature"
	case PedidosYa:
		return "X-Peya-Signature"
	}
	return ""
}

// GenericCustomerName is the fallback label when a channel payload carries no
// customer name.
func (c Channel) GenericCustomerName() string {
	switch c {
	case Rappi:
		return "Cliente via Rappi"
	case PedidosYa:
		return "Cliente via PedidosYa"
	case WhatsApp:
		return "Cliente via WhatsApp"
	}
	return "Cliente"
}
