package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Z1Code/gastrocloud-sub000/internal/order"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

func testIndex() *order.CatalogIndex {
	return order.BuildIndex([]repo.CatalogItem{
		{ID: "item-pizza", TenantID: "t1", Category: "Pizzas", Name: "Pizza Margarita", Price: 8990, Station: repo.StationKitchen, Active: true},
		{ID: "item-beer", TenantID: "t1", Category: "Bebidas", Name: "Cerveza Artesanal", Price: 3500, Station: repo.StationBar, Active: true},
	})
}

func sessionIn(state repo.SessionState, cart repo.CartData, pending *repo.PendingSelection) *repo.ChatSession {
	return &repo.ChatSession{
		ID:            "s1",
		TenantID:      "t1",
		CustomerPhone: "+56911112222",
		State:         state,
		Cart:          cart,
		Pending:       pending,
	}
}

func TestGreetingResetsFromAnyState(t *testing.T) {
	idx := testIndex()
	cart := repo.CartData{Lines: []repo.CartLine{{CatalogItemID: "item-pizza", Name: "Pizza Margarita", Quantity: 1, UnitPrice: 8990}}}

	for _, state := range []repo.SessionState{repo.StateBrowsingMenu, repo.StateAddingItems, repo.StateCheckout} {
		res := step(sessionIn(state, cart, nil), Input{Text: "hola"}, idx)
		assert.Equal(t, repo.StateGreeting, res.State, "from %s", state)
		assert.Empty(t, res.Cart.Lines, "from %s", state)
		assert.False(t, res.CreateOrder)
	}
}

func TestCancelFromCheckoutClearsCart(t *testing.T) {
	idx := testIndex()
	cart := repo.CartData{
		Lines:           []repo.CartLine{{CatalogItemID: "item-pizza", Name: "Pizza Margarita", Quantity: 2, UnitPrice: 8990}},
		CheckoutStarted: true,
		OrderType:       repo.OrderTypePickup,
	}

	res := step(sessionIn(repo.StateCheckout, cart, nil), Input{Text: "cancelar"}, idx)
	assert.Equal(t, repo.StateGreeting, res.State)
	assert.Empty(t, res.Cart.Lines)
	assert.Equal(t, repo.OrderType(""), res.Cart.OrderType)
	assert.Nil(t, res.Pending)
}

func TestGreetingMenuShowsCatalogList(t *testing.T) {
	idx := testIndex()

	res := step(sessionIn(repo.StateGreeting, repo.CartData{}, nil), Input{Text: "menú"}, idx)
	assert.Equal(t, repo.StateBrowsingMenu, res.State)
	require.Len(t, res.Replies, 1)
	assert.Equal(t, ReplyList, res.Replies[0].Kind)
	assert.Len(t, res.Replies[0].Sections, 2)
}

func TestSelectionThenSpanishQuantityWord(t *testing.T) {
	idx := testIndex()

	res := step(sessionIn(repo.StateBrowsingMenu, repo.CartData{}, nil), Input{ListRowID: "item:item-pizza"}, idx)
	assert.Equal(t, repo.StateAddingItems, res.State)
	require.NotNil(t, res.Pending)
	assert.Equal(t, "item-pizza", res.Pending.CatalogItemID)

	session := sessionIn(repo.StateAddingItems, res.Cart, res.Pending)
	res = step(session, Input{Text: "dos"}, idx)
	assert.Nil(t, res.Pending)
	require.Len(t, res.Cart.Lines, 1)
	assert.Equal(t, 2, res.Cart.Lines[0].Quantity)
	assert.Equal(t, int64(8990), res.Cart.Lines[0].UnitPrice)
}

func TestUnparseableQuantityRepromptsKeepingPending(t *testing.T) {
	idx := testIndex()
	pending := &repo.PendingSelection{CatalogItemID: "item-pizza", Name: "Pizza Margarita", UnitPrice: 8990, Station: repo.StationKitchen}

	res := step(sessionIn(repo.StateAddingItems, repo.CartData{}, pending), Input{Text: "muchos"}, idx)
	assert.Equal(t, repo.StateAddingItems, res.State)
	require.NotNil(t, res.Pending)
	assert.Empty(t, res.Cart.Lines)
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0].Text, "1 al 99")
}

func TestRepeatedItemMergesQuantity(t *testing.T) {
	idx := testIndex()
	cart := repo.CartData{Lines: []repo.CartLine{{CatalogItemID: "item-pizza", Name: "Pizza Margarita", Quantity: 1, UnitPrice: 8990}}}
	pending := &repo.PendingSelection{CatalogItemID: "item-pizza", Name: "Pizza Margarita", UnitPrice: 8990, Station: repo.StationKitchen}

	res := step(sessionIn(repo.StateAddingItems, cart, pending), Input{Text: "3"}, idx)
	require.Len(t, res.Cart.Lines, 1)
	assert.Equal(t, 4, res.Cart.Lines[0].Quantity)
}

func TestCheckoutBlockedOnEmptyCart(t *testing.T) {
	idx := testIndex()

	res := step(sessionIn(repo.StateAddingItems, repo.CartData{}, nil), Input{ButtonID: btnCheckout}, idx)
	assert.Equal(t, repo.StateAddingItems, res.State)
	assert.False(t, res.CreateOrder)
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0].Text, "vacío")
}

func TestCheckoutPickupFlow(t *testing.T) {
	idx := testIndex()
	cart := repo.CartData{Lines: []repo.CartLine{{CatalogItemID: "item-pizza", Name: "Pizza Margarita", Quantity: 2, UnitPrice: 8990, Station: repo.StationKitchen}}}

	// Enter checkout from the cart.
	res := step(sessionIn(repo.StateAddingItems, cart, nil), Input{ButtonID: btnCheckout}, idx)
	require.Equal(t, repo.StateCheckout, res.State)
	assert.False(t, res.Cart.CheckoutStarted)

	// Confirm intent.
	res = step(sessionIn(repo.StateCheckout, res.Cart, nil), Input{ButtonID: btnConfirm}, idx)
	assert.True(t, res.Cart.CheckoutStarted)
	assert.False(t, res.CreateOrder)

	// Pick order type.
	res = step(sessionIn(repo.StateCheckout, res.Cart, nil), Input{ButtonID: btnPickup}, idx)
	assert.Equal(t, repo.OrderTypePickup, res.Cart.OrderType)
	assert.False(t, res.CreateOrder)

	// Name completes the flow: exactly here the order-creation signal fires.
	res = step(sessionIn(repo.StateCheckout, res.Cart, nil), Input{Text: "Ana Torres"}, idx)
	assert.True(t, res.CreateOrder)
	assert.Equal(t, repo.StateConfirmed, res.State)
	assert.Equal(t, "Ana Torres", res.Cart.CustomerName)
	assert.Empty(t, res.Replies)
}

func TestCheckoutDeliveryCommaSplit(t *testing.T) {
	idx := testIndex()
	cart := repo.CartData{
		Lines:           []repo.CartLine{{CatalogItemID: "item-pizza", Name: "Pizza Margarita", Quantity: 1, UnitPrice: 8990}},
		CheckoutStarted: true,
		OrderType:       repo.OrderTypeDelivery,
	}

	res := step(sessionIn(repo.StateCheckout, cart, nil), Input{Text: "Ana Pérez, Av. Italia 1234"}, idx)
	assert.True(t, res.CreateOrder)
	assert.Equal(t, "Ana Pérez", res.Cart.CustomerName)
	assert.Equal(t, "Av. Italia 1234", res.Cart.CustomerAddress)
}

func TestCheckoutDeliveryAsksAddressSeparately(t *testing.T) {
	idx := testIndex()
	cart := repo.CartData{
		Lines:           []repo.CartLine{{CatalogItemID: "item-pizza", Name: "Pizza Margarita", Quantity: 1, UnitPrice: 8990}},
		CheckoutStarted: true,
		OrderType:       repo.OrderTypeDelivery,
	}

	res := step(sessionIn(repo.StateCheckout, cart, nil), Input{Text: "Benito"}, idx)
	assert.False(t, res.CreateOrder)
	assert.Equal(t, "Benito", res.Cart.CustomerName)

	res = step(sessionIn(repo.StateCheckout, res.Cart, nil), Input{Text: "Av. Italia 1234"}, idx)
	assert.True(t, res.CreateOrder)
	assert.Equal(t, "Av. Italia 1234", res.Cart.CustomerAddress)
}

func TestUnknownStateFallsBackToGreeting(t *testing.T) {
	idx := testIndex()

	res := step(sessionIn("corrupted", repo.CartData{}, nil), Input{Text: "algo"}, idx)
	assert.Equal(t, repo.StateGreeting, res.State)
	require.NotEmpty(t, res.Replies)
}

func TestTrackingIntentFromGreeting(t *testing.T) {
	idx := testIndex()

	res := step(sessionIn(repo.StateGreeting, repo.CartData{}, nil), Input{Text: "estado"}, idx)
	assert.True(t, res.TrackOrder)
	assert.Equal(t, repo.StateTracking, res.State)
}
