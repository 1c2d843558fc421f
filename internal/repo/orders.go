package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
)

const orderColumns = `
id, tenant_id, branch_id, channel, order_type, status, customer_name, customer_phone,
customer_address, external_order_id, subtotal, tax, tip, discount, total, notes,
total_seconds, estimated_ready_at, created_at, updated_at`

// InsertOrderWithItems persists an order and its items in one transaction.
// The partial unique index on (tenant_id, channel, external_order_id) is the
// authoritative idempotency guard: on conflict no row is written and the
// previously stored order is returned with inserted=false.
func (r *PostgresRepository) InsertOrderWithItems(ctx context.Context, order Order) (*Order, bool, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = StatusPending
	}

	var stored *Order
	inserted := false
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		const q = `
INSERT INTO orders (id, tenant_id, branch_id, channel, order_type, status, customer_name,
                    customer_phone, customer_address, external_order_id, subtotal, tax, tip,
                    discount, total, notes, total_seconds, estimated_ready_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (tenant_id, channel, external_order_id) WHERE external_order_id IS NOT NULL
DO NOTHING
RETURNING ` + orderColumns + `;
`
		row := tx.QueryRow(ctx, q,
			order.ID,
			order.TenantID,
			order.BranchID,
			string(order.Channel),
			string(order.OrderType),
			string(order.Status),
			order.CustomerName,
			order.CustomerPhone,
			order.CustomerAddress,
			order.ExternalOrderID,
			order.Subtotal,
			order.Tax,
			order.Tip,
			order.Discount,
			order.Total,
			order.Notes,
			order.TotalSeconds,
			order.EstimatedReadyAt,
		)

		created, err := scanOrder(row)
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race to a retried delivery; surface the winner.
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for idx := range order.Items {
			item := &order.Items[idx]
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			item.OrderID = created.ID
			if err := insertOrderItem(ctx, tx, *item); err != nil {
				return err
			}
		}
		created.Items = order.Items
		stored = created
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if stored == nil {
		if order.ExternalOrderID == nil {
			return nil, false, errors.New("insert order: no row stored and no external id to recover")
		}
		existing, err := r.GetOrderByExternalID(ctx, order.TenantID, order.Channel, *order.ExternalOrderID)
		if err != nil {
			return nil, false, fmt.Errorf("load existing order after conflict: %w", err)
		}
		return existing, false, nil
	}
	return stored, inserted, nil
}

func insertOrderItem(ctx context.Context, tx pgx.Tx, item OrderItem) error {
	modifiers, err := toJSONValue(item.Modifiers)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO order_items (id, order_id, catalog_item_id, name, quantity, unit_price, modifiers, station, notes)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, '[]'::jsonb), $8, $9);
`
	if _, err := tx.Exec(ctx, q,
		item.ID,
		item.OrderID,
		item.CatalogItemID,
		item.Name,
		item.Quantity,
		item.UnitPrice,
		modifiers,
		string(item.Station),
		item.Notes,
	); err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

// GetOrderByID loads a tenant's order with its items.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, tenantID, orderID string) (*Order, error) {
	q := `
SELECT ` + orderColumns + `
FROM orders
WHERE tenant_id = $1 AND id = $2
LIMIT 1;
`
	order, err := scanOrder(r.pool.QueryRow(ctx, q, tenantID, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	if err := r.attachItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderByExternalID loads an order by its channel-native identifier.
func (r *PostgresRepository) GetOrderByExternalID(ctx context.Context, tenantID string, ch channel.Channel, externalOrderID string) (*Order, error) {
	q := `
SELECT ` + orderColumns + `
FROM orders
WHERE tenant_id = $1 AND channel = $2 AND external_order_id = $3
LIMIT 1;
`
	order, err := scanOrder(r.pool.QueryRow(ctx, q, tenantID, string(ch), externalOrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by external id: %w", err)
	}
	if err := r.attachItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// LatestOrderSince returns the most recent order created for the phone on the
// channel after the given instant. Backs the chat-commerce dedupe window.
func (r *PostgresRepository) LatestOrderSince(ctx context.Context, tenantID string, ch channel.Channel, customerPhone string, since time.Time) (*Order, error) {
	q := `
SELECT ` + orderColumns + `
FROM orders
WHERE tenant_id = $1 AND channel = $2 AND customer_phone = $3 AND created_at >= $4
ORDER BY created_at DESC
LIMIT 1;
`
	order, err := scanOrder(r.pool.QueryRow(ctx, q, tenantID, string(ch), customerPhone, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest order since: %w", err)
	}
	return order, nil
}

// LatestActiveOrderByPhone returns the customer's newest non-terminal order.
// Backs the bot's tracking state.
func (r *PostgresRepository) LatestActiveOrderByPhone(ctx context.Context, tenantID, customerPhone string) (*Order, error) {
	q := `
SELECT ` + orderColumns + `
FROM orders
WHERE tenant_id = $1 AND customer_phone = $2 AND status NOT IN ('completed', 'cancelled')
ORDER BY created_at DESC
LIMIT 1;
`
	order, err := scanOrder(r.pool.QueryRow(ctx, q, tenantID, customerPhone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest active order by phone: %w", err)
	}
	return order, nil
}

// ListActiveOrders returns every order still on the kitchen display, oldest
// first, items attached. This is the snapshot fetch for (re)connecting
// displays.
func (r *PostgresRepository) ListActiveOrders(ctx context.Context, tenantID string) ([]Order, error) {
	q := `
SELECT ` + orderColumns + `
FROM orders
WHERE tenant_id = $1 AND status IN ('pending', 'accepted', 'preparing')
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list active orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active orders: %w", err)
	}

	for idx := range orders {
		if err := r.attachItems(ctx, &orders[idx]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ErrInvalidTransition signals an operator action that does not follow the
// advance-only status machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// AdvanceOrderStatus moves an order from one status to the next. The WHERE
// clause on the current status makes concurrent operator taps lose cleanly.
func (r *PostgresRepository) AdvanceOrderStatus(ctx context.Context, tenantID, orderID string, from, to OrderStatus) (*Order, error) {
	q := `
UPDATE orders
SET status = $4, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2 AND status = $3
RETURNING ` + orderColumns + `;
`
	order, err := scanOrder(r.pool.QueryRow(ctx, q, tenantID, orderID, string(from), string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("advance order status: %w", err)
	}
	if err := r.attachItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder marks a non-terminal order cancelled.
func (r *PostgresRepository) CancelOrder(ctx context.Context, tenantID, orderID string) (*Order, error) {
	q := `
UPDATE orders
SET status = 'cancelled', updated_at = NOW()
WHERE tenant_id = $1 AND id = $2 AND status NOT IN ('completed', 'cancelled')
RETURNING ` + orderColumns + `;
`
	order, err := scanOrder(r.pool.QueryRow(ctx, q, tenantID, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	if err := r.attachItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *PostgresRepository) attachItems(ctx context.Context, order *Order) error {
	const q = `
SELECT id, order_id, catalog_item_id, name, quantity, unit_price, modifiers, station, notes
FROM order_items
WHERE order_id = $1
ORDER BY name ASC;
`
	rows, err := r.pool.Query(ctx, q, order.ID)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		var station string
		var modifiersJSON []byte
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.CatalogItemID,
			&item.Name,
			&item.Quantity,
			&item.UnitPrice,
			&modifiersJSON,
			&station,
			&item.Notes,
		); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		item.Station = Station(station)
		if len(modifiersJSON) > 0 {
			if err := json.Unmarshal(modifiersJSON, &item.Modifiers); err != nil {
				return fmt.Errorf("unmarshal modifiers: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}
	order.Items = items
	return nil
}

func scanOrder(row rowScanner) (*Order, error) {
	var order Order
	var ch, orderType, status string
	if err := row.Scan(
		&order.ID,
		&order.TenantID,
		&order.BranchID,
		&ch,
		&orderType,
		&status,
		&order.CustomerName,
		&order.CustomerPhone,
		&order.CustomerAddress,
		&order.ExternalOrderID,
		&order.Subtotal,
		&order.Tax,
		&order.Tip,
		&order.Discount,
		&order.Total,
		&order.Notes,
		&order.TotalSeconds,
		&order.EstimatedReadyAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	order.Channel = channel.Channel(ch)
	order.OrderType = OrderType(orderType)
	order.Status = OrderStatus(status)
	return &order, nil
}
