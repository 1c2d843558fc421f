package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// GetOrCreateSession loads the single active session for (tenant, phone),
// creating it in greeting state on the customer's first message.
func (r *PostgresRepository) GetOrCreateSession(ctx context.Context, tenantID, customerPhone string) (*ChatSession, error) {
	const q = `
INSERT INTO chat_sessions (id, tenant_id, customer_phone, state, cart, last_message_at)
VALUES ($1, $2, $3, 'greeting', '{}'::jsonb, NOW())
ON CONFLICT (tenant_id, customer_phone) DO UPDATE SET updated_at = NOW()
RETURNING id, tenant_id, customer_phone, state, cart, customer_name, pending_selection,
          last_message_at, created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, q, uuid.NewString(), tenantID, customerPhone)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("get or create session: %w", err)
	}
	return session, nil
}

// SaveSession persists the session state, cart, and scratch selection after a
// conversational turn.
func (r *PostgresRepository) SaveSession(ctx context.Context, session *ChatSession) error {
	cart, err := toJSONValue(session.Cart)
	if err != nil {
		return err
	}
	var pending any
	if session.Pending != nil {
		if pending, err = toJSONValue(session.Pending); err != nil {
			return err
		}
	}

	const q = `
UPDATE chat_sessions
SET state = $2,
    cart = COALESCE($3, '{}'::jsonb),
    customer_name = $4,
    pending_selection = $5,
    last_message_at = NOW(),
    updated_at = NOW()
WHERE id = $1;
`
	ct, err := r.pool.Exec(ctx, q, session.ID, string(session.State), cart, session.CustomerName, pending)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("session not found: %s", session.ID)
	}
	return nil
}

// InsertChatMessage stores one chat turn for support history.
func (r *PostgresRepository) InsertChatMessage(ctx context.Context, msg ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	const q = `
INSERT INTO chat_messages (id, session_id, direction, body)
VALUES ($1, $2, $3, $4);
`
	if _, err := r.pool.Exec(ctx, q, msg.ID, msg.SessionID, msg.Direction, msg.Body); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func scanSession(row rowScanner) (*ChatSession, error) {
	var session ChatSession
	var state string
	var cartJSON, pendingJSON []byte
	if err := row.Scan(
		&session.ID,
		&session.TenantID,
		&session.CustomerPhone,
		&state,
		&cartJSON,
		&session.CustomerName,
		&pendingJSON,
		&session.LastMessageAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		return nil, err
	}
	session.State = SessionState(state)
	if len(cartJSON) > 0 {
		if err := json.Unmarshal(cartJSON, &session.Cart); err != nil {
			return nil, fmt.Errorf("unmarshal cart: %w", err)
		}
	}
	if len(pendingJSON) > 0 {
		var pending PendingSelection
		if err := json.Unmarshal(pendingJSON, &pending); err != nil {
			return nil, fmt.Errorf("unmarshal pending selection: %w", err)
		}
		session.Pending = &pending
	}
	return &session, nil
}
