package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const channelConfigColumns = `
id, tenant_id, channel, credentials_blob, external_id, webhook_secret, active, sandbox, metadata, created_at, updated_at`

// ListActiveChannelConfigs returns every active config for a channel. Used by
// the signature-scan tenant resolution strategy; callers must short-circuit
// on first match.
func (r *PostgresRepository) ListActiveChannelConfigs(ctx context.Context, ch channel.Channel) ([]TenantChannelConfig, error) {
	q := `
SELECT ` + channelConfigColumns + `
FROM tenant_channel_configs
WHERE channel = $1 AND active = TRUE
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, q, string(ch))
	if err != nil {
		return nil, fmt.Errorf("list channel configs: %w", err)
	}
	defer rows.Close()

	var configs []TenantChannelConfig
	for rows.Next() {
		cfg, err := scanChannelConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel config: %w", err)
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel configs: %w", err)
	}
	return configs, nil
}

// GetChannelConfigByExternalID returns the single active config whose
// external store/phone identifier matches. This is the indexed fast path.
func (r *PostgresRepository) GetChannelConfigByExternalID(ctx context.Context, ch channel.Channel, externalID string) (*TenantChannelConfig, error) {
	q := `
SELECT ` + channelConfigColumns + `
FROM tenant_channel_configs
WHERE channel = $1 AND external_id = $2 AND active = TRUE
LIMIT 1;
`
	cfg, err := scanChannelConfig(r.pool.QueryRow(ctx, q, string(ch), externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel config by external id: %w", err)
	}
	return cfg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannelConfig(row rowScanner) (*TenantChannelConfig, error) {
	var cfg TenantChannelConfig
	var ch string
	var metaJSON []byte
	if err := row.Scan(
		&cfg.ID,
		&cfg.TenantID,
		&ch,
		&cfg.CredentialsBlob,
		&cfg.ExternalID,
		&cfg.WebhookSecret,
		&cfg.Active,
		&cfg.Sandbox,
		&metaJSON,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	cfg.Channel = channel.Channel(ch)
	cfg.Metadata = fromJSONMap(metaJSON)
	return &cfg, nil
}

func toJSONValue(val any) (any, error) {
	if val == nil {
		return nil, nil
	}
	data, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

func fromJSONMap(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"_raw": string(data)}
	}
	return m
}
