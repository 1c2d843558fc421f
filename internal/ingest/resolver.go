package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Z1Code/gastrocloud-sub000/internal/channel"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
	"github.com/Z1Code/gastrocloud-sub000/internal/secrets"
)

// ErrNoTenant means no tenant configuration matched the request. Callers ack
// the webhook anyway so senders cannot probe for tenant existence.
var ErrNoTenant = errors.New("no tenant matched")

// Resolver attributes a verified event to exactly one tenant configuration.
type Resolver struct {
	store  repo.Store
	box    *secrets.Box
	logger *slog.Logger
}

// NewResolver builds a tenant resolver.
func NewResolver(store repo.Store, box *secrets.Box, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		box:    box,
		logger: logger.With("component", "tenant_resolver"),
	}
}

// BySignature iterates all active configs for the channel and returns the
// first whose secret verifies the raw body. Linear in active tenants; the
// identifier-lookup path below is preferred where the payload allows it.
func (r *Resolver) BySignature(ctx context.Context, ch channel.Channel, rawBody []byte, signature string) (*repo.TenantChannelConfig, error) {
	if signature == "" {
		return nil, ErrNoTenant
	}

	configs, err := r.store.ListActiveChannelConfigs(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("list configs for signature scan: %w", err)
	}

	for idx := range configs {
		cfg := &configs[idx]
		secret, err := r.box.Open(cfg.WebhookSecret)
		if err != nil {
			r.logger.Error("undecryptable webhook secret, skipping config",
				"tenant_id", cfg.TenantID, "channel", string(ch), "error", err)
			continue
		}
		if channel.VerifySignature(rawBody, signature, secret) {
			return cfg, nil
		}
	}
	return nil, ErrNoTenant
}

// ByExternalID resolves via the indexed external store/phone identifier and
// then verifies the signature against that single tenant's secret.
func (r *Resolver) ByExternalID(ctx context.Context, ch channel.Channel, externalID string, rawBody []byte, signature string) (*repo.TenantChannelConfig, error) {
	if externalID == "" {
		return nil, ErrNoTenant
	}

	cfg, err := r.store.GetChannelConfigByExternalID(ctx, ch, externalID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoTenant
	}
	if err != nil {
		return nil, fmt.Errorf("lookup config by external id: %w", err)
	}

	secret, err := r.box.Open(cfg.WebhookSecret)
	if err != nil {
		r.logger.Error("undecryptable webhook secret",
			"tenant_id", cfg.TenantID, "channel", string(ch), "error", err)
		return nil, ErrNoTenant
	}
	if !channel.VerifySignature(rawBody, signature, secret) {
		return nil, ErrNoTenant
	}
	return cfg, nil
}

// ByRecipient resolves the chat channel by the business number that received
// the message. Chat messages arrive over an authenticated socket, so no
// signature is involved.
func (r *Resolver) ByRecipient(ctx context.Context, businessPhone string) (*repo.TenantChannelConfig, error) {
	cfg, err := r.store.GetChannelConfigByExternalID(ctx, channel.WhatsApp, businessPhone)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNoTenant
	}
	if err != nil {
		return nil, fmt.Errorf("lookup chat config: %w", err)
	}
	return cfg, nil
}
