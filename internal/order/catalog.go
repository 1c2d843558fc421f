package order

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Z1Code/gastrocloud-sub000/internal/cache"
	"github.com/Z1Code/gastrocloud-sub000/internal/repo"
)

// CatalogIndex resolves external line items to catalog entries. Lookup order
// is exact case-insensitive name, then external reference id; anything else
// is unmatched.
type CatalogIndex struct {
	byName map[string]repo.CatalogItem
	byRef  map[string]repo.CatalogItem
	items  []repo.CatalogItem
}

// BuildIndex creates an index over the tenant's active catalog.
func BuildIndex(items []repo.CatalogItem) *CatalogIndex {
	idx := &CatalogIndex{
		byName: make(map[string]repo.CatalogItem, len(items)),
		byRef:  make(map[string]repo.CatalogItem, len(items)),
		items:  items,
	}
	for _, item := range items {
		idx.byName[strings.ToLower(strings.TrimSpace(item.Name))] = item
		idx.byRef[item.ID] = item
		if item.ExternalRef != nil && *item.ExternalRef != "" {
			idx.byRef[*item.ExternalRef] = item
		}
	}
	return idx
}

// Resolve matches an external line by name, falling back to reference id.
func (x *CatalogIndex) Resolve(name, externalRef string) (repo.CatalogItem, bool) {
	if item, ok := x.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return item, true
	}
	if externalRef != "" {
		if item, ok := x.byRef[externalRef]; ok {
			return item, true
		}
	}
	return repo.CatalogItem{}, false
}

// ByID resolves a catalog entry by its internal id.
func (x *CatalogIndex) ByID(id string) (repo.CatalogItem, bool) {
	item, ok := x.byRef[id]
	return item, ok
}

// Items returns the indexed catalog in display order.
func (x *CatalogIndex) Items() []repo.CatalogItem {
	return x.items
}

// Catalog loads per-tenant catalog indexes, caching the raw item list in
// Redis for the configured TTL.
type Catalog struct {
	store  repo.Store
	cache  *cache.Redis
	ttl    time.Duration
	logger *slog.Logger
}

// NewCatalog builds a catalog reader. The cache is optional.
func NewCatalog(store repo.Store, redis *cache.Redis, ttl time.Duration, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  store,
		cache:  redis,
		ttl:    ttl,
		logger: logger.With("component", "catalog"),
	}
}

// Index returns a fresh index over the tenant's active catalog.
func (c *Catalog) Index(ctx context.Context, tenantID string) (*CatalogIndex, error) {
	if c.cache != nil {
		var cached []repo.CatalogItem
		hit, err := c.cache.GetJSON(ctx, cache.CatalogKey(tenantID), &cached)
		if err != nil {
			c.logger.Warn("catalog cache read failed", "error", err, "tenant_id", tenantID)
		} else if hit {
			return BuildIndex(cached), nil
		}
	}

	items, err := c.store.ListActiveCatalogItems(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, cache.CatalogKey(tenantID), items, c.ttl); err != nil {
			c.logger.Warn("catalog cache write failed", "error", err, "tenant_id", tenantID)
		}
	}
	return BuildIndex(items), nil
}

// Invalidate drops the cached catalog for a tenant after menu edits.
func (c *Catalog) Invalidate(ctx context.Context, tenantID string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, cache.CatalogKey(tenantID))
}
