package repo

import (
	"context"
	"fmt"
)

// ListActiveCatalogItems returns the tenant's active menu items joined with
// their category names, ordered for stable sectioned display.
func (r *PostgresRepository) ListActiveCatalogItems(ctx context.Context, tenantID string) ([]CatalogItem, error) {
	const q = `
SELECT i.id, i.tenant_id, i.category_id, COALESCE(c.name, 'Otros'), i.name, i.description,
       i.price, i.station, i.external_ref, i.active
FROM catalog_items i
LEFT JOIN catalog_categories c ON c.id = i.category_id
WHERE i.tenant_id = $1 AND i.active = TRUE
ORDER BY COALESCE(c.sort_order, 9999) ASC, i.name ASC;
`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list catalog items: %w", err)
	}
	defer rows.Close()

	var items []CatalogItem
	for rows.Next() {
		var item CatalogItem
		var station string
		if err := rows.Scan(
			&item.ID,
			&item.TenantID,
			&item.CategoryID,
			&item.Category,
			&item.Name,
			&item.Description,
			&item.Price,
			&station,
			&item.ExternalRef,
			&item.Active,
		); err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		item.Station = Station(station)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog items: %w", err)
	}
	return items, nil
}
