package repository

import (
	"context"

	"github.com/and161185/retail-desk/internal/model"
)

// ProductRepository provides tenant-scoped access to catalog products.
type ProductRepository interface {
	// Create inserts a product and fills ID, Version and timestamps.
	Create(ctx context.Context, p *model.Product) error

	// Get returns a single product by ID.
	Get(ctx context.Context, id int64) (*model.Product, error)

	// Update overwrites a product if p.Version matches the stored version, then bumps it.
	Update(ctx context.Context, p *model.Product) error

	// Delete removes a product.
	Delete(ctx context.Context, id int64) error

	// SetActive flips the visibility flag and returns the updated product.
	SetActive(ctx context.Context, id int64, active bool) (*model.Product, error)

	// List returns one page of products matching the filter.
	List(ctx context.Context, f model.ProductFilter, page model.PageRequest) (model.Page[model.Product], error)

	// Categories returns the distinct non-empty categories of a wholesaler, sorted.
	Categories(ctx context.Context, wholesalerID int64) ([]string, error)
}
