package repository

import (
	"context"

	"github.com/and161185/retail-desk/internal/model"
)

// SellerRepository serves the local-seller side of the catalog.
type SellerRepository interface {
	// ActiveWholesalers lists every wholesaler that is open for business.
	ActiveWholesalers(ctx context.Context) ([]model.Wholesaler, error)
	// ActiveProducts lists the visible products of one wholesaler, unpaged.
	ActiveProducts(ctx context.Context, wholesalerID int64) ([]model.Product, error)
	// ApprovedWholesalers lists the wholesalers that approved the seller.
	ApprovedWholesalers(ctx context.Context, sellerID int64) ([]model.Wholesaler, error)
	// IsApproved reports whether wholesalerID approved sellerID.
	IsApproved(ctx context.Context, sellerID, wholesalerID int64) (bool, error)
}
