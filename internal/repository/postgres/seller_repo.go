package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/retail-desk/internal/model"
)

// SellerRepo implements SellerRepository using PostgreSQL.
type SellerRepo struct{ db *DB }

// NewSellerRepo constructs a seller repository.
func NewSellerRepo(db *DB) *SellerRepo { return &SellerRepo{db: db} }

const wholesalerCols = `w.id, w.user_id, w.business_name, w.address, w.gst_number, w.active`

func collectWholesalers(rows pgx.Rows) ([]model.Wholesaler, error) {
	defer rows.Close()
	out := []model.Wholesaler{}
	for rows.Next() {
		var w model.Wholesaler
		if err := rows.Scan(&w.ID, &w.UserID, &w.BusinessName, &w.Address, &w.GSTNumber, &w.Active); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ActiveWholesalers returns active wholesalers ordered by business name.
func (r *SellerRepo) ActiveWholesalers(ctx context.Context) ([]model.Wholesaler, error) {
	q := `SELECT ` + wholesalerCols + ` FROM wholesalers w WHERE w.active ORDER BY w.business_name ASC, w.id ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return collectWholesalers(rows)
}

// ActiveProducts returns the active products of a wholesaler ordered by name.
func (r *SellerRepo) ActiveProducts(ctx context.Context, wholesalerID int64) ([]model.Product, error) {
	q := `SELECT ` + productCols + ` FROM products WHERE wholesaler_id=$1 AND active ORDER BY name ASC, id ASC`
	rows, err := r.db.Pool.Query(ctx, q, wholesalerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ApprovedWholesalers joins the seller's APPROVED mappings to their wholesalers.
func (r *SellerRepo) ApprovedWholesalers(ctx context.Context, sellerID int64) ([]model.Wholesaler, error) {
	q := `
SELECT ` + wholesalerCols + `
FROM wholesaler_seller_mappings m JOIN wholesalers w ON w.id = m.wholesaler_id
WHERE m.local_seller_id=$1 AND m.status=$2
ORDER BY w.business_name ASC, w.id ASC`
	rows, err := r.db.Pool.Query(ctx, q, sellerID, string(model.MappingApproved))
	if err != nil {
		return nil, err
	}
	return collectWholesalers(rows)
}

// IsApproved checks for an APPROVED mapping between the pair.
func (r *SellerRepo) IsApproved(ctx context.Context, sellerID, wholesalerID int64) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM wholesaler_seller_mappings
    WHERE local_seller_id=$1 AND wholesaler_id=$2 AND status=$3
)`
	var ok bool
	err := r.db.Pool.QueryRow(ctx, q, sellerID, wholesalerID, string(model.MappingApproved)).Scan(&ok)
	return ok, err
}
