package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ProductRepo implements ProductRepository using PostgreSQL.
type ProductRepo struct{ db *DB }

// NewProductRepo constructs a product repository.
func NewProductRepo(db *DB) *ProductRepo { return &ProductRepo{db: db} }

const productCols = `id, version, name, description, category, price::text, sku_code, stock_quantity, unit, wholesaler_id, image_url, active, created_at, updated_at`

// sortColumns whitelists the API sort keys.
var sortColumns = map[string]string{
	"name":          "name",
	"price":         "price",
	"category":      "category",
	"skuCode":       "sku_code",
	"stockQuantity": "stock_quantity",
	"createdAt":     "created_at",
	"updatedAt":     "updated_at",
}

// SortColumn maps an API sort key to its column; ok is false for unknown keys.
func SortColumn(key string) (string, bool) {
	c, ok := sortColumns[key]
	return c, ok
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	var (
		p     model.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Version, &p.Name, &p.Description, &p.Category, &price, &p.SKUCode,
		&p.StockQuantity, &p.Unit, &p.WholesalerID, &p.ImageURL, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("scan price %q: %w", price, err)
	}
	p.Price = d
	return &p, nil
}

func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return errs.ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("sku code: %w", errs.ErrAlreadyExists)
	case isForeignKeyViolation(err):
		return fmt.Errorf("wholesaler: %w", errs.ErrNotFound)
	}
	return err
}

// Create inserts a product row.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	const q = `
INSERT INTO products (wholesaler_id, name, description, category, price, sku_code, stock_quantity, unit, image_url, active)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)
RETURNING id, version, created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, p.WholesalerID, p.Name, p.Description, p.Category, p.Price.String(),
		p.SKUCode, p.StockQuantity, p.Unit, p.ImageURL, p.Active).
		Scan(&p.ID, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return mapWriteErr(err)
}

// Get selects a product by id.
func (r *ProductRepo) Get(ctx context.Context, id int64) (*model.Product, error) {
	q := `SELECT ` + productCols + ` FROM products WHERE id=$1`
	p, err := scanProduct(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Update overwrites the mutable columns when the stored version matches p.Version.
func (r *ProductRepo) Update(ctx context.Context, p *model.Product) error {
	const q = `
UPDATE products
SET name=$2, description=$3, category=$4, price=$5::numeric, sku_code=$6, stock_quantity=$7,
    unit=$8, image_url=$9, active=$10, version=version+1, updated_at=now()
WHERE id=$1 AND version=$11
RETURNING version, created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, p.ID, p.Name, p.Description, p.Category, p.Price.String(), p.SKUCode,
		p.StockQuantity, p.Unit, p.ImageURL, p.Active, p.Version).
		Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		const exists = `SELECT EXISTS (SELECT 1 FROM products WHERE id=$1)`
		var ok bool
		if e := r.db.Pool.QueryRow(ctx, exists, p.ID).Scan(&ok); e != nil {
			return e
		}
		if ok {
			return errs.ErrVersionConflict
		}
		return errs.ErrNotFound
	}
	return mapWriteErr(err)
}

// Delete removes a product row.
func (r *ProductRepo) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM products WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetActive updates the visibility flag.
func (r *ProductRepo) SetActive(ctx context.Context, id int64, active bool) (*model.Product, error) {
	q := `
UPDATE products SET active=$2, version=version+1, updated_at=now()
WHERE id=$1
RETURNING ` + productCols
	p, err := scanProduct(r.db.Pool.QueryRow(ctx, q, id, active))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns one page of a wholesaler's products.
func (r *ProductRepo) List(ctx context.Context, f model.ProductFilter, page model.PageRequest) (model.Page[model.Product], error) {
	where := []string{"wholesaler_id=$1"}
	args := []any{f.WholesalerID}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR sku_code ILIKE $%d)", n, n, n))
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		args = append(args, c)
		where = append(where, fmt.Sprintf("lower(category)=lower($%d)", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "active")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE `+cond, args...).Scan(&total); err != nil {
		return model.Page[model.Product]{}, err
	}

	col, ok := SortColumn(f.SortBy)
	if !ok {
		col = "name"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	args = append(args, page.Size, page.Offset())
	q := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d`,
		productCols, cond, col, dir, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return model.Page[model.Product]{}, err
	}
	defer rows.Close()

	items := make([]model.Product, 0, page.Size)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return model.Page[model.Product]{}, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return model.Page[model.Product]{}, err
	}
	return model.NewPage(items, total, page), nil
}

// Categories returns the distinct categories of a wholesaler.
func (r *ProductRepo) Categories(ctx context.Context, wholesalerID int64) ([]string, error) {
	const q = `
SELECT DISTINCT category FROM products
WHERE wholesaler_id=$1 AND category <> ''
ORDER BY category ASC`
	rows, err := r.db.Pool.Query(ctx, q, wholesalerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
