package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/retail-desk/internal/cache"
	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
	"github.com/and161185/retail-desk/internal/repository"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ProductService defines tenant-scoped catalog operations. Reads are open to any
// authenticated caller; writes require the owning wholesaler or an admin.
type ProductService interface {
	List(ctx context.Context, f model.ProductFilter, page model.PageRequest) (model.Page[model.Product], error)
	Get(ctx context.Context, id int64) (*model.Product, error)
	Create(ctx context.Context, who model.Claims, p model.Product) (*model.Product, error)
	// Update replaces the mutable fields of product id. A nil version means "current".
	Update(ctx context.Context, who model.Claims, id int64, p model.Product, version *int) (*model.Product, error)
	Delete(ctx context.Context, who model.Claims, id int64) error
	SetStatus(ctx context.Context, who model.Claims, id int64, active bool) (*model.Product, error)
	Categories(ctx context.Context, wholesalerID int64) ([]string, error)
}

// ProductServiceImpl implements ProductService over a repository and a category cache.
type ProductServiceImpl struct {
	repo  repository.ProductRepository
	cache cache.Categories
	log   *zap.Logger
}

// NewProductService constructs ProductService. A nil cache disables caching.
func NewProductService(repo repository.ProductRepository, c cache.Categories, log *zap.Logger) *ProductServiceImpl {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductServiceImpl{repo: repo, cache: c, log: log}
}

// NormalizePage clamps a page request into the served range.
func NormalizePage(p model.PageRequest) model.PageRequest {
	if p.Index < 0 {
		p.Index = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func validateProduct(p *model.Product) error {
	fe := FieldErrors{}
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	p.SKUCode = strings.TrimSpace(p.SKUCode)
	p.Unit = strings.ToLower(strings.TrimSpace(p.Unit))
	if p.Unit == "" {
		p.Unit = model.DefaultUnit
	}
	if p.ImageURL != nil && strings.TrimSpace(*p.ImageURL) == "" {
		p.ImageURL = nil
	}

	if p.Name == "" {
		fe.Add("name", "is required")
	} else if len(p.Name) > 100 {
		fe.Add("name", "must be at most 100 characters")
	}
	if !p.Price.GreaterThan(decimal.Zero) {
		fe.Add("price", "must be greater than 0")
	}
	if p.Category == "" {
		fe.Add("category", "is required")
	}
	if p.SKUCode == "" {
		fe.Add("skuCode", "is required")
	}
	if p.StockQuantity < 0 {
		fe.Add("stockQuantity", "must not be negative")
	}
	if !model.IsUnit(p.Unit) {
		fe.Add("unit", "must be one of "+strings.Join(model.Units, ", "))
	}
	if p.WholesalerID <= 0 {
		fe.Add("wholesalerId", "is required")
	}
	return fe.Err()
}

// canWrite reports whether who may modify products of wholesalerID.
func canWrite(who model.Claims, wholesalerID int64) bool {
	switch who.Role {
	case model.RoleAdmin:
		return true
	case model.RoleWholesaler:
		return who.ProfileID > 0 && who.ProfileID == wholesalerID
	}
	return false
}

func (s *ProductServiceImpl) invalidate(ctx context.Context, wholesalerID int64) {
	if err := s.cache.Invalidate(ctx, wholesalerID); err != nil {
		s.log.Warn("category cache invalidate failed", zap.Int64("wholesaler_id", wholesalerID), zap.Error(err))
	}
}

// List returns one page of a wholesaler's products. A page past the end yields the last page.
func (s *ProductServiceImpl) List(ctx context.Context, f model.ProductFilter, page model.PageRequest) (model.Page[model.Product], error) {
	if f.WholesalerID <= 0 {
		return model.Page[model.Product]{}, FieldErrors{"wholesalerId": {"is required"}}
	}
	return listClamped(ctx, s.repo.List, f, NormalizePage(page))
}

// listClamped runs list and, when req lies past the last page, re-reads the last page.
func listClamped(ctx context.Context, list func(context.Context, model.ProductFilter, model.PageRequest) (model.Page[model.Product], error), f model.ProductFilter, req model.PageRequest) (model.Page[model.Product], error) {
	res, err := list(ctx, f, req)
	if err != nil {
		return res, err
	}
	if res.TotalPages > 0 && req.Index >= res.TotalPages {
		req.Index = res.TotalPages - 1
		if res, err = list(ctx, f, req); err != nil {
			return res, err
		}
	}
	return res.Clamped(), nil
}

// Get fetches a single product.
func (s *ProductServiceImpl) Get(ctx context.Context, id int64) (*model.Product, error) {
	if id <= 0 {
		return nil, errs.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create validates p and stores it. A wholesaler without an explicit wholesalerId writes to its own catalog.
func (s *ProductServiceImpl) Create(ctx context.Context, who model.Claims, p model.Product) (*model.Product, error) {
	if p.WholesalerID == 0 && who.Role == model.RoleWholesaler {
		p.WholesalerID = who.ProfileID
	}
	p.ID, p.Version = 0, 0
	if err := validateProduct(&p); err != nil {
		return nil, err
	}
	if !canWrite(who, p.WholesalerID) {
		return nil, fmt.Errorf("wholesaler %d: %w", p.WholesalerID, errs.ErrForbidden)
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, err
	}
	s.invalidate(ctx, p.WholesalerID)
	return &p, nil
}

// Update overwrites product id. Ownership cannot move between wholesalers.
func (s *ProductServiceImpl) Update(ctx context.Context, who model.Claims, id int64, p model.Product, version *int) (*model.Product, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canWrite(who, cur.WholesalerID) {
		return nil, fmt.Errorf("product %d: %w", id, errs.ErrForbidden)
	}
	if p.WholesalerID != 0 && p.WholesalerID != cur.WholesalerID {
		return nil, FieldErrors{"wholesalerId": {"cannot be changed"}}
	}
	p.ID = id
	p.WholesalerID = cur.WholesalerID
	p.Version = cur.Version
	if version != nil {
		p.Version = *version
	}
	if err := validateProduct(&p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &p); err != nil {
		return nil, err
	}
	s.invalidate(ctx, p.WholesalerID)
	return &p, nil
}

// Delete removes product id.
func (s *ProductServiceImpl) Delete(ctx context.Context, who model.Claims, id int64) error {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canWrite(who, cur.WholesalerID) {
		return fmt.Errorf("product %d: %w", id, errs.ErrForbidden)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cur.WholesalerID)
	return nil
}

// SetStatus sets the visibility flag of product id.
func (s *ProductServiceImpl) SetStatus(ctx context.Context, who model.Claims, id int64, active bool) (*model.Product, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canWrite(who, cur.WholesalerID) {
		return nil, fmt.Errorf("product %d: %w", id, errs.ErrForbidden)
	}
	out, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, cur.WholesalerID)
	return out, nil
}

// Categories returns a wholesaler's categories, served from cache when possible.
// Cache failures degrade to a direct read.
func (s *ProductServiceImpl) Categories(ctx context.Context, wholesalerID int64) ([]string, error) {
	if wholesalerID <= 0 {
		return nil, FieldErrors{"wholesalerId": {"is required"}}
	}
	cats, ok, err := s.cache.Get(ctx, wholesalerID)
	if err != nil {
		s.log.Warn("category cache read failed", zap.Int64("wholesaler_id", wholesalerID), zap.Error(err))
	}
	if ok {
		return cats, nil
	}
	cats, err = s.repo.Categories(ctx, wholesalerID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, wholesalerID, cats); err != nil {
		s.log.Warn("category cache write failed", zap.Int64("wholesaler_id", wholesalerID), zap.Error(err))
	}
	return cats, nil
}
