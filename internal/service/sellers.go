package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
	"github.com/and161185/retail-desk/internal/repository"
)

// SellerService is the read-only catalog seen by local sellers.
type SellerService interface {
	Wholesalers(ctx context.Context) ([]model.Wholesaler, error)
	WholesalerProducts(ctx context.Context, wholesalerID int64) ([]model.Product, error)
	// Subscriptions lists the wholesalers that approved sellerID.
	Subscriptions(ctx context.Context, who model.Claims, sellerID int64) ([]model.Wholesaler, error)
	// MappedProducts pages the active products of a wholesaler that approved sellerID.
	MappedProducts(ctx context.Context, who model.Claims, sellerID int64, f model.ProductFilter, page model.PageRequest) (model.Page[model.Product], error)
}

// SellerServiceImpl implements SellerService.
type SellerServiceImpl struct {
	sellers  repository.SellerRepository
	products repository.ProductRepository
	log      *zap.Logger
}

// NewSellerService constructs SellerService.
func NewSellerService(sellers repository.SellerRepository, products repository.ProductRepository, log *zap.Logger) *SellerServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &SellerServiceImpl{sellers: sellers, products: products, log: log}
}

// canActAs reports whether who may read the subscriptions of sellerID.
func canActAs(who model.Claims, sellerID int64) bool {
	switch who.Role {
	case model.RoleAdmin:
		return true
	case model.RoleLocalSeller:
		return who.ProfileID > 0 && who.ProfileID == sellerID
	}
	return false
}

// Wholesalers lists active wholesalers.
func (s *SellerServiceImpl) Wholesalers(ctx context.Context) ([]model.Wholesaler, error) {
	return s.sellers.ActiveWholesalers(ctx)
}

// WholesalerProducts lists the active products of a wholesaler.
func (s *SellerServiceImpl) WholesalerProducts(ctx context.Context, wholesalerID int64) ([]model.Product, error) {
	if wholesalerID <= 0 {
		return nil, errs.ErrNotFound
	}
	return s.sellers.ActiveProducts(ctx, wholesalerID)
}

func (s *SellerServiceImpl) Subscriptions(ctx context.Context, who model.Claims, sellerID int64) ([]model.Wholesaler, error) {
	if !canActAs(who, sellerID) {
		return nil, fmt.Errorf("local seller %d: %w", sellerID, errs.ErrForbidden)
	}
	return s.sellers.ApprovedWholesalers(ctx, sellerID)
}

func (s *SellerServiceImpl) MappedProducts(ctx context.Context, who model.Claims, sellerID int64, f model.ProductFilter, page model.PageRequest) (model.Page[model.Product], error) {
	if !canActAs(who, sellerID) {
		return model.Page[model.Product]{}, fmt.Errorf("local seller %d: %w", sellerID, errs.ErrForbidden)
	}
	ok, err := s.sellers.IsApproved(ctx, sellerID, f.WholesalerID)
	if err != nil {
		return model.Page[model.Product]{}, err
	}
	if !ok {
		s.log.Info("unmapped catalog read", zap.Int64("seller_id", sellerID), zap.Int64("wholesaler_id", f.WholesalerID))
		return model.Page[model.Product]{}, fmt.Errorf("wholesaler %d not mapped to this local seller: %w", f.WholesalerID, errs.ErrForbidden)
	}
	f.ActiveOnly = true
	return listClamped(ctx, s.products.List, f, NormalizePage(page))
}
