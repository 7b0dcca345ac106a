package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
	"github.com/and161185/retail-desk/internal/service"
)

type fakeSellers struct {
	who      model.Claims
	sellerID int64
	filter   model.ProductFilter
	page     model.PageRequest
	pageRes  model.Page[model.Product]
	err      error
}

var _ service.SellerService = (*fakeSellers)(nil)

func (f *fakeSellers) Wholesalers(context.Context) ([]model.Wholesaler, error) {
	return []model.Wholesaler{{ID: 7, BusinessName: "Acme", GSTNumber: "GST1", Active: true}}, f.err
}
func (f *fakeSellers) WholesalerProducts(_ context.Context, id int64) ([]model.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.Product{{ID: 1, Name: "Rice", Price: decimal.NewFromInt(5), WholesalerID: id, Active: true}}, nil
}
func (f *fakeSellers) Subscriptions(_ context.Context, who model.Claims, sellerID int64) ([]model.Wholesaler, error) {
	f.who, f.sellerID = who, sellerID
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}
func (f *fakeSellers) MappedProducts(_ context.Context, who model.Claims, sellerID int64, fl model.ProductFilter, p model.PageRequest) (model.Page[model.Product], error) {
	f.who, f.sellerID, f.filter, f.page = who, sellerID, fl, p
	return f.pageRes, f.err
}

func newSellerRouter(t *testing.T) (*gin.Engine, *fakeSellers) {
	t.Helper()
	s := &fakeSellers{}
	return New(&fakeAuth{}, &fakeProducts{}, s, zaptest.NewLogger(t), []string{"*"}).Router(), s
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSellerRoutes_RoleGate(t *testing.T) {
	t.Parallel()
	r, _ := newSellerRouter(t)

	require.Equal(t, http.StatusUnauthorized, get(r, "/api/local-seller/wholesalers", "").Code)
	w := get(r, "/api/local-seller/wholesalers", "good")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decode(t, w)["message"])
}

func TestSellerRoutes_Wholesalers(t *testing.T) {
	t.Parallel()
	r, _ := newSellerRouter(t)

	w := get(r, "/api/local-seller/wholesalers", "seller")
	require.Equal(t, http.StatusOK, w.Code)
	var ws []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ws))
	require.Len(t, ws, 1)
	assert.Equal(t, "Acme", ws[0]["businessName"])
	assert.Equal(t, "GST1", ws[0]["gstNumber"])
	assert.Equal(t, true, ws[0]["isActive"])

	w = get(r, "/api/local-seller/wholesalers/7/products", "seller")
	require.Equal(t, http.StatusOK, w.Code)
	var ps []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ps))
	require.Len(t, ps, 1)
	assert.Equal(t, float64(7), ps[0]["wholesalerId"])

	require.Equal(t, http.StatusNotFound, get(r, "/api/local-seller/wholesalers/x/products", "seller").Code)
}

func TestSellerRoutes_Subscriptions(t *testing.T) {
	t.Parallel()
	r, s := newSellerRouter(t)

	w := get(r, "/api/local-seller/9/subscribed-wholesalers", "seller")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, int64(9), s.sellerID)
	assert.Equal(t, model.RoleLocalSeller, s.who.Role)

	s.err = fmt.Errorf("local seller 4: %w", errs.ErrForbidden)
	w = get(r, "/api/local-seller/4/subscribed-wholesalers", "seller")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestSellerRoutes_MappedProducts(t *testing.T) {
	t.Parallel()
	r, s := newSellerRouter(t)
	s.pageRes = model.NewPage([]model.Product{{ID: 1, Name: "Rice", Price: decimal.NewFromInt(2)}}, 3, model.PageRequest{Index: 1, Size: 2})

	w := get(r, "/api/local-seller/9/wholesalers/7/products/paged?page=1&size=2&sort=price,desc", "seller")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(9), s.sellerID)
	assert.Equal(t, model.ProductFilter{WholesalerID: 7, SortBy: "price", SortDesc: true}, s.filter)
	assert.Equal(t, model.PageRequest{Index: 1, Size: 2}, s.page)
	m := decode(t, w)
	assert.Equal(t, float64(2), m["totalPages"])
	assert.Equal(t, float64(1), m["number"])

	s.err = fmt.Errorf("wholesaler 8 not mapped to this local seller: %w", errs.ErrForbidden)
	w = get(r, "/api/local-seller/9/wholesalers/8/products/paged", "seller")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, decode(t, w)["message"], "not mapped")

	w = get(r, "/api/local-seller/9/wholesalers/7/products/paged?size=big", "seller")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
