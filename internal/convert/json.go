// Package convert maps domain types to and from their JSON wire shapes.
package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	model "github.com/and161185/retail-desk/internal/model"
)

// --- helpers ---

func ts(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func optInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

// --- Product ---

// Product is the wire shape of a catalog product. Price travels as a JSON number.
type Product struct {
	ID            *int64      `json:"id,omitempty"`
	Version       *int        `json:"version,omitempty"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Category      string      `json:"category"`
	Price         json.Number `json:"price"`
	SKUCode       string      `json:"skuCode"`
	StockQuantity int         `json:"stockQuantity"`
	Unit          string      `json:"unit"`
	WholesalerID  int64       `json:"wholesalerId"`
	ImageURL      *string     `json:"imageUrl,omitempty"`
	Active        bool        `json:"active"`
	CreatedAt     *time.Time  `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time  `json:"updatedAt,omitempty"`
}

// UnmarshalJSON accepts the legacy spellings isActive and stock.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	var aux struct {
		plain
		Active        *bool `json:"active"`
		IsActive      *bool `json:"isActive"`
		StockQuantity *int  `json:"stockQuantity"`
		Stock         *int  `json:"stock"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Product(aux.plain)
	switch {
	case aux.Active != nil:
		p.Active = *aux.Active
	case aux.IsActive != nil:
		p.Active = *aux.IsActive
	}
	switch {
	case aux.StockQuantity != nil:
		p.StockQuantity = *aux.StockQuantity
	case aux.Stock != nil:
		p.StockQuantity = *aux.Stock
	}
	return nil
}

// ToProduct converts a domain product to its wire shape.
func ToProduct(p model.Product) Product {
	out := Product{
		ID:            optInt64(p.ID),
		Name:          p.Name,
		Description:   p.Description,
		Category:      p.Category,
		Price:         json.Number(p.Price.String()),
		SKUCode:       p.SKUCode,
		StockQuantity: p.StockQuantity,
		Unit:          p.Unit,
		WholesalerID:  p.WholesalerID,
		ImageURL:      p.ImageURL,
		Active:        p.Active,
		CreatedAt:     ts(p.CreatedAt),
		UpdatedAt:     ts(p.UpdatedAt),
	}
	if p.ID != 0 {
		v := p.Version
		out.Version = &v
	}
	return out
}

// FromProduct converts a wire product into the domain type. An absent price is zero.
func FromProduct(in Product) (model.Product, error) {
	price := decimal.Zero
	if in.Price != "" {
		d, err := decimal.NewFromString(string(in.Price))
		if err != nil {
			return model.Product{}, fmt.Errorf("invalid price %q: %w", in.Price, err)
		}
		price = d
	}
	out := model.Product{
		Name:          in.Name,
		Description:   in.Description,
		Category:      in.Category,
		Price:         price,
		SKUCode:       in.SKUCode,
		StockQuantity: in.StockQuantity,
		Unit:          in.Unit,
		WholesalerID:  in.WholesalerID,
		ImageURL:      in.ImageURL,
		Active:        in.Active,
	}
	if in.ID != nil {
		out.ID = *in.ID
	}
	if in.Version != nil {
		out.Version = *in.Version
	}
	if in.CreatedAt != nil {
		out.CreatedAt = *in.CreatedAt
	}
	if in.UpdatedAt != nil {
		out.UpdatedAt = *in.UpdatedAt
	}
	return out, nil
}

// --- Wholesaler ---

// Wholesaler is the public face of a wholesaler profile.
type Wholesaler struct {
	ID           int64  `json:"id"`
	BusinessName string `json:"businessName"`
	Address      string `json:"address"`
	GSTNumber    string `json:"gstNumber"`
	IsActive     bool   `json:"isActive"`
}

func ToWholesaler(w model.Wholesaler) Wholesaler {
	return Wholesaler{ID: w.ID, BusinessName: w.BusinessName, Address: w.Address, GSTNumber: w.GSTNumber, IsActive: w.Active}
}

// ToList maps a slice, never returning nil.
func ToList[A, B any](in []A, f func(A) B) []B {
	out := make([]B, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}

// --- Page ---

// Page is the canonical paging envelope.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
	Empty         bool  `json:"empty"`
}

// legacyPage is the older envelope some backends still return.
type legacyPage[T any] struct {
	Products    []T   `json:"products"`
	TotalItems  int64 `json:"totalItems"`
	TotalPages  int   `json:"totalPages"`
	CurrentPage int   `json:"currentPage"`
	PageSize    int   `json:"pageSize"`
}

// ToPage wraps a domain page into the canonical envelope, converting each item with f.
func ToPage[A, B any](p model.Page[A], f func(A) B) Page[B] {
	content := make([]B, 0, len(p.Items))
	for _, it := range p.Items {
		content = append(content, f(it))
	}
	return Page[B]{
		Content:       content,
		TotalElements: p.TotalItems,
		TotalPages:    p.TotalPages,
		Size:          p.Size,
		Number:        p.Index,
		Empty:         len(content) == 0,
	}
}

// DecodeProductPage reads either envelope and returns the canonical domain page.
func DecodeProductPage(data []byte) (model.Page[model.Product], error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return model.Page[model.Product]{}, fmt.Errorf("decode page: %w", err)
	}

	var (
		raw   []Product
		total int64
		pages int
		index int
		size  int
	)
	if _, legacy := keys["products"]; legacy {
		var lp legacyPage[Product]
		if err := json.Unmarshal(data, &lp); err != nil {
			return model.Page[model.Product]{}, fmt.Errorf("decode legacy page: %w", err)
		}
		raw, total, pages, index, size = lp.Products, lp.TotalItems, lp.TotalPages, lp.CurrentPage, lp.PageSize
	} else {
		var cp Page[Product]
		if err := json.Unmarshal(data, &cp); err != nil {
			return model.Page[model.Product]{}, fmt.Errorf("decode page: %w", err)
		}
		raw, total, pages, index, size = cp.Content, cp.TotalElements, cp.TotalPages, cp.Number, cp.Size
	}

	items := make([]model.Product, 0, len(raw))
	for i := range raw {
		p, err := FromProduct(raw[i])
		if err != nil {
			return model.Page[model.Product]{}, fmt.Errorf("page item %d: %w", i, err)
		}
		items = append(items, p)
	}
	if pages == 0 && total > 0 && size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return model.Page[model.Product]{Items: items, TotalItems: total, TotalPages: pages, Index: index, Size: size}.Clamped(), nil
}

// --- Auth ---

// LoginRequest is the login body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token        string     `json:"token"`
	Type         string     `json:"type,omitempty"`
	Role         string     `json:"role"`
	UserID       int64      `json:"userId"`
	RoleID       *int64     `json:"roleId,omitempty"`
	Email        string     `json:"email,omitempty"`
	Username     string     `json:"username"`
	BusinessName *string    `json:"businessName,omitempty"`
	ShopName     *string    `json:"shopName,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// ToLoginResponse converts a login result to the wire shape.
func ToLoginResponse(r model.LoginResult) LoginResponse {
	return LoginResponse{
		Token:        r.Token,
		Type:         r.TokenType,
		Role:         string(r.Role),
		UserID:       r.UserID,
		RoleID:       r.RoleID,
		Email:        r.Email,
		Username:     r.Username,
		BusinessName: r.BusinessName,
		ShopName:     r.ShopName,
		ExpiresAt:    ts(r.ExpiresAt),
	}
}

// FromLoginResponse converts the wire shape back to a login result. An unknown role is kept verbatim.
func FromLoginResponse(in LoginResponse) model.LoginResult {
	role, ok := model.ParseRole(in.Role)
	if !ok {
		role = model.Role(in.Role)
	}
	out := model.LoginResult{
		Token:        in.Token,
		TokenType:    in.Type,
		Role:         role,
		UserID:       in.UserID,
		RoleID:       in.RoleID,
		Email:        in.Email,
		Username:     in.Username,
		BusinessName: in.BusinessName,
		ShopName:     in.ShopName,
	}
	if in.ExpiresAt != nil {
		out.ExpiresAt = *in.ExpiresAt
	}
	return out
}

// RegisterRequest is the registration body. Role-specific fields are omitted when unset.
type RegisterRequest struct {
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Password     string   `json:"password"`
	Phone        string   `json:"phone"`
	Role         string   `json:"role"`
	Address      *string  `json:"address,omitempty"`
	BusinessName *string  `json:"businessName,omitempty"`
	GSTNumber    *string  `json:"gstNumber,omitempty"`
	ShopName     *string  `json:"shopName,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

// ToRegisterRequest converts a domain registration to the wire body.
func ToRegisterRequest(r model.RegisterRequest) RegisterRequest {
	return RegisterRequest{
		Username:     r.Username,
		Email:        r.Email,
		Password:     r.Password,
		Phone:        r.Phone,
		Role:         string(r.Role),
		Address:      r.Address,
		BusinessName: r.BusinessName,
		GSTNumber:    r.GSTNumber,
		ShopName:     r.ShopName,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
	}
}

// FromRegisterRequest converts the wire body to a domain registration.
// The role is upper-cased; validation happens in the service.
func FromRegisterRequest(in RegisterRequest) model.RegisterRequest {
	role, ok := model.ParseRole(in.Role)
	if !ok {
		role = model.Role(in.Role)
	}
	return model.RegisterRequest{
		Username:     in.Username,
		Email:        in.Email,
		Password:     in.Password,
		Phone:        in.Phone,
		Role:         role,
		Address:      in.Address,
		BusinessName: in.BusinessName,
		GSTNumber:    in.GSTNumber,
		ShopName:     in.ShopName,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
	}
}

// --- Messages ---

// Message is a plain {"message": ...} body.
type Message struct {
	Message string `json:"message"`
}

// ValidationProblem reports per-field violations.
type ValidationProblem struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}
