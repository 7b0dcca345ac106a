// Package forms validates console input before it reaches the API.
package forms

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
)

// LoginForm is the login input.
type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterForm is the sign-up input. Fields of the roles not selected are dropped by Request.
type RegisterForm struct {
	Username     string   `json:"username" validate:"required,min=2"`
	Email        string   `json:"email" validate:"required,email"`
	Password     string   `json:"password" validate:"required,min=6"`
	Phone        string   `json:"phone" validate:"required,min=10"`
	Role         string   `json:"role" validate:"required,oneof=WHOLESALER LOCAL_SELLER SALESMAN"`
	Address      string   `json:"address"`
	BusinessName string   `json:"businessName"`
	GSTNumber    string   `json:"gstNumber"`
	ShopName     string   `json:"shopName"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,longitude"`
}

// ProductForm is the create/edit product input.
type ProductForm struct {
	ID            int64           `json:"id"`
	Version       int             `json:"version"`
	Name          string          `json:"name" validate:"required,max=100"`
	Description   string          `json:"description"`
	Category      string          `json:"category" validate:"required"`
	Price         decimal.Decimal `json:"price" validate:"gt=0"`
	SKUCode       string          `json:"skuCode" validate:"required"`
	StockQuantity int             `json:"stockQuantity" validate:"gte=0"`
	Unit          string          `json:"unit" validate:"required,oneof=kg liter piece box packet carton dozen gms ml"`
	WholesalerID  int64           `json:"wholesalerId" validate:"gt=0"`
	ImageURL      string          `json:"imageUrl" validate:"omitempty,url"`
	Active        bool            `json:"active"`
}

// ValidationError maps field names to messages. It unwraps to errs.ErrValidation.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return errs.ErrValidation }

var (
	once sync.Once
	v    *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		v.RegisterCustomTypeFunc(func(f reflect.Value) any {
			d, ok := f.Interface().(decimal.Decimal)
			if !ok {
				return nil
			}
			x, _ := d.Float64()
			return x
		}, decimal.Decimal{})
	})
	return v
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return "must be one of " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "url":
		return "must be a valid URL"
	case "latitude", "longitude":
		return "must be a valid " + fe.Tag()
	}
	return "is invalid"
}

// Validate checks a form struct; failures come back as *ValidationError.
func Validate(form any) error {
	err := engine().Struct(form)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := &ValidationError{Fields: map[string][]string{}}
	for _, fe := range ves {
		out.Fields[fe.Field()] = append(out.Fields[fe.Field()], message(fe))
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Request builds the registration payload, keeping only the fields that belong to the chosen role.
func (f RegisterForm) Request() model.RegisterRequest {
	role, _ := model.ParseRole(f.Role)
	req := model.RegisterRequest{
		Username: strings.TrimSpace(f.Username),
		Email:    strings.TrimSpace(f.Email),
		Password: f.Password,
		Phone:    strings.TrimSpace(f.Phone),
		Role:     role,
		Address:  optional(f.Address),
	}
	switch role {
	case model.RoleWholesaler:
		req.BusinessName = optional(f.BusinessName)
		req.GSTNumber = optional(f.GSTNumber)
	case model.RoleLocalSeller:
		req.ShopName = optional(f.ShopName)
		req.Latitude = f.Latitude
		req.Longitude = f.Longitude
	}
	return req
}

// Product converts the form into a domain product.
func (f ProductForm) Product() model.Product {
	return model.Product{
		ID:            f.ID,
		Version:       f.Version,
		Name:          strings.TrimSpace(f.Name),
		Description:   f.Description,
		Category:      strings.TrimSpace(f.Category),
		Price:         f.Price,
		SKUCode:       strings.TrimSpace(f.SKUCode),
		StockQuantity: f.StockQuantity,
		Unit:          f.Unit,
		WholesalerID:  f.WholesalerID,
		ImageURL:      optional(f.ImageURL),
		Active:        f.Active,
	}
}

// ProductFormFrom pre-fills an edit form from p.
func ProductFormFrom(p model.Product) ProductForm {
	f := ProductForm{
		ID:            p.ID,
		Version:       p.Version,
		Name:          p.Name,
		Description:   p.Description,
		Category:      p.Category,
		Price:         p.Price,
		SKUCode:       p.SKUCode,
		StockQuantity: p.StockQuantity,
		Unit:          p.Unit,
		WholesalerID:  p.WholesalerID,
		Active:        p.Active,
	}
	if p.ImageURL != nil {
		f.ImageURL = *p.ImageURL
	}
	if f.Unit == "" {
		f.Unit = model.DefaultUnit
	}
	return f
}
