// Package model defines domain entities shared by the server, the services and the console client.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role is the account kind; it decides which profile row backs a user.
type Role string

const (
	RoleWholesaler  Role = "WHOLESALER"
	RoleLocalSeller Role = "LOCAL_SELLER"
	RoleSalesman    Role = "SALESMAN"
	RoleAdmin       Role = "ADMIN"
)

// ParseRole normalizes s into a known Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleWholesaler, RoleLocalSeller, RoleSalesman, RoleAdmin:
		return r, true
	}
	return "", false
}

// User represents an account stored on the server. The password is only kept as a bcrypt hash.
type User struct {
	ID        int64
	Username  string
	Email     string // unique, stored lowercased
	Phone     string
	PwdHash   []byte
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// Wholesaler is the tenant profile of a WHOLESALER user; products are scoped by its ID.
type Wholesaler struct {
	ID           int64
	UserID       int64
	BusinessName string
	Address      string
	GSTNumber    string
	Active       bool
}

// MappingStatus is the state of the link between a local seller and a wholesaler it buys from.
// Only APPROVED links open the wholesaler's catalog to the seller.
type MappingStatus string

const (
	MappingPending  MappingStatus = "PENDING"
	MappingApproved MappingStatus = "APPROVED"
	MappingRejected MappingStatus = "REJECTED"
)

// LocalSeller is the profile of a LOCAL_SELLER user.
type LocalSeller struct {
	ID        int64
	UserID    int64
	ShopName  string
	Address   string
	Latitude  *float64
	Longitude *float64
}

// Profile carries the role-specific row created together with a user.
// Exactly one of the pointers is set for roles that have a profile.
type Profile struct {
	Wholesaler  *Wholesaler
	LocalSeller *LocalSeller
}

// ProfileID returns the id of whichever profile is present, or 0.
func (p Profile) ProfileID() int64 {
	switch {
	case p.Wholesaler != nil:
		return p.Wholesaler.ID
	case p.LocalSeller != nil:
		return p.LocalSeller.ID
	}
	return 0
}

// Product is a catalog entry owned by a wholesaler.
type Product struct {
	ID            int64
	Version       int
	Name          string
	Description   string
	Category      string
	Price         decimal.Decimal
	SKUCode       string // unique per wholesaler
	StockQuantity int
	Unit          string
	WholesalerID  int64
	ImageURL      *string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Units accepted for a product.
var Units = []string{"kg", "liter", "piece", "box", "packet", "carton", "dozen", "gms", "ml"}

// DefaultUnit is applied when a product is saved without a unit.
const DefaultUnit = "piece"

// IsUnit reports whether u is one of Units.
func IsUnit(u string) bool {
	for _, v := range Units {
		if v == u {
			return true
		}
	}
	return false
}

// ProductFilter narrows a product listing. Search and Category are independent predicates
// on the server; the console never sends both.
type ProductFilter struct {
	WholesalerID int64
	Search       string
	Category     string
	SortBy       string
	SortDesc     bool
	// ActiveOnly hides products switched off by their wholesaler.
	ActiveOnly   bool
}

// PageRequest is a zero-based page window.
type PageRequest struct {
	Index int
	Size  int
}

// Offset returns the row offset of the window.
func (p PageRequest) Offset() int { return p.Index * p.Size }

// Page is the canonical paged list. Items is never nil on a constructed page.
type Page[T any] struct {
	Items      []T
	TotalItems int64
	TotalPages int
	Index      int
	Size       int
}

// NewPage builds a page, deriving TotalPages from total and size. Index is clamped to the last page.
func NewPage[T any](items []T, total int64, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{Items: items, TotalItems: total, TotalPages: pages, Index: req.Index, Size: req.Size}.Clamped()
}

// Clamped pins Index into [0, TotalPages-1], or 0 when there are no pages.
func (p Page[T]) Clamped() Page[T] {
	if p.Index >= p.TotalPages {
		p.Index = p.TotalPages - 1
	}
	if p.Index < 0 {
		p.Index = 0
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	return p
}

// EmptyPage returns a page with no items at index 0.
func EmptyPage[T any]() Page[T] { return Page[T]{Items: []T{}} }

// Empty reports whether the page holds no items.
func (p Page[T]) Empty() bool { return len(p.Items) == 0 }

// Claims are the identity facts carried by an access token.
type Claims struct {
	UserID    int64
	Email     string
	Role      Role
	ProfileID int64
}

// LoginRequest is the credentials pair submitted on login.
type LoginRequest struct {
	Email    string
	Password string
}

// LoginResult is what a successful login hands back.
type LoginResult struct {
	Token        string
	TokenType    string
	Role         Role
	UserID       int64
	RoleID       *int64 // profile id, absent for roles without a profile
	Email        string
	Username     string
	BusinessName *string
	ShopName     *string
	ExpiresAt    time.Time
}

// AccountID is the id used to scope catalog calls: the profile id when present, else the user id.
func (r LoginResult) AccountID() int64 {
	if r.RoleID != nil && *r.RoleID > 0 {
		return *r.RoleID
	}
	return r.UserID
}

// RegisterRequest is a new-account submission. Role-specific fields are nil when they do not
// apply to Role.
type RegisterRequest struct {
	Username     string
	Email        string
	Password     string
	Phone        string
	Role         Role
	Address      *string
	BusinessName *string
	GSTNumber    *string
	ShopName     *string
	Latitude     *float64
	Longitude    *float64
}

// Identity is who the console is acting as.
type Identity struct {
	AccountID   int64
	DisplayName string
	Role        Role
}

// Session pairs a token with its identity. A valid session always has both.
type Session struct {
	Token    string
	Identity Identity
}

// Valid reports whether every field a session needs is present.
func (s Session) Valid() bool {
	return s.Token != "" && s.Identity.AccountID > 0 && s.Identity.DisplayName != "" && s.Identity.Role != ""
}
