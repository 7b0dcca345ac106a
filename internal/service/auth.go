// Package service contains application services for authentication and the product catalog.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/retail-desk/internal/crypto"
	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/limiter"
	"github.com/and161185/retail-desk/internal/model"
	"github.com/and161185/retail-desk/internal/repository"
	"github.com/golang-jwt/jwt/v5"
)

// AuthService defines account registration, login and token verification.
type AuthService interface {
	// Register creates a user together with its role profile.
	Register(ctx context.Context, req model.RegisterRequest) (userID int64, err error)
	// Login applies rate limiting by (email, ip) and issues an access token.
	Login(ctx context.Context, req model.LoginRequest, ip string) (model.LoginResult, error)
	// ParseToken verifies a bearer token and returns its claims.
	ParseToken(token string) (model.Claims, error)
}

// AuthServiceImpl is the JWT-issuing AuthService.
type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	cost      int
	now       func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
// A nil limiter disables throttling.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter, bcryptCost int) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim, cost: bcryptCost, now: time.Now}
}

// tokenClaims is the JWT payload: sub is the user id, rid the profile id.
type tokenClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	ProfileID int64  `json:"rid,omitempty"`
	jwt.RegisteredClaims
}

var registrableRoles = map[model.Role]bool{
	model.RoleWholesaler:  true,
	model.RoleLocalSeller: true,
	model.RoleSalesman:    true,
}

func validateRegister(req *model.RegisterRequest) error {
	fe := FieldErrors{}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)

	if len(req.Username) < 2 {
		fe.Add("username", "must be at least 2 characters")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil || req.Email == "" {
		fe.Add("email", "must be a valid email address")
	}
	if len(req.Password) < 6 {
		fe.Add("password", "must be at least 6 characters")
	}
	if req.Phone != "" && len(req.Phone) < 10 {
		fe.Add("phone", "must be at least 10 digits")
	}
	if !registrableRoles[req.Role] {
		fe.Add("role", "must be one of WHOLESALER, LOCAL_SELLER, SALESMAN")
	}
	return fe.Err()
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Register creates a new account. The email must not be taken.
func (s *AuthServiceImpl) Register(ctx context.Context, req model.RegisterRequest) (int64, error) {
	if err := validateRegister(&req); err != nil {
		return 0, err
	}
	taken, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return 0, err
	}
	if taken {
		return 0, fmt.Errorf("email %s: %w", req.Email, errs.ErrAlreadyExists)
	}
	hash, err := pkgcrypto.HashPassword([]byte(req.Password), s.cost)
	if err != nil {
		return 0, err
	}

	u := &model.User{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		PwdHash:  hash,
		Role:     req.Role,
		Active:   true,
	}
	var p *model.Profile
	switch req.Role {
	case model.RoleWholesaler:
		name := strings.TrimSpace(deref(req.BusinessName))
		if name == "" {
			name = req.Username
		}
		p = &model.Profile{Wholesaler: &model.Wholesaler{
			BusinessName: name,
			Address:      deref(req.Address),
			GSTNumber:    deref(req.GSTNumber),
		}}
	case model.RoleLocalSeller:
		shop := strings.TrimSpace(deref(req.ShopName))
		if shop == "" {
			shop = req.Username
		}
		p = &model.Profile{LocalSeller: &model.LocalSeller{
			ShopName:  shop,
			Address:   deref(req.Address),
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		}}
	}
	if err := s.users.Create(ctx, u, p); err != nil {
		return 0, err
	}
	return u.ID, nil
}

// Login authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, req model.LoginRequest, ip string) (model.LoginResult, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		fe := FieldErrors{}
		if strings.TrimSpace(req.Email) == "" {
			fe.Add("email", "is required")
		}
		if req.Password == "" {
			fe.Add("password", "is required")
		}
		return model.LoginResult{}, fe
	}
	key := limiter.NewKey(req.Email, ip)

	allowed, _, err := s.lim.Allow(ctx, key)
	if err != nil {
		return model.LoginResult{}, err
	}
	if !allowed {
		return model.LoginResult{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, key.Email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.LoginResult{}, err
	}
	if err != nil || !pkgcrypto.VerifyPassword([]byte(req.Password), u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, key); ferr == nil && blocked {
			return model.LoginResult{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.LoginResult{}, fmt.Errorf("invalid email or password: %w", errs.ErrUnauthorized)
	}
	if !u.Active {
		return model.LoginResult{}, fmt.Errorf("account disabled: %w", errs.ErrForbidden)
	}

	_ = s.lim.Success(ctx, key)

	profile, err := s.users.GetProfile(ctx, u.ID, u.Role)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.LoginResult{}, err
	}

	token, exp, err := s.issueAccessToken(u, profile.ProfileID())
	if err != nil {
		return model.LoginResult{}, err
	}
	res := model.LoginResult{
		Token:     token,
		TokenType: "Bearer",
		Role:      u.Role,
		UserID:    u.ID,
		Email:     u.Email,
		Username:  u.Username,
		ExpiresAt: exp,
	}
	if id := profile.ProfileID(); id > 0 {
		res.RoleID = &id
	}
	if profile.Wholesaler != nil {
		n := profile.Wholesaler.BusinessName
		res.BusinessName = &n
	}
	if profile.LocalSeller != nil {
		n := profile.LocalSeller.ShopName
		res.ShopName = &n
	}
	return res, nil
}

// issueAccessToken creates a signed HS256 JWT for u.
func (s *AuthServiceImpl) issueAccessToken(u *model.User, profileID int64) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := tokenClaims{
		Email:     u.Email,
		Role:      string(u.Role),
		ProfileID: profileID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// ParseToken verifies signature, algorithm and expiry of token.
func (s *AuthServiceImpl) ParseToken(token string) (model.Claims, error) {
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return s.signKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return model.Claims{}, fmt.Errorf("%v: %w", err, errs.ErrUnauthorized)
	}
	uid, err := strconv.ParseInt(tc.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return model.Claims{}, fmt.Errorf("bad subject: %w", errs.ErrUnauthorized)
	}
	role, ok := model.ParseRole(tc.Role)
	if !ok {
		return model.Claims{}, fmt.Errorf("bad role: %w", errs.ErrUnauthorized)
	}
	return model.Claims{UserID: uid, Email: tc.Email, Role: role, ProfileID: tc.ProfileID}, nil
}
