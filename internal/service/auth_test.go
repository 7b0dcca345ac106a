package service

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgcrypto "github.com/and161185/retail-desk/internal/crypto"
	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/limiter"
	"github.com/and161185/retail-desk/internal/model"
	"github.com/and161185/retail-desk/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers struct {
	byEmail  map[string]*model.User
	profiles map[int64]model.Profile
	nextID   int64

	createErr  error
	getErr     error
	existsErr  error
	profileErr error

	lastProfile *model.Profile
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User, p *model.Profile) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.User{}
	}
	if _, exists := f.byEmail[u.Email]; exists {
		return errs.ErrAlreadyExists
	}
	f.nextID++
	u.ID = f.nextID
	cpy := *u
	f.byEmail[u.Email] = &cpy
	f.lastProfile = p
	if p != nil {
		if f.profiles == nil {
			f.profiles = map[int64]model.Profile{}
		}
		if p.Wholesaler != nil {
			p.Wholesaler.ID, p.Wholesaler.UserID = 100+u.ID, u.ID
		}
		if p.LocalSeller != nil {
			p.LocalSeller.ID, p.LocalSeller.UserID = 200+u.ID, u.ID
		}
		f.profiles[u.ID] = *p
	}
	return nil
}
func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}
func (f *fakeUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.byEmail[email]
	return ok, nil
}
func (f *fakeUsers) GetProfile(_ context.Context, userID int64, _ model.Role) (model.Profile, error) {
	if f.profileErr != nil {
		return model.Profile{}, f.profileErr
	}
	return f.profiles[userID], nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	lastKey      limiter.Key
	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, k limiter.Key) (bool, time.Duration, error) {
	l.allowCalls++
	l.lastKey = k
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, limiter.Key) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, limiter.Key) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

func ptr[T any](v T) *T { return &v }

func TestAuth_Register_Validation(t *testing.T) {
	t.Parallel()
	s := NewAuthService(&fakeUsers{}, []byte("k"), time.Minute, nil, bcrypt.MinCost)

	_, err := s.Register(context.Background(), model.RegisterRequest{Username: "a", Email: "nope", Password: "123", Phone: "12", Role: model.RoleAdmin})
	var fe FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("want FieldErrors, got %v", err)
	}
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("FieldErrors must unwrap to ErrValidation")
	}
	for _, f := range []string{"username", "email", "password", "phone", "role"} {
		if len(fe[f]) == 0 {
			t.Fatalf("want error on %s, got %v", f, fe)
		}
	}
}

func TestAuth_Register_WholesalerProfile(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s := NewAuthService(users, []byte("k"), time.Minute, nil, bcrypt.MinCost)

	id, err := s.Register(context.Background(), model.RegisterRequest{
		Username: "acme", Email: " Sales@Acme.io ", Password: "secret1", Phone: "9999999999",
		Role: model.RoleWholesaler, BusinessName: ptr("Acme Traders"), GSTNumber: ptr("GST1"),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == 0 {
		t.Fatalf("empty user id")
	}
	u := users.byEmail["sales@acme.io"]
	if u == nil {
		t.Fatalf("email not normalized: %v", users.byEmail)
	}
	if !pkgcrypto.VerifyPassword([]byte("secret1"), u.PwdHash) {
		t.Fatalf("password not bcrypt-hashed")
	}
	if users.lastProfile == nil || users.lastProfile.Wholesaler == nil || users.lastProfile.Wholesaler.BusinessName != "Acme Traders" {
		t.Fatalf("bad profile: %+v", users.lastProfile)
	}

	_, err = s.Register(context.Background(), model.RegisterRequest{Username: "acme2", Email: "sales@acme.io", Password: "secret1", Role: model.RoleSalesman})
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
}

func TestAuth_Register_ProfilesPerRole(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s := NewAuthService(users, []byte("k"), time.Minute, nil, bcrypt.MinCost)

	if _, err := s.Register(context.Background(), model.RegisterRequest{Username: "corner", Email: "c@x.io", Password: "secret1",
		Role: model.RoleLocalSeller, Latitude: ptr(18.5)}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ls := users.lastProfile.LocalSeller
	if ls == nil || ls.ShopName != "corner" || ls.Latitude == nil || *ls.Latitude != 18.5 {
		t.Fatalf("bad local seller profile: %+v", ls)
	}

	if _, err := s.Register(context.Background(), model.RegisterRequest{Username: "sam", Email: "s@x.io", Password: "secret1", Role: model.RoleSalesman}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if users.lastProfile != nil {
		t.Fatalf("salesman must not get a profile")
	}

	users.createErr = errors.New("boom")
	if _, err := s.Register(context.Background(), model.RegisterRequest{Username: "bob", Email: "b@x.io", Password: "secret1", Role: model.RoleSalesman}); err == nil {
		t.Fatalf("want propagated repo error")
	}
}

func TestAuth_Login_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	hash, err := pkgcrypto.HashPassword([]byte("correct"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	users := &fakeUsers{
		byEmail:  map[string]*model.User{"a@b.io": {ID: 7, Username: "alice", Email: "a@b.io", PwdHash: hash, Role: model.RoleWholesaler, Active: true}},
		profiles: map[int64]model.Profile{7: {Wholesaler: &model.Wholesaler{ID: 3, UserID: 7, BusinessName: "Alice Co"}}},
	}
	lim := &fakeLimiter{allowOK: true}
	s := NewAuthService(users, []byte("secret"), 2*time.Minute, lim, bcrypt.MinCost)
	ctx := context.Background()

	if _, err := s.Login(ctx, model.LoginRequest{}, ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation on empty creds, got %v", err)
	}

	lim.allowErr = errors.New("lim-err")
	if _, err := s.Login(ctx, model.LoginRequest{Email: "a@b.io", Password: "correct"}, "1.2.3.4"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, err := s.Login(ctx, model.LoginRequest{Email: "a@b.io", Password: "correct"}, "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, err := s.Login(ctx, model.LoginRequest{Email: "nope@b.io", Password: "x"}, ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing user, got %v", err)
	}

	lim.failBlocked = true
	if _, err := s.Login(ctx, model.LoginRequest{Email: "a@b.io", Password: "wrong"}, ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocked after failure, got %v", err)
	}
	lim.failBlocked = false

	if _, err := s.Login(ctx, model.LoginRequest{Email: "a@b.io", Password: "wrong"}, ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	res, err := s.Login(ctx, model.LoginRequest{Email: " A@B.io", Password: "correct"}, "127.0.0.1")
	if err != nil {
		t.Fatalf("Login success: %v", err)
	}
	if lim.lastKey.Email != "a@b.io" {
		t.Fatalf("limiter key not normalized: %q", lim.lastKey.Email)
	}
	if res.Token == "" || res.TokenType != "Bearer" || res.ExpiresAt.Before(time.Now()) {
		t.Fatalf("bad token: %+v", res)
	}
	if res.UserID != 7 || res.RoleID == nil || *res.RoleID != 3 || res.AccountID() != 3 {
		t.Fatalf("bad ids: %+v", res)
	}
	if res.BusinessName == nil || *res.BusinessName != "Alice Co" || res.ShopName != nil {
		t.Fatalf("bad profile names: %+v", res)
	}
	if lim.successCalls == 0 {
		t.Fatalf("expected Success() to be called")
	}
}

func TestAuth_Login_InactiveAccount(t *testing.T) {
	t.Parallel()
	hash, _ := pkgcrypto.HashPassword([]byte("pw1234"), bcrypt.MinCost)
	users := &fakeUsers{byEmail: map[string]*model.User{"x@y.io": {ID: 1, Email: "x@y.io", PwdHash: hash, Role: model.RoleSalesman}}}
	s := NewAuthService(users, []byte("k"), time.Minute, nil, bcrypt.MinCost)

	if _, err := s.Login(context.Background(), model.LoginRequest{Email: "x@y.io", Password: "pw1234"}, ""); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestAuth_ParseToken_RoundTrip(t *testing.T) {
	t.Parallel()
	hash, _ := pkgcrypto.HashPassword([]byte("pw1234"), bcrypt.MinCost)
	users := &fakeUsers{
		byEmail:  map[string]*model.User{"x@y.io": {ID: 9, Email: "x@y.io", PwdHash: hash, Role: model.RoleLocalSeller, Active: true}},
		profiles: map[int64]model.Profile{9: {LocalSeller: &model.LocalSeller{ID: 4, ShopName: "Corner"}}},
	}
	s := NewAuthService(users, []byte("k"), time.Minute, nil, bcrypt.MinCost)

	res, err := s.Login(context.Background(), model.LoginRequest{Email: "x@y.io", Password: "pw1234"}, "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	c, err := s.ParseToken(res.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	want := model.Claims{UserID: 9, Email: "x@y.io", Role: model.RoleLocalSeller, ProfileID: 4}
	if c != want {
		t.Fatalf("claims = %+v, want %+v", c, want)
	}

	other := NewAuthService(users, []byte("other-key"), time.Minute, nil, bcrypt.MinCost)
	if _, err := other.ParseToken(res.Token); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on bad signature, got %v", err)
	}
}

func TestAuth_ParseToken_ExpiredAndAlg(t *testing.T) {
	t.Parallel()
	s := NewAuthService(&fakeUsers{}, []byte("k"), time.Minute, nil, bcrypt.MinCost)
	u := &model.User{ID: 1, Email: "a@b.io", Role: model.RoleWholesaler}

	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, err := s.issueAccessToken(u, 3)
	if err != nil {
		t.Fatal(err)
	}
	s.now = time.Now
	if _, err := s.ParseToken(tok); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on expired token, got %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "role": "ADMIN"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ParseToken(none); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on alg none, got %v", err)
	}
}
