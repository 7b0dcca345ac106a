package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/retail-desk/internal/client/credstore"
	"github.com/and161185/retail-desk/internal/client/forms"
	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
)

type fakeAPI struct {
	loginRes   model.LoginResult
	loginErr   error
	loginCalls int

	regIn  model.RegisterRequest
	regErr error
}

func (f *fakeAPI) Login(_ context.Context, _, _ string) (model.LoginResult, error) {
	f.loginCalls++
	return f.loginRes, f.loginErr
}

func (f *fakeAPI) Register(_ context.Context, req model.RegisterRequest) error {
	f.regIn = req
	return f.regErr
}

type recorder struct {
	mu   sync.Mutex
	hops []string
}

func (r *recorder) Navigate(to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hops = append(r.hops, to)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.hops) == 0 {
		return ""
	}
	return r.hops[len(r.hops)-1]
}

func okLogin() model.LoginResult {
	rid := int64(3)
	return model.LoginResult{Token: "tok", Role: model.RoleWholesaler, UserID: 7, RoleID: &rid, Username: "acme"}
}

func newController(t *testing.T) (*Controller, *credstore.MemoryStore, *fakeAPI, *recorder) {
	t.Helper()
	st := credstore.NewMemoryStore()
	api := &fakeAPI{loginRes: okLogin()}
	nav := &recorder{}
	return New(st, api, nav, nil), st, api, nav
}

func TestHydrate(t *testing.T) {
	t.Parallel()
	c, _, _, _ := newController(t)
	assert.Equal(t, Hydrating, c.State())
	assert.Equal(t, Anonymous, c.Hydrate())
	assert.Nil(t, c.Session())

	c2, st, _, _ := newController(t)
	require.NoError(t, st.Save(model.Session{Token: "t", Identity: model.Identity{AccountID: 3, DisplayName: "acme", Role: model.RoleWholesaler}}))
	assert.Equal(t, Authenticated, c2.Hydrate())
	assert.Equal(t, "t", c2.Token())
	assert.Equal(t, int64(3), c2.AccountID())

	// a second hydrate does not re-read storage
	require.NoError(t, st.Clear())
	assert.Equal(t, Authenticated, c2.Hydrate())
}

func TestHydrate_PartialStorageIsAnonymous(t *testing.T) {
	t.Parallel()
	c, st, _, _ := newController(t)
	st.Put(credstore.KeyToken, "tok")
	assert.Equal(t, Anonymous, c.Hydrate())
}

func TestLogin_SuccessPersistsAndNavigates(t *testing.T) {
	t.Parallel()
	c, st, _, nav := newController(t)
	c.Hydrate()

	var seen []State
	unsub := c.Subscribe(func(s State) { seen = append(seen, s) })
	defer unsub()

	require.NoError(t, c.Login(context.Background(), forms.LoginForm{Email: " a@b.io ", Password: "pw"}))
	assert.Equal(t, Authenticated, c.State())
	assert.Equal(t, []State{Authenticated}, seen)
	assert.Equal(t, DefaultLanding, nav.last())

	got, err := st.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.Identity.AccountID, "profile id wins over user id")
	assert.Equal(t, "acme", got.Identity.DisplayName)
}

func TestLogin_ReturnsToRememberedDestination(t *testing.T) {
	t.Parallel()
	c, _, _, nav := newController(t)
	c.Hydrate()
	c.RememberDestination("/wholesaler/products")
	require.NoError(t, c.Login(context.Background(), forms.LoginForm{Email: "a@b.io", Password: "pw"}))
	assert.Equal(t, "/wholesaler/products", nav.last())
}

func TestLogin_FallsBackToUserID(t *testing.T) {
	t.Parallel()
	c, _, api, _ := newController(t)
	c.Hydrate()
	api.loginRes.RoleID = nil
	require.NoError(t, c.Login(context.Background(), forms.LoginForm{Email: "a@b.io", Password: "pw"}))
	assert.Equal(t, int64(7), c.AccountID())
}

func TestLogin_Failures(t *testing.T) {
	t.Parallel()
	c, st, api, nav := newController(t)
	c.Hydrate()

	err := c.Login(context.Background(), forms.LoginForm{Email: "bad"})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Zero(t, api.loginCalls, "invalid form must not reach the API")

	api.loginErr = errors.New("Invalid email or password")
	err = c.Login(context.Background(), forms.LoginForm{Email: "a@b.io", Password: "pw"})
	assert.EqualError(t, err, "Invalid email or password")
	assert.Equal(t, Anonymous, c.State())
	assert.Equal(t, 1, api.loginCalls, "no retry")

	api.loginErr = nil
	api.loginRes = model.LoginResult{Token: "tok", Role: model.RoleSalesman, Username: "x"}
	err = c.Login(context.Background(), forms.LoginForm{Email: "a@b.io", Password: "pw"})
	assert.ErrorIs(t, err, errs.ErrSessionMissing)
	assert.Equal(t, Anonymous, c.State())

	got, _ := st.Load()
	assert.Nil(t, got)
	assert.Empty(t, nav.hops)
}

func TestRegister_DoesNotAuthenticate(t *testing.T) {
	t.Parallel()
	c, _, api, nav := newController(t)
	c.Hydrate()

	f := forms.RegisterForm{Username: "acme", Email: "a@b.io", Password: "secret", Phone: "9999999999",
		Role: "LOCAL_SELLER", BusinessName: "ignored", ShopName: "Corner"}
	require.NoError(t, c.Register(context.Background(), f))
	assert.Equal(t, Anonymous, c.State())
	assert.Equal(t, LoginPath, nav.last())
	assert.Nil(t, api.regIn.BusinessName)
	require.NotNil(t, api.regIn.ShopName)

	api.regErr = errors.New("Email already registered")
	assert.Error(t, c.Register(context.Background(), f))
}

func TestLogout(t *testing.T) {
	t.Parallel()
	c, st, _, nav := newController(t)
	c.Hydrate()
	require.NoError(t, c.Login(context.Background(), forms.LoginForm{Email: "a@b.io", Password: "pw"}))

	c.Logout()
	assert.Equal(t, Anonymous, c.State())
	assert.Equal(t, LoginPath, nav.last())
	assert.Empty(t, c.Token())
	got, _ := st.Load()
	assert.Nil(t, got)
}

func TestExpire(t *testing.T) {
	t.Parallel()
	c, _, _, nav := newController(t)
	c.Hydrate()
	assert.False(t, c.Expire(errs.ErrUnauthorized), "anonymous cannot expire")

	require.NoError(t, c.Login(context.Background(), forms.LoginForm{Email: "a@b.io", Password: "pw"}))
	c.Visit("/wholesaler/products")

	assert.False(t, c.Expire(errors.New("500")))
	assert.Equal(t, Authenticated, c.State())

	assert.True(t, c.Expire(errs.ErrUnauthorized))
	assert.Equal(t, Anonymous, c.State())
	assert.Equal(t, LoginPath, nav.last())

	require.NoError(t, c.Login(context.Background(), forms.LoginForm{Email: "a@b.io", Password: "pw"}))
	assert.Equal(t, "/wholesaler/products", nav.last())
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	t.Parallel()
	c, _, _, _ := newController(t)
	n := 0
	unsub := c.Subscribe(func(State) { n++ })
	c.Hydrate()
	unsub()
	require.NoError(t, c.Login(context.Background(), forms.LoginForm{Email: "a@b.io", Password: "pw"}))
	assert.Equal(t, 1, n)
}
