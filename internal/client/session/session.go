// Package session owns the console's authentication state machine.
//
// States move Hydrating -> {Authenticated, Anonymous}, Anonymous -> Authenticated on
// login, and Authenticated -> Anonymous on logout or when the backend rejects the token.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/retail-desk/internal/client/credstore"
	"github.com/and161185/retail-desk/internal/client/forms"
	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
)

// State is the authentication state.
type State int

const (
	Hydrating State = iota
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Hydrating:
		return "hydrating"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	}
	return "unknown"
}

// Well-known routes.
const (
	LoginPath      = "/auth/login"
	DefaultLanding = "/wholesaler"
)

// Navigator receives redirects.
type Navigator interface {
	Navigate(to string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(to string)

func (f NavigatorFunc) Navigate(to string) { f(to) }

// AuthAPI is the subset of the API client the controller needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (model.LoginResult, error)
	Register(ctx context.Context, req model.RegisterRequest) error
}

// Controller serializes every transition behind a mutex.
type Controller struct {
	store credstore.Store
	api   AuthAPI
	nav   Navigator
	log   *zap.Logger

	mu        sync.Mutex
	state     State
	sess      *model.Session
	dest      string // where to go after the next login
	location  string // last rendered protected route
	listeners map[int]func(State)
	nextSub   int
}

// New returns a controller in the Hydrating state. Call Hydrate once before use.
func New(store credstore.Store, api AuthAPI, nav Navigator, log *zap.Logger) *Controller {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{store: store, api: api, nav: nav, log: log, state: Hydrating, listeners: map[int]func(State){}}
}

// setLocked changes state and returns the listeners to notify after unlocking.
func (c *Controller) setLocked(s State) []func(State) {
	if c.state == s {
		return nil
	}
	c.state = s
	out := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(fns []func(State), s State) {
	for _, fn := range fns {
		fn(s)
	}
}

// Subscribe registers fn for state changes and returns an unsubscribe func.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Hydrate consults the credential store and settles into Authenticated or Anonymous.
func (c *Controller) Hydrate() State {
	sess, err := c.store.Load()
	if err != nil {
		c.log.Warn("credential store unreadable, starting anonymous", zap.Error(err))
		sess = nil
	}

	c.mu.Lock()
	if c.state != Hydrating {
		s := c.state
		c.mu.Unlock()
		return s
	}
	next := Anonymous
	if sess != nil && sess.Valid() {
		c.sess = sess
		next = Authenticated
	}
	fns := c.setLocked(next)
	c.mu.Unlock()

	notify(fns, next)
	return next
}

func identityOf(res model.LoginResult) model.Identity {
	name := strings.TrimSpace(res.Username)
	for _, alt := range []*string{res.BusinessName, res.ShopName, &res.Email} {
		if name != "" {
			break
		}
		if alt != nil {
			name = strings.TrimSpace(*alt)
		}
	}
	return model.Identity{AccountID: res.AccountID(), DisplayName: name, Role: res.Role}
}

// Login validates the form, authenticates, persists the session and navigates to the
// remembered destination. On failure the state is unchanged and the error is returned.
func (c *Controller) Login(ctx context.Context, f forms.LoginForm) error {
	f.Email = strings.TrimSpace(f.Email)
	if err := forms.Validate(f); err != nil {
		return err
	}
	res, err := c.api.Login(ctx, f.Email, f.Password)
	if err != nil {
		return err
	}
	sess := model.Session{Token: res.Token, Identity: identityOf(res)}
	if sess.Identity.AccountID <= 0 {
		return errs.ErrSessionMissing
	}
	if !sess.Valid() {
		return errors.New("login response is missing identity fields")
	}
	if err := c.store.Save(sess); err != nil {
		return err
	}

	c.mu.Lock()
	c.sess = &sess
	to := c.dest
	if to == "" || to == LoginPath {
		to = DefaultLanding
	}
	c.dest = ""
	fns := c.setLocked(Authenticated)
	c.mu.Unlock()

	c.log.Info("logged in", zap.String("role", string(sess.Identity.Role)), zap.Int64("account_id", sess.Identity.AccountID))
	notify(fns, Authenticated)
	c.nav.Navigate(to)
	return nil
}

// Register validates and submits a new account, then routes to the login page.
// It never authenticates.
func (c *Controller) Register(ctx context.Context, f forms.RegisterForm) error {
	if err := forms.Validate(f); err != nil {
		return err
	}
	if err := c.api.Register(ctx, f.Request()); err != nil {
		return err
	}
	c.nav.Navigate(LoginPath)
	return nil
}

func (c *Controller) logout(remember string) {
	if err := c.store.Clear(); err != nil {
		c.log.Warn("credential store clear failed", zap.Error(err))
	}
	c.mu.Lock()
	c.sess = nil
	c.dest = remember
	c.location = ""
	fns := c.setLocked(Anonymous)
	c.mu.Unlock()

	notify(fns, Anonymous)
	c.nav.Navigate(LoginPath)
}

// Logout clears the session and routes to the login page. It cannot fail.
func (c *Controller) Logout() { c.logout("") }

// Expire logs out when err says the token was rejected, remembering the current
// route for the next login. It reports whether a logout happened.
func (c *Controller) Expire(err error) bool {
	if !errors.Is(err, errs.ErrUnauthorized) {
		return false
	}
	c.mu.Lock()
	authed := c.state == Authenticated
	loc := c.location
	c.mu.Unlock()
	if !authed {
		return false
	}
	c.log.Info("session expired, logging out")
	c.logout(loc)
	return true
}

// RememberDestination records where to go after the next successful login.
func (c *Controller) RememberDestination(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dest = path
}

// Visit records the protected route currently shown.
func (c *Controller) Visit(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = path
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the active session, or nil.
func (c *Controller) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	s := *c.sess
	return &s
}

// Authenticated reports whether a session is active.
func (c *Controller) Authenticated() bool { return c.State() == Authenticated }

// Token returns the bearer token, or "".
func (c *Controller) Token() string {
	if s := c.Session(); s != nil {
		return s.Token
	}
	return ""
}

// AccountID returns the account id used to scope catalog calls, or 0.
func (c *Controller) AccountID() int64 {
	if s := c.Session(); s != nil {
		return s.Identity.AccountID
	}
	return 0
}
