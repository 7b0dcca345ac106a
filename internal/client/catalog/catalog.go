// Package catalog turns product filter state into paged queries and keeps the
// loading/error/ready view consistent when responses arrive out of order.
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
)

const (
	// AllCategories disables the category filter.
	AllCategories = "all"
	// DefaultQuietPeriod is how long search input must be stable before a query.
	DefaultQuietPeriod = 400 * time.Millisecond
	// DefaultPageSize is used when Options.PageSize is not set.
	DefaultPageSize = 10
)

// Source issues the three mutually exclusive product queries.
type Source interface {
	ListProducts(ctx context.Context, wholesalerID int64, page model.PageRequest, sort string) (model.Page[model.Product], error)
	SearchProducts(ctx context.Context, wholesalerID int64, term string, page model.PageRequest) (model.Page[model.Product], error)
	ProductsByCategory(ctx context.Context, wholesalerID int64, category string, page model.PageRequest) (model.Page[model.Product], error)
}

// Filter is the user-facing query state.
type Filter struct {
	SearchText string
	Category   string
	PageIndex  int
	PageSize   int
}

// Mode is the kind of query a filter maps to.
type Mode int

const (
	ModeAll Mode = iota
	ModeSearch
	ModeCategory
)

// Mode applies the precedence search > category > unfiltered.
func (f Filter) Mode() Mode {
	if strings.TrimSpace(f.SearchText) != "" {
		return ModeSearch
	}
	if c := strings.TrimSpace(f.Category); c != "" && !strings.EqualFold(c, AllCategories) {
		return ModeCategory
	}
	return ModeAll
}

// Status is the view state.
type Status int

const (
	Idle Status = iota
	Loading
	Failed
	Ready
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Failed:
		return "error"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// View is an immutable snapshot handed to listeners. On Failed, Page is empty.
type View struct {
	Status     Status
	Filter     Filter
	Page       model.Page[model.Product]
	Err        error
	Message    string
	Generation uint64
}

// Scheduler runs f after d; the returned func cancels it if it has not run yet.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func() bool)
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Options tune a Coordinator. Zero values pick defaults.
type Options struct {
	QuietPeriod time.Duration
	PageSize    int
	Sort        string
	Scheduler   Scheduler
	// Context is the parent of every query context; Background when nil.
	Context context.Context
	// OnError sees every failure of a current query, e.g. to expire the session on 401.
	OnError func(error)
	Logger  *zap.Logger
}

// Coordinator owns the filter state and the generation counter.
type Coordinator struct {
	src     Source
	account func() int64
	quiet   time.Duration
	sort    string
	sched   Scheduler
	base    context.Context
	onError func(error)
	log     *zap.Logger

	// notifyMu serializes listener delivery so generations arrive in order.
	notifyMu sync.Mutex

	mu        sync.Mutex
	filter    Filter
	gen       uint64
	cancel    context.CancelFunc
	pending   func() bool
	searchSeq uint64
	view      View
	listeners map[int]func(View)
	nextSub   int
	closed    bool
	wg        sync.WaitGroup
}

// New builds a coordinator. account supplies the wholesaler id at query time.
func New(src Source, account func() int64, opts Options) *Coordinator {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Scheduler == nil {
		opts.Scheduler = timerScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	f := Filter{Category: AllCategories, PageSize: opts.PageSize}
	return &Coordinator{
		src:       src,
		account:   account,
		quiet:     opts.QuietPeriod,
		sort:      opts.Sort,
		sched:     opts.Scheduler,
		base:      opts.Context,
		onError:   opts.OnError,
		log:       opts.Logger,
		filter:    f,
		view:      View{Status: Idle, Filter: f, Page: model.EmptyPage[model.Product]()},
		listeners: map[int]func(View){},
	}
}

// Subscribe registers fn for view changes and returns an unsubscribe func.
// Views reach fn in generation order; fn must not call back into c synchronously.
func (c *Coordinator) Subscribe(fn func(View)) func() {
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

// View returns the latest snapshot.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Filter returns the current filter.
func (c *Coordinator) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

func (c *Coordinator) listenersLocked() []func(View) {
	out := make([]func(View), 0, len(c.listeners))
	for _, fn := range c.listeners {
		out = append(out, fn)
	}
	return out
}

func (c *Coordinator) stopPendingLocked() {
	if c.pending != nil {
		c.pending()
		c.pending = nil
	}
}

// SetSearch updates the search text, resets the page and schedules a query after the quiet period.
func (c *Coordinator) SetSearch(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.filter.SearchText = text
	c.filter.PageIndex = 0
	c.stopPendingLocked()
	c.searchSeq++
	seq := c.searchSeq

	c.pending = c.sched.AfterFunc(c.quiet, func() {
		c.mu.Lock()
		if c.closed || c.pending == nil || seq != c.searchSeq {
			c.mu.Unlock()
			return
		}
		c.pending = nil
		c.mu.Unlock()
		c.issue()
	})
}

// SetCategory changes the category, resets the page and queries immediately.
func (c *Coordinator) SetCategory(category string) {
	c.mu.Lock()
	category = strings.TrimSpace(category)
	if category == "" {
		category = AllCategories
	}
	c.filter.Category = category
	c.filter.PageIndex = 0
	c.mu.Unlock()
	c.issue()
}

// SetPage moves to page index i (clamped at 0) and queries immediately.
func (c *Coordinator) SetPage(i int) {
	if i < 0 {
		i = 0
	}
	c.mu.Lock()
	c.filter.PageIndex = i
	c.mu.Unlock()
	c.issue()
}

// Apply replaces the whole filter and queries immediately. A non-positive
// PageSize keeps the current one.
func (c *Coordinator) Apply(f Filter) {
	c.mu.Lock()
	if f.PageSize <= 0 {
		f.PageSize = c.filter.PageSize
	}
	if f.PageIndex < 0 {
		f.PageIndex = 0
	}
	f.Category = strings.TrimSpace(f.Category)
	if f.Category == "" {
		f.Category = AllCategories
	}
	c.filter = f
	c.mu.Unlock()
	c.issue()
}

// Flush runs a pending debounced search now. It reports whether one was pending.
func (c *Coordinator) Flush() bool {
	c.mu.Lock()
	pending := c.pending != nil && !c.closed
	c.mu.Unlock()
	if pending {
		c.issue()
	}
	return pending
}

// Refresh re-runs the current filter immediately.
func (c *Coordinator) Refresh() { c.issue() }

// Wait blocks until every issued query has settled.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Close cancels pending and in-flight work; later responses are discarded.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopPendingLocked()
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// issue starts a new generation, cancelling the previous in-flight query.
func (c *Coordinator) issue() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopPendingLocked()
	c.gen++
	gen := c.gen
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(c.base)
	c.cancel = cancel
	f := c.filter
	c.view = View{Status: Loading, Filter: f, Page: c.view.Page, Generation: gen}
	v := c.view
	fns := c.listenersLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	c.deliver(gen, v, fns, nil)
	go c.run(ctx, cancel, gen, f)
}

// deliver hands v to fns unless a newer generation was issued meanwhile.
func (c *Coordinator) deliver(gen uint64, v View, fns []func(View), err error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}
	if err != nil && c.onError != nil {
		c.onError(err)
	}
	for _, fn := range fns {
		fn(v)
	}
}

func (c *Coordinator) query(ctx context.Context, f Filter) (model.Page[model.Product], error) {
	id := int64(0)
	if c.account != nil {
		id = c.account()
	}
	if id <= 0 {
		return model.Page[model.Product]{}, errs.ErrSessionMissing
	}
	page := model.PageRequest{Index: f.PageIndex, Size: f.PageSize}
	switch f.Mode() {
	case ModeSearch:
		return c.src.SearchProducts(ctx, id, strings.TrimSpace(f.SearchText), page)
	case ModeCategory:
		return c.src.ProductsByCategory(ctx, id, strings.TrimSpace(f.Category), page)
	}
	return c.src.ListProducts(ctx, id, page, c.sort)
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, gen uint64, f Filter) {
	defer c.wg.Done()
	defer cancel()

	page, err := c.query(ctx, f)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Debug("discarding stale catalog response", zap.Uint64("generation", gen))
		return
	}
	c.cancel = nil
	if err != nil {
		c.view = View{Status: Failed, Filter: f, Page: model.EmptyPage[model.Product](), Err: err, Message: err.Error(), Generation: gen}
	} else {
		if page.Items == nil {
			page.Items = []model.Product{}
		}
		c.view = View{Status: Ready, Filter: f, Page: page, Generation: gen}
	}
	v := c.view
	fns := c.listenersLocked()
	c.mu.Unlock()

	c.deliver(gen, v, fns, err)
}
