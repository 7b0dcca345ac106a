package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
)

type call struct {
	kind     string
	id       int64
	term     string
	page     model.PageRequest
	canceled bool
}

// fakeSource answers immediately unless a gate is set for the next call.
type fakeSource struct {
	mu    sync.Mutex
	calls []call
	gates map[int]chan struct{}
	err   error
	items map[string][]model.Product
}

func newFakeSource() *fakeSource {
	return &fakeSource{gates: map[int]chan struct{}{}, items: map[string][]model.Product{}}
}

// hold makes call number n (zero-based) block until the returned channel closes.
func (f *fakeSource) hold(n int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[n] = ch
	return ch
}

func (f *fakeSource) answer(ctx context.Context, c call) (model.Page[model.Product], error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, c)
	gate := f.gates[n]
	err := f.err
	items := f.items[c.kind+":"+c.term]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if ctx.Err() != nil {
		f.mu.Lock()
		f.calls[n].canceled = true
		f.mu.Unlock()
	}
	if err != nil {
		return model.Page[model.Product]{}, err
	}
	return model.NewPage(items, int64(len(items)), c.page), nil
}

func (f *fakeSource) ListProducts(ctx context.Context, id int64, page model.PageRequest, _ string) (model.Page[model.Product], error) {
	return f.answer(ctx, call{kind: "list", id: id, page: page})
}

func (f *fakeSource) SearchProducts(ctx context.Context, id int64, term string, page model.PageRequest) (model.Page[model.Product], error) {
	return f.answer(ctx, call{kind: "search", id: id, term: term, page: page})
}

func (f *fakeSource) ProductsByCategory(ctx context.Context, id int64, category string, page model.PageRequest) (model.Page[model.Product], error) {
	return f.answer(ctx, call{kind: "category", id: id, term: category, page: page})
}

func (f *fakeSource) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// manualScheduler fires tasks only when told to.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*task
}

type task struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &task{d: d, f: f}
	s.tasks = append(s.tasks, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.fired || t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// fire runs every live task.
func (s *manualScheduler) fire() int {
	s.mu.Lock()
	var live []*task
	for _, t := range s.tasks {
		if !t.fired && !t.stopped {
			t.fired = true
			live = append(live, t)
		}
	}
	s.mu.Unlock()
	for _, t := range live {
		t.f()
	}
	return len(live)
}

func (s *manualScheduler) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

func account(id int64) func() int64 { return func() int64 { return id } }

func newCoordinator(t *testing.T, src Source, opts Options) (*Coordinator, *manualScheduler) {
	t.Helper()
	sched := &manualScheduler{}
	opts.Scheduler = sched
	opts.Logger = zaptest.NewLogger(t)
	c := New(src, account(3), opts)
	t.Cleanup(c.Close)
	return c, sched
}

func TestFilter_ModePrecedence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		f    Filter
		want Mode
	}{
		{"empty", Filter{Category: AllCategories}, ModeAll},
		{"blank category", Filter{}, ModeAll},
		{"all any case", Filter{Category: "ALL"}, ModeAll},
		{"category", Filter{Category: "Books"}, ModeCategory},
		{"search wins", Filter{SearchText: "rice", Category: "Books"}, ModeSearch},
		{"whitespace search ignored", Filter{SearchText: "   ", Category: "Books"}, ModeCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Mode())
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	c := New(newFakeSource(), account(1), Options{})
	defer c.Close()
	assert.Equal(t, DefaultQuietPeriod, c.quiet)
	assert.Equal(t, Filter{Category: AllCategories, PageSize: DefaultPageSize}, c.Filter())
	v := c.View()
	assert.Equal(t, Idle, v.Status)
	assert.NotNil(t, v.Page.Items)
}

func TestRefresh_ListsAllProducts(t *testing.T) {
	src := newFakeSource()
	src.items["list:"] = []model.Product{{ID: 1, Name: "Rice"}}
	c, _ := newCoordinator(t, src, Options{PageSize: 5})

	var seen []Status
	var mu sync.Mutex
	c.Subscribe(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v.Status)
	})

	c.Refresh()
	c.Wait()

	calls := src.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "list", calls[0].kind)
	assert.Equal(t, int64(3), calls[0].id)
	assert.Equal(t, model.PageRequest{Index: 0, Size: 5}, calls[0].page)

	v := c.View()
	assert.Equal(t, Ready, v.Status)
	assert.Len(t, v.Page.Items, 1)
	mu.Lock()
	assert.Equal(t, []Status{Loading, Ready}, seen)
	mu.Unlock()
}

func TestSetSearch_DebouncesUntilQuiet(t *testing.T) {
	src := newFakeSource()
	c, sched := newCoordinator(t, src, Options{})

	c.SetSearch("r")
	c.SetSearch("ri")
	c.SetSearch("rice")
	assert.Empty(t, src.snapshot())
	assert.Equal(t, 1, sched.live())
	assert.Equal(t, "rice", c.Filter().SearchText)

	require.Equal(t, 1, sched.fire())
	c.Wait()

	calls := src.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].kind)
	assert.Equal(t, "rice", calls[0].term)
}

func TestSetSearch_ResetsPage(t *testing.T) {
	src := newFakeSource()
	c, sched := newCoordinator(t, src, Options{})

	c.SetPage(4)
	c.Wait()
	assert.Equal(t, 4, c.Filter().PageIndex)

	c.SetSearch("tea")
	assert.Equal(t, 0, c.Filter().PageIndex)
	sched.fire()
	c.Wait()

	calls := src.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, 4, calls[0].page.Index)
	assert.Equal(t, 0, calls[1].page.Index)
}

func TestSetCategory_ImmediateAndCancelsPendingSearch(t *testing.T) {
	src := newFakeSource()
	c, sched := newCoordinator(t, src, Options{})

	c.SetSearch("  ")
	assert.Equal(t, 1, sched.live())
	c.SetCategory("Books")
	c.Wait()
	assert.Zero(t, sched.live())
	assert.Zero(t, sched.fire())

	calls := src.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "category", calls[0].kind)
	assert.Equal(t, "Books", calls[0].term)

	c.SetCategory("")
	c.Wait()
	assert.Equal(t, AllCategories, c.Filter().Category)
	assert.Equal(t, "list", src.snapshot()[1].kind)
}

func TestSetPage_KeepsFilterAndClamps(t *testing.T) {
	src := newFakeSource()
	c, _ := newCoordinator(t, src, Options{})

	c.SetCategory("Books")
	c.Wait()
	c.SetPage(2)
	c.Wait()
	c.SetPage(-3)
	c.Wait()

	calls := src.snapshot()
	require.Len(t, calls, 3)
	assert.Equal(t, "category", calls[1].kind)
	assert.Equal(t, 2, calls[1].page.Index)
	assert.Equal(t, 0, calls[2].page.Index)
}

func TestStaleResponseDiscarded(t *testing.T) {
	src := newFakeSource()
	src.items["list:"] = []model.Product{{ID: 1, Name: "old"}}
	src.items["category:Books"] = []model.Product{{ID: 2, Name: "new"}}
	gate := src.hold(0)
	c, _ := newCoordinator(t, src, Options{})

	var mu sync.Mutex
	var readies []View
	c.Subscribe(func(v View) {
		if v.Status == Ready {
			mu.Lock()
			readies = append(readies, v)
			mu.Unlock()
		}
	})

	c.Refresh()
	require.Eventually(t, func() bool { return len(src.snapshot()) == 1 }, time.Second, time.Millisecond)
	c.SetCategory("Books")
	require.Eventually(t, func() bool { return c.View().Status == Ready }, time.Second, time.Millisecond)
	close(gate)
	c.Wait()

	calls := src.snapshot()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].canceled, "superseded query should see a cancelled context")

	v := c.View()
	assert.Equal(t, uint64(2), v.Generation)
	require.Len(t, v.Page.Items, 1)
	assert.Equal(t, "new", v.Page.Items[0].Name)
	mu.Lock()
	assert.Len(t, readies, 1)
	mu.Unlock()
}

func TestErrorView_EmptyPageAndHook(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("backend down")
	var hooked error
	c, _ := newCoordinator(t, src, Options{OnError: func(err error) { hooked = err }})

	c.Refresh()
	c.Wait()

	v := c.View()
	assert.Equal(t, Failed, v.Status)
	assert.Equal(t, "backend down", v.Message)
	assert.NotNil(t, v.Page.Items)
	assert.True(t, v.Page.Empty())
	assert.EqualError(t, hooked, "backend down")
}

func TestMissingAccount_NoCall(t *testing.T) {
	src := newFakeSource()
	c := New(src, account(0), Options{Scheduler: &manualScheduler{}})
	defer c.Close()

	c.Refresh()
	c.Wait()

	assert.Empty(t, src.snapshot())
	v := c.View()
	assert.Equal(t, Failed, v.Status)
	assert.Same(t, errs.ErrSessionMissing, v.Err)
	assert.Equal(t, "session missing valid id, please re-login", v.Message)
}

func TestClose_StopsEverything(t *testing.T) {
	src := newFakeSource()
	sched := &manualScheduler{}
	c := New(src, account(3), Options{Scheduler: sched})

	c.SetSearch("tea")
	c.Close()
	assert.Zero(t, sched.live())
	c.Refresh()
	c.SetPage(1)
	c.Wait()
	assert.Empty(t, src.snapshot())
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	src := newFakeSource()
	c, _ := newCoordinator(t, src, Options{})

	n := 0
	stop := c.Subscribe(func(View) { n++ })
	c.Refresh()
	c.Wait()
	stop()
	c.Refresh()
	c.Wait()
	assert.Equal(t, 2, n)
}

func TestApply_ReplacesFilter(t *testing.T) {
	src := newFakeSource()
	c, sched := newCoordinator(t, src, Options{PageSize: 7})

	c.SetSearch("pending")
	c.Apply(Filter{Category: " Books ", PageIndex: -1})
	c.Wait()
	assert.Zero(t, sched.live())

	f := c.Filter()
	assert.Equal(t, Filter{Category: "Books", PageIndex: 0, PageSize: 7}, f)
	calls := src.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "category", calls[0].kind)
}

func TestFlush_RunsPendingSearch(t *testing.T) {
	src := newFakeSource()
	c, sched := newCoordinator(t, src, Options{})

	assert.False(t, c.Flush())
	c.SetSearch("tea")
	assert.True(t, c.Flush())
	c.Wait()
	assert.Zero(t, sched.live())

	calls := src.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].kind)
	assert.Equal(t, "tea", calls[0].term)
}

func TestListeners_SeeGenerationsInOrder(t *testing.T) {
	src := newFakeSource()
	c, _ := newCoordinator(t, src, Options{})

	var (
		mu   sync.Mutex
		seen []uint64
	)
	c.Subscribe(func(v View) {
		mu.Lock()
		seen = append(seen, v.Generation)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				c.SetPage(i + j)
			}
		}(i)
	}
	wg.Wait()
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		require.GreaterOrEqual(t, seen[i], seen[i-1], "generation went backwards at %d: %v", i, seen)
	}
	assert.Equal(t, c.View().Generation, seen[len(seen)-1])
	assert.Equal(t, Ready, c.View().Status)
}
