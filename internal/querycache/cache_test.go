package querycache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	data any
	err  error
}

type call struct {
	ctx   context.Context
	reply chan reply
}

// fetcher hands every request to the test, which decides when and how it
// completes.
type fetcher struct {
	ignoreCancel bool

	mu      sync.Mutex
	calls   []*call
	started chan *call
}

func newFetcher() *fetcher {
	return &fetcher{started: make(chan *call, 32)}
}

func (f *fetcher) fetch(ctx context.Context) (any, error) {
	c := &call{ctx: ctx, reply: make(chan reply, 1)}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	f.started <- c
	if f.ignoreCancel {
		r := <-c.reply
		return r.data, r.err
	}
	select {
	case r := <-c.reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fetcher) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-f.started:
		return c
	case <-time.After(time.Second):
		t.Fatal("fetch was not started")
		return nil
	}
}

// respond completes the next request without a *testing.T, for use from
// helper goroutines.
func (f *fetcher) respond(r reply) {
	select {
	case c := <-f.started:
		c.reply <- r
	case <-time.After(time.Second):
	}
}

type events struct {
	mu   sync.Mutex
	list []Entry
}

func (e *events) listen(en Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, en)
}

func (e *events) all() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Entry(nil), e.list...)
}

func (e *events) last() Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.list) == 0 {
		return Entry{}
	}
	return e.list[len(e.list)-1]
}

func (e *events) statuses() []Status {
	out := []Status{}
	for _, en := range e.all() {
		out = append(out, en.Status)
	}
	return out
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: map[string]int{}}
}

func (r *countingRecorder) inc(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name]++
}

func (r *countingRecorder) get(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

func (r *countingRecorder) FetchStarted(string) { r.inc("started") }
func (r *countingRecorder) FetchFinished(_, outcome string, _ time.Duration) {
	r.inc("finished." + outcome)
}
func (r *countingRecorder) FetchDeduplicated(string) { r.inc("deduplicated") }
func (r *countingRecorder) ResponseDiscarded(string) { r.inc("discarded") }
func (r *countingRecorder) Invalidated(_ string, refetched bool) {
	if refetched {
		r.inc("invalidated.refetch")
		return
	}
	r.inc("invalidated.mark")
}
func (r *countingRecorder) Evicted(string) { r.inc("evicted") }

func newTestCache(t *testing.T, cfg Config) (*Cache, *countingRecorder) {
	t.Helper()
	rec := newCountingRecorder()
	cfg.Metrics = rec
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(cfg)
	t.Cleanup(c.Close)
	return c, rec
}

var productsPage1 = Key{Kind: "products", Page: 1, Limit: 12, Sort: "created_at", Order: "desc"}

func TestKeyStringIsCanonical(t *testing.T) {
	a := Key{Kind: "products", Page: 1, Limit: 12, Sort: "name", Order: "asc", Search: "lamp"}
	b := a
	assert.Equal(t, a.String(), b.String())

	distinct := []Key{
		a,
		{Kind: "products", Page: 2, Limit: 12, Sort: "name", Order: "asc", Search: "lamp"},
		{Kind: "products", Page: 1, Limit: 12, Sort: "name", Order: "asc", Search: "lamp&page=2"},
		{Kind: "products", Page: 1, Limit: 12, Sort: "name", Order: "asc"},
		{Kind: "reviews", Scope: 1, Page: 1, Limit: 5},
		{Kind: "reviews", Scope: 11, Page: 1, Limit: 5},
		{Kind: "reviews?scope=1", Page: 1, Limit: 5},
	}
	seen := map[string]Key{}
	for _, k := range distinct {
		s := k.String()
		prev, dup := seen[s]
		assert.False(t, dup, "%v and %v encode to %q", prev, k, s)
		seen[s] = k
	}
}

func TestMatchers(t *testing.T) {
	r1 := Key{Kind: "reviews", Scope: 1, Page: 1}
	r1p2 := Key{Kind: "reviews", Scope: 1, Page: 2}
	r2 := Key{Kind: "reviews", Scope: 2, Page: 1}

	assert.True(t, Prefix{Kind: "reviews", Scope: 1}.Match(r1p2))
	assert.False(t, Prefix{Kind: "reviews", Scope: 1}.Match(r2))
	assert.True(t, Prefix{Kind: "reviews"}.Match(r2))
	assert.False(t, Prefix{Kind: "products"}.Match(r1))
	assert.True(t, Exact(r1).Match(r1))
	assert.False(t, Exact(r1).Match(r1p2))
	assert.True(t, Any{Exact(r2), Prefix{Kind: "x"}}.Match(r2))
	assert.True(t, MatchFunc(func(k Key) bool { return k.Page == 2 }).Match(r1p2))
}

func TestGetCreatesIdleEntry(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	e := c.Get(productsPage1)
	assert.Equal(t, StatusIdle, e.Status)
	assert.Equal(t, productsPage1, e.Key)
	assert.False(t, e.HasData)
	assert.Equal(t, 1, c.Len())
}

func TestWatchDeliversStateThenTransitions(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	f := newFetcher()
	ev := &events{}

	unsub := c.Watch(Query{Key: productsPage1, Fetch: f.fetch}, ev.listen)
	defer unsub()

	f.next(t).reply <- reply{data: "page-1"}
	require.Eventually(t, func() bool { return ev.last().Status == StatusSuccess }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []Status{StatusIdle, StatusLoading, StatusSuccess}, ev.statuses())
	data, ok := DataAs[string](ev.last())
	require.True(t, ok)
	assert.Equal(t, "page-1", data)
	assert.False(t, ev.last().LastFetchedAt.IsZero())
}

func TestConcurrentWatchersShareOneRequest(t *testing.T) {
	c, rec := newTestCache(t, Config{})
	f := newFetcher()
	q := Query{Key: productsPage1, Fetch: f.fetch}

	a, b := &events{}, &events{}
	defer c.Watch(q, a.listen)()
	defer c.Watch(q, b.listen)()

	f.next(t).reply <- reply{data: "shared"}
	require.Eventually(t, func() bool {
		return a.last().Status == StatusSuccess && b.last().Status == StatusSuccess
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.count())
	assert.Equal(t, 1, rec.get("deduplicated"))
	assert.Equal(t, "shared", b.last().Data)
}

func TestConcurrentFetchCallsShareOneRequest(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	f := newFetcher()
	q := Query{Key: productsPage1, Fetch: f.fetch}

	const n = 8
	var wg sync.WaitGroup
	results := make([]Entry, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Fetch(context.Background(), q)
		}(i)
	}

	f.next(t).reply <- reply{data: 42}
	wg.Wait()

	assert.Equal(t, 1, f.count())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i].Data)
	}
}

func TestFetchReturnsFreshEntryWithoutRequest(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	f := newFetcher()
	q := Query{Key: productsPage1, Fetch: f.fetch}

	go f.respond(reply{data: "v1"})
	e, err := c.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "v1", e.Data)

	e, err = c.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "v1", e.Data)
	assert.Equal(t, 1, f.count())
}

func TestFetchWithoutFetcher(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	_, err := c.Fetch(context.Background(), Query{Key: productsPage1})
	assert.ErrorIs(t, err, ErrNoFetcher)
}

func TestOutOfOrderResponsesLastRequestWins(t *testing.T) {
	c, rec := newTestCache(t, Config{})
	f := newFetcher()
	f.ignoreCancel = true
	ev := &events{}

	defer c.Watch(Query{Key: productsPage1, Fetch: f.fetch}, ev.listen)()
	first := f.next(t)

	// A newer request for the same key supersedes the first one.
	assert.Equal(t, 1, c.Invalidate(Exact(productsPage1)))
	second := f.next(t)
	assert.Error(t, first.ctx.Err(), "superseded request is cancelled")

	second.reply <- reply{data: "new"}
	require.Eventually(t, func() bool { return ev.last().Status == StatusSuccess }, time.Second, 5*time.Millisecond)

	first.reply <- reply{data: "old"}
	require.Eventually(t, func() bool { return rec.get("discarded") == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "new", c.Get(productsPage1).Data)
	for _, e := range ev.all() {
		assert.NotEqual(t, "old", e.Data)
	}
}

func TestInvalidatePrefixMatchesScopedKeys(t *testing.T) {
	c, rec := newTestCache(t, Config{})
	f := newFetcher()

	r1p1 := Key{Kind: "reviews", Scope: 1, Page: 1, Limit: 5}
	r1p2 := Key{Kind: "reviews", Scope: 1, Page: 2, Limit: 5}
	r2p1 := Key{Kind: "reviews", Scope: 2, Page: 1, Limit: 5}
	for _, k := range []Key{r1p1, r1p2, r2p1} {
		go f.respond(reply{data: "x"})
		_, err := c.Fetch(context.Background(), Query{Key: k, Fetch: f.fetch})
		require.NoError(t, err)
	}

	ev := &events{}
	defer c.Subscribe(r1p1, ev.listen)()

	n := c.Invalidate(Prefix{Kind: "reviews", Scope: 1})
	assert.Equal(t, 2, n)
	f.next(t).reply <- reply{data: "y"}

	require.Eventually(t, func() bool { return ev.last().Data == "y" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.get("invalidated.refetch"))
	assert.Equal(t, 1, rec.get("invalidated.mark"))

	assert.True(t, c.Get(r1p2).Stale)
	assert.Equal(t, StatusSuccess, c.Get(r1p2).Status)
	assert.False(t, c.Get(r2p1).Stale)
	assert.Equal(t, 4, f.count())

	// A stale entry refetches on its next use.
	go f.respond(reply{data: "z"})
	e, err := c.Fetch(context.Background(), Query{Key: r1p2, Fetch: f.fetch})
	require.NoError(t, err)
	assert.Equal(t, "z", e.Data)
	assert.False(t, e.Stale)
}

func TestInvalidateKeepsPreviousDataWhileRefetching(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	f := newFetcher()
	ev := &events{}
	defer c.Watch(Query{Key: productsPage1, Fetch: f.fetch}, ev.listen)()
	f.next(t).reply <- reply{data: "v1"}
	require.Eventually(t, func() bool { return ev.last().Status == StatusSuccess }, time.Second, 5*time.Millisecond)

	c.Invalidate(Prefix{Kind: "products"})
	refetch := f.next(t)

	e := ev.last()
	assert.True(t, e.Refreshing())
	assert.False(t, e.Loading())
	assert.Equal(t, "v1", e.Data)

	refetch.reply <- reply{data: "v2"}
	require.Eventually(t, func() bool { return ev.last().Data == "v2" }, time.Second, 5*time.Millisecond)
}

func TestFailedRefetchKeepsData(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	f := newFetcher()
	ev := &events{}
	q := Query{Key: productsPage1, Fetch: f.fetch}
	defer c.Watch(q, ev.listen)()
	f.next(t).reply <- reply{data: "v1"}
	require.Eventually(t, func() bool { return ev.last().Status == StatusSuccess }, time.Second, 5*time.Millisecond)

	boom := errors.New("boom")
	c.Invalidate(Exact(productsPage1))
	f.next(t).reply <- reply{err: boom}
	require.Eventually(t, func() bool { return ev.last().Status == StatusError }, time.Second, 5*time.Millisecond)

	e := ev.last()
	assert.ErrorIs(t, e.Err, boom)
	assert.True(t, e.HasData)
	assert.Equal(t, "v1", e.Data)

	// Errors are not retried on a timer, only on the next request.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, f.count())
	c.EnsureFresh(q)
	f.next(t).reply <- reply{data: "v3"}
	require.Eventually(t, func() bool { return ev.last().Status == StatusSuccess }, time.Second, 5*time.Millisecond)
	assert.NoError(t, ev.last().Err)
}

func TestLastUnsubscribeAbortsRequest(t *testing.T) {
	c, rec := newTestCache(t, Config{})
	f := newFetcher()
	ev := &events{}

	unsub := c.Watch(Query{Key: productsPage1, Fetch: f.fetch}, ev.listen)
	pending := f.next(t)
	unsub()

	select {
	case <-pending.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("request was not cancelled")
	}
	e := c.Get(productsPage1)
	assert.Equal(t, StatusIdle, e.Status)
	assert.True(t, e.Stale)
	require.Eventually(t, func() bool { return rec.get("discarded") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.get("finished.discarded"))
	assert.Equal(t, rec.get("started"), rec.get("finished.discarded"))

	unsub()
	assert.Len(t, ev.all(), 2, "no delivery after unsubscribe")
}

func TestUnsubscribeKeepsRequestForOtherSubscribers(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	f := newFetcher()
	q := Query{Key: productsPage1, Fetch: f.fetch}
	a, b := &events{}, &events{}

	unsubA := c.Watch(q, a.listen)
	defer c.Watch(q, b.listen)()
	pending := f.next(t)
	unsubA()

	assert.NoError(t, pending.ctx.Err())
	pending.reply <- reply{data: "kept"}
	require.Eventually(t, func() bool { return b.last().Data == "kept" }, time.Second, 5*time.Millisecond)
}

func TestFetchContextCancelLeavesCacheConsistent(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	f := newFetcher()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, Query{Key: productsPage1, Fetch: f.fetch})
		done <- err
	}()
	pending := f.next(t)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	<-pending.ctx.Done()
	assert.Equal(t, StatusIdle, c.Get(productsPage1).Status)
}

func TestUnsubscribedEntriesAreCollected(t *testing.T) {
	c, rec := newTestCache(t, Config{GCTime: 20 * time.Millisecond})
	f := newFetcher()
	ev := &events{}

	unsub := c.Watch(Query{Key: productsPage1, Fetch: f.fetch}, ev.listen)
	f.next(t).reply <- reply{data: "v"}
	require.Eventually(t, func() bool { return ev.last().Status == StatusSuccess }, time.Second, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, c.Len(), "subscribed entries are kept")

	unsub()
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, rec.get("evicted"))
}

func TestNegativeGCTimeDisablesCollection(t *testing.T) {
	c, _ := newTestCache(t, Config{GCTime: -1})
	c.Get(productsPage1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, c.Len())
}

func TestStaleTimeTriggersRefetch(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c, _ := newTestCache(t, Config{StaleTime: time.Minute, Now: clock})
	f := newFetcher()
	q := Query{Key: productsPage1, Fetch: f.fetch}

	go f.respond(reply{data: "v1"})
	_, err := c.Fetch(context.Background(), q)
	require.NoError(t, err)

	c.EnsureFresh(q)
	assert.Equal(t, 1, f.count())

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	c.EnsureFresh(q)
	f.next(t).reply <- reply{data: "v2"}
	require.Eventually(t, func() bool { return c.Get(productsPage1).Data == "v2" }, time.Second, 5*time.Millisecond)
}

func TestListenersMayCallBackIntoCache(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	f := newFetcher()
	other := Key{Kind: "product", Scope: 9}

	var mu sync.Mutex
	var seen []Status
	unsub := c.Watch(Query{Key: productsPage1, Fetch: f.fetch}, func(e Entry) {
		_ = c.Get(other)
		mu.Lock()
		seen = append(seen, e.Status)
		mu.Unlock()
	})
	defer unsub()

	f.next(t).reply <- reply{data: "v"}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, c.Len())
}

func TestPanickingListenerDoesNotBreakDelivery(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	f := newFetcher()
	ev := &events{}
	q := Query{Key: productsPage1, Fetch: f.fetch}

	defer c.Watch(q, func(Entry) { panic("listener bug") })()
	defer c.Watch(q, ev.listen)()

	f.next(t).reply <- reply{data: "v"}
	require.Eventually(t, func() bool { return ev.last().Status == StatusSuccess }, time.Second, 5*time.Millisecond)
}

func TestClosedCacheRejectsWork(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	f := newFetcher()
	c.Watch(Query{Key: productsPage1, Fetch: f.fetch}, func(Entry) {})
	pending := f.next(t)

	c.Close()
	<-pending.ctx.Done()

	_, err := c.Fetch(context.Background(), Query{Key: productsPage1, Fetch: f.fetch})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, c.Invalidate(Prefix{}))
}
