// Package querycache implements a process-wide keyed store of remote query
// results. Views subscribe to keys and receive every state transition;
// concurrent requests for one key share a single fetch; invalidation marks
// keys stale and refetches the ones somebody is watching.
package querycache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultGCTime is how long an entry nobody subscribes to is kept.
const DefaultGCTime = 5 * time.Minute

var (
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("querycache: closed")
	// ErrNoFetcher is returned when a key has no registered fetch function.
	ErrNoFetcher = errors.New("querycache: no fetch function registered")

	errSuperseded = errors.New("querycache: superseded by a newer request")
)

// Recorder receives cache metrics.
type Recorder interface {
	FetchStarted(kind string)
	FetchFinished(kind, outcome string, elapsed time.Duration)
	FetchDeduplicated(kind string)
	ResponseDiscarded(kind string)
	Invalidated(kind string, refetched bool)
	Evicted(kind string)
}

// Config tunes a Cache. The zero value is usable.
type Config struct {
	// GCTime is how long an unsubscribed entry survives. Zero means
	// DefaultGCTime; negative disables collection.
	GCTime time.Duration
	// StaleTime makes successful data stale after the given age. Zero means
	// data only goes stale through invalidation.
	StaleTime time.Duration
	Logger    *slog.Logger
	Metrics   Recorder
	Now       func() time.Time
}

type subscription struct {
	listener Listener
}

type record struct {
	entry     Entry
	fetch     FetchFunc
	seq       uint64
	inflight  bool
	startedAt time.Time
	cancel    context.CancelFunc
	subs      []*subscription
	waiters   int
	gc        *time.Timer
}

type event struct {
	listeners []Listener
	entry     Entry
}

// Cache is safe for concurrent use. Only the cache writes entries; callers
// read snapshots, subscribe, request fetches and invalidate.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*record
	group    singleflight.Group
	queue    []event
	draining bool
	closed   bool

	ctx  context.Context
	stop context.CancelFunc

	gcTime    time.Duration
	staleTime time.Duration
	logger    *slog.Logger
	metrics   Recorder
	now       func() time.Time
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	ctx, stop := context.WithCancel(context.Background())
	c := &Cache{
		entries:   make(map[Key]*record),
		ctx:       ctx,
		stop:      stop,
		gcTime:    cfg.GCTime,
		staleTime: cfg.StaleTime,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
	if c.gcTime == 0 {
		c.gcTime = DefaultGCTime
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = nopRecorder{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Get returns the current entry for key, creating an idle one if absent.
func (c *Cache) Get(key Key) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record(key).entry
}

// Len returns the number of entries held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Subscribe registers l for key. l is called with the current entry right
// away and then on every transition until the returned function is called.
func (c *Cache) Subscribe(key Key, l Listener) (unsubscribe func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	r := c.record(key)
	sub := &subscription{listener: l}
	r.subs = append(r.subs, sub)
	r.stopGC()
	c.queue = append(c.queue, event{listeners: []Listener{l}, entry: r.entry})
	c.mu.Unlock()
	c.flush()

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(key, r, sub) })
	}
}

// Watch subscribes l to q.Key and makes sure the entry is fresh.
func (c *Cache) Watch(q Query, l Listener) (unsubscribe func()) {
	unsubscribe = c.Subscribe(q.Key, l)
	c.EnsureFresh(q)
	return unsubscribe
}

// EnsureFresh registers q.Fetch for q.Key and starts a fetch when the entry
// is idle, errored, invalidated or past StaleTime. A request already in
// flight for the key is reused. EnsureFresh never blocks on the network.
func (c *Cache) EnsureFresh(q Query) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	r := c.record(q.Key)
	if q.Fetch != nil {
		r.fetch = q.Fetch
	}
	started := false
	if r.fetch != nil {
		if r.inflight && !r.entry.Stale {
			c.metrics.FetchDeduplicated(q.Key.Kind)
		} else if c.needsFetch(r) {
			c.start(r)
			started = true
		}
	}
	c.mu.Unlock()
	if started {
		c.flush()
	}
}

// Fetch is the blocking form of EnsureFresh: it waits for the current or a
// newly started request and returns the resulting entry. Fresh entries are
// returned without a request.
func (c *Cache) Fetch(ctx context.Context, q Query) (Entry, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return Entry{}, ErrClosed
		}
		r := c.record(q.Key)
		if q.Fetch != nil {
			r.fetch = q.Fetch
		}
		if r.fetch == nil {
			e := r.entry
			c.mu.Unlock()
			return e, ErrNoFetcher
		}
		var ch <-chan singleflight.Result
		started := false
		switch {
		case r.inflight && !r.entry.Stale:
			c.metrics.FetchDeduplicated(q.Key.Kind)
			ch = c.group.DoChan(flightKey(q.Key, r.seq), func() (any, error) {
				return nil, errSuperseded
			})
		case c.needsFetch(r):
			ch = c.start(r)
			started = true
		default:
			e := r.entry
			c.mu.Unlock()
			return e, nil
		}
		r.waiters++
		c.mu.Unlock()
		if started {
			c.flush()
		}

		select {
		case <-ctx.Done():
			c.release(q.Key, r)
			return c.Get(q.Key), ctx.Err()
		case res := <-ch:
			c.release(q.Key, r)
			if errors.Is(res.Err, errSuperseded) {
				continue
			}
			e, _ := res.Val.(Entry)
			return e, res.Err
		}
	}
}

// Invalidate marks every entry matched by m stale. Matched entries with
// subscribers are refetched at once and keep showing their previous data
// while loading. It returns the number of matched entries.
func (c *Cache) Invalidate(m Matcher) int {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	matched := 0
	notify := false
	for _, r := range c.entries {
		if !m.Match(r.entry.Key) {
			continue
		}
		matched++
		r.entry.Stale = true
		refetch := len(r.subs) > 0 && r.fetch != nil
		c.metrics.Invalidated(r.entry.Key.Kind, refetch)
		if refetch {
			c.start(r)
		} else {
			c.emit(r)
		}
		notify = notify || len(r.subs) > 0
	}
	c.mu.Unlock()
	if notify {
		c.flush()
	}
	return matched
}

// Close cancels in-flight requests and stops collection timers. The cache
// rejects further work after Close.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, r := range c.entries {
		r.stopGC()
		if r.cancel != nil {
			r.cancel()
		}
	}
	c.mu.Unlock()
	c.stop()
}

// record returns the record for key, creating it. Caller holds c.mu.
func (c *Cache) record(key Key) *record {
	r, ok := c.entries[key]
	if !ok {
		r = &record{entry: Entry{Key: key, Status: StatusIdle}}
		c.entries[key] = r
		c.scheduleGC(key, r)
	}
	return r
}

func (c *Cache) needsFetch(r *record) bool {
	if r.entry.Stale {
		return true
	}
	switch r.entry.Status {
	case StatusIdle, StatusError:
		return true
	case StatusSuccess:
		return c.staleTime > 0 && c.now().Sub(r.entry.LastFetchedAt) >= c.staleTime
	}
	return false
}

// start issues a new request for r, superseding any request in flight.
// Caller holds c.mu.
func (c *Cache) start(r *record) <-chan singleflight.Result {
	if r.cancel != nil {
		r.cancel()
	}
	r.seq++
	seq := r.seq
	ctx, cancel := context.WithCancel(c.ctx)
	r.cancel = cancel
	r.inflight = true
	r.startedAt = c.now()
	r.entry.Status = StatusLoading
	r.entry.Stale = false
	c.emit(r)

	key, fetch, startedAt := r.entry.Key, r.fetch, r.startedAt
	c.metrics.FetchStarted(key.Kind)
	c.logger.Debug("query fetch started", slog.String("key", key.String()), slog.Uint64("seq", seq))
	return c.group.DoChan(flightKey(key, seq), func() (any, error) {
		return c.run(ctx, cancel, key, seq, startedAt, fetch)
	})
}

// run executes one request. Every started request finishes exactly once,
// as success, error or discarded.
func (c *Cache) run(ctx context.Context, cancel context.CancelFunc, key Key, seq uint64, startedAt time.Time, fetch FetchFunc) (any, error) {
	defer cancel()
	data, err := fetch(ctx)

	c.mu.Lock()
	elapsed := c.now().Sub(startedAt)
	r, ok := c.entries[key]
	if c.closed || !ok || r.seq != seq {
		c.mu.Unlock()
		c.metrics.FetchFinished(key.Kind, "discarded", elapsed)
		c.metrics.ResponseDiscarded(key.Kind)
		c.logger.Debug("query response discarded", slog.String("key", key.String()), slog.Uint64("seq", seq))
		return nil, errSuperseded
	}
	r.inflight = false
	r.cancel = nil
	if err != nil {
		r.entry.Status = StatusError
		r.entry.Err = err
		c.metrics.FetchFinished(key.Kind, "error", elapsed)
		c.logger.Warn("query fetch failed", slog.String("key", key.String()), slog.Any("error", err))
	} else {
		r.entry.Status = StatusSuccess
		r.entry.Data = data
		r.entry.HasData = true
		r.entry.Err = nil
		r.entry.LastFetchedAt = c.now()
		c.metrics.FetchFinished(key.Kind, "success", elapsed)
	}
	snapshot := r.entry
	c.emit(r)
	if len(r.subs) == 0 && r.waiters == 0 {
		c.scheduleGC(key, r)
	}
	c.mu.Unlock()
	c.flush()
	return snapshot, err
}

// abort cancels the request in flight for r and restores the entry to what
// it showed before loading. Caller holds c.mu.
func (c *Cache) abort(r *record) {
	r.seq++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.inflight = false
	r.entry.Stale = true
	r.entry.Err = nil
	if r.entry.HasData {
		r.entry.Status = StatusSuccess
	} else {
		r.entry.Status = StatusIdle
	}
	c.logger.Debug("query fetch aborted", slog.String("key", r.entry.Key.String()))
}

func (c *Cache) unsubscribe(key Key, r *record, sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range r.subs {
		if s == sub {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			break
		}
	}
	c.idle(key, r)
}

func (c *Cache) release(key Key, r *record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r.waiters--
	c.idle(key, r)
}

// idle handles a record that may have lost its last observer. Caller holds
// c.mu.
func (c *Cache) idle(key Key, r *record) {
	if len(r.subs) > 0 || r.waiters > 0 {
		return
	}
	if r.inflight {
		c.abort(r)
	}
	if c.entries[key] == r {
		c.scheduleGC(key, r)
	}
}

// emit queues the current entry for r's subscribers. Caller holds c.mu.
func (c *Cache) emit(r *record) {
	if len(r.subs) == 0 {
		return
	}
	ls := make([]Listener, len(r.subs))
	for i, s := range r.subs {
		ls[i] = s.listener
	}
	c.queue = append(c.queue, event{listeners: ls, entry: r.entry})
}

// flush delivers queued events in order. Only one goroutine drains at a
// time; events queued by listeners are delivered after they return.
func (c *Cache) flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 {
		ev := c.queue[0]
		c.queue[0] = event{}
		c.queue = c.queue[1:]
		c.mu.Unlock()
		for _, l := range ev.listeners {
			c.deliver(l, ev.entry)
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

func (c *Cache) deliver(l Listener, e Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("query listener panicked", slog.String("key", e.Key.String()), slog.Any("panic", rec))
		}
	}()
	l(e)
}

// scheduleGC (re)arms the collection timer for r. Caller holds c.mu.
func (c *Cache) scheduleGC(key Key, r *record) {
	if c.gcTime < 0 || c.closed {
		return
	}
	r.stopGC()
	r.gc = time.AfterFunc(c.gcTime, func() { c.collect(key, r) })
}

func (c *Cache) collect(key Key, r *record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.entries[key] != r || len(r.subs) > 0 || r.waiters > 0 {
		return
	}
	if r.inflight {
		c.scheduleGC(key, r)
		return
	}
	delete(c.entries, key)
	c.metrics.Evicted(key.Kind)
	c.logger.Debug("query entry evicted", slog.String("key", key.String()))
}

func (r *record) stopGC() {
	if r.gc != nil {
		r.gc.Stop()
		r.gc = nil
	}
}

func flightKey(key Key, seq uint64) string {
	return key.String() + "#" + strconv.FormatUint(seq, 10)
}

type nopRecorder struct{}

func (nopRecorder) FetchStarted(string)                        {}
func (nopRecorder) FetchFinished(string, string, time.Duration) {}
func (nopRecorder) FetchDeduplicated(string)                   {}
func (nopRecorder) ResponseDiscarded(string)                   {}
func (nopRecorder) Invalidated(string, bool)                   {}
func (nopRecorder) Evicted(string)                             {}
