package querycache

import "sync"

// Watcher is implemented by Cache.
type Watcher interface {
	Watch(q Query, l Listener) (unsubscribe func())
}

// Observer follows one query at a time for a view whose key changes with
// its state (paging, sorting). Following a new query drops the previous
// subscription. Listeners should still compare Entry.Key with the key they
// expect, since an event for the old key may already be in delivery.
type Observer struct {
	watcher  Watcher
	listener Listener

	mu    sync.Mutex
	gen   uint64
	unsub func()
}

// NewObserver returns an Observer delivering entries to l.
func NewObserver(w Watcher, l Listener) *Observer {
	return &Observer{watcher: w, listener: l}
}

// Follow switches the observer to q.
func (o *Observer) Follow(q Query) {
	o.mu.Lock()
	old := o.unsub
	o.unsub = nil
	o.gen++
	gen := o.gen
	o.mu.Unlock()
	if old != nil {
		old()
	}

	unsub := o.watcher.Watch(q, o.listener)

	o.mu.Lock()
	if o.gen == gen {
		o.unsub, unsub = unsub, nil
	}
	o.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Stop drops the current subscription.
func (o *Observer) Stop() {
	o.mu.Lock()
	old := o.unsub
	o.unsub = nil
	o.gen++
	o.mu.Unlock()
	if old != nil {
		old()
	}
}
