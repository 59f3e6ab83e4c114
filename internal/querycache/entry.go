package querycache

import (
	"context"
	"time"
)

// Status is the fetch state of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Entry is a snapshot of cached state for one key. Data from the last
// successful fetch is retained through later loading and error states.
type Entry struct {
	Key           Key
	Status        Status
	Data          any
	HasData       bool
	Err           error
	LastFetchedAt time.Time
	Stale         bool
}

// Loading reports a fetch in flight with nothing to show yet.
func (e Entry) Loading() bool {
	return e.Status == StatusLoading && !e.HasData
}

// Refreshing reports a background refetch over previously fetched data.
func (e Entry) Refreshing() bool {
	return e.Status == StatusLoading && e.HasData
}

// DataAs returns the entry data as T.
func DataAs[T any](e Entry) (T, bool) {
	var zero T
	if !e.HasData {
		return zero, false
	}
	v, ok := e.Data.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// FetchFunc loads the data for a key.
type FetchFunc func(ctx context.Context) (any, error)

// Query binds a key to the function that fetches it.
type Query struct {
	Key   Key
	Fetch FetchFunc
}

// Listener receives entry snapshots.
type Listener func(Entry)
