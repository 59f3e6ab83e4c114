package querycache

import (
	"net/url"
	"strconv"
)

// Key identifies one parameterized fetch. Keys are comparable; two equal
// keys always share one cache entry.
type Key struct {
	Kind   string
	Scope  int64
	Page   int
	Limit  int
	Sort   string
	Order  string
	Search string
}

// String returns a canonical encoding of k. Distinct keys produce distinct
// strings: every field is always present and values are query-escaped.
func (k Key) String() string {
	v := url.Values{}
	v.Set("scope", strconv.FormatInt(k.Scope, 10))
	v.Set("page", strconv.Itoa(k.Page))
	v.Set("limit", strconv.Itoa(k.Limit))
	v.Set("sort", k.Sort)
	v.Set("order", k.Order)
	v.Set("search", k.Search)
	return url.QueryEscape(k.Kind) + "?" + v.Encode()
}

// Matcher selects keys for invalidation.
type Matcher interface {
	Match(Key) bool
}

// MatchFunc adapts a plain function to Matcher.
type MatchFunc func(Key) bool

func (f MatchFunc) Match(k Key) bool { return f(k) }

// Prefix matches keys by kind and scope. Zero fields match anything, so
// Prefix{Kind: "reviews", Scope: 42} selects every page of reviews scoped
// to 42 regardless of paging or sort.
type Prefix struct {
	Kind  string
	Scope int64
}

func (p Prefix) Match(k Key) bool {
	if p.Kind != "" && p.Kind != k.Kind {
		return false
	}
	if p.Scope != 0 && p.Scope != k.Scope {
		return false
	}
	return true
}

// Exact matches a single key.
type Exact Key

func (e Exact) Match(k Key) bool { return Key(e) == k }

// Any matches when at least one of the matchers does.
type Any []Matcher

func (a Any) Match(k Key) bool {
	for _, m := range a {
		if m.Match(k) {
			return true
		}
	}
	return false
}
