// Package productlist drives the paginated, sortable, searchable product
// list view.
package productlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/catalogquery"
	"github.com/odyssey-erp/catalogsync/internal/querycache"
)

// DefaultLimit is the list page size.
const DefaultLimit = 12

// State is everything the list query depends on.
type State struct {
	Page   int
	Limit  int
	Sort   catalog.SortField
	Order  catalog.SortOrder
	Search string
}

// DefaultState is newest first, page 1, no search.
func DefaultState() State {
	return State{
		Page:  1,
		Limit: DefaultLimit,
		Sort:  catalog.SortCreatedAt,
		Order: catalog.SortDesc,
	}
}

// Params converts the state to API parameters.
func (s State) Params() catalog.ProductListParams {
	return catalog.ProductListParams{
		Page:   s.Page,
		Limit:  s.Limit,
		Sort:   s.Sort,
		Order:  s.Order,
		Search: s.Search,
	}
}

// Key is the cache key derived from s.
func (s State) Key() querycache.Key {
	return catalogquery.ProductListKey(s.Params())
}

// View is what the list renders.
type View struct {
	State         State
	Items         []catalog.Product
	Pagination    catalog.Pagination
	HasPagination bool
	// Loading is set when nothing can be shown yet.
	Loading bool
	// Refreshing is set while a fetch runs behind the shown items.
	Refreshing bool
	// Placeholder is set when Items belong to the previously shown page.
	Placeholder bool
	Err         error
}

// Deleter deletes products on behalf of the list.
type Deleter interface {
	DeleteProduct(ctx context.Context, id int64) error
}

// Controller owns the list state. It is safe for concurrent use; onChange
// is called without internal locks held.
type Controller struct {
	api       catalogquery.ProductReader
	mutations Deleter
	logger    *slog.Logger
	observer  *querycache.Observer

	mu         sync.Mutex
	state      State
	key        querycache.Key
	entry      querycache.Entry
	previous   *catalog.Page[catalog.Product]
	pagination catalog.Pagination
	known      bool
	mounted    bool
	onChange   func(View)
}

// New creates a list controller in the default state.
func New(cache querycache.Watcher, api catalogquery.ProductReader, mutations Deleter, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		api:       api,
		mutations: mutations,
		logger:    logger,
		state:     DefaultState(),
	}
	c.key = c.state.Key()
	c.entry = querycache.Entry{Key: c.key}
	c.observer = querycache.NewObserver(cache, c.handle)
	return c
}

// Mount starts following the current page. onChange receives every view
// update until Unmount.
func (c *Controller) Mount(onChange func(View)) {
	c.mu.Lock()
	c.mounted = true
	c.onChange = onChange
	c.mu.Unlock()
	c.follow()
}

// Unmount stops following.
func (c *Controller) Unmount() {
	c.mu.Lock()
	c.mounted = false
	c.onChange = nil
	c.mu.Unlock()
	c.observer.Stop()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// SetSort sorts by field. Selecting the current field flips the order; a new
// field starts descending. The page always resets to 1.
func (c *Controller) SetSort(field catalog.SortField) error {
	if !field.Valid() {
		return fmt.Errorf("productlist: unknown sort field %q", field)
	}
	c.update(func(s *State) {
		if s.Sort == field {
			s.Order = s.Order.Flip()
		} else {
			s.Sort = field
			s.Order = catalog.SortDesc
		}
		s.Page = 1
	})
	return nil
}

// SetSearch filters by text and resets the page.
func (c *Controller) SetSearch(text string) {
	c.update(func(s *State) {
		s.Search = text
		s.Page = 1
	})
}

// ClearSearch drops the search filter.
func (c *Controller) ClearSearch() {
	c.SetSearch("")
}

// SetLimit changes the page size and resets the page.
func (c *Controller) SetLimit(limit int) {
	if limit < 1 {
		return
	}
	c.update(func(s *State) {
		s.Limit = limit
		s.Page = 1
	})
}

// SetPage moves to page n, clamped to [1, pages] once pagination is known.
func (c *Controller) SetPage(n int) {
	c.update(func(s *State) {
		if c.known {
			n = c.pagination.ClampPage(n)
		} else if n < 1 {
			n = 1
		}
		s.Page = n
	})
}

// NextPage moves forward unless on the last known page.
func (c *Controller) NextPage() {
	c.update(func(s *State) {
		if c.known && c.pagination.HasNext(s.Page) {
			s.Page++
		}
	})
}

// PrevPage moves back unless on page 1.
func (c *Controller) PrevPage() {
	c.update(func(s *State) {
		if s.Page > 1 {
			s.Page--
		}
	})
}

// Delete removes a product. The list refetches through invalidation.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	if c.mutations == nil {
		return errors.New("productlist: delete not configured")
	}
	return c.mutations.DeleteProduct(ctx, id)
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	key := c.state.Key()
	changed := key != c.key
	if changed {
		c.key = key
		c.entry = querycache.Entry{Key: key}
	}
	c.mu.Unlock()
	if changed {
		c.follow()
	}
}

func (c *Controller) follow() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	q := catalogquery.ProductList(c.api, c.state.Params())
	c.mu.Unlock()
	c.observer.Follow(q)
}

func (c *Controller) handle(e querycache.Entry) {
	c.mu.Lock()
	if !c.mounted || e.Key != c.key {
		c.mu.Unlock()
		return
	}
	c.entry = e
	reclamp := false
	if page, ok := catalogquery.ProductPage(e); ok {
		c.previous = &page
		c.pagination = page.Pagination
		c.known = true
		// A delete can leave the current page past the end.
		if e.Status == querycache.StatusSuccess && c.state.Page > 1 && c.state.Page > page.Pagination.Pages {
			c.state.Page = page.Pagination.ClampPage(c.state.Page)
			c.key = c.state.Key()
			c.entry = querycache.Entry{Key: c.key}
			reclamp = true
		}
	}
	view := c.viewLocked()
	onChange := c.onChange
	c.mu.Unlock()

	if reclamp {
		c.logger.Debug("product list page re-clamped", slog.Int("page", view.State.Page))
		c.follow()
		return
	}
	if onChange != nil {
		onChange(view)
	}
}

func (c *Controller) viewLocked() View {
	v := View{
		State:         c.state,
		Pagination:    c.pagination,
		HasPagination: c.known,
	}
	e := c.entry
	page, hasData := catalogquery.ProductPage(e)
	switch {
	case hasData:
		v.Items = page.Items
		v.Pagination = page.Pagination
		v.Refreshing = e.Status == querycache.StatusLoading
	case e.Status == querycache.StatusError:
	case c.previous != nil:
		v.Items = c.previous.Items
		v.Placeholder = true
		v.Refreshing = true
	default:
		v.Loading = true
	}
	if e.Status == querycache.StatusError {
		v.Err = e.Err
	}
	return v
}
