// Package reviews drives the paginated review list of one product and its
// add-review form.
package reviews

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/catalogquery"
	"github.com/odyssey-erp/catalogsync/internal/querycache"
)

// DefaultLimit is the review page size.
const DefaultLimit = 5

// ErrNoProduct is returned when submitting before a product is set.
var ErrNoProduct = errors.New("reviews: no product selected")

// Creator creates reviews on behalf of the form.
type Creator interface {
	CreateReview(ctx context.Context, in catalog.CreateReviewInput) (catalog.Review, error)
}

// View is what the review section renders.
type View struct {
	ProductID     int64
	Page          int
	Items         []catalog.Review
	Pagination    catalog.Pagination
	HasPagination bool
	Loading       bool
	Refreshing    bool
	Err           error

	FormOpen   bool
	Draft      string
	Submitting bool
	FormError  string
}

// Controller owns the review list and form of a product.
type Controller struct {
	api       catalogquery.ReviewReader
	mutations Creator
	logger    *slog.Logger
	observer  *querycache.Observer

	mu         sync.Mutex
	productID  int64
	page       int
	key        querycache.Key
	entry      querycache.Entry
	pagination catalog.Pagination
	known      bool
	mounted    bool
	onChange   func(View)

	formOpen   bool
	draft      string
	submitting bool
	formError  string
}

// New creates a review controller with no product selected.
func New(cache querycache.Watcher, api catalogquery.ReviewReader, mutations Creator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		api:       api,
		mutations: mutations,
		logger:    logger,
		page:      1,
	}
	c.observer = querycache.NewObserver(cache, c.handle)
	return c
}

func (c *Controller) params() catalog.ReviewListParams {
	return catalog.ReviewListParams{
		ProductID: c.productID,
		Page:      c.page,
		Limit:     DefaultLimit,
		Sort:      catalog.SortCreatedAt,
		Order:     catalog.SortDesc,
	}
}

// Mount starts following reviews. Nothing is fetched until a product is set.
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

// SetProduct switches to another product, resetting paging and the form.
func (c *Controller) SetProduct(id int64) {
	c.mu.Lock()
	if id == c.productID {
		c.mu.Unlock()
		return
	}
	c.productID = id
	c.page = 1
	c.known = false
	c.pagination = catalog.Pagination{}
	c.formOpen, c.draft, c.formError, c.submitting = false, "", "", false
	c.mu.Unlock()
	c.follow()
}

// ProductID returns the selected product.
func (c *Controller) ProductID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.productID
}

// SetPage moves to page n, clamped once pagination is known.
func (c *Controller) SetPage(n int) {
	c.mu.Lock()
	if c.known {
		n = c.pagination.ClampPage(n)
	} else if n < 1 {
		n = 1
	}
	changed := n != c.page
	c.page = n
	c.mu.Unlock()
	if changed {
		c.follow()
	}
}

// NextPage moves forward unless on the last page.
func (c *Controller) NextPage() {
	c.mu.Lock()
	ok := c.known && c.pagination.HasNext(c.page)
	n := c.page + 1
	c.mu.Unlock()
	if ok {
		c.SetPage(n)
	}
}

// PrevPage moves back unless on page 1.
func (c *Controller) PrevPage() {
	c.mu.Lock()
	n := c.page - 1
	c.mu.Unlock()
	if n >= 1 {
		c.SetPage(n)
	}
}

// OpenForm shows the add-review form.
func (c *Controller) OpenForm() {
	c.mu.Lock()
	c.formOpen = true
	c.mu.Unlock()
	c.notify()
}

// CloseForm hides the form and clears its error. The draft is kept.
func (c *Controller) CloseForm() {
	c.mu.Lock()
	c.formOpen = false
	c.formError = ""
	c.mu.Unlock()
	c.notify()
}

// SetDraft replaces the review text being typed.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// Submit creates a review from the draft. On success the form closes and
// the draft is cleared; the list refreshes through invalidation. Blank
// drafts are rejected without a network call.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.productID <= 0 {
		c.mu.Unlock()
		return ErrNoProduct
	}
	if c.submitting {
		c.mu.Unlock()
		return nil
	}
	in := catalog.CreateReviewInput{Content: strings.TrimSpace(c.draft), ProductID: c.productID}
	if err := in.Validate(); err != nil {
		c.formError = catalog.MsgContentRequired
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.submitting = true
	c.formError = ""
	c.mu.Unlock()
	c.notify()

	_, err := c.mutations.CreateReview(ctx, in)

	c.mu.Lock()
	c.submitting = false
	if err != nil {
		c.formError = "Failed to add review: " + errorMessage(err)
	} else if c.productID == in.ProductID {
		c.formOpen = false
		c.draft = ""
	}
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("add review failed", slog.Int64("product_id", in.ProductID), slog.Any("error", err))
	}
	c.notify()
	return err
}

// View returns the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) follow() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	if c.productID <= 0 {
		c.key = querycache.Key{}
		c.entry = querycache.Entry{}
		c.mu.Unlock()
		c.observer.Stop()
		c.notify()
		return
	}
	params := c.params()
	c.key = catalogquery.ReviewListKey(params)
	c.entry = querycache.Entry{Key: c.key}
	q := catalogquery.ReviewList(c.api, params)
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
	if page, ok := catalogquery.ReviewPage(e); ok {
		c.pagination = page.Pagination
		c.known = true
	}
	view := c.viewLocked()
	onChange := c.onChange
	c.mu.Unlock()
	if onChange != nil {
		onChange(view)
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	view := c.viewLocked()
	onChange := c.onChange
	c.mu.Unlock()
	if onChange != nil {
		onChange(view)
	}
}

func (c *Controller) viewLocked() View {
	v := View{
		ProductID:     c.productID,
		Page:          c.page,
		Pagination:    c.pagination,
		HasPagination: c.known,
		FormOpen:      c.formOpen,
		Draft:         c.draft,
		Submitting:    c.submitting,
		FormError:     c.formError,
	}
	if c.productID <= 0 {
		return v
	}
	e := c.entry
	if page, ok := catalogquery.ReviewPage(e); ok {
		v.Items = page.Items
		v.Pagination = page.Pagination
		v.Refreshing = e.Status == querycache.StatusLoading
	} else if e.Status != querycache.StatusError {
		v.Loading = true
	}
	if e.Status == querycache.StatusError {
		v.Err = e.Err
	}
	return v
}

func errorMessage(err error) string {
	var remote *catalog.RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return err.Error()
}
