// Package productdetail drives the single-product view: the product itself,
// its edit form and its reviews.
package productdetail

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/catalogquery"
	"github.com/odyssey-erp/catalogsync/internal/querycache"
	"github.com/odyssey-erp/catalogsync/internal/reviews"
)

// Status summarizes what the detail view can show.
type Status string

const (
	StatusLoading  Status = "loading"
	StatusReady    Status = "ready"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Mutations is the write side the detail view needs.
type Mutations interface {
	UpdateProduct(ctx context.Context, id int64, in catalog.UpdateProductInput) (catalog.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	CreateReview(ctx context.Context, in catalog.CreateReviewInput) (catalog.Review, error)
}

// Reader combines the reads of a product and its reviews.
type Reader interface {
	catalogquery.ProductReader
	catalogquery.ReviewReader
}

// View is what the detail page renders.
type View struct {
	ProductID  int64
	Status     Status
	Product    catalog.Product
	HasProduct bool
	Refreshing bool
	Err        error
	// ActionError is the last failed update or delete, until dismissed.
	ActionError error
	Deleted     bool
}

// Controller follows one product.
type Controller struct {
	api       Reader
	mutations Mutations
	logger    *slog.Logger
	observer  *querycache.Observer
	reviews   *reviews.Controller

	mu        sync.Mutex
	id        int64
	key       querycache.Key
	entry     querycache.Entry
	actionErr error
	deleted   bool
	mounted   bool
	onChange  func(View)
}

// New creates a detail controller with no product selected.
func New(cache querycache.Watcher, api Reader, mutations Mutations, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		api:       api,
		mutations: mutations,
		logger:    logger,
		reviews:   reviews.New(cache, api, mutations, logger),
	}
	c.observer = querycache.NewObserver(cache, c.handle)
	return c
}

// Reviews returns the review section controller.
func (c *Controller) Reviews() *reviews.Controller {
	return c.reviews
}

// Mount starts following. onChange receives product view updates; review
// updates go to onReviews.
func (c *Controller) Mount(onChange func(View), onReviews func(reviews.View)) {
	c.mu.Lock()
	c.mounted = true
	c.onChange = onChange
	c.mu.Unlock()
	c.reviews.Mount(onReviews)
	c.follow()
}

// Unmount stops following the product and its reviews.
func (c *Controller) Unmount() {
	c.mu.Lock()
	c.mounted = false
	c.onChange = nil
	c.mu.Unlock()
	c.observer.Stop()
	c.reviews.Unmount()
}

// SetProduct switches to product id. Zero clears the selection.
func (c *Controller) SetProduct(id int64) {
	c.mu.Lock()
	if id == c.id {
		c.mu.Unlock()
		return
	}
	c.id = id
	c.actionErr = nil
	c.deleted = false
	c.mu.Unlock()
	c.reviews.SetProduct(id)
	c.follow()
}

// Update applies form input as a partial update. Only fields that differ
// from the shown product are sent. Validation failures return before any
// request is made.
func (c *Controller) Update(ctx context.Context, form catalog.ProductForm) (catalog.Product, error) {
	c.mu.Lock()
	id := c.id
	var current *catalog.Product
	if p, ok := catalogquery.ProductData(c.entry); ok {
		current = &p
	}
	c.mu.Unlock()
	if id <= 0 {
		return catalog.Product{}, catalog.NewValidationError(catalog.FieldProductID, catalog.MsgProductRequired)
	}

	in, err := catalog.BuildUpdate(current, form)
	if err != nil {
		return catalog.Product{}, err
	}
	p, err := c.mutations.UpdateProduct(ctx, id, in)
	c.setAction(err, false)
	return p, err
}

// Delete deletes the shown product.
func (c *Controller) Delete(ctx context.Context) error {
	c.mu.Lock()
	id := c.id
	c.mu.Unlock()
	if id <= 0 {
		return catalog.NewValidationError(catalog.FieldProductID, catalog.MsgProductRequired)
	}
	err := c.mutations.DeleteProduct(ctx, id)
	c.setAction(err, err == nil)
	return err
}

// DismissError clears the last action error.
func (c *Controller) DismissError() {
	c.setAction(nil, false)
}

// View returns the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) setAction(err error, deleted bool) {
	c.mu.Lock()
	var verr *catalog.ValidationError
	if !errors.As(err, &verr) {
		c.actionErr = err
	}
	if deleted {
		c.deleted = true
	}
	view := c.viewLocked()
	onChange := c.onChange
	c.mu.Unlock()
	if onChange != nil {
		onChange(view)
	}
}

func (c *Controller) follow() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	if c.id <= 0 {
		c.key = querycache.Key{}
		c.entry = querycache.Entry{}
		c.mu.Unlock()
		c.observer.Stop()
		return
	}
	c.key = catalogquery.ProductKey(c.id)
	c.entry = querycache.Entry{Key: c.key}
	q := catalogquery.Product(c.api, c.id)
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
	view := c.viewLocked()
	onChange := c.onChange
	c.mu.Unlock()
	if onChange != nil {
		onChange(view)
	}
}

func (c *Controller) viewLocked() View {
	v := View{
		ProductID:   c.id,
		ActionError: c.actionErr,
		Deleted:     c.deleted,
	}
	e := c.entry
	if p, ok := catalogquery.ProductData(e); ok {
		v.Product = p
		v.HasProduct = true
		v.Refreshing = e.Status == querycache.StatusLoading
	}
	switch {
	case c.deleted:
		v.Status = StatusNotFound
	case e.Status == querycache.StatusError && catalog.IsNotFound(e.Err):
		v.Status = StatusNotFound
		v.Err = e.Err
	case e.Status == querycache.StatusError && !v.HasProduct:
		v.Status = StatusError
		v.Err = e.Err
	case v.HasProduct:
		v.Status = StatusReady
		if e.Status == querycache.StatusError {
			v.Err = e.Err
		}
	default:
		v.Status = StatusLoading
	}
	return v
}
