// Package fakeapi is an in-memory implementation of the catalog REST API,
// used as a development server and as the remote end in tests.
package fakeapi

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/platform/httpx"
)

var (
	errProductNotFound = httpx.Errorf(httpx.ErrNotFound, "Product not found")
	errReviewNotFound  = httpx.Errorf(httpx.ErrNotFound, "Review not found")
	errNoUpdates       = httpx.Errorf(httpx.ErrValidation, "No valid fields to update")
)

// ReviewUpdate is a partial review update.
type ReviewUpdate struct {
	Content   *string
	ProductID *int64
}

// Store keeps products and reviews in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextID   int64
	products map[int64]catalog.Product
	reviews  map[int64]catalog.Review
}

// NewStore returns an empty store. A nil now uses time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:      now,
		nextID:   1,
		products: map[int64]catalog.Product{},
		reviews:  map[int64]catalog.Review{},
	}
}

func (s *Store) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// ListProducts applies the server's paging, sorting and search rules.
func (s *Store) ListProducts(params catalog.ProductListParams) catalog.Page[catalog.Product] {
	params = params.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	fold := cases.Fold()
	term := fold.String(params.Search)
	items := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		if term == "" || strings.Contains(fold.String(p.Name), term) {
			items = append(items, p)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		c := compareProducts(items[i], items[j], params.Sort)
		if c == 0 {
			c = cmpInt(items[i].ID, items[j].ID)
		}
		if params.Order == catalog.SortAsc {
			return c < 0
		}
		return c > 0
	})
	return paginate(items, params.Page, params.Limit)
}

func compareProducts(a, b catalog.Product, field catalog.SortField) int {
	switch field {
	case catalog.SortName:
		return strings.Compare(a.Name, b.Name)
	case catalog.SortPrice:
		return a.Price.Cmp(b.Price)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func paginate[T any](items []T, page, limit int) catalog.Page[T] {
	if page < 1 {
		page = catalog.DefaultPage
	}
	if limit < 1 {
		limit = catalog.DefaultLimit
	}
	total := len(items)
	// Bound page before multiplying so huge pages cannot overflow.
	start := total
	if total > 0 && page-1 <= (total-1)/limit {
		start = (page - 1) * limit
	}
	end := total
	if limit < total-start {
		end = start + limit
	}
	return catalog.Page[T]{
		Items:      append([]T{}, items[start:end]...),
		Pagination: catalog.NewPagination(page, limit, int64(total)),
	}
}

// GetProduct returns the product with id.
func (s *Store) GetProduct(id int64) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, errProductNotFound
	}
	return p, nil
}

// CreateProduct stores a new product. Input is assumed validated.
func (s *Store) CreateProduct(in catalog.CreateProductInput) catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	p := catalog.Product{
		ID:          s.id(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.products[p.ID] = p
	return p
}

// UpdateProduct applies the non-nil fields of in.
func (s *Store) UpdateProduct(id int64, in catalog.UpdateProductInput) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, errProductNotFound
	}
	if in.IsEmpty() {
		return catalog.Product{}, errNoUpdates
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	p.UpdatedAt = s.now().UTC()
	s.products[id] = p
	return p, nil
}

// DeleteProduct removes a product and its reviews.
func (s *Store) DeleteProduct(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return errProductNotFound
	}
	delete(s.products, id)
	for rid, r := range s.reviews {
		if r.ProductID == id {
			delete(s.reviews, rid)
		}
	}
	return nil
}

// ListReviews pages through a product's reviews. An unknown product has no
// reviews rather than being an error.
func (s *Store) ListReviews(params catalog.ReviewListParams) catalog.Page[catalog.Review] {
	params = params.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]catalog.Review, 0)
	for _, r := range s.reviews {
		if r.ProductID == params.ProductID {
			items = append(items, r)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		c := a.CreatedAt.Compare(b.CreatedAt)
		if c == 0 {
			c = cmpInt(a.ID, b.ID)
		}
		if params.Order == catalog.SortAsc {
			return c < 0
		}
		return c > 0
	})
	return paginate(items, params.Page, params.Limit)
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// CreateReview attaches a review to an existing product.
func (s *Store) CreateReview(in catalog.CreateReviewInput) (catalog.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[in.ProductID]; !ok {
		return catalog.Review{}, errProductNotFound
	}
	r := catalog.Review{
		ID:        s.id(),
		ProductID: in.ProductID,
		Content:   in.Content,
		CreatedAt: s.now().UTC(),
	}
	s.reviews[r.ID] = r
	return r, nil
}

// UpdateReview edits a review's content or moves it to another product.
func (s *Store) UpdateReview(id int64, in ReviewUpdate) (catalog.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return catalog.Review{}, errReviewNotFound
	}
	if in.Content == nil && in.ProductID == nil {
		return catalog.Review{}, errNoUpdates
	}
	if in.ProductID != nil {
		if _, ok := s.products[*in.ProductID]; !ok {
			return catalog.Review{}, errProductNotFound
		}
		r.ProductID = *in.ProductID
	}
	if in.Content != nil {
		r.Content = *in.Content
	}
	s.reviews[id] = r
	return r, nil
}

// DeleteReview removes a review.
func (s *Store) DeleteReview(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[id]; !ok {
		return errReviewNotFound
	}
	delete(s.reviews, id)
	return nil
}

// Counts returns the number of stored products and reviews.
func (s *Store) Counts() (products, reviews int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), len(s.reviews)
}

var seedProducts = []struct {
	name, description, price string
	reviews                  []string
}{
	{"Vintage Desk Lamp", "Brass lamp with an adjustable arm.", "89.50", []string{"Warm light, solid build.", "Shade wobbles a little."}},
	{"Noise-Canceling Headphones", "Over-ear, 30-hour battery.", "249.00", []string{"Great on flights."}},
	{"Ergonomic Office Chair", "Mesh back with lumbar support.", "319.00", nil},
	{"Mechanical Keyboard", "Tenkeyless, hot-swappable switches.", "129.99", []string{"Loud but lovely.", "Keycaps shine after a month.", "Best keyboard I've owned."}},
	{"Standing Desk", "Dual motor, memory presets.", "549.00", nil},
	{"USB-C Dock", "Two displays, 100W passthrough.", "179.00", []string{"Runs hot."}},
	{"Espresso Grinder", "Stepless burr adjustment.", "399.00", nil},
	{"Cast Iron Skillet", "Pre-seasoned, 12 inch.", "39.95", []string{"Heavy in the best way."}},
	{"Trail Running Shoes", "Rock plate, 6mm drop.", "139.00", nil},
	{"Water Bottle", "Insulated steel, 750ml.", "24.00", nil},
	{"Wireless Mouse", "Silent clicks, 70 day battery.", "49.99", []string{"Fits small hands."}},
	{"Monitor Arm", "Gas spring, up to 9kg.", "89.00", nil},
	{"Desk Plant", "Low-light pothos in ceramic pot.", "19.50", nil},
	{"Notebook Set", "Dot grid, three pack.", "14.00", nil},
}

// Seed fills the store with sample products and reviews. Timestamps are
// spaced one minute apart in list order and lie in the past.
func (s *Store) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := s.now().UTC().Add(-time.Duration(len(seedProducts)*10) * time.Minute)
	at := base
	for _, sp := range seedProducts {
		at = at.Add(time.Minute)
		p := catalog.Product{
			ID:          s.id(),
			Name:        sp.name,
			Description: sp.description,
			Price:       decimal.RequireFromString(sp.price),
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		s.products[p.ID] = p
		for _, content := range sp.reviews {
			at = at.Add(time.Minute)
			r := catalog.Review{ID: s.id(), ProductID: p.ID, Content: content, CreatedAt: at}
			s.reviews[r.ID] = r
		}
	}
}
