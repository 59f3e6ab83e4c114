// Package mutation performs catalog writes and invalidates the cached
// queries each write could have changed.
package mutation

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/catalogquery"
	"github.com/odyssey-erp/catalogsync/internal/querycache"
)

// Writer is the write side of the catalog API.
type Writer interface {
	CreateProduct(ctx context.Context, in catalog.CreateProductInput) (catalog.Product, error)
	UpdateProduct(ctx context.Context, id int64, in catalog.UpdateProductInput) (catalog.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	CreateReview(ctx context.Context, in catalog.CreateReviewInput) (catalog.Review, error)
}

// Invalidator marks cached queries stale.
type Invalidator interface {
	Invalidate(m querycache.Matcher) int
}

// Service wraps writes with validation and invalidation. Writes are never
// applied to the cache directly; views see them once the server confirms
// and the affected keys refetch.
type Service struct {
	api    Writer
	cache  Invalidator
	logger *slog.Logger
}

// NewService constructs the mutation service.
func NewService(api Writer, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, cache: cache, logger: logger}
}

// CreateProduct validates and creates a product. A new product can land on
// any list page, so every product list goes stale.
func (s *Service) CreateProduct(ctx context.Context, in catalog.CreateProductInput) (catalog.Product, error) {
	if err := in.Validate(); err != nil {
		return catalog.Product{}, err
	}
	p, err := s.api.CreateProduct(ctx, in)
	if err != nil {
		s.logger.Warn("create product failed", slog.Any("error", err))
		return catalog.Product{}, err
	}
	s.invalidate("create product", catalogquery.ProductLists())
	return p, nil
}

// UpdateProduct validates and applies a partial update. The detail key and
// every list page go stale, since a renamed or repriced product can move
// between sorted or searched pages.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in catalog.UpdateProductInput) (catalog.Product, error) {
	if id <= 0 {
		return catalog.Product{}, catalog.NewValidationError(catalog.FieldProductID, catalog.MsgProductRequired)
	}
	if err := in.Validate(); err != nil {
		return catalog.Product{}, err
	}
	p, err := s.api.UpdateProduct(ctx, id, in)
	if err != nil {
		s.logger.Warn("update product failed", slog.Int64("product_id", id), slog.Any("error", err))
		return catalog.Product{}, err
	}
	s.invalidate("update product", catalogquery.ProductDetail(id), catalogquery.ProductLists())
	return p, nil
}

// DeleteProduct deletes a product and invalidates the same keys as an
// update. List views re-clamp their page once the new counts arrive.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if id <= 0 {
		return catalog.NewValidationError(catalog.FieldProductID, catalog.MsgProductRequired)
	}
	if err := s.api.DeleteProduct(ctx, id); err != nil {
		s.logger.Warn("delete product failed", slog.Int64("product_id", id), slog.Any("error", err))
		return err
	}
	s.invalidate("delete product", catalogquery.ProductDetail(id), catalogquery.ProductLists())
	return nil
}

// CreateReview validates and creates a review. Every page of that product's
// reviews goes stale: under newest-first ordering a new review shifts all
// of them.
func (s *Service) CreateReview(ctx context.Context, in catalog.CreateReviewInput) (catalog.Review, error) {
	if err := in.Validate(); err != nil {
		return catalog.Review{}, err
	}
	r, err := s.api.CreateReview(ctx, in)
	if err != nil {
		s.logger.Warn("create review failed", slog.Int64("product_id", in.ProductID), slog.Any("error", err))
		return catalog.Review{}, err
	}
	s.invalidate("create review", catalogquery.ProductReviews(in.ProductID))
	return r, nil
}

func (s *Service) invalidate(op string, prefixes ...querycache.Prefix) {
	if s.cache == nil {
		return
	}
	total := 0
	for _, p := range prefixes {
		total += s.cache.Invalidate(p)
	}
	s.logger.Debug("invalidated queries", slog.String("op", op), slog.Int("matched", total))
}
