// Package catalogquery maps catalog reads onto query cache keys and defines
// which keys a write makes stale.
package catalogquery

import (
	"context"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/querycache"
)

// Cache kinds.
const (
	KindProducts = "products"
	KindProduct  = "product"
	KindReviews  = "reviews"
)

// ProductReader is the read side of the product API.
type ProductReader interface {
	ListProducts(ctx context.Context, params catalog.ProductListParams) (catalog.Page[catalog.Product], error)
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// ReviewReader is the read side of the review API.
type ReviewReader interface {
	ListReviews(ctx context.Context, params catalog.ReviewListParams) (catalog.Page[catalog.Review], error)
}

// ProductListKey is the key of one page of the product list. Params are
// normalized first, so parameter sets the server treats alike share a key.
func ProductListKey(params catalog.ProductListParams) querycache.Key {
	params = params.Normalize()
	return querycache.Key{
		Kind:   KindProducts,
		Page:   params.Page,
		Limit:  params.Limit,
		Sort:   string(params.Sort),
		Order:  string(params.Order),
		Search: params.Search,
	}
}

// ProductKey is the key of a single product.
func ProductKey(id int64) querycache.Key {
	return querycache.Key{Kind: KindProduct, Scope: id}
}

// ReviewListKey is the key of one page of a product's reviews.
func ReviewListKey(params catalog.ReviewListParams) querycache.Key {
	params = params.Normalize()
	return querycache.Key{
		Kind:  KindReviews,
		Scope: params.ProductID,
		Page:  params.Page,
		Limit: params.Limit,
		Sort:  string(params.Sort),
		Order: string(params.Order),
	}
}

// ProductList builds the query for a product list page.
func ProductList(api ProductReader, params catalog.ProductListParams) querycache.Query {
	params = params.Normalize()
	return querycache.Query{
		Key: ProductListKey(params),
		Fetch: func(ctx context.Context) (any, error) {
			return api.ListProducts(ctx, params)
		},
	}
}

// Product builds the query for a single product.
func Product(api ProductReader, id int64) querycache.Query {
	return querycache.Query{
		Key: ProductKey(id),
		Fetch: func(ctx context.Context) (any, error) {
			return api.GetProduct(ctx, id)
		},
	}
}

// ReviewList builds the query for a page of reviews.
func ReviewList(api ReviewReader, params catalog.ReviewListParams) querycache.Query {
	params = params.Normalize()
	return querycache.Query{
		Key: ReviewListKey(params),
		Fetch: func(ctx context.Context) (any, error) {
			return api.ListReviews(ctx, params)
		},
	}
}

// ProductLists matches every product list page, whatever its paging, sort
// or search.
func ProductLists() querycache.Prefix {
	return querycache.Prefix{Kind: KindProducts}
}

// ProductDetail matches the single-product key for id.
func ProductDetail(id int64) querycache.Prefix {
	return querycache.Prefix{Kind: KindProduct, Scope: id}
}

// ProductReviews matches every review page of one product.
func ProductReviews(productID int64) querycache.Prefix {
	return querycache.Prefix{Kind: KindReviews, Scope: productID}
}

// ProductPage extracts a product list page from an entry.
func ProductPage(e querycache.Entry) (catalog.Page[catalog.Product], bool) {
	return querycache.DataAs[catalog.Page[catalog.Product]](e)
}

// ProductData extracts a product from an entry.
func ProductData(e querycache.Entry) (catalog.Product, bool) {
	return querycache.DataAs[catalog.Product](e)
}

// ReviewPage extracts a review page from an entry.
func ReviewPage(e querycache.Entry) (catalog.Page[catalog.Review], bool) {
	return querycache.DataAs[catalog.Page[catalog.Review]](e)
}
