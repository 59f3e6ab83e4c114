package catalogapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
)

type reviewsResponse struct {
	Reviews    []catalog.Review   `json:"reviews"`
	Pagination catalog.Pagination `json:"pagination"`
}

type createReviewRequest struct {
	Content   string `json:"content"`
	ProductID int64  `json:"product_id"`
}

// ListReviews calls GET /products/{id}/reviews. Reviews are only ever
// listed for a known product.
func (c *Client) ListReviews(ctx context.Context, params catalog.ReviewListParams) (catalog.Page[catalog.Review], error) {
	if params.ProductID <= 0 {
		return catalog.Page[catalog.Review]{}, errors.New("catalogapi: list reviews: product id required")
	}
	params = params.Normalize()
	q := url.Values{}
	q.Set("page", strconv.Itoa(params.Page))
	q.Set("limit", strconv.Itoa(params.Limit))
	q.Set("sort", string(params.Sort))
	q.Set("order", string(params.Order))
	var resp reviewsResponse
	if err := c.do(ctx, "list reviews", http.MethodGet, productPath(params.ProductID)+"/reviews", q, nil, &resp); err != nil {
		return catalog.Page[catalog.Review]{}, err
	}
	if resp.Reviews == nil {
		resp.Reviews = []catalog.Review{}
	}
	return catalog.Page[catalog.Review]{Items: resp.Reviews, Pagination: resp.Pagination}, nil
}

// CreateReview calls POST /reviews.
func (c *Client) CreateReview(ctx context.Context, in catalog.CreateReviewInput) (catalog.Review, error) {
	body := createReviewRequest{Content: in.Content, ProductID: in.ProductID}
	var r catalog.Review
	if err := c.do(ctx, "create review", http.MethodPost, "/reviews", nil, body, &r); err != nil {
		return catalog.Review{}, err
	}
	return r, nil
}
