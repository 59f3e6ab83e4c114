package catalogapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
)

type productsResponse struct {
	Products   []catalog.Product  `json:"products"`
	Pagination catalog.Pagination `json:"pagination"`
}

type createProductRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Price       json.Number `json:"price"`
}

type updateProductRequest struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Price       *json.Number `json:"price,omitempty"`
}

// ListProducts calls GET /products.
func (c *Client) ListProducts(ctx context.Context, params catalog.ProductListParams) (catalog.Page[catalog.Product], error) {
	params = params.Normalize()
	q := url.Values{}
	q.Set("page", strconv.Itoa(params.Page))
	q.Set("limit", strconv.Itoa(params.Limit))
	q.Set("sort", string(params.Sort))
	q.Set("order", string(params.Order))
	if params.Search != "" {
		q.Set("search", params.Search)
	}
	var resp productsResponse
	if err := c.do(ctx, "list products", http.MethodGet, "/products", q, nil, &resp); err != nil {
		return catalog.Page[catalog.Product]{}, err
	}
	if resp.Products == nil {
		resp.Products = []catalog.Product{}
	}
	return catalog.Page[catalog.Product]{Items: resp.Products, Pagination: resp.Pagination}, nil
}

// GetProduct calls GET /products/{id}. A missing product yields an error
// matching catalog.ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	var p catalog.Product
	if err := c.do(ctx, "get product", http.MethodGet, productPath(id), nil, nil, &p); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

// CreateProduct calls POST /products.
func (c *Client) CreateProduct(ctx context.Context, in catalog.CreateProductInput) (catalog.Product, error) {
	body := createProductRequest{
		Name:        in.Name,
		Description: in.Description,
		Price:       json.Number(in.Price.String()),
	}
	var p catalog.Product
	if err := c.do(ctx, "create product", http.MethodPost, "/products", nil, body, &p); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

// UpdateProduct calls PATCH /products/{id} with only the submitted fields.
func (c *Client) UpdateProduct(ctx context.Context, id int64, in catalog.UpdateProductInput) (catalog.Product, error) {
	body := updateProductRequest{Name: in.Name, Description: in.Description}
	if in.Price != nil {
		n := json.Number(in.Price.String())
		body.Price = &n
	}
	var p catalog.Product
	if err := c.do(ctx, "update product", http.MethodPatch, productPath(id), nil, body, &p); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

// DeleteProduct calls DELETE /products/{id}.
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, "delete product", http.MethodDelete, productPath(id), nil, nil, nil)
}

func productPath(id int64) string {
	return "/products/" + strconv.FormatInt(id, 10)
}
