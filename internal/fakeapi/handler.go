package fakeapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/platform/httpx"
)

// Handler serves the catalog REST API from a Store.
type Handler struct {
	logger  *slog.Logger
	store   *Store
	latency time.Duration
}

// NewHandler builds the handler. A positive latency delays every response,
// which makes loading and refreshing states observable from a client.
func NewHandler(logger *slog.Logger, store *Store, latency time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store, latency: latency}
}

// MountRoutes registers the API on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.latency > 0 {
			r.Use(h.delay)
		}
		r.Get("/products", h.listProducts)
		r.Post("/products", h.createProduct)
		r.Get("/products/{id}", h.getProduct)
		r.Patch("/products/{id}", h.updateProduct)
		r.Delete("/products/{id}", h.deleteProduct)
		r.Get("/products/{id}/reviews", h.listReviews)
		r.Post("/reviews", h.createReview)
		r.Patch("/reviews/{id}", h.updateReview)
		r.Delete("/reviews/{id}", h.deleteReview)
	})
}

func (h *Handler) delay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.NewTimer(h.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-r.Context().Done():
			return
		}
		next.ServeHTTP(w, r)
	})
}

type productJSON struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func toProductJSON(p catalog.Product) productJSON {
	return productJSON{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       json.Number(p.Price.String()),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

type productInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
}

type reviewInput struct {
	Content   *string `json:"content"`
	ProductID *int64  `json:"product_id"`
}

func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.JSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: msg})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := h.store.ListProducts(catalog.ProductListParams{
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
		Sort:   catalog.SortField(q.Get("sort")),
		Order:  catalog.SortOrder(q.Get("order")),
		Search: q.Get("search"),
	})
	items := make([]productJSON, 0, len(page.Items))
	for _, p := range page.Items {
		items = append(items, toProductJSON(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products":   items,
		"pagination": page.Pagination,
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.RespondError(w, errProductNotFound, "")
		return
	}
	p, err := h.store.GetProduct(id)
	if err != nil {
		httpx.RespondError(w, err, "Failed to retrieve product")
		return
	}
	httpx.JSON(w, http.StatusOK, toProductJSON(p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var body productInput
	if err := httpx.DecodeJSON(r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}
	in := catalog.CreateProductInput{}
	if body.Name != nil {
		in.Name = strings.TrimSpace(*body.Name)
	}
	if body.Description != nil {
		in.Description = strings.TrimSpace(*body.Description)
	}
	if body.Price != nil {
		in.Price = *body.Price
	}
	if err := in.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	p := h.store.CreateProduct(in)
	h.logger.Info("product created", slog.Int64("product_id", p.ID))
	httpx.JSON(w, http.StatusCreated, toProductJSON(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.RespondError(w, errProductNotFound, "")
		return
	}
	if _, err := h.store.GetProduct(id); err != nil {
		httpx.RespondError(w, err, "Failed to update product")
		return
	}
	var body productInput
	if err := httpx.DecodeJSON(r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}
	in := catalog.UpdateProductInput{Name: body.Name, Description: body.Description, Price: body.Price}
	if !in.IsEmpty() {
		if err := in.Validate(); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	p, err := h.store.UpdateProduct(id, in)
	if err != nil {
		httpx.RespondError(w, err, "Failed to update product")
		return
	}
	httpx.JSON(w, http.StatusOK, toProductJSON(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.RespondError(w, errProductNotFound, "")
		return
	}
	if err := h.store.DeleteProduct(id); err != nil {
		httpx.RespondError(w, err, "Failed to delete product")
		return
	}
	h.logger.Info("product deleted", slog.Int64("product_id", id))
	httpx.JSON(w, http.StatusOK, httpx.MessageBody{Message: "Product deleted successfully"})
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	q := r.URL.Query()
	page := h.store.ListReviews(catalog.ReviewListParams{
		ProductID: id,
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
		Sort:      catalog.SortField(q.Get("sort")),
		Order:     catalog.SortOrder(q.Get("order")),
	})
	httpx.JSON(w, http.StatusOK, map[string]any{
		"reviews":    page.Items,
		"pagination": page.Pagination,
	})
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	var body reviewInput
	if err := httpx.DecodeJSON(r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}
	in := catalog.CreateReviewInput{}
	if body.Content != nil {
		in.Content = strings.TrimSpace(*body.Content)
	}
	if body.ProductID != nil {
		in.ProductID = *body.ProductID
	}
	if err := in.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}
	rv, err := h.store.CreateReview(in)
	if err != nil {
		httpx.RespondError(w, err, "Failed to create review")
		return
	}
	httpx.JSON(w, http.StatusCreated, rv)
}

func (h *Handler) updateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.RespondError(w, errReviewNotFound, "")
		return
	}
	var body reviewInput
	if err := httpx.DecodeJSON(r, &body); err != nil {
		badRequest(w, err.Error())
		return
	}
	rv, err := h.store.UpdateReview(id, ReviewUpdate(body))
	if err != nil {
		httpx.RespondError(w, err, "Failed to update review")
		return
	}
	httpx.JSON(w, http.StatusOK, rv)
}

func (h *Handler) deleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.RespondError(w, errReviewNotFound, "")
		return
	}
	if err := h.store.DeleteReview(id); err != nil {
		httpx.RespondError(w, err, "Failed to delete review")
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.MessageBody{Message: "Review deleted successfully"})
}
