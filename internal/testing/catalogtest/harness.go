// Package catalogtest runs the fake catalog API in-process and wires the
// client-side data layer against it for tests.
package catalogtest

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
	"github.com/odyssey-erp/catalogsync/internal/catalogapi"
	"github.com/odyssey-erp/catalogsync/internal/fakeapi"
	"github.com/odyssey-erp/catalogsync/internal/mutation"
	"github.com/odyssey-erp/catalogsync/internal/querycache"
)

// Wait is how long Eventually-style assertions wait for views to settle.
const Wait = 2 * time.Second

// Tick is the polling interval paired with Wait.
const Tick = 5 * time.Millisecond

// Options tunes a Harness.
type Options struct {
	// Latency delays every server response.
	Latency time.Duration
	Cache   querycache.Config
}

// Harness is a fake server plus one client stack talking to it.
type Harness struct {
	Store     *fakeapi.Store
	URL       string
	API       *catalogapi.Client
	Cache     *querycache.Cache
	Mutations *mutation.Service
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New starts a server with an empty store. Everything is torn down with t.
func New(t testing.TB, opts Options) *Harness {
	t.Helper()
	store := fakeapi.NewStore(nil)
	r := chi.NewRouter()
	fakeapi.NewHandler(Logger(), store, opts.Latency).MountRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	api, err := catalogapi.New(catalogapi.Config{BaseURL: srv.URL, UserAgent: "catalogtest"}, srv.Client(), Logger(), nil)
	require.NoError(t, err)

	cfg := opts.Cache
	if cfg.Logger == nil {
		cfg.Logger = Logger()
	}
	cache := querycache.New(cfg)
	t.Cleanup(cache.Close)

	return &Harness{
		Store:     store,
		URL:       srv.URL,
		API:       api,
		Cache:     cache,
		Mutations: mutation.NewService(api, cache, Logger()),
	}
}

// Products adds n products named "Item N" priced N, oldest first.
func (h *Harness) Products(n int) []catalog.Product {
	out := make([]catalog.Product, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, h.Store.CreateProduct(catalog.CreateProductInput{
			Name:  "Item " + strconv.Itoa(i),
			Price: decimal.NewFromInt(int64(i)),
		}))
	}
	return out
}

// Reviews adds n reviews to product id.
func (h *Harness) Reviews(t testing.TB, productID int64, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := h.Store.CreateReview(catalog.CreateReviewInput{Content: "Review " + strconv.Itoa(i), ProductID: productID})
		require.NoError(t, err)
	}
}
