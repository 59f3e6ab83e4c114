package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/catalogsync/internal/catalogapi"
	"github.com/odyssey-erp/catalogsync/internal/invalidation"
	"github.com/odyssey-erp/catalogsync/internal/mutation"
	"github.com/odyssey-erp/catalogsync/internal/observability"
	"github.com/odyssey-erp/catalogsync/internal/platform/cache"
	"github.com/odyssey-erp/catalogsync/internal/productdetail"
	"github.com/odyssey-erp/catalogsync/internal/productlist"
	"github.com/odyssey-erp/catalogsync/internal/querycache"
)

// StackParams groups the inputs of NewStack.
type StackParams struct {
	Config    *Config
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	UserAgent string
	// HTTPClient overrides the client built from Config. Optional.
	HTTPClient *http.Client
}

// Stack is the client-side data layer: one API client, one query cache,
// the invalidation bus in front of it and the mutation service writing
// through both.
type Stack struct {
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	API       *catalogapi.Client
	Cache     *querycache.Cache
	Bus       *invalidation.RedisBus
	Mutations *mutation.Service

	redis *redis.Client
	stop  context.CancelFunc
}

// NewStack builds the data layer. When REDIS_ADDR is set the bus listens
// for peer invalidations until Close.
func NewStack(ctx context.Context, params StackParams) (*Stack, error) {
	cfg := params.Config
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api, err := catalogapi.New(cfg.ClientConfig(params.UserAgent), params.HTTPClient, logger.With(slog.String("component", "catalogapi")), params.Metrics)
	if err != nil {
		return nil, err
	}

	cacheCfg := cfg.CacheConfig()
	cacheCfg.Logger = logger.With(slog.String("component", "querycache"))
	cacheCfg.Metrics = params.Metrics
	qc := querycache.New(cacheCfg)

	rdb, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		qc.Close()
		return nil, err
	}
	bus := invalidation.NewRedisBus(qc, rdb, cfg.InvalidationChannel, logger.With(slog.String("component", "invalidation")))

	listenCtx, stop := context.WithCancel(context.Background())
	if err := bus.Listen(listenCtx); err != nil {
		stop()
		qc.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, fmt.Errorf("app: invalidation bus: %w", err)
	}
	if rdb != nil {
		logger.Info("invalidation bus connected", slog.String("addr", cfg.RedisAddr), slog.String("origin", bus.Origin()))
	}

	return &Stack{
		Logger:    logger,
		Metrics:   params.Metrics,
		API:       api,
		Cache:     qc,
		Bus:       bus,
		Mutations: mutation.NewService(api, bus, logger.With(slog.String("component", "mutation"))),
		redis:     rdb,
		stop:      stop,
	}, nil
}

// ProductList returns a new list controller bound to the stack.
func (s *Stack) ProductList() *productlist.Controller {
	return productlist.New(s.Cache, s.API, s.Mutations, s.Logger.With(slog.String("component", "productlist")))
}

// ProductDetail returns a new detail controller bound to the stack.
func (s *Stack) ProductDetail() *productdetail.Controller {
	return productdetail.New(s.Cache, s.API, s.Mutations, s.Logger.With(slog.String("component", "productdetail")))
}

// Close stops the bus and the cache.
func (s *Stack) Close() error {
	s.stop()
	s.Cache.Close()
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
