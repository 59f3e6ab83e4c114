package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk cache, klien API dan server
// katalog palsu. Semua method aman dipanggil pada receiver nil.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	clientRequests *prometheus.CounterVec
	clientDuration *prometheus.HistogramVec

	cacheFetches     *prometheus.CounterVec
	cacheFetchTime   *prometheus.HistogramVec
	cacheInflight    *prometheus.GaugeVec
	cacheDedup       *prometheus.CounterVec
	cacheDiscarded   *prometheus.CounterVec
	cacheInvalidated *prometheus.CounterVec
	cacheEvicted     *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_http_requests_total",
			Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_http_request_duration_seconds",
			Help:    "Durasi permintaan HTTP per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		clientRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_client_requests_total",
			Help: "Permintaan keluar ke API katalog per operasi dan kelas status.",
		}, []string{"op", "class"}),
		clientDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_client_request_duration_seconds",
			Help:    "Durasi permintaan keluar ke API katalog.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		cacheFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cache_fetches_total",
			Help: "Fetch query cache yang selesai per kind dan hasil.",
		}, []string{"kind", "outcome"}),
		cacheFetchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_cache_fetch_duration_seconds",
			Help:    "Durasi fetch query cache.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		cacheInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalog_cache_fetches_inflight",
			Help: "Fetch yang sedang berjalan.",
		}, []string{"kind"}),
		cacheDedup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cache_deduplicated_total",
			Help: "Permintaan yang menumpang fetch yang sedang berjalan.",
		}, []string{"kind"}),
		cacheDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cache_discarded_responses_total",
			Help: "Respons dari fetch yang sudah digantikan.",
		}, []string{"kind"}),
		cacheInvalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cache_invalidations_total",
			Help: "Entry yang diinvalidasi, dengan atau tanpa refetch langsung.",
		}, []string{"kind", "refetched"}),
		cacheEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_cache_evictions_total",
			Help: "Entry yang dibuang oleh GC.",
		}, []string{"kind"}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.clientRequests, m.clientDuration,
		m.cacheFetches, m.cacheFetchTime, m.cacheInflight, m.cacheDedup,
		m.cacheDiscarded, m.cacheInvalidated, m.cacheEvicted,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveRequest mencatat satu permintaan klien. Status 0 berarti gagal di
// transport.
func (m *Metrics) ObserveRequest(op string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.clientRequests.WithLabelValues(op, statusClass(status)).Inc()
	m.clientDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) FetchStarted(kind string) {
	if m == nil {
		return
	}
	m.cacheInflight.WithLabelValues(kind).Inc()
}

func (m *Metrics) FetchFinished(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cacheInflight.WithLabelValues(kind).Dec()
	m.cacheFetches.WithLabelValues(kind, outcome).Inc()
	m.cacheFetchTime.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) FetchDeduplicated(kind string) {
	if m == nil {
		return
	}
	m.cacheDedup.WithLabelValues(kind).Inc()
}

func (m *Metrics) ResponseDiscarded(kind string) {
	if m == nil {
		return
	}
	m.cacheDiscarded.WithLabelValues(kind).Inc()
}

func (m *Metrics) Invalidated(kind string, refetched bool) {
	if m == nil {
		return
	}
	m.cacheInvalidated.WithLabelValues(kind, strconv.FormatBool(refetched)).Inc()
}

func (m *Metrics) Evicted(kind string) {
	if m == nil {
		return
	}
	m.cacheEvicted.WithLabelValues(kind).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Gatherer mengekspos registry untuk pengujian dan dump.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.DefaultGatherer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

func statusClass(status int) string {
	if status <= 0 {
		return "transport"
	}
	return strconv.Itoa(status/100) + "xx"
}
