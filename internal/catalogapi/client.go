// Package catalogapi is a typed client for the catalog REST API.
package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/odyssey-erp/catalogsync/internal/catalog"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorBody    = 64 << 10
	requestIDHeader = "X-Request-ID"
)

// Config configures the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit caps outgoing requests per second. Zero disables throttling.
	RateLimit float64
	RateBurst int
	UserAgent string
}

// Recorder receives request metrics.
type Recorder interface {
	ObserveRequest(op string, status int, elapsed time.Duration)
}

// Client talks to the catalog API over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *slog.Logger
	metrics   Recorder
}

// New builds a Client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger, metrics Recorder) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("catalogapi: base url required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("catalogapi: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("catalogapi: base url %q must be absolute", cfg.BaseURL)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:   base,
		http:      httpClient,
		userAgent: cfg.UserAgent,
		logger:    logger,
		metrics:   metrics,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// do sends one request and decodes a 2xx JSON body into out when out is
// non-nil. Failures are returned as *catalog.RemoteError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &catalog.RemoteError{Op: op, Err: err}
		}
	}

	u := *c.baseURL
	u.Path = u.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("catalogapi: %s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("catalogapi: %s: build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(op, 0, elapsed)
		c.logger.Warn("catalog request failed",
			slog.String("op", op),
			slog.String("request_id", requestID),
			slog.Any("error", err))
		return &catalog.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.observe(op, resp.StatusCode, elapsed)
	c.logger.Debug("catalog request",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", u.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", elapsed),
		slog.String("request_id", requestID))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &catalog.RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &catalog.RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) observe(op string, status int, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveRequest(op, status, elapsed)
	}
}

// errorBody covers both {"error": "..."} bodies and RFC7807 problems.
type errorBody struct {
	Error  string `json:"error"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	switch {
	case body.Error != "":
		return body.Error
	case body.Detail != "":
		return body.Detail
	default:
		return body.Title
	}
}
