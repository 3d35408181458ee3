// Package database provides the Supabase REST gateway. It is the sole
// network boundary the engines depend on: every logical table operation maps
// onto a single HTTP exchange with the store's PostgREST endpoint.
package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/littlewriters/credits-service/internal/domain/credits"
	"github.com/littlewriters/credits-service/pkg/logger"
)

const (
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// Config holds gateway configuration.
type Config struct {
	URL        string
	AnonKey    string
	ServiceKey string

	// RequestTimeout bounds a single HTTP exchange including retries' waits.
	RequestTimeout time.Duration
	// MaxRetries caps retry attempts for transient failures.
	MaxRetries int
	// InitialBackoff is the first retry delay; doubled per attempt with
	// jitter, capped at MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RequestsPerSecond throttles calls to the store. Zero disables the
	// limiter.
	RequestsPerSecond float64

	HTTPClient *http.Client
}

func (c *Config) withDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
}

// Client is the Supabase REST gateway. All failures are returned as values;
// nothing is raised past this boundary.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        Config
	log        *logger.Logger
}

// NewClient creates a gateway from configuration.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase service key is required")
	}
	cfg.withDefaults()

	if log == nil {
		log = logger.NewDefault("database")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(math.Ceil(cfg.RequestsPerSecond)))
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceKey,
		httpClient: httpClient,
		limiter:    limiter,
		cfg:        cfg,
		log:        log,
	}, nil
}

// StoreError is a non-retryable store response (4xx validation failures and
// anything else that survived the retry budget with a status code).
type StoreError struct {
	StatusCode int
	Body       string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("supabase error %d: %s", e.StatusCode, e.Body)
}

// response is a completed store exchange.
type response struct {
	status int
	body   []byte
	header http.Header
}

// request performs a store exchange and returns the response body.
// Transient failures (connection errors, 429, 5xx) are retried with capped
// exponential backoff; 4xx responses are returned immediately as *StoreError.
func (c *Client) request(ctx context.Context, method, table string, body any, query url.Values) ([]byte, error) {
	resp, err := c.do(ctx, method, table, body, query, nil)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// count performs a HEAD exchange with Prefer: count=exact and parses the
// Content-Range header ("0-9/100" or "*/0").
func (c *Client) count(ctx context.Context, table string, query url.Values) (int, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("select", "*")
	resp, err := c.do(ctx, http.MethodHead, table, nil, query, http.Header{
		"Prefer": []string{"count=exact"},
	})
	if err != nil {
		return 0, err
	}

	// The header is "<range>/<total>", e.g. "0-9/42" or "*/0". A missing or
	// unknown ("*") total counts as zero.
	contentRange := resp.header.Get("Content-Range")
	_, total, found := strings.Cut(contentRange, "/")
	if !found || total == "*" {
		return 0, nil
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, method, table string, body any, query url.Values, extra http.Header) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	reqURL := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var lastErr error
	start := time.Now()
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			observeRetry(method, table)
			select {
			case <-ctx.Done():
				return nil, c.exhausted(method, table, ctx.Err())
			case <-time.After(c.backoff(attempt)):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, c.exhausted(method, table, err)
			}
		}

		resp, retryable, err := c.exchange(ctx, method, reqURL, payload, extra)
		if err == nil {
			observeRequest(method, table, "ok", time.Since(start))
			return resp, nil
		}
		if !retryable {
			observeRequest(method, table, "error", time.Since(start))
			return nil, err
		}
		lastErr = err
	}

	observeRequest(method, table, "exhausted", time.Since(start))
	return nil, c.exhausted(method, table, lastErr)
}

// exchange performs one HTTP round trip. The bool result reports whether the
// failure may be retried.
func (c *Client) exchange(ctx context.Context, method, reqURL string, payload []byte, extra http.Header) (*response, bool, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	apikey := c.anonKey
	if apikey == "" {
		apikey = c.serviceKey
	}
	req.Header.Set("apikey", apikey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection-level failure: retryable unless the context is done.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, credits.WrapError(credits.KindTransient, "store request timed out", err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return nil, true, err
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	if isRetryableStatus(resp.StatusCode) {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, true, &StoreError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, false, &StoreError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	return &response{status: resp.StatusCode, body: b, header: resp.Header}, false, nil
}

func (c *Client) exhausted(method, table string, lastErr error) error {
	err := credits.WrapError(credits.KindTransient, fmt.Sprintf("store unavailable (%s %s)", method, table), lastErr)
	c.log.WithError(lastErr).Warnf("store request exhausted retries: %s %s", method, table)
	return err
}

func (c *Client) backoff(attempt int) time.Duration {
	d := float64(c.cfg.InitialBackoff) * math.Pow(2, float64(attempt-1))
	if d > float64(c.cfg.MaxBackoff) {
		d = float64(c.cfg.MaxBackoff)
	}
	// 10% jitter either way.
	d += d * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(d)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
