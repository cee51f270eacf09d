// Package client provides the HTTP client used to fetch pages: a pooled
// keep-alive transport with optional Redis-backed caching and rate limit
// gating, and retries for transient failures.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/paged-client/pkg/cache"
	"github.com/Sternrassler/paged-client/pkg/logging"
	"github.com/Sternrassler/paged-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paged_http_requests_total",
		Help: "Total HTTP requests by host and status",
	}, []string{"host", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paged_http_request_duration_seconds",
		Help:    "Time to response headers in seconds by host",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"host"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paged_http_errors_total",
		Help: "Total HTTP errors by class",
	}, []string{"class"})
)

// DefaultAccept prefers line-based RDF and falls back to JSON.
const DefaultAccept = "application/n-quads, application/n-triples;q=0.9, application/json;q=0.5"

// cacheStoreTimeout bounds writing a completed body to the cache.
const cacheStoreTimeout = 5 * time.Second

// Client fetches pages over a shared keep-alive transport.
type Client struct {
	httpClient  *http.Client
	transport   *http.Transport
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	retry       RetryConfig
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis enables caching and shared rate limit state. Optional.
	Redis *redis.Client

	// User-Agent header sent with every request (REQUIRED)
	UserAgent string

	// Accept header used when a request sets none
	Accept string

	// Timeout bounds the wait for response headers
	Timeout time.Duration

	// Connection pooling
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	KeepAlive           time.Duration // negative disables keep-alive

	// Caching
	MemoryCacheSize   int64 // entries in the in-process tier; 0 disables it
	MaxCacheEntrySize int64 // larger bodies stream through uncached; 0 means cache.DefaultMaxEntrySize

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		Redis:               redis,
		UserAgent:           userAgent,
		Accept:              DefaultAccept,
		Timeout:             30 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		KeepAlive:           30 * time.Second,
		MemoryCacheSize:     0,
		MaxCacheEntrySize:   cache.DefaultMaxEntrySize,
		MaxRetries:          2,
		InitialBackoff:      1 * time.Second,
		MaxBackoff:          30 * time.Second,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	if cfg.MaxCacheEntrySize < 0 {
		return nil, fmt.Errorf("max_cache_entry_size must be >= 0 (got %d)", cfg.MaxCacheEntrySize)
	}

	if cfg.Accept == "" {
		cfg.Accept = DefaultAccept
	}
	if cfg.MaxCacheEntrySize == 0 {
		cfg.MaxCacheEntrySize = cache.DefaultMaxEntrySize
	}

	logger := logging.NewLogger("paged-client")

	transport := NewTransport(cfg)
	c := &Client{
		httpClient: &http.Client{Transport: transport},
		transport:  transport,
		retry: RetryConfig{
			MaxAttempts:       cfg.MaxRetries + 1,
			InitialBackoff:    cfg.InitialBackoff,
			MaxBackoff:        cfg.MaxBackoff,
			BackoffMultiplier: 2.0,
		},
		config: cfg,
		logger: logger,
	}

	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)

		var opts []cache.Option
		if cfg.MemoryCacheSize > 0 {
			opts = append(opts, cache.WithMemoryTier(cfg.MemoryCacheSize))
		}
		manager, err := cache.NewManager(cfg.Redis, opts...)
		if err != nil {
			return nil, fmt.Errorf("create cache: %w", err)
		}
		c.cache = manager
	} else {
		logger.Debug().Msg("No Redis configured, caching and rate limit gating disabled")
	}

	return c, nil
}

// Do performs an HTTP request with rate limiting, caching and retries.
//
// Network failures, 5xx and 429 answers are retried. A 4xx answer is returned
// as a response for the caller to handle; a retried failure that never
// recovers is returned as an error wrapping ErrRetryExhausted.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host := req.URL.Host

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx, host)
		if err != nil {
			c.logger.Error().Err(err).Str("host", host).Msg("Rate limit check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().Str("url", req.URL.String()).Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues(host, "rate_limited").Inc()
			return nil, ErrRateLimited
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", c.config.Accept)
	}

	var (
		cacheKey    cache.CacheKey
		cachedEntry *cache.CacheEntry
	)
	if c.cache != nil && req.Method == http.MethodGet {
		cacheKey = cache.KeyFromURL(req.URL, req.Header.Get("Accept"))

		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Cache get error")
		}
		cachedEntry = entry

		if cachedEntry != nil && !cachedEntry.IsExpired() {
			requestsTotal.WithLabelValues(host, "cache_hit").Inc()
			c.logger.Debug().Str("url", req.URL.String()).Msg("Serving page from cache")
			return cache.EntryToResponse(cachedEntry, req), nil
		}

		if cachedEntry != nil && cache.ShouldMakeConditionalRequest(cachedEntry) {
			cache.AddConditionalHeaders(req, cachedEntry)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("url", req.URL.String()).
				Str("etag", cachedEntry.ETag).
				Msg("Making conditional request")
		}
	}

	c.logger.Debug().
		Str("url", req.URL.String()).
		Str("method", req.Method).
		Msg("Executing request")

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("url", req.URL.String()).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		if err := c.cache.UpdateTTL(ctx, cacheKey, refreshedExpiry(resp.Header)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}

		drainAndClose(resp.Body)
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	if c.cache != nil && req.Method == http.MethodGet && cache.IsCacheable(resp) {
		url := req.URL.String()
		teed := cache.TeeBody(resp, c.config.MaxCacheEntrySize, func(entry *cache.CacheEntry) {
			c.storeEntry(ctx, url, cacheKey, entry)
		})
		if !teed {
			c.logger.Debug().
				Str("url", url).
				Int64("content_length", resp.ContentLength).
				Msg("Response too large to cache")
		}
	}

	return resp, nil
}

// storeEntry caches a body the caller has read completely. It runs at the
// end of the caller's read, so it does not inherit the request's cancellation.
func (c *Client) storeEntry(ctx context.Context, url string, key cache.CacheKey, entry *cache.CacheEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheStoreTimeout)
	defer cancel()

	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("Failed to cache response")
		return
	}
	c.logger.Debug().
		Str("url", url).
		Dur("ttl", entry.TTL()).
		Msg("Cached response")
}

// send executes req, retrying transient failures.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host := req.URL.Host

	var resp *http.Response
	err := retryWithBackoff(ctx, c.retry, func() (ErrorClass, error) {
		attempt, err := cloneRequest(req)
		if err != nil {
			return ErrorClassClient, err
		}

		r, err := c.httpClient.Do(attempt)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			class := classifyError(nil, err)
			c.logger.Error().Err(err).Str("url", req.URL.String()).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(class)).Inc()
			requestsTotal.WithLabelValues(host, "network_error").Inc()
			return class, err
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, host, r.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		requestsTotal.WithLabelValues(host, strconv.Itoa(r.StatusCode)).Inc()

		if class := classifyError(r, nil); class != "" {
			errorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("url", req.URL.String()).
				Int("status", r.StatusCode).
				Str("error_class", string(class)).
				Msg("Request error")

			if shouldRetry(class) {
				return class, NewHTTPError(r)
			}
		}

		resp = r
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// classifyError categorizes an error for observability and handling.
func classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	return classifyStatus(resp.StatusCode)
}

// cloneRequest gives every attempt its own request and body.
func cloneRequest(req *http.Request) (*http.Request, error) {
	attempt := req.Clone(req.Context())
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, fmt.Errorf("request body cannot be replayed")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		attempt.Body = body
	}
	return attempt, nil
}

func refreshedExpiry(headers http.Header) time.Time {
	if expires, ok := cache.ParseFreshness(headers); ok {
		return expires
	}
	return time.Now().Add(cache.DefaultTTL)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	body.Close()
}

// Get performs a GET request for url.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// Close releases pooled connections and the in-process cache tier.
// The Redis client is owned by the caller.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	if c.cache != nil {
		c.cache.Close()
	}
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetRetryConfig overrides the retry policy derived from Config.
func (c *Client) SetRetryConfig(cfg RetryConfig) {
	c.retry = cfg
}

// GetCache returns the cache manager, nil without Redis.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
