// Package fetch issues outbound HTTP requests for the search layer,
// combining the shared request budget, the response cache, randomized
// pre-request jitter and bounded retries with exponential backoff.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/ishaqmohammed8765-png/flipscan/internal/budget"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
	"github.com/ishaqmohammed8765-png/flipscan/internal/respcache"
)

// ErrHTTPStatus is returned when a request completes with a
// non-success status after retries.
var ErrHTTPStatus = errors.New("unexpected http status")

// userAgents is rotated per client to look like an ordinary browser.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

const (
	// maxResponseBodyBytes limits the size of fetched pages.
	maxResponseBodyBytes = 10 * 1024 * 1024

	defaultMaxAttempts = 3

	minJitter = 600 * time.Millisecond
	maxJitter = 1400 * time.Millisecond
)

// Response is a fetched (or cache-served) HTTP response.
type Response struct {
	Body      string
	Status    int
	FinalURL  string
	Headers   map[string]string
	FromCache bool
}

// Options tunes a single Get call.
type Options struct {
	// Delay inserts a randomized pre-request pause to avoid tripping
	// anti-bot rate heuristics.
	Delay bool
	// SkipCache bypasses the cache lookup (the response is still
	// stored unless SkipStore is set).
	SkipCache bool
	// SkipStore prevents caching the response.
	SkipStore bool
	// MaxAttempts bounds retries on 429/5xx and transport errors.
	// Zero selects the default.
	MaxAttempts int
}

// Client performs budget- and cache-aware GET requests. One client is
// shared by every marketplace backend in a scan cycle so the budget
// and cache are shared too.
type Client struct {
	httpClient *http.Client
	budget     *budget.Budget
	cache      *respcache.Cache
	log        logger.Interface
	userAgent  string

	// sleep is replaceable in tests.
	sleep func(time.Duration)
}

// NewClient creates a fetch client with a fixed per-request timeout.
func NewClient(b *budget.Budget, cache *respcache.Cache, timeout time.Duration, log logger.Interface) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		budget:     b,
		cache:      cache,
		log:        log,
		userAgent:  userAgents[rand.IntN(len(userAgents))],
		sleep:      time.Sleep,
	}
}

// Budget exposes the shared request budget.
func (c *Client) Budget() *budget.Budget {
	return c.budget
}

// CacheKey returns the canonical cache key for a request.
func (c *Client) CacheKey(rawURL string, params url.Values) string {
	return respcache.Key(rawURL, params)
}

// Invalidate drops a single cached response.
func (c *Client) Invalidate(key string) {
	c.cache.Delete(key)
}

// PurgeCached evicts every cached response whose body matches one of
// the tokens. Used after block detection so retries are not served the
// challenge page from cache.
func (c *Client) PurgeCached(tokens []string) int {
	return c.cache.PurgeMatching(tokens)
}

// Get fetches a URL. The cache is consulted first; on a miss one
// budget slot is consumed per network attempt. Transient statuses
// (429, 5xx) and transport errors are retried with exponential backoff
// plus jitter; budget exhaustion surfaces as budget.ErrRequestLimit.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values, opts Options) (*Response, error) {
	key := respcache.Key(rawURL, params)
	if !opts.SkipCache {
		if entry, ok := c.cache.Get(key); ok {
			return &Response{
				Body:      entry.Body,
				Status:    entry.Status,
				FinalURL:  key,
				Headers:   entry.Headers,
				FromCache: true,
			}, nil
		}
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	requestURL := rawURL
	if len(params) > 0 {
		requestURL = rawURL + "?" + params.Encode()
	}

	var lastErr error
	for attempt := range maxAttempts {
		if err := c.budget.Consume(); err != nil {
			return nil, err
		}
		if opts.Delay {
			c.sleep(jitter())
		}

		resp, err := c.do(ctx, requestURL)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fetch cancelled: %w", ctx.Err())
			}
			c.log.Warn("request failed", "url", rawURL, "attempt", attempt+1, "error", err)
			c.backoff(attempt, maxAttempts)
			continue
		}

		if resp.Status == http.StatusTooManyRequests || resp.Status >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("%w: %d", ErrHTTPStatus, resp.Status)
			c.log.Warn("transient status", "url", rawURL, "status", resp.Status, "attempt", attempt+1)
			c.backoff(attempt, maxAttempts)
			continue
		}
		if resp.Status >= http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.Status)
		}

		if !opts.SkipStore {
			c.cache.Set(key, respcache.Entry{
				Body:    resp.Body,
				Status:  resp.Status,
				Headers: resp.Headers,
			})
		}
		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) do(ctx context.Context, requestURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	finalURL := requestURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		Body:     string(body),
		Status:   resp.StatusCode,
		FinalURL: finalURL,
		Headers:  headers,
	}, nil
}

// backoff sleeps 2^attempt seconds plus jitter, skipping the sleep
// after the final attempt.
func (c *Client) backoff(attempt, maxAttempts int) {
	if attempt >= maxAttempts-1 {
		return
	}
	base := time.Duration(1<<attempt) * time.Second
	c.sleep(base + time.Duration(rand.Int64N(int64(500*time.Millisecond))))
}

func jitter() time.Duration {
	return minJitter + time.Duration(rand.Int64N(int64(maxJitter-minJitter)))
}
