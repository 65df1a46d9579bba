// Package fx converts marketplace prices into GBP, preferring cached
// live rates with a deterministic static fallback.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
)

const (
	rateEndpoint   = "https://open.er-api.com/v6/latest/%s"
	requestTimeout = 6 * time.Second
	minCacheTTL    = 10 * time.Minute
)

type cachedRate struct {
	rate      float64
	expiresAt time.Time
}

// Converter resolves exchange rates with a per-pair TTL cache. When
// live lookup is disabled or fails, a static table anchored on the
// configured USD->GBP rate keeps conversion deterministic.
type Converter struct {
	fallbackGBPRate float64
	enabled         bool
	cacheTTL        time.Duration
	httpClient      *http.Client
	log             logger.Interface

	mu    sync.Mutex
	cache map[string]cachedRate
	now   func() time.Time
}

// New creates a converter. fallbackGBPRate is the static USD->GBP
// anchor; enabled toggles live lookups.
func New(fallbackGBPRate float64, enabled bool, cacheTTL time.Duration, log logger.Interface) *Converter {
	if cacheTTL < minCacheTTL {
		cacheTTL = minCacheTTL
	}
	return &Converter{
		fallbackGBPRate: fallbackGBPRate,
		enabled:         enabled,
		cacheTTL:        cacheTTL,
		httpClient:      &http.Client{Timeout: requestTimeout},
		log:             log,
		cache:           make(map[string]cachedRate),
		now:             time.Now,
	}
}

// ToGBP converts an amount from the given currency into GBP.
func (c *Converter) ToGBP(ctx context.Context, amount float64, currency string) float64 {
	if currency == "" || strings.EqualFold(currency, "GBP") {
		return amount
	}
	return amount * c.Rate(ctx, currency, "GBP")
}

// Rate returns the conversion rate from src to dst.
func (c *Converter) Rate(ctx context.Context, src, dst string) float64 {
	src = strings.ToUpper(strings.TrimSpace(src))
	dst = strings.ToUpper(strings.TrimSpace(dst))
	if src == "" || dst == "" || src == dst {
		return 1.0
	}

	key := src + "/" + dst
	c.mu.Lock()
	cached, ok := c.cache[key]
	now := c.now()
	c.mu.Unlock()
	if ok && cached.expiresAt.After(now) {
		return cached.rate
	}

	rate := 0.0
	if c.enabled {
		live, err := c.fetchRate(ctx, src, dst)
		if err != nil {
			c.log.Warn("live fx lookup failed, using static fallback", "pair", key, "error", err)
		} else {
			rate = live
		}
	}
	if rate == 0 {
		rate = c.fallbackRate(src, dst)
	}

	c.mu.Lock()
	c.cache[key] = cachedRate{rate: rate, expiresAt: now.Add(c.cacheTTL)}
	c.mu.Unlock()
	return rate
}

func (c *Converter) fetchRate(ctx context.Context, src, dst string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(rateEndpoint, src), http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to build fx request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fx request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fx request returned status %d", resp.StatusCode)
	}

	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr != nil {
		return 0, fmt.Errorf("failed to decode fx response: %w", decodeErr)
	}

	rate, ok := payload.Rates[dst]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no rate for %s", dst)
	}
	return rate, nil
}

// fallbackRate derives conservative static rates from the configured
// USD->GBP anchor. Unknown pairs convert at identity rather than
// failing the scan.
func (c *Converter) fallbackRate(src, dst string) float64 {
	if src == "GBP" && dst != "GBP" {
		inv := c.fallbackRate(dst, "GBP")
		if inv > 0 {
			return 1.0 / inv
		}
		return 1.0
	}

	switch {
	case src == "USD" && dst == "GBP":
		return c.fallbackGBPRate
	case src == "EUR" && dst == "GBP":
		return clamp(c.fallbackGBPRate*1.10, 0.5, 1.2)
	case src == "JPY" && dst == "GBP":
		return clamp(c.fallbackGBPRate/110.0, 0.003, 0.02)
	default:
		return 1.0
	}
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
