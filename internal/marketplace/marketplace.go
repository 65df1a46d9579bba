// Package marketplace defines the per-marketplace search backends and
// the registry the search layer selects them from.
package marketplace

import (
	"context"
	"fmt"
	"strings"

	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
	"github.com/ishaqmohammed8765-png/flipscan/internal/fetch"
	"github.com/ishaqmohammed8765-png/flipscan/internal/fx"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
)

// Criteria is one concrete search request. The retry ladder produces
// progressively relaxed copies of the initial criteria.
type Criteria struct {
	Query          string
	CategoryID     *string
	Condition      *string
	ListingType    string
	MaxBuyGBP      *float64
	MaxShippingGBP *float64
	Limit          int
}

// FromTarget builds the initial criteria for a target.
func FromTarget(t *domain.Target, limit int) Criteria {
	return Criteria{
		Query:          t.EffectiveQuery(),
		CategoryID:     t.CategoryID,
		Condition:      t.Condition,
		ListingType:    t.ListingType,
		MaxBuyGBP:      t.MaxBuyGBP,
		MaxShippingGBP: t.MaxShippingGBP,
		Limit:          limit,
	}
}

// Backend searches one marketplace through one transport (structured
// API or HTML scraping). Unparseable responses yield zero listings,
// not an error; anti-bot interference yields a *BlockedError.
type Backend interface {
	// Name returns the marketplace identifier, e.g. "ebay".
	Name() string
	// SearchActive returns live listings matching the criteria.
	SearchActive(ctx context.Context, criteria Criteria) ([]domain.Listing, error)
	// SearchSold returns recently sold comparables for the query.
	SearchSold(ctx context.Context, query string, limit int) ([]domain.SoldComp, error)
}

// BlockedError reports anti-bot interference on a marketplace. It is
// never retried against the same marketplace within an attempt.
type BlockedError struct {
	Marketplace string
	Reason      string
	URL         string
	Snippet     string
	// CacheKey identifies the cached copy of the blocked response so
	// the caller can evict it before any retry.
	CacheKey string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("marketplace %s blocked the request: %s", e.Marketplace, e.Reason)
}

// ErrUnknownMarketplace is returned when a configured marketplace name
// has no registered backend.
var ErrUnknownMarketplace = fmt.Errorf("unknown marketplace")

// Registry holds the available backends per marketplace, ordered by
// preference (structured API before HTML scraping).
type Registry struct {
	backends map[string][]Backend
	order    []string
}

// NewRegistry builds the registry from configuration. The eBay API
// backend is registered only when an application ID is configured.
func NewRegistry(settings *config.Settings, client *fetch.Client, converter *fx.Converter, log logger.Interface) *Registry {
	r := &Registry{backends: make(map[string][]Backend)}

	if settings.Marketplaces.EbayAppID != "" {
		r.register(NewEbayAPI(settings, client, converter, log))
	}
	r.register(NewEbayHTML(settings, client, converter, log))
	r.register(NewGumtree(settings, client, converter, log))
	return r
}

func (r *Registry) register(b Backend) {
	name := strings.ToLower(b.Name())
	if _, seen := r.backends[name]; !seen {
		r.order = append(r.order, name)
	}
	r.backends[name] = append(r.backends[name], b)
}

// Backends returns the backends for a marketplace in preference order.
func (r *Registry) Backends(name string) ([]Backend, error) {
	list, ok := r.backends[strings.ToLower(name)]
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarketplace, name)
	}
	return list, nil
}

// Names lists the registered marketplaces in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// convertGBP normalizes an amount into GBP under the currency policy.
// The second return is false when the currency is not acceptable and
// the listing should be skipped.
func convertGBP(ctx context.Context, settings *config.Settings, converter *fx.Converter, amount float64, currency string) (float64, bool) {
	if currency == "" || strings.EqualFold(currency, "GBP") {
		return amount, true
	}
	if !settings.CurrencyAllowed(currency) && !settings.AllowNonGBP {
		return 0, false
	}
	return converter.ToGBP(ctx, amount, currency), true
}
