// Package search drives per-marketplace listing searches with retry
// relaxation, block-triggered marketplace fallback, and filtering.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ishaqmohammed8765-png/flipscan/internal/budget"
	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
	"github.com/ishaqmohammed8765-png/flipscan/internal/filter"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
	"github.com/ishaqmohammed8765-png/flipscan/internal/marketplace"
)

// Result status values.
const (
	StatusOK      = "ok"
	StatusBlocked = "blocked"
	StatusEmpty   = "empty"
)

// ActiveProxyPrefix marks a comp query answered by sampling active
// listing prices instead of sold history.
const ActiveProxyPrefix = "active-proxy:"

// BlockedInfo describes detected anti-bot interference.
type BlockedInfo struct {
	Marketplace string `json:"marketplace"`
	Reason      string `json:"reason"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet,omitempty"`
}

// Result is the outcome of one active-listing search.
type Result struct {
	Listings      []domain.Listing
	RawCount      int
	FilteredCount int
	Status        string
	Blocked       *BlockedInfo
	// RetryReport lists the ladder step labels attempted, in order,
	// prefixed with the marketplace when fallback was involved.
	RetryReport []string
	// Rejections is the filter's rejection histogram.
	Rejections map[string]int
}

// search states. The crawl loop is an explicit machine so the
// retry/fallback/budget interactions stay auditable.
type state int

const (
	stateInitial state = iota
	stateRetrying
	stateBlocked
	stateFallback
	stateExhausted
	stateDone
)

// BackendDirectory resolves a marketplace name to its backends in
// preference order. *marketplace.Registry satisfies it.
type BackendDirectory interface {
	Backends(name string) ([]marketplace.Backend, error)
}

// Client searches marketplaces for a target. One client serves a whole
// scan cycle; budget and cache sharing happen in the fetch layer
// below the marketplace backends.
type Client struct {
	registry BackendDirectory
	filter   *filter.Filter
	settings *config.Settings
	log      logger.Interface
}

func NewClient(registry BackendDirectory, f *filter.Filter, settings *config.Settings, log logger.Interface) *Client {
	return &Client{
		registry: registry,
		filter:   f,
		settings: settings,
		log:      log.WithComponent("search"),
	}
}

// SearchActive crawls the buy marketplace for the target, walking the
// retry ladder on empty results and falling back to the configured
// fallback marketplace when blocked. A budget.ErrRequestLimit error is
// the cooperative stop signal; any other error is a failed target.
func (c *Client) SearchActive(ctx context.Context, target *domain.Target) (*Result, error) {
	initial := marketplace.FromTarget(target, c.settings.ScanLimitPerTarget)
	res := &Result{Status: StatusEmpty}

	marketName := c.settings.Marketplaces.Buy
	ladder := Ladder(initial)
	onFallback := false
	stepIdx := 0
	var raw []domain.Listing

	st := stateInitial
	for {
		switch st {
		case stateInitial, stateRetrying:
			if stepIdx >= len(ladder) {
				st = stateExhausted
				continue
			}
			step := ladder[stepIdx]
			res.RetryReport = append(res.RetryReport, stepLabel(step.Label, marketName, onFallback))

			listings, blocked, err := c.searchMarketplace(ctx, marketName, step.Criteria)
			switch {
			case errors.Is(err, budget.ErrRequestLimit):
				return res, err
			case err != nil:
				return res, fmt.Errorf("search on %s failed: %w", marketName, err)
			case blocked != nil:
				res.Blocked = blocked
				st = stateBlocked
			case len(listings) > 0:
				raw = listings
				st = stateDone
			default:
				stepIdx++
				st = stateRetrying
			}

		case stateBlocked:
			fallback := c.settings.Marketplaces.Fallback
			if onFallback || fallback == "" || strings.EqualFold(fallback, marketName) {
				res.Status = StatusBlocked
				return res, nil
			}
			st = stateFallback

		case stateFallback:
			c.log.Warn("marketplace blocked, switching to fallback",
				"blocked", marketName,
				"fallback", c.settings.Marketplaces.Fallback,
				"reason", res.Blocked.Reason)
			marketName = c.settings.Marketplaces.Fallback
			onFallback = true
			ladder = Ladder(initial)
			stepIdx = 0
			st = stateInitial

		case stateExhausted:
			res.Status = StatusEmpty
			return res, nil

		case stateDone:
			outcome := c.filter.Apply(raw, target)
			res.RawCount = len(raw)
			res.Listings = outcome.Kept
			res.FilteredCount = len(outcome.Kept)
			res.Rejections = outcome.Rejections
			if len(outcome.Kept) == 0 {
				res.Status = StatusEmpty
			} else {
				res.Status = StatusOK
			}
			return res, nil
		}
	}
}

// searchMarketplace tries the marketplace's backends in preference
// order. A blocked verdict ends the whole marketplace; transient
// failures fall through to the next backend.
func (c *Client) searchMarketplace(ctx context.Context, name string, criteria marketplace.Criteria) ([]domain.Listing, *BlockedInfo, error) {
	backends, err := c.registry.Backends(name)
	if err != nil {
		return nil, nil, err
	}

	var lastErr error
	for _, backend := range backends {
		listings, searchErr := backend.SearchActive(ctx, criteria)
		if searchErr == nil {
			return listings, nil, nil
		}
		if errors.Is(searchErr, budget.ErrRequestLimit) {
			return nil, nil, searchErr
		}
		var blocked *marketplace.BlockedError
		if errors.As(searchErr, &blocked) {
			return nil, &BlockedInfo{
				Marketplace: blocked.Marketplace,
				Reason:      blocked.Reason,
				URL:         blocked.URL,
				Snippet:     blocked.Snippet,
			}, nil
		}
		c.log.Warn("backend search failed, trying next backend",
			"marketplace", name, "error", searchErr)
		lastErr = searchErr
	}
	return nil, nil, lastErr
}

// SearchSoldComps aggregates sold comparables across every configured
// sell marketplace. Individual marketplace failures are swallowed.
// When no marketplace has sold history, active listing prices from the
// active-proxy marketplace stand in and proxied=true is reported so
// callers can record the lower-confidence provenance.
func (c *Client) SearchSoldComps(ctx context.Context, query string) (comps []domain.SoldComp, proxied bool, err error) {
	limit := c.settings.CompsLimit
	for _, name := range c.settings.Marketplaces.Sell {
		found, searchErr := c.soldFromMarketplace(ctx, name, query, limit-len(comps))
		if errors.Is(searchErr, budget.ErrRequestLimit) {
			return comps, false, searchErr
		}
		if searchErr != nil {
			c.log.Warn("sold comp search failed", "marketplace", name, "error", searchErr)
			continue
		}
		comps = append(comps, found...)
		if len(comps) >= limit {
			return comps[:limit], false, nil
		}
	}
	if len(comps) > 0 {
		return comps, false, nil
	}

	proxy := c.settings.Marketplaces.ActiveProxy
	if proxy == "" {
		return nil, false, nil
	}
	active, _, proxyErr := c.searchMarketplace(ctx, proxy, marketplace.Criteria{Query: query, Limit: limit})
	if proxyErr != nil {
		if errors.Is(proxyErr, budget.ErrRequestLimit) {
			return nil, false, proxyErr
		}
		c.log.Warn("active-proxy comp search failed", "marketplace", proxy, "error", proxyErr)
		return nil, false, nil
	}
	for _, listing := range active {
		comps = append(comps, domain.SoldComp{
			PriceGBP: listing.TotalBuyGBP,
			Title:    listing.Title,
			URL:      listing.URL,
		})
	}
	return comps, len(comps) > 0, nil
}

func (c *Client) soldFromMarketplace(ctx context.Context, name, query string, limit int) ([]domain.SoldComp, error) {
	backends, err := c.registry.Backends(name)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, backend := range backends {
		comps, searchErr := backend.SearchSold(ctx, query, limit)
		if searchErr == nil {
			return comps, nil
		}
		if errors.Is(searchErr, budget.ErrRequestLimit) {
			return nil, searchErr
		}
		lastErr = searchErr
	}
	return nil, lastErr
}

func stepLabel(label, marketName string, onFallback bool) string {
	if !onFallback {
		return label
	}
	return marketName + ": " + label
}
