// Package domain provides the data model shared across the scan pipeline.
package domain

import (
	"strings"
	"time"
)

// ListingTypeAny matches every listing type and disables the
// listing-type search filter.
const ListingTypeAny = "any"

// Target is a saved search definition driving one crawl per cycle.
// Targets are created by configuration or seeding and are read-only
// during a scan.
type Target struct {
	ID             int64     `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Query          string    `db:"query" json:"query"`
	CategoryID     *string   `db:"category_id" json:"category_id,omitempty"`
	Condition      *string   `db:"condition" json:"condition,omitempty"`
	MaxBuyGBP      *float64  `db:"max_buy_gbp" json:"max_buy_gbp,omitempty"`
	MaxShippingGBP *float64  `db:"max_shipping_gbp" json:"max_shipping_gbp,omitempty"`
	ListingType    string    `db:"listing_type" json:"listing_type"`
	Country        string    `db:"country" json:"country"`
	Enabled        bool      `db:"enabled" json:"enabled"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// EffectiveQuery returns the search text for the target, falling back
// to the target name when the query is blank. An empty return value
// means the target cannot be scanned.
func (t *Target) EffectiveQuery() string {
	if q := strings.TrimSpace(t.Query); q != "" {
		return q
	}
	return strings.TrimSpace(t.Name)
}
