package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Source attribute keys recorded on listings by the search layer.
const (
	// AttrShippingMissing marks a listing whose inbound shipping price
	// could not be determined from the source page.
	AttrShippingMissing = "shipping_missing"
	// AttrOriginMarketplace records the marketplace a listing was
	// actually fetched from, which differs from the target's primary
	// marketplace after a block-triggered fallback.
	AttrOriginMarketplace = "origin_marketplace"
	// AttrShippingType carries the source's explicit delivery method
	// field when one exists ("delivery", "collection only", ...).
	AttrShippingType = "shipping_type"
	// AttrFreeShipping marks listings the source flagged as shipped
	// for free.
	AttrFreeShipping = "free_shipping"
	// AttrDescription carries a classifieds body snippet used for
	// delivery-keyword checks.
	AttrDescription = "description"
)

// Attrs is an opaque source-attribute bag stored as JSONB. It
// implements sql.Scanner and driver.Valuer so listings round-trip
// through Postgres without manual marshalling.
type Attrs map[string]any

// Scan implements sql.Scanner.
func (a *Attrs) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.New("unsupported type for Attrs")
	}

	if len(data) == 0 {
		*a = Attrs{}
		return nil
	}
	return json.Unmarshal(data, a)
}

// Value implements driver.Valuer.
func (a Attrs) Value() (driver.Value, error) {
	if len(a) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

// Bool reads a boolean attribute, tolerating the JSON round-trip.
func (a Attrs) Bool(key string) bool {
	v, ok := a[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// String reads a string attribute, returning "" when absent.
func (a Attrs) String(key string) string {
	v, ok := a[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Listing is one observed for-sale offer on a marketplace. ExternalID
// is the marketplace-assigned identifier and the dedup key: upserts by
// ExternalID preserve FirstSeenAt and advance LastSeenAt plus all
// volatile fields.
type Listing struct {
	ID                  int64      `db:"id" json:"id"`
	ExternalID          string     `db:"external_id" json:"external_id"`
	TargetID            int64      `db:"target_id" json:"target_id"`
	Title               string     `db:"title" json:"title"`
	URL                 string     `db:"url" json:"url"`
	PriceGBP            float64    `db:"price_gbp" json:"price_gbp"`
	ShippingGBP         float64    `db:"shipping_gbp" json:"shipping_gbp"`
	TotalBuyGBP         float64    `db:"total_buy_gbp" json:"total_buy_gbp"`
	Condition           *string    `db:"condition" json:"condition,omitempty"`
	SellerFeedbackPct   *float64   `db:"seller_feedback_pct" json:"seller_feedback_pct,omitempty"`
	SellerFeedbackScore *int64     `db:"seller_feedback_score" json:"seller_feedback_score,omitempty"`
	ReturnsAccepted     *bool      `db:"returns_accepted" json:"returns_accepted,omitempty"`
	ListingType         *string    `db:"listing_type" json:"listing_type,omitempty"`
	StartTime           *time.Time `db:"start_time" json:"start_time,omitempty"`
	EndTime             *time.Time `db:"end_time" json:"end_time,omitempty"`
	Location            *string    `db:"location" json:"location,omitempty"`
	ImageURL            *string    `db:"image_url" json:"image_url,omitempty"`
	SourceAttrs         Attrs      `db:"source_attrs" json:"source_attrs,omitempty"`
	FirstSeenAt         time.Time  `db:"first_seen_at" json:"first_seen_at"`
	LastSeenAt          time.Time  `db:"last_seen_at" json:"last_seen_at"`
}

// RecomputeTotal sets TotalBuyGBP from price and shipping. The total
// is never trusted verbatim from a source.
func (l *Listing) RecomputeTotal() {
	l.TotalBuyGBP = l.PriceGBP + l.ShippingGBP
}

// SoldComp is a single historical sold price used as a resale
// comparable.
type SoldComp struct {
	PriceGBP float64 `json:"price_gbp"`
	Title    string  `json:"title"`
	URL      string  `json:"url,omitempty"`
}
