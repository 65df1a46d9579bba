package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Decision outcomes produced by the scoring engine.
const (
	DecisionDeal   = "deal"
	DecisionMaybe  = "maybe"
	DecisionIgnore = "ignore"
)

// CompStats is a point-in-time summary of sold comparables for one
// listing. Multiple snapshots may exist per listing; the latest by
// ComputedAt wins, and a snapshot is only refreshed once older than
// the configured TTL.
type CompStats struct {
	ID         int64     `db:"id" json:"id"`
	ListingID  int64     `db:"listing_id" json:"listing_id"`
	CompQuery  string    `db:"comp_query" json:"comp_query"`
	SoldCount  int       `db:"sold_count" json:"sold_count"`
	MedianGBP  *float64  `db:"median_sold_gbp" json:"median_sold_gbp,omitempty"`
	P25GBP     *float64  `db:"p25_sold_gbp" json:"p25_sold_gbp,omitempty"`
	P75GBP     *float64  `db:"p75_sold_gbp" json:"p75_sold_gbp,omitempty"`
	SpreadGBP  *float64  `db:"spread_gbp" json:"spread_gbp,omitempty"`
	ComputedAt time.Time `db:"computed_at" json:"computed_at"`
}

// StalerThan reports whether the snapshot is older than ttl.
func (c *CompStats) StalerThan(ttl time.Duration, now time.Time) bool {
	return now.Sub(c.ComputedAt) >= ttl
}

// Reasons is a JSON-encoded list of human-readable scoring notes.
type Reasons []string

// Scan implements sql.Scanner.
func (r *Reasons) Scan(value any) error {
	if value == nil {
		*r = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.New("unsupported type for Reasons")
	}

	if len(data) == 0 {
		*r = Reasons{}
		return nil
	}
	return json.Unmarshal(data, r)
}

// Value implements driver.Valuer.
func (r Reasons) Value() (driver.Value, error) {
	if len(r) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

// Evaluation is one append-only scoring pass over a listing. Rows are
// never mutated; the latest by EvaluatedAt is the current view.
type Evaluation struct {
	ID                int64     `db:"id" json:"id"`
	ListingID         int64     `db:"listing_id" json:"listing_id"`
	ResaleEstGBP      float64   `db:"resale_est_gbp" json:"resale_est_gbp"`
	FeePct            float64   `db:"fee_pct" json:"fee_pct"`
	OtherFeesGBP      float64   `db:"other_fees_gbp" json:"other_fees_gbp"`
	ShippingOutGBP    float64   `db:"shipping_out_gbp" json:"shipping_out_gbp"`
	BufferGBP         float64   `db:"buffer_gbp" json:"buffer_gbp"`
	ExpectedProfitGBP float64   `db:"expected_profit_gbp" json:"expected_profit_gbp"`
	ROI               float64   `db:"roi" json:"roi"`
	Confidence        float64   `db:"confidence" json:"confidence"`
	DealScore         float64   `db:"deal_score" json:"deal_score"`
	Decision          string    `db:"decision" json:"decision"`
	Reasons           Reasons   `db:"reasons" json:"reasons"`
	EvaluatedAt       time.Time `db:"evaluated_at" json:"evaluated_at"`
}

// Actionable reports whether the decision should reach the alert
// collaborator.
func (e *Evaluation) Actionable() bool {
	return e.Decision == DecisionDeal || e.Decision == DecisionMaybe
}

// AlertRecord is one row of the at-most-once alert log. The
// (listing_id, channel) pair is unique across all scan cycles.
type AlertRecord struct {
	ListingID int64     `db:"listing_id" json:"listing_id"`
	Channel   string    `db:"channel" json:"channel"`
	SentAt    time.Time `db:"sent_at" json:"sent_at"`
}

// Opportunity is an evaluation joined with its listing, projected for
// reporting and alerting.
type Opportunity struct {
	ListingID         int64     `db:"listing_id" json:"listing_id"`
	ExternalID        string    `db:"external_id" json:"external_id"`
	TargetName        string    `db:"target_name" json:"target_name"`
	Title             string    `db:"title" json:"title"`
	URL               string    `db:"url" json:"url"`
	TotalBuyGBP       float64   `db:"total_buy_gbp" json:"total_buy_gbp"`
	ResaleEstGBP      float64   `db:"resale_est_gbp" json:"resale_est_gbp"`
	ExpectedProfitGBP float64   `db:"expected_profit_gbp" json:"expected_profit_gbp"`
	ROI               float64   `db:"roi" json:"roi"`
	Confidence        float64   `db:"confidence" json:"confidence"`
	DealScore         float64   `db:"deal_score" json:"deal_score"`
	Decision          string    `db:"decision" json:"decision"`
	Reasons           Reasons   `db:"reasons" json:"reasons"`
	EvaluatedAt       time.Time `db:"evaluated_at" json:"evaluated_at"`
}
