package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// ErrListingNotFound is returned when a lookup matches no listing.
var ErrListingNotFound = errors.New("listing not found")

const listingColumns = `id, external_id, target_id, title, url, price_gbp, shipping_gbp,
	total_buy_gbp, condition, seller_feedback_pct, seller_feedback_score,
	returns_accepted, listing_type, start_time, end_time, location, image_url,
	source_attrs, first_seen_at, last_seen_at`

// ListingRepository handles database operations for crawled listings.
type ListingRepository struct {
	db *sqlx.DB
}

// NewListingRepository creates a new listing repository.
func NewListingRepository(db *sqlx.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Upsert stores a listing deduplicated by external id. A conflicting
// row keeps its first_seen_at and id; everything else reflects the
// latest crawl. isNew reports whether the listing was seen for the
// first time.
func (r *ListingRepository) Upsert(ctx context.Context, listing *domain.Listing) (stored *domain.Listing, isNew bool, err error) {
	query := `
		INSERT INTO listings (external_id, target_id, title, url, price_gbp, shipping_gbp,
			total_buy_gbp, condition, seller_feedback_pct, seller_feedback_score,
			returns_accepted, listing_type, start_time, end_time, location, image_url, source_attrs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (external_id) DO UPDATE SET
			target_id = EXCLUDED.target_id,
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			price_gbp = EXCLUDED.price_gbp,
			shipping_gbp = EXCLUDED.shipping_gbp,
			total_buy_gbp = EXCLUDED.total_buy_gbp,
			condition = EXCLUDED.condition,
			seller_feedback_pct = EXCLUDED.seller_feedback_pct,
			seller_feedback_score = EXCLUDED.seller_feedback_score,
			returns_accepted = EXCLUDED.returns_accepted,
			listing_type = EXCLUDED.listing_type,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			location = EXCLUDED.location,
			image_url = EXCLUDED.image_url,
			source_attrs = EXCLUDED.source_attrs,
			last_seen_at = NOW()
		RETURNING ` + listingColumns + `, (first_seen_at = last_seen_at) AS is_new`

	row := struct {
		domain.Listing
		IsNew bool `db:"is_new"`
	}{}
	err = r.db.GetContext(ctx, &row, query,
		listing.ExternalID, listing.TargetID, listing.Title, listing.URL,
		listing.PriceGBP, listing.ShippingGBP, listing.TotalBuyGBP,
		listing.Condition, listing.SellerFeedbackPct, listing.SellerFeedbackScore,
		listing.ReturnsAccepted, listing.ListingType, listing.StartTime,
		listing.EndTime, listing.Location, listing.ImageURL, listing.SourceAttrs)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert listing: %w", err)
	}
	return &row.Listing, row.IsNew, nil
}

// GetByExternalID fetches one listing by its marketplace-scoped id.
func (r *ListingRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Listing, error) {
	var listing domain.Listing
	err := r.db.GetContext(ctx, &listing,
		`SELECT `+listingColumns+` FROM listings WHERE external_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// ListByTarget returns a target's listings, most recently seen first.
func (r *ListingRepository) ListByTarget(ctx context.Context, targetID int64, limit int) ([]domain.Listing, error) {
	var listings []domain.Listing
	err := r.db.SelectContext(ctx, &listings,
		`SELECT `+listingColumns+` FROM listings WHERE target_id = $1 ORDER BY last_seen_at DESC LIMIT $2`,
		targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}
