package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// ErrNoCompSnapshot is returned when a listing has no stored comp
// snapshot yet.
var ErrNoCompSnapshot = errors.New("no comp snapshot for listing")

const compColumns = `id, listing_id, comp_query, sold_count, median_sold_gbp,
	p25_sold_gbp, p75_sold_gbp, spread_gbp, computed_at`

// CompRepository handles database operations for comp snapshots.
// Snapshots are append-only; the latest by computed_at is current.
type CompRepository struct {
	db *sqlx.DB
}

// NewCompRepository creates a new comp snapshot repository.
func NewCompRepository(db *sqlx.DB) *CompRepository {
	return &CompRepository{db: db}
}

// Insert appends a snapshot and returns the stored row.
func (r *CompRepository) Insert(ctx context.Context, stats *domain.CompStats) (*domain.CompStats, error) {
	query := `
		INSERT INTO comp_snapshots (listing_id, comp_query, sold_count, median_sold_gbp, p25_sold_gbp, p75_sold_gbp, spread_gbp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + compColumns

	var stored domain.CompStats
	err := r.db.GetContext(ctx, &stored, query,
		stats.ListingID, stats.CompQuery, stats.SoldCount,
		stats.MedianGBP, stats.P25GBP, stats.P75GBP, stats.SpreadGBP)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comp snapshot: %w", err)
	}
	return &stored, nil
}

// Latest returns the most recent snapshot for a listing.
func (r *CompRepository) Latest(ctx context.Context, listingID int64) (*domain.CompStats, error) {
	var stats domain.CompStats
	err := r.db.GetContext(ctx, &stats,
		`SELECT `+compColumns+` FROM comp_snapshots WHERE listing_id = $1 ORDER BY computed_at DESC, id DESC LIMIT 1`,
		listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCompSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comp snapshot: %w", err)
	}
	return &stats, nil
}
