package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// AlertRepository handles the at-most-once alert log. A (listing,
// channel) pair that is present was alerted once and never will be
// again.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new alert log repository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// WasSent reports whether an alert was already recorded for the
// listing on the channel.
func (r *AlertRepository) WasSent(ctx context.Context, listingID int64, channel string) (bool, error) {
	var sent bool
	err := r.db.GetContext(ctx, &sent,
		`SELECT EXISTS (SELECT 1 FROM alert_log WHERE listing_id = $1 AND channel = $2)`,
		listingID, channel)
	if err != nil {
		return false, fmt.Errorf("failed to check alert log: %w", err)
	}
	return sent, nil
}

// MarkSent records an alert. claimed=false means another writer got
// there first, so the caller must not send.
func (r *AlertRepository) MarkSent(ctx context.Context, listingID int64, channel string) (claimed bool, err error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO alert_log (listing_id, channel) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		listingID, channel)
	if err != nil {
		return false, fmt.Errorf("failed to record alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read alert insert result: %w", err)
	}
	return n > 0, nil
}

// History lists recorded alerts for a listing.
func (r *AlertRepository) History(ctx context.Context, listingID int64) ([]domain.AlertRecord, error) {
	var records []domain.AlertRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT listing_id, channel, sent_at FROM alert_log WHERE listing_id = $1 ORDER BY sent_at`,
		listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	return records, nil
}
