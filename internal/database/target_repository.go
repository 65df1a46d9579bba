package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// ErrTargetNotFound is returned when a lookup matches no target.
// Callers should check with errors.Is().
var ErrTargetNotFound = errors.New("target not found")

const targetColumns = `id, name, query, category_id, condition, max_buy_gbp,
	max_shipping_gbp, listing_type, country, enabled, created_at`

// TargetRepository handles database operations for saved search
// targets.
type TargetRepository struct {
	db *sqlx.DB
}

// NewTargetRepository creates a new target repository.
func NewTargetRepository(db *sqlx.DB) *TargetRepository {
	return &TargetRepository{db: db}
}

// Upsert inserts a target by name or updates its search definition,
// returning the stored row.
func (r *TargetRepository) Upsert(ctx context.Context, target *domain.Target) (*domain.Target, error) {
	query := `
		INSERT INTO targets (name, query, category_id, condition, max_buy_gbp, max_shipping_gbp, listing_type, country, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE SET
			query = EXCLUDED.query,
			category_id = EXCLUDED.category_id,
			condition = EXCLUDED.condition,
			max_buy_gbp = EXCLUDED.max_buy_gbp,
			max_shipping_gbp = EXCLUDED.max_shipping_gbp,
			listing_type = EXCLUDED.listing_type,
			country = EXCLUDED.country,
			enabled = EXCLUDED.enabled
		RETURNING ` + targetColumns

	var stored domain.Target
	err := r.db.GetContext(ctx, &stored, query,
		target.Name, target.Query, target.CategoryID, target.Condition,
		target.MaxBuyGBP, target.MaxShippingGBP, target.ListingType,
		target.Country, target.Enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert target: %w", err)
	}
	return &stored, nil
}

// GetByName fetches one target by its unique name.
func (r *TargetRepository) GetByName(ctx context.Context, name string) (*domain.Target, error) {
	var target domain.Target
	err := r.db.GetContext(ctx, &target,
		`SELECT `+targetColumns+` FROM targets WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return &target, nil
}

// ListEnabled returns every enabled target, oldest first, for a scan
// cycle.
func (r *TargetRepository) ListEnabled(ctx context.Context) ([]domain.Target, error) {
	var targets []domain.Target
	err := r.db.SelectContext(ctx, &targets,
		`SELECT `+targetColumns+` FROM targets WHERE enabled ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled targets: %w", err)
	}
	return targets, nil
}

// ListAll returns every target regardless of enabled state.
func (r *TargetRepository) ListAll(ctx context.Context) ([]domain.Target, error) {
	var targets []domain.Target
	err := r.db.SelectContext(ctx, &targets,
		`SELECT `+targetColumns+` FROM targets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	return targets, nil
}

// SetEnabled flips a target's enabled flag by name.
func (r *TargetRepository) SetEnabled(ctx context.Context, name string, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE targets SET enabled = $2 WHERE name = $1`, name, enabled)
	if err != nil {
		return fmt.Errorf("failed to update target %q: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTargetNotFound
	}
	return nil
}
