package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// ErrNoEvaluation is returned when a listing has not been scored yet.
var ErrNoEvaluation = errors.New("no evaluation for listing")

const evaluationColumns = `id, listing_id, resale_est_gbp, fee_pct, other_fees_gbp,
	shipping_out_gbp, buffer_gbp, expected_profit_gbp, roi, confidence,
	deal_score, decision, reasons, evaluated_at`

// EvaluationRepository handles database operations for scoring
// evaluations. Rows are append-only so the score history of a listing
// stays auditable.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository creates a new evaluation repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Insert appends an evaluation and returns the stored row.
func (r *EvaluationRepository) Insert(ctx context.Context, eval *domain.Evaluation) (*domain.Evaluation, error) {
	query := `
		INSERT INTO evaluations (listing_id, resale_est_gbp, fee_pct, other_fees_gbp,
			shipping_out_gbp, buffer_gbp, expected_profit_gbp, roi, confidence,
			deal_score, decision, reasons)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + evaluationColumns

	var stored domain.Evaluation
	err := r.db.GetContext(ctx, &stored, query,
		eval.ListingID, eval.ResaleEstGBP, eval.FeePct, eval.OtherFeesGBP,
		eval.ShippingOutGBP, eval.BufferGBP, eval.ExpectedProfitGBP,
		eval.ROI, eval.Confidence, eval.DealScore, eval.Decision, eval.Reasons)
	if err != nil {
		return nil, fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return &stored, nil
}

// Latest returns the most recent evaluation for a listing.
func (r *EvaluationRepository) Latest(ctx context.Context, listingID int64) (*domain.Evaluation, error) {
	var eval domain.Evaluation
	err := r.db.GetContext(ctx, &eval,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE listing_id = $1 ORDER BY evaluated_at DESC, id DESC LIMIT 1`,
		listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoEvaluation
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	return &eval, nil
}

// ListOpportunities returns the latest evaluation per listing joined
// with the listing and target, best deal score first. decisions
// narrows the result; empty means every decision.
func (r *EvaluationRepository) ListOpportunities(ctx context.Context, decisions []string, limit int) ([]domain.Opportunity, error) {
	query := `
		SELECT e.listing_id, l.external_id, t.name AS target_name, l.title, l.url,
			l.total_buy_gbp, e.resale_est_gbp, e.expected_profit_gbp, e.roi,
			e.confidence, e.deal_score, e.decision, e.reasons, e.evaluated_at
		FROM evaluations e
		JOIN listings l ON l.id = e.listing_id
		JOIN targets t ON t.id = l.target_id
		WHERE e.id = (
			SELECT id FROM evaluations
			WHERE listing_id = e.listing_id
			ORDER BY evaluated_at DESC, id DESC LIMIT 1
		)`
	args := []any{}
	if len(decisions) > 0 {
		query += ` AND e.decision = ANY($1)`
		args = append(args, pq.Array(decisions))
	}
	query += fmt.Sprintf(` ORDER BY e.deal_score DESC LIMIT %d`, limit)

	var opportunities []domain.Opportunity
	if err := r.db.SelectContext(ctx, &opportunities, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	return opportunities, nil
}
