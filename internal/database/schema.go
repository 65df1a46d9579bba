package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied idempotently at startup. Evaluations and comp
// snapshots are append-only; listings are upserted by external id.
const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL UNIQUE,
	query            TEXT NOT NULL DEFAULT '',
	category_id      TEXT,
	condition        TEXT,
	max_buy_gbp      DOUBLE PRECISION,
	max_shipping_gbp DOUBLE PRECISION,
	listing_type     TEXT NOT NULL DEFAULT 'any',
	country          TEXT NOT NULL DEFAULT 'GB',
	enabled          BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS listings (
	id                    BIGSERIAL PRIMARY KEY,
	external_id           TEXT NOT NULL UNIQUE,
	target_id             BIGINT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	title                 TEXT NOT NULL,
	url                   TEXT NOT NULL,
	price_gbp             DOUBLE PRECISION NOT NULL,
	shipping_gbp          DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_buy_gbp         DOUBLE PRECISION NOT NULL,
	condition             TEXT,
	seller_feedback_pct   DOUBLE PRECISION,
	seller_feedback_score BIGINT,
	returns_accepted      BOOLEAN,
	listing_type          TEXT,
	start_time            TIMESTAMPTZ,
	end_time              TIMESTAMPTZ,
	location              TEXT,
	image_url             TEXT,
	source_attrs          JSONB NOT NULL DEFAULT '{}',
	first_seen_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_seen_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_listings_target ON listings(target_id);

CREATE TABLE IF NOT EXISTS comp_snapshots (
	id              BIGSERIAL PRIMARY KEY,
	listing_id      BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	comp_query      TEXT NOT NULL,
	sold_count      INTEGER NOT NULL,
	median_sold_gbp DOUBLE PRECISION,
	p25_sold_gbp    DOUBLE PRECISION,
	p75_sold_gbp    DOUBLE PRECISION,
	spread_gbp      DOUBLE PRECISION,
	computed_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_comp_snapshots_listing ON comp_snapshots(listing_id, computed_at DESC);

CREATE TABLE IF NOT EXISTS evaluations (
	id                  BIGSERIAL PRIMARY KEY,
	listing_id          BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	resale_est_gbp      DOUBLE PRECISION NOT NULL,
	fee_pct             DOUBLE PRECISION NOT NULL,
	other_fees_gbp      DOUBLE PRECISION NOT NULL DEFAULT 0,
	shipping_out_gbp    DOUBLE PRECISION NOT NULL,
	buffer_gbp          DOUBLE PRECISION NOT NULL,
	expected_profit_gbp DOUBLE PRECISION NOT NULL,
	roi                 DOUBLE PRECISION NOT NULL,
	confidence          DOUBLE PRECISION NOT NULL,
	deal_score          DOUBLE PRECISION NOT NULL,
	decision            TEXT NOT NULL,
	reasons             JSONB NOT NULL DEFAULT '[]',
	evaluated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_evaluations_listing ON evaluations(listing_id, evaluated_at DESC);
CREATE INDEX IF NOT EXISTS idx_evaluations_decision ON evaluations(decision);

CREATE TABLE IF NOT EXISTS alert_log (
	listing_id BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
	channel    TEXT NOT NULL,
	sent_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (listing_id, channel)
);
`

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
