package database

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// TargetStore is the persistence surface for saved search targets.
type TargetStore interface {
	Upsert(ctx context.Context, target *domain.Target) (*domain.Target, error)
	GetByName(ctx context.Context, name string) (*domain.Target, error)
	ListEnabled(ctx context.Context) ([]domain.Target, error)
	ListAll(ctx context.Context) ([]domain.Target, error)
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

// ListingStore is the persistence surface for crawled listings.
type ListingStore interface {
	Upsert(ctx context.Context, listing *domain.Listing) (stored *domain.Listing, isNew bool, err error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Listing, error)
	ListByTarget(ctx context.Context, targetID int64, limit int) ([]domain.Listing, error)
}

// CompStore is the persistence surface for comp snapshots.
type CompStore interface {
	Insert(ctx context.Context, stats *domain.CompStats) (*domain.CompStats, error)
	Latest(ctx context.Context, listingID int64) (*domain.CompStats, error)
}

// EvaluationStore is the persistence surface for evaluations.
type EvaluationStore interface {
	Insert(ctx context.Context, eval *domain.Evaluation) (*domain.Evaluation, error)
	Latest(ctx context.Context, listingID int64) (*domain.Evaluation, error)
	ListOpportunities(ctx context.Context, decisions []string, limit int) ([]domain.Opportunity, error)
}

// AlertStore is the persistence surface for the at-most-once alert
// log.
type AlertStore interface {
	WasSent(ctx context.Context, listingID int64, channel string) (bool, error)
	MarkSent(ctx context.Context, listingID int64, channel string) (claimed bool, err error)
	History(ctx context.Context, listingID int64) ([]domain.AlertRecord, error)
}

// Store bundles the repositories behind one handle.
type Store struct {
	Targets     TargetStore
	Listings    ListingStore
	Comps       CompStore
	Evaluations EvaluationStore
	Alerts      AlertStore
}

// NewStore wires the PostgreSQL repositories.
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		Targets:     NewTargetRepository(db),
		Listings:    NewListingRepository(db),
		Comps:       NewCompRepository(db),
		Evaluations: NewEvaluationRepository(db),
		Alerts:      NewAlertRepository(db),
	}
}
