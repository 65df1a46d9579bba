package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishaqmohammed8765-png/flipscan/internal/alert"
	"github.com/ishaqmohammed8765-png/flipscan/internal/budget"
	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/database"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
	"github.com/ishaqmohammed8765-png/flipscan/internal/scoring"
	"github.com/ishaqmohammed8765-png/flipscan/internal/search"
)

type fakeTargetStore struct {
	targets []domain.Target
}

func (s *fakeTargetStore) Upsert(_ context.Context, t *domain.Target) (*domain.Target, error) {
	return t, nil
}

func (s *fakeTargetStore) GetByName(context.Context, string) (*domain.Target, error) {
	return nil, database.ErrTargetNotFound
}

func (s *fakeTargetStore) ListEnabled(context.Context) ([]domain.Target, error) {
	enabled := make([]domain.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	return enabled, nil
}

func (s *fakeTargetStore) ListAll(context.Context) ([]domain.Target, error) {
	return s.targets, nil
}

func (s *fakeTargetStore) SetEnabled(context.Context, string, bool) error { return nil }

type fakeListingStore struct {
	mu     sync.Mutex
	nextID int64
	byExt  map[string]*domain.Listing
}

func newFakeListingStore() *fakeListingStore {
	return &fakeListingStore{byExt: make(map[string]*domain.Listing)}
}

func (s *fakeListingStore) Upsert(_ context.Context, listing *domain.Listing) (*domain.Listing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byExt[listing.ExternalID]; ok {
		copied := *listing
		copied.ID = existing.ID
		copied.FirstSeenAt = existing.FirstSeenAt
		copied.LastSeenAt = time.Now()
		s.byExt[listing.ExternalID] = &copied
		return &copied, false, nil
	}
	s.nextID++
	copied := *listing
	copied.ID = s.nextID
	copied.FirstSeenAt = time.Now()
	copied.LastSeenAt = copied.FirstSeenAt
	s.byExt[listing.ExternalID] = &copied
	return &copied, true, nil
}

func (s *fakeListingStore) GetByExternalID(_ context.Context, externalID string) (*domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.byExt[externalID]; ok {
		return l, nil
	}
	return nil, database.ErrListingNotFound
}

func (s *fakeListingStore) ListByTarget(context.Context, int64, int) ([]domain.Listing, error) {
	return nil, nil
}

type fakeCompStore struct {
	mu        sync.Mutex
	nextID    int64
	byListing map[int64][]domain.CompStats
}

func newFakeCompStore() *fakeCompStore {
	return &fakeCompStore{byListing: make(map[int64][]domain.CompStats)}
}

func (s *fakeCompStore) Insert(_ context.Context, stats *domain.CompStats) (*domain.CompStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	copied := *stats
	copied.ID = s.nextID
	if copied.ComputedAt.IsZero() {
		copied.ComputedAt = time.Now()
	}
	s.byListing[copied.ListingID] = append(s.byListing[copied.ListingID], copied)
	return &copied, nil
}

func (s *fakeCompStore) Latest(_ context.Context, listingID int64) (*domain.CompStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshots := s.byListing[listingID]
	if len(snapshots) == 0 {
		return nil, database.ErrNoCompSnapshot
	}
	latest := snapshots[len(snapshots)-1]
	return &latest, nil
}

type fakeEvalStore struct {
	mu    sync.Mutex
	evals []domain.Evaluation
}

func (s *fakeEvalStore) Insert(_ context.Context, eval *domain.Evaluation) (*domain.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *eval
	copied.ID = int64(len(s.evals) + 1)
	if copied.EvaluatedAt.IsZero() {
		copied.EvaluatedAt = time.Now()
	}
	s.evals = append(s.evals, copied)
	return &copied, nil
}

func (s *fakeEvalStore) Latest(_ context.Context, listingID int64) (*domain.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.evals) - 1; i >= 0; i-- {
		if s.evals[i].ListingID == listingID {
			return &s.evals[i], nil
		}
	}
	return nil, database.ErrNoEvaluation
}

func (s *fakeEvalStore) ListOpportunities(context.Context, []string, int) ([]domain.Opportunity, error) {
	return nil, nil
}

type fakeAlertStore struct {
	mu   sync.Mutex
	sent map[int64]map[string]bool
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{sent: make(map[int64]map[string]bool)}
}

func (s *fakeAlertStore) WasSent(_ context.Context, listingID int64, channel string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[listingID][channel], nil
}

func (s *fakeAlertStore) MarkSent(_ context.Context, listingID int64, channel string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent[listingID][channel] {
		return false, nil
	}
	if s.sent[listingID] == nil {
		s.sent[listingID] = make(map[string]bool)
	}
	s.sent[listingID][channel] = true
	return true, nil
}

func (s *fakeAlertStore) History(context.Context, int64) ([]domain.AlertRecord, error) {
	return nil, nil
}

type fakeSearcher struct {
	mu        sync.Mutex
	results   map[string]*search.Result
	activeErr map[string]error
	sold      []domain.SoldComp
	soldCalls int
}

func (f *fakeSearcher) SearchActive(_ context.Context, target *domain.Target) (*search.Result, error) {
	if err := f.activeErr[target.Name]; err != nil {
		return nil, err
	}
	if res, ok := f.results[target.Name]; ok {
		// Copy so the orchestrator's mutation of listings does not
		// leak between runs.
		listings := append([]domain.Listing(nil), res.Listings...)
		copied := *res
		copied.Listings = listings
		return &copied, nil
	}
	return &search.Result{Status: search.StatusEmpty}, nil
}

func (f *fakeSearcher) SearchSoldComps(context.Context, string) ([]domain.SoldComp, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.soldCalls++
	return f.sold, false, nil
}

// meteredSearcher spends a budget slot per request, the way the real
// search client does.
type meteredSearcher struct {
	inner  *fakeSearcher
	budget *budget.Budget
}

func (m *meteredSearcher) SearchActive(ctx context.Context, target *domain.Target) (*search.Result, error) {
	if err := m.budget.Consume(); err != nil {
		return nil, err
	}
	return m.inner.SearchActive(ctx, target)
}

func (m *meteredSearcher) SearchSoldComps(ctx context.Context, query string) ([]domain.SoldComp, bool, error) {
	if err := m.budget.Consume(); err != nil {
		return nil, false, err
	}
	return m.inner.SearchSoldComps(ctx, query)
}

type fakeSender struct {
	mu    sync.Mutex
	sends []domain.Opportunity
	err   error
}

func (s *fakeSender) Channel() string { return alert.ChannelDiscord }

func (s *fakeSender) Send(_ context.Context, opp *domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, *opp)
	return s.err
}

func scanSettings() *config.Settings {
	return &config.Settings{
		MinProfitGBP:       config.DefaultMinProfitGBP,
		MinROI:             config.DefaultMinROI,
		MinConfidence:      config.DefaultMinConfidence,
		FeePct:             config.DefaultFeePct,
		ShippingOutGBP:     config.DefaultShippingOutGBP,
		BufferFixedGBP:     config.DefaultBufferFixedGBP,
		BufferPctOfBuy:     config.DefaultBufferPctOfBuy,
		CompsLimit:         config.DefaultCompsLimit,
		ScanLimitPerTarget: config.DefaultScanLimitPerTarget,
		CompsTTL:           config.DefaultCompsTTL,
		WorkerCount:        1,
	}
}

func switchListing() domain.Listing {
	cond := "Used"
	l := domain.Listing{
		ExternalID:  "ebay:256012345678",
		Title:       "Nintendo Switch OLED White Console",
		URL:         "https://www.ebay.co.uk/itm/256012345678",
		PriceGBP:    140,
		ShippingGBP: 0,
		Condition:   &cond,
		SourceAttrs: domain.Attrs{domain.AttrOriginMarketplace: "ebay"},
	}
	l.RecomputeTotal()
	return l
}

type scanEnv struct {
	orchestrator *Orchestrator
	store        *database.Store
	listings     *fakeListingStore
	compStore    *fakeCompStore
	evals        *fakeEvalStore
	alerts       *fakeAlertStore
	searcher     *fakeSearcher
	sender       *fakeSender
	budget       *budget.Budget
}

func newScanEnv(targets []domain.Target, searcher *fakeSearcher) *scanEnv {
	settings := scanSettings()
	env := &scanEnv{
		listings:  newFakeListingStore(),
		compStore: newFakeCompStore(),
		evals:     &fakeEvalStore{},
		alerts:    newFakeAlertStore(),
		searcher:  searcher,
		sender:    &fakeSender{},
		budget:    budget.New(config.DefaultRequestCap),
	}
	env.store = &database.Store{
		Targets:     &fakeTargetStore{targets: targets},
		Listings:    env.listings,
		Comps:       env.compStore,
		Evaluations: env.evals,
		Alerts:      env.alerts,
	}
	env.orchestrator = New(env.store, searcher, scoring.New(settings), env.budget,
		[]alert.Sender{env.sender}, settings, logger.NewNop())
	return env
}

func enabledTarget(name string) domain.Target {
	return domain.Target{
		ID:          1,
		Name:        name,
		Query:       "nintendo switch oled",
		ListingType: domain.ListingTypeAny,
		Enabled:     true,
	}
}

func TestRunFullCycleFindsDeal(t *testing.T) {
	target := enabledTarget("Nintendo Switch OLED")
	searcher := &fakeSearcher{
		results: map[string]*search.Result{
			target.Name: {
				Listings:      []domain.Listing{switchListing()},
				RawCount:      3,
				FilteredCount: 1,
				Status:        search.StatusOK,
				RetryReport:   []string{search.StepInitial},
			},
		},
		sold: []domain.SoldComp{
			{PriceGBP: 220, Title: "Nintendo Switch OLED White"},
			{PriceGBP: 230, Title: "Nintendo Switch OLED Console"},
		},
	}
	env := newScanEnv([]domain.Target{target}, searcher)

	summary, err := env.orchestrator.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.CycleID)
	assert.Equal(t, 1, summary.TargetsScanned)
	assert.Equal(t, 3, summary.RawListings)
	assert.Equal(t, 1, summary.KeptListings)
	assert.Equal(t, 1, summary.NewListings)
	assert.Equal(t, 1, summary.Evaluations)
	assert.Equal(t, 1, summary.Deals)
	assert.Equal(t, 1, summary.AlertsSent)
	assert.False(t, summary.BudgetExhausted)

	require.Len(t, env.evals.evals, 1)
	eval := env.evals.evals[0]
	assert.Equal(t, domain.DecisionDeal, eval.Decision)
	assert.InDelta(t, 43.2, eval.ExpectedProfitGBP, 1e-9)
	assert.InDelta(t, 225.0, eval.ResaleEstGBP, 1e-9)
	assert.InDelta(t, 0.65, eval.Confidence, 1e-9)

	require.Len(t, summary.Opportunities, 1)
	opp := summary.Opportunities[0]
	assert.Equal(t, "Nintendo Switch OLED", opp.TargetName)
	assert.Equal(t, domain.DecisionDeal, opp.Decision)
	assert.InDelta(t, 43.2, opp.ExpectedProfitGBP, 1e-9)
	assert.InDelta(t, 225.0, opp.ResaleEstGBP, 1e-9)

	require.Len(t, env.sender.sends, 1)
	assert.Equal(t, "Nintendo Switch OLED", env.sender.sends[0].TargetName)

	// A second run re-sees the listing, reuses the fresh comp
	// snapshot, and never alerts again. The listing is still
	// actionable, so it is projected into the new cycle's summary.
	summary2, err := env.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary2.NewListings)
	assert.Equal(t, 0, summary2.AlertsSent)
	assert.Equal(t, 1, searcher.soldCalls)
	require.Len(t, summary2.Opportunities, 1)
	require.Len(t, env.sender.sends, 1)
}

func TestRunBudgetRenewsEachCycle(t *testing.T) {
	target := enabledTarget("Nintendo Switch OLED")
	inner := &fakeSearcher{
		results: map[string]*search.Result{
			target.Name: {
				Listings: []domain.Listing{switchListing()},
				RawCount: 1,
				Status:   search.StatusOK,
			},
		},
		sold: []domain.SoldComp{
			{PriceGBP: 220, Title: "Nintendo Switch OLED White"},
			{PriceGBP: 230, Title: "Nintendo Switch OLED Console"},
		},
	}

	settings := scanSettings()
	b := budget.New(2)
	searcher := &meteredSearcher{inner: inner, budget: b}
	store := &database.Store{
		Targets:     &fakeTargetStore{targets: []domain.Target{target}},
		Listings:    newFakeListingStore(),
		Comps:       newFakeCompStore(),
		Evaluations: &fakeEvalStore{},
		Alerts:      newFakeAlertStore(),
	}
	orch := New(store, searcher, scoring.New(settings), b, nil, settings, logger.NewNop())

	// The first cycle spends both slots: one active search, one
	// sold-comps fetch.
	first, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.TargetsScanned)
	assert.Equal(t, 2, first.RequestsUsed)
	assert.True(t, first.BudgetExhausted)

	// The next cycle starts with the full cap again and reuses the
	// fresh comp snapshot, so only the active search is spent.
	second, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.TargetsScanned)
	assert.Equal(t, 1, second.Evaluations)
	assert.Equal(t, 1, second.RequestsUsed)
	assert.False(t, second.BudgetExhausted)
}

func TestRunSkipsBlankQueryTarget(t *testing.T) {
	target := domain.Target{ID: 2, Name: "", Query: "   ", Enabled: true}
	env := newScanEnv([]domain.Target{target}, &fakeSearcher{})

	summary, err := env.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TargetsSkipped)
	assert.Zero(t, summary.TargetsScanned)
	assert.Zero(t, summary.TargetsFailed)
	require.Len(t, summary.Diagnostics, 1)
	assert.Equal(t, "skipped", summary.Diagnostics[0].Status)
	assert.NotEmpty(t, summary.Diagnostics[0].SkipReason)
}

func TestRunTargetFailureIsIsolated(t *testing.T) {
	bad := enabledTarget("Broken Target")
	good := enabledTarget("Nintendo Switch OLED")
	good.ID = 3

	searcher := &fakeSearcher{
		activeErr: map[string]error{bad.Name: errors.New("connection reset")},
		results: map[string]*search.Result{
			good.Name: {
				Listings: []domain.Listing{switchListing()},
				RawCount: 1,
				Status:   search.StatusOK,
			},
		},
		sold: []domain.SoldComp{{PriceGBP: 220, Title: "Nintendo Switch OLED"}},
	}
	env := newScanEnv([]domain.Target{bad, good}, searcher)

	summary, err := env.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TargetsFailed)
	assert.Equal(t, 1, summary.TargetsScanned)
	assert.Equal(t, 1, summary.Evaluations)
}

func TestRunBudgetExhaustionEndsCycleGracefully(t *testing.T) {
	first := enabledTarget("First")
	second := enabledTarget("Second")
	second.ID = 4

	searcher := &fakeSearcher{
		activeErr: map[string]error{
			first.Name:  budget.ErrRequestLimit,
			second.Name: budget.ErrRequestLimit,
		},
	}
	env := newScanEnv([]domain.Target{first, second}, searcher)

	summary, err := env.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.TargetsFailed)
	for _, diag := range summary.Diagnostics {
		assert.Equal(t, "budget_exhausted", diag.Status)
	}
}

func TestRunEmptyResultRecordsDiagnostics(t *testing.T) {
	target := enabledTarget("Nintendo Switch OLED")
	searcher := &fakeSearcher{
		results: map[string]*search.Result{
			target.Name: {
				Status:      search.StatusEmpty,
				RawCount:    5,
				RetryReport: []string{search.StepInitial, search.StepDropCondition},
				Rejections:  map[string]int{"over max_buy": 5},
			},
		},
	}
	env := newScanEnv([]domain.Target{target}, searcher)

	summary, err := env.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TargetsScanned)
	assert.Zero(t, summary.Evaluations)
	require.Len(t, summary.Diagnostics, 1)
	diag := summary.Diagnostics[0]
	assert.Equal(t, search.StatusEmpty, diag.Status)
	assert.Equal(t, 5, diag.RawCount)
	assert.Equal(t, []string{search.StepInitial, search.StepDropCondition}, diag.RetrySteps)
	assert.Equal(t, 5, diag.Rejections["over max_buy"])
}

func TestRunAlertFailureStillClaimed(t *testing.T) {
	target := enabledTarget("Nintendo Switch OLED")
	searcher := &fakeSearcher{
		results: map[string]*search.Result{
			target.Name: {
				Listings: []domain.Listing{switchListing()},
				RawCount: 1,
				Status:   search.StatusOK,
			},
		},
		sold: []domain.SoldComp{
			{PriceGBP: 220, Title: "Nintendo Switch OLED White"},
			{PriceGBP: 230, Title: "Nintendo Switch OLED Console"},
		},
	}
	env := newScanEnv([]domain.Target{target}, searcher)
	env.sender.err = errors.New("webhook down")

	summary, err := env.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.AlertsSent)
	require.Len(t, env.sender.sends, 1)

	// The claim stands, so the failed send is never retried.
	summary2, err := env.orchestrator.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary2.AlertsSent)
	require.Len(t, env.sender.sends, 1)
}
