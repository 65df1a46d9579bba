// Package scan sequences targets through search, filtering,
// persistence, comp aggregation, scoring, and alerting for one cycle.
package scan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ishaqmohammed8765-png/flipscan/internal/alert"
	"github.com/ishaqmohammed8765-png/flipscan/internal/budget"
	"github.com/ishaqmohammed8765-png/flipscan/internal/comps"
	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/database"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
	"github.com/ishaqmohammed8765-png/flipscan/internal/scoring"
	"github.com/ishaqmohammed8765-png/flipscan/internal/search"
)

// Searcher is the search capability the orchestrator drives.
// *search.Client satisfies it.
type Searcher interface {
	SearchActive(ctx context.Context, target *domain.Target) (*search.Result, error)
	SearchSoldComps(ctx context.Context, query string) (comps []domain.SoldComp, proxied bool, err error)
}

// TargetDiagnostic records how one target fared, successful or not.
type TargetDiagnostic struct {
	TargetName string              `json:"target_name"`
	Query      string              `json:"query"`
	Status     string              `json:"status"`
	SkipReason string              `json:"skip_reason,omitempty"`
	Error      string              `json:"error,omitempty"`
	RetrySteps []string            `json:"retry_steps,omitempty"`
	Rejections map[string]int      `json:"rejections,omitempty"`
	RawCount   int                 `json:"raw_count"`
	KeptCount  int                 `json:"kept_count"`
	Blocked    *search.BlockedInfo `json:"blocked,omitempty"`
}

// Summary is the result of one scan cycle.
type Summary struct {
	CycleID         string               `json:"cycle_id"`
	StartedAt       time.Time            `json:"started_at"`
	FinishedAt      time.Time            `json:"finished_at"`
	TargetsScanned  int                  `json:"targets_scanned"`
	TargetsSkipped  int                  `json:"targets_skipped"`
	TargetsFailed   int                  `json:"targets_failed"`
	RawListings     int                  `json:"raw_listings"`
	KeptListings    int                  `json:"kept_listings"`
	NewListings     int                  `json:"new_listings"`
	Evaluations     int                  `json:"evaluations"`
	Deals           int                  `json:"deals"`
	Maybes          int                  `json:"maybes"`
	AlertsSent      int                  `json:"alerts_sent"`
	RequestsUsed    int                  `json:"requests_used"`
	BudgetExhausted bool                 `json:"budget_exhausted"`
	Opportunities   []domain.Opportunity `json:"opportunities,omitempty"`
	Diagnostics     []TargetDiagnostic   `json:"diagnostics"`
}

// Orchestrator runs scan cycles. One orchestrator is long-lived; each
// Run gets a fresh cycle id and shares one request budget across its
// workers.
type Orchestrator struct {
	store    *database.Store
	searcher Searcher
	scorer   *scoring.Engine
	budget   *budget.Budget
	senders  []alert.Sender
	settings *config.Settings
	log      logger.Interface
	now      func() time.Time
}

// New creates an orchestrator.
func New(store *database.Store, searcher Searcher, scorer *scoring.Engine, b *budget.Budget, senders []alert.Sender, settings *config.Settings, log logger.Interface) *Orchestrator {
	return &Orchestrator{
		store:    store,
		searcher: searcher,
		scorer:   scorer,
		budget:   b,
		senders:  senders,
		settings: settings,
		log:      log.WithComponent("scan"),
		now:      time.Now,
	}
}

// Run executes one scan cycle over every enabled target. Budget
// exhaustion ends the cycle gracefully; a failed target is recorded
// and does not stop the others.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	// The budget is process-wide; each cycle spends its own cap.
	o.budget.Reset()

	summary := &Summary{
		CycleID:   uuid.NewString(),
		StartedAt: o.now(),
	}
	log := o.log.With("cycle_id", summary.CycleID)

	targets, err := o.store.Targets.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("scan cycle started", "targets", len(targets), "request_cap", o.budget.Cap())

	workers := o.settings.WorkerCount
	if workers < 1 {
		workers = 1
	}
	if workers > len(targets) && len(targets) > 0 {
		workers = len(targets)
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan domain.Target)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range queue {
				diag := o.scanTarget(ctx, &target, log, summary, &mu)
				mu.Lock()
				summary.Diagnostics = append(summary.Diagnostics, diag)
				mu.Unlock()
			}
		}()
	}

	for i := range targets {
		if o.budget.Exhausted() {
			break
		}
		queue <- targets[i]
	}
	close(queue)
	wg.Wait()

	summary.FinishedAt = o.now()
	summary.RequestsUsed = o.budget.Used()
	summary.BudgetExhausted = o.budget.Exhausted()
	log.Info("scan cycle finished",
		"targets_scanned", summary.TargetsScanned,
		"kept_listings", summary.KeptListings,
		"deals", summary.Deals,
		"alerts_sent", summary.AlertsSent,
		"requests_used", summary.RequestsUsed,
		"budget_exhausted", summary.BudgetExhausted)
	return summary, nil
}

// scanTarget runs the full pipeline for one target. Counter updates
// happen under mu; the store and searcher are safe for concurrent use.
func (o *Orchestrator) scanTarget(ctx context.Context, target *domain.Target, log logger.Interface, summary *Summary, mu *sync.Mutex) TargetDiagnostic {
	diag := TargetDiagnostic{TargetName: target.Name, Query: target.EffectiveQuery()}

	if diag.Query == "" {
		diag.Status = "skipped"
		diag.SkipReason = "target has no query or name to search"
		mu.Lock()
		summary.TargetsSkipped++
		mu.Unlock()
		log.Warn("skipping target with blank query", "target", target.Name)
		return diag
	}

	res, err := o.searcher.SearchActive(ctx, target)
	if err != nil {
		if errors.Is(err, budget.ErrRequestLimit) {
			diag.Status = "budget_exhausted"
			return diag
		}
		diag.Status = "failed"
		diag.Error = err.Error()
		mu.Lock()
		summary.TargetsFailed++
		mu.Unlock()
		log.Error("target scan failed", "target", target.Name, "error", err)
		return diag
	}

	diag.Status = res.Status
	diag.RetrySteps = res.RetryReport
	diag.Rejections = res.Rejections
	diag.RawCount = res.RawCount
	diag.KeptCount = len(res.Listings)
	diag.Blocked = res.Blocked

	mu.Lock()
	summary.TargetsScanned++
	summary.RawListings += res.RawCount
	summary.KeptListings += len(res.Listings)
	mu.Unlock()

	if len(res.Listings) == 0 {
		log.Info("no listings survived for target",
			"target", target.Name,
			"status", res.Status,
			"raw", res.RawCount,
			"retry_steps", strings.Join(res.RetryReport, " -> "))
		return diag
	}

	for i := range res.Listings {
		res.Listings[i].TargetID = target.ID
		if procErr := o.processListing(ctx, &res.Listings[i], target, log, summary, mu); procErr != nil {
			if errors.Is(procErr, budget.ErrRequestLimit) {
				// Fetched listings whose comp snapshots are still
				// fresh can be scored without requests, so the loop
				// continues.
				diag.Status = "budget_exhausted"
				continue
			}
			// One bad listing never aborts the target.
			log.Error("failed to process listing",
				"target", target.Name,
				"external_id", res.Listings[i].ExternalID,
				"error", procErr)
		}
	}
	return diag
}

func (o *Orchestrator) processListing(ctx context.Context, listing *domain.Listing, target *domain.Target, log logger.Interface, summary *Summary, mu *sync.Mutex) error {
	stored, isNew, err := o.store.Listings.Upsert(ctx, listing)
	if err != nil {
		return err
	}
	if isNew {
		mu.Lock()
		summary.NewListings++
		mu.Unlock()
	}

	stats, err := o.compStats(ctx, stored)
	if err != nil {
		return err
	}

	eval := o.scorer.Evaluate(stored, stats)
	persisted, err := o.store.Evaluations.Insert(ctx, &eval)
	if err != nil {
		return err
	}

	mu.Lock()
	summary.Evaluations++
	switch persisted.Decision {
	case domain.DecisionDeal:
		summary.Deals++
	case domain.DecisionMaybe:
		summary.Maybes++
	}
	mu.Unlock()

	if persisted.Actionable() {
		opp := buildOpportunity(stored, persisted, target)
		mu.Lock()
		summary.Opportunities = append(summary.Opportunities, *opp)
		mu.Unlock()
		o.dispatchAlerts(ctx, opp, log, summary, mu)
	}
	return nil
}

func buildOpportunity(listing *domain.Listing, eval *domain.Evaluation, target *domain.Target) *domain.Opportunity {
	return &domain.Opportunity{
		ListingID:         listing.ID,
		ExternalID:        listing.ExternalID,
		TargetName:        target.Name,
		Title:             listing.Title,
		URL:               listing.URL,
		TotalBuyGBP:       listing.TotalBuyGBP,
		ResaleEstGBP:      eval.ResaleEstGBP,
		ExpectedProfitGBP: eval.ExpectedProfitGBP,
		ROI:               eval.ROI,
		Confidence:        eval.Confidence,
		DealScore:         eval.DealScore,
		Decision:          eval.Decision,
		Reasons:           eval.Reasons,
		EvaluatedAt:       eval.EvaluatedAt,
	}
}

// compStats reuses a fresh-enough snapshot or refreshes one from the
// sell marketplaces.
func (o *Orchestrator) compStats(ctx context.Context, listing *domain.Listing) (*domain.CompStats, error) {
	existing, err := o.store.Comps.Latest(ctx, listing.ID)
	if err == nil && !existing.StalerThan(o.settings.CompsTTL, o.now()) {
		return existing, nil
	}
	if err != nil && !errors.Is(err, database.ErrNoCompSnapshot) {
		return nil, err
	}

	_, _, query := comps.NormalizeTitle(listing.Title)
	sold, proxied, err := o.searcher.SearchSoldComps(ctx, query)
	if err != nil {
		return nil, err
	}

	points := comps.FilterOutliers(comps.FromSoldComps(sold), listing.Title)
	summary := comps.Summarize(query, points)
	stats := summary.Stats(listing.ID)
	if proxied {
		stats.CompQuery = search.ActiveProxyPrefix + stats.CompQuery
	}

	stored, err := o.store.Comps.Insert(ctx, &stats)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// dispatchAlerts sends on every configured channel at most once per
// (listing, channel). The log entry is claimed before sending, so a
// crashed send is never duplicated.
func (o *Orchestrator) dispatchAlerts(ctx context.Context, opp *domain.Opportunity, log logger.Interface, summary *Summary, mu *sync.Mutex) {
	for _, sender := range o.senders {
		claimed, err := o.store.Alerts.MarkSent(ctx, opp.ListingID, sender.Channel())
		if err != nil {
			log.Error("failed to record alert", "channel", sender.Channel(), "error", err)
			continue
		}
		if !claimed {
			continue
		}
		if sendErr := sender.Send(ctx, opp); sendErr != nil {
			log.Error("alert delivery failed", "channel", sender.Channel(), "error", sendErr)
			continue
		}
		mu.Lock()
		summary.AlertsSent++
		mu.Unlock()
	}
}
