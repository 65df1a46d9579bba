// Package scoring turns a listing plus comp statistics into an
// explainable deal decision.
package scoring

import (
	"fmt"
	"time"

	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// Confidence formula weights. The deal-score weights are fixed
// contract values; reports and alerts rank by them.
const (
	confidenceBase = 0.4

	sampleBonusLarge  = 0.25 // >= 10 comps
	sampleBonusMedium = 0.15 // >= 5 comps
	sampleBonusSmall  = 0.05 // >= 1 comp

	tightSpreadRatio  = 0.2
	okSpreadRatio     = 0.35
	tightSpreadBonus  = 0.2
	okSpreadBonus     = 0.1
	wideSpreadPenalty = 0.1

	feedbackBonusFloor = 98.0
	feedbackBonus      = 0.1
	returnsBonus       = 0.05

	profitWeight     = 0.6
	roiWeight        = 40.0
	confidenceWeight = 20.0

	maybeMinROI        = 0.10
	maybeMinConfidence = 0.35
)

// Engine scores listings against configured thresholds.
type Engine struct {
	settings *config.Settings
	now      func() time.Time
}

// New creates a scoring engine.
func New(settings *config.Settings) *Engine {
	return &Engine{settings: settings, now: func() time.Time { return time.Now().UTC() }}
}

// Evaluate produces an append-only evaluation for a listing given its
// latest comp snapshot. A listing without sold comps is always an
// "ignore" with zeroed estimates.
func (e *Engine) Evaluate(listing *domain.Listing, stats *domain.CompStats) domain.Evaluation {
	s := e.settings
	buffer := s.BufferFixedGBP + s.BufferPctOfBuy*listing.TotalBuyGBP

	evaluation := domain.Evaluation{
		ListingID:      listing.ID,
		FeePct:         s.FeePct,
		ShippingOutGBP: s.ShippingOutGBP,
		BufferGBP:      buffer,
		Decision:       domain.DecisionIgnore,
		EvaluatedAt:    e.now(),
	}

	if stats == nil || stats.SoldCount == 0 {
		evaluation.Reasons = domain.Reasons{"No sold comps found - cannot estimate profit."}
		return evaluation
	}

	resaleEst := 0.0
	if stats.MedianGBP != nil {
		resaleEst = *stats.MedianGBP
	}

	missingShipping := listing.SourceAttrs.Bool(domain.AttrShippingMissing)
	if missingShipping {
		buffer += s.MissingShipBufferGBP
		evaluation.BufferGBP = buffer
	}

	profit := resaleEst*(1-s.FeePct) - listing.TotalBuyGBP - s.ShippingOutGBP - buffer
	roi := 0.0
	if listing.TotalBuyGBP > 0 {
		roi = profit / listing.TotalBuyGBP
	}

	confidence := e.confidence(listing, stats, missingShipping)

	reasons := domain.Reasons{
		fmt.Sprintf("Median sold GBP %.2f from %d comps (p25 GBP %s, p75 GBP %s).",
			resaleEst, stats.SoldCount, fmtAmount(stats.P25GBP), fmtAmount(stats.P75GBP)),
	}
	reasons = append(reasons, confidenceReasons(listing, stats, confidence, missingShipping)...)

	evaluation.ResaleEstGBP = resaleEst
	evaluation.ExpectedProfitGBP = profit
	evaluation.ROI = roi
	evaluation.Confidence = confidence
	evaluation.DealScore = dealScore(profit, roi, confidence)
	evaluation.Decision = e.decide(profit, roi, confidence)
	evaluation.Reasons = reasons
	return evaluation
}

// confidence combines sample size, spread, seller reputation and the
// missing-shipping penalty into a clamped 0..1 score.
func (e *Engine) confidence(listing *domain.Listing, stats *domain.CompStats, missingShipping bool) float64 {
	score := confidenceBase

	switch {
	case stats.SoldCount >= 10:
		score += sampleBonusLarge
	case stats.SoldCount >= 5:
		score += sampleBonusMedium
	case stats.SoldCount >= 1:
		score += sampleBonusSmall
	}

	if stats.SpreadGBP != nil && stats.MedianGBP != nil && *stats.MedianGBP != 0 {
		ratio := *stats.SpreadGBP / max(*stats.MedianGBP, 1)
		switch {
		case ratio <= tightSpreadRatio:
			score += tightSpreadBonus
		case ratio <= okSpreadRatio:
			score += okSpreadBonus
		default:
			score -= wideSpreadPenalty
		}
	}

	if listing.SellerFeedbackPct != nil && *listing.SellerFeedbackPct >= feedbackBonusFloor {
		score += feedbackBonus
	}
	if listing.ReturnsAccepted != nil && *listing.ReturnsAccepted {
		score += returnsBonus
	}
	if missingShipping {
		score -= e.settings.MissingShipConfidencePen
	}

	return min(max(score, 0), 1)
}

func confidenceReasons(listing *domain.Listing, stats *domain.CompStats, confidence float64, missingShipping bool) []string {
	var reasons []string
	if stats.SpreadGBP != nil && stats.MedianGBP != nil && *stats.MedianGBP != 0 {
		if *stats.SpreadGBP/max(*stats.MedianGBP, 1) > okSpreadRatio {
			reasons = append(reasons, "Wide comp spread reduced confidence.")
		} else {
			reasons = append(reasons, "Comp prices are tightly clustered.")
		}
	}
	if listing.SellerFeedbackPct != nil {
		reasons = append(reasons, fmt.Sprintf("Seller feedback %.1f%%.", *listing.SellerFeedbackPct))
	}
	if listing.ReturnsAccepted != nil && *listing.ReturnsAccepted {
		reasons = append(reasons, "Returns accepted by seller.")
	}
	if missingShipping {
		reasons = append(reasons, "Inbound shipping price unknown; buffer increased and confidence reduced.")
	}
	reasons = append(reasons, fmt.Sprintf("Confidence score %.2f.", confidence))
	return reasons
}

// dealScore ranks opportunities: profit dominates, capped ROI and
// confidence refine. Weights are fixed.
func dealScore(profit, roi, confidence float64) float64 {
	cappedROI := min(max(roi, 0), 1)
	return max(profit, 0)*profitWeight + cappedROI*roiWeight + confidence*confidenceWeight
}

func (e *Engine) decide(profit, roi, confidence float64) string {
	s := e.settings
	if profit >= s.MinProfitGBP && roi >= s.MinROI && confidence >= s.MinConfidence {
		return domain.DecisionDeal
	}
	if profit >= 0 && roi >= maybeMinROI && confidence >= maybeMinConfidence {
		return domain.DecisionMaybe
	}
	return domain.DecisionIgnore
}

func fmtAmount(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
