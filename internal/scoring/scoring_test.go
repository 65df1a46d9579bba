package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
	"github.com/ishaqmohammed8765-png/flipscan/internal/scoring"
)

func ptr[T any](v T) *T { return &v }

func settings() *config.Settings {
	return &config.Settings{
		MinProfitGBP:             10,
		MinROI:                   0.15,
		MinConfidence:            0.40,
		FeePct:                   0.128,
		ShippingOutGBP:           4,
		BufferFixedGBP:           2,
		BufferPctOfBuy:           0.05,
		MissingShipBufferGBP:     3,
		MissingShipConfidencePen: 0.1,
	}
}

func buyListing(total float64) *domain.Listing {
	return &domain.Listing{ID: 1, Title: "Nintendo Switch OLED", TotalBuyGBP: total}
}

func statsOf(count int, median, p25, p75 float64) *domain.CompStats {
	spread := p75 - p25
	return &domain.CompStats{
		SoldCount: count,
		MedianGBP: &median,
		P25GBP:    &p25,
		P75GBP:    &p75,
		SpreadGBP: &spread,
	}
}

func TestEvaluateNoComps(t *testing.T) {
	engine := scoring.New(settings())

	for _, stats := range []*domain.CompStats{nil, {SoldCount: 0}} {
		evaluation := engine.Evaluate(buyListing(140), stats)
		assert.Equal(t, domain.DecisionIgnore, evaluation.Decision)
		assert.Zero(t, evaluation.ExpectedProfitGBP)
		assert.Zero(t, evaluation.Confidence)
		assert.Zero(t, evaluation.ResaleEstGBP)
		require.NotEmpty(t, evaluation.Reasons)
		assert.Contains(t, evaluation.Reasons[0], "No sold comps")
	}
}

func TestEvaluateSwitchOLEDScenario(t *testing.T) {
	// Two sold comps at 220 and 230: median 225, tight spread.
	engine := scoring.New(settings())
	evaluation := engine.Evaluate(buyListing(140), statsOf(2, 225, 220, 230))

	// 225*0.872 - 140 - 4 - (2 + 0.05*140) = 43.2
	assert.InDelta(t, 43.2, evaluation.ExpectedProfitGBP, 0.01)
	assert.InDelta(t, 0.3086, evaluation.ROI, 0.001)
	// 0.4 base + 0.05 (>=1 comp) + 0.2 (tight spread) = 0.65
	assert.InDelta(t, 0.65, evaluation.Confidence, 0.001)
	assert.Equal(t, domain.DecisionDeal, evaluation.Decision)

	wantScore := 43.2*0.6 + 0.3086*40 + 0.65*20
	assert.InDelta(t, wantScore, evaluation.DealScore, 0.05)
}

func TestConfidenceBonuses(t *testing.T) {
	engine := scoring.New(settings())

	listing := buyListing(100)
	listing.SellerFeedbackPct = ptr(99.0)
	listing.ReturnsAccepted = ptr(true)

	evaluation := engine.Evaluate(listing, statsOf(12, 200, 195, 205))
	// 0.4 + 0.25 (>=10) + 0.2 (tight) + 0.1 (feedback) + 0.05 (returns) = 1.0 clamped
	assert.InDelta(t, 1.0, evaluation.Confidence, 0.001)
}

func TestWideSpreadPenalty(t *testing.T) {
	engine := scoring.New(settings())
	evaluation := engine.Evaluate(buyListing(100), statsOf(7, 200, 120, 280))
	// 0.4 + 0.15 (>=5) - 0.1 (wide spread) = 0.45
	assert.InDelta(t, 0.45, evaluation.Confidence, 0.001)
}

func TestMissingShippingPenalties(t *testing.T) {
	engine := scoring.New(settings())

	plain := engine.Evaluate(buyListing(100), statsOf(5, 200, 195, 205))

	flagged := buyListing(100)
	flagged.SourceAttrs = domain.Attrs{domain.AttrShippingMissing: true}
	penalized := engine.Evaluate(flagged, statsOf(5, 200, 195, 205))

	assert.InDelta(t, plain.BufferGBP+3, penalized.BufferGBP, 0.001)
	assert.InDelta(t, plain.ExpectedProfitGBP-3, penalized.ExpectedProfitGBP, 0.001)
	assert.InDelta(t, plain.Confidence-0.1, penalized.Confidence, 0.001)
}

func TestDecisionMonotonicInProfit(t *testing.T) {
	// Holding roi and confidence inputs fixed, decreasing profit can
	// never upgrade the decision.
	engine := scoring.New(settings())
	stats := statsOf(10, 225, 220, 230)

	rank := map[string]int{
		domain.DecisionIgnore: 0,
		domain.DecisionMaybe:  1,
		domain.DecisionDeal:   2,
	}

	prev := -1
	// Increasing buy total decreases profit.
	for _, total := range []float64{100, 140, 170, 185, 200, 230} {
		evaluation := engine.Evaluate(buyListing(total), stats)
		current := rank[evaluation.Decision]
		if prev >= 0 {
			assert.LessOrEqual(t, current, prev,
				"decision must not improve as profit shrinks (total %.0f)", total)
		}
		prev = current
	}
}

func TestZeroBuyTotalROI(t *testing.T) {
	engine := scoring.New(settings())
	evaluation := engine.Evaluate(buyListing(0), statsOf(3, 50, 45, 55))
	assert.Zero(t, evaluation.ROI)
}
