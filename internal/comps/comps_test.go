package comps_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishaqmohammed8765-png/flipscan/internal/comps"
)

func pointsOf(prices ...float64) []comps.Point {
	points := make([]comps.Point, 0, len(prices))
	for _, price := range prices {
		points = append(points, comps.Point{TotalGBP: price})
	}
	return points
}

func TestNormalizeTitle(t *testing.T) {
	normalized, attrs, query := comps.NormalizeTitle("Apple iPhone 13 128GB Unlocked - Blue! (Read Description)")
	assert.NotContains(t, normalized, "read description")
	assert.Equal(t, 128, attrs.StorageGB)
	assert.True(t, attrs.Unlocked)
	assert.Contains(t, query, "128gb")
	assert.Contains(t, query, "unlocked")
}

func TestNormalizeTitleJunkPhrases(t *testing.T) {
	_, _, query := comps.NormalizeTitle("Nintendo Switch JOB LOT for parts")
	assert.NotContains(t, query, "job lot")
	assert.NotContains(t, query, "for parts")
	assert.Contains(t, query, "nintendo switch")
}

func TestNormalizeTitleKeepsWordsContainingJunkPhrases(t *testing.T) {
	// "bookcase only" must survive even though "case only" is junk.
	_, _, query := comps.NormalizeTitle("IKEA Billy bookcase only collection")
	assert.Contains(t, query, "bookcase only")

	_, _, query = comps.NormalizeTitle("Nintendo Switch case only no console")
	assert.NotContains(t, query, "case only")
}

func TestFilterOutliersDropsAccessories(t *testing.T) {
	points := []comps.Point{
		{TotalGBP: 200, Title: "iPhone 13 128GB"},
		{TotalGBP: 12, Title: "iPhone 13 case and screen protector"},
		{TotalGBP: 8, Title: "iPhone 13 empty box"},
	}

	filtered := comps.FilterOutliers(points, "iphone 13 128gb unlocked")
	require.Len(t, filtered, 1)
	assert.InDelta(t, 200, filtered[0].TotalGBP, 0.001)
}

func TestFilterOutliersKeepsAccessoryForAccessorySearch(t *testing.T) {
	points := []comps.Point{
		{TotalGBP: 12, Title: "iPhone 13 case"},
		{TotalGBP: 200, Title: "iPhone 13 128GB"},
	}

	filtered := comps.FilterOutliers(points, "iphone 13 case")
	assert.Len(t, filtered, 2)
}

func TestSummarizeIndexBasedPercentiles(t *testing.T) {
	summary := comps.Summarize("q", pointsOf(100, 200, 300, 400))

	require.Equal(t, 4, summary.SampleSize)
	require.NotNil(t, summary.MedianGBP)
	assert.InDelta(t, 250, *summary.MedianGBP, 0.001)
	// Index-based, not interpolated: idx = floor(p * (n-1)).
	assert.InDelta(t, 100, *summary.P25GBP, 0.001)
	assert.InDelta(t, 300, *summary.P75GBP, 0.001)
	assert.InDelta(t, 200, *summary.SpreadGBP, 0.001)
}

func TestSummarizeIgnoresNonPositiveTotals(t *testing.T) {
	summary := comps.Summarize("q", pointsOf(0, -10, 150))
	assert.Equal(t, 1, summary.SampleSize)
	require.NotNil(t, summary.MedianGBP)
	assert.InDelta(t, 150, *summary.MedianGBP, 0.001)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := comps.Summarize("q", nil)
	assert.Equal(t, 0, summary.SampleSize)
	assert.Nil(t, summary.MedianGBP)
	assert.Nil(t, summary.SpreadGBP)
}

func TestConfidenceTiers(t *testing.T) {
	tests := []struct {
		name       string
		sampleSize int
		median     float64
		p25, p75   float64
		want       string
	}{
		{"large tight sample", 30, 100, 90, 110, comps.ConfidenceHigh},
		{"large wide sample", 30, 100, 60, 140, comps.ConfidenceMedium},
		{"medium sample", 12, 100, 60, 140, comps.ConfidenceMedium},
		{"small sample", 5, 100, 95, 105, comps.ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spread := tt.p75 - tt.p25
			summary := comps.Summary{
				SampleSize: tt.sampleSize,
				MedianGBP:  &tt.median,
				P25GBP:     &tt.p25,
				P75GBP:     &tt.p75,
				SpreadGBP:  &spread,
			}
			assert.Equal(t, tt.want, comps.Confidence(summary))
		})
	}
}

func TestConfidenceZeroSamples(t *testing.T) {
	assert.Equal(t, comps.ConfidenceLow, comps.Confidence(comps.Summary{}))

	zero := 0.0
	assert.Equal(t, comps.ConfidenceLow, comps.Confidence(comps.Summary{SampleSize: 40, MedianGBP: &zero}))
}
