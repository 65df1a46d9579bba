package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishaqmohammed8765-png/flipscan/internal/marketplace"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func TestLadderFullSequence(t *testing.T) {
	initial := marketplace.Criteria{
		Query:          `"iphone 13" 128GB black`,
		CategoryID:     strPtr("9355"),
		Condition:      strPtr("used"),
		ListingType:    "auction",
		MaxBuyGBP:      f64Ptr(300),
		MaxShippingGBP: f64Ptr(10),
	}

	steps := Ladder(initial)
	labels := make([]string, 0, len(steps))
	for _, s := range steps {
		labels = append(labels, s.Label)
	}
	assert.Equal(t, []string{
		StepInitial,
		StepDropCategory,
		StepDropCondition,
		StepDropListing,
		StepDropPrices,
		StepBroadenedQuery,
	}, labels)

	// Relaxations are cumulative.
	last := steps[len(steps)-1].Criteria
	assert.Nil(t, last.CategoryID)
	assert.Nil(t, last.Condition)
	assert.Equal(t, "any", last.ListingType)
	assert.Nil(t, last.MaxBuyGBP)
	assert.Nil(t, last.MaxShippingGBP)
	assert.Equal(t, "iphone 13", last.Query)

	// The initial rung is untouched.
	require.NotNil(t, steps[0].Criteria.CategoryID)
	assert.Equal(t, initial.Query, steps[0].Criteria.Query)
}

func TestLadderSkipsAbsentFilters(t *testing.T) {
	steps := Ladder(marketplace.Criteria{Query: "sony wh-1000xm5", ListingType: "any"})
	require.Len(t, steps, 1)
	assert.Equal(t, StepInitial, steps[0].Label)
}

func TestLadderBroadenOnlyIfChanged(t *testing.T) {
	steps := Ladder(marketplace.Criteria{
		Query:     "nintendo switch oled 64GB",
		Condition: strPtr("used"),
	})
	labels := make([]string, 0, len(steps))
	for _, s := range steps {
		labels = append(labels, s.Label)
	}
	assert.Equal(t, []string{StepInitial, StepDropCondition, StepBroadenedQuery}, labels)
	assert.Equal(t, "nintendo switch oled", steps[len(steps)-1].Criteria.Query)
}

func TestBroadenQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{"strips quotes", `"airpods pro"`, "airpods pro"},
		{"splits letter digit runs", "iphone13 pro", "iphone 13 pro"},
		{"removes storage tokens", "galaxy s21 128GB", "galaxy s 21"},
		{"removes spelled storage sizes", "external drive 500 gig", "external drive"},
		{"removes plural storage words", "nas bundle 2 terabytes", "nas bundle"},
		{"removes color words", "switch oled white", "switch oled"},
		{"collapses whitespace", "camera   body  only", "camera body only"},
		{"already broad", "steam deck", "steam deck"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, BroadenQuery(tt.in))
		})
	}
}
