package fx

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
)

func newDisabledConverter() *Converter {
	return New(0.78, false, time.Hour, logger.NewNop())
}

func TestStaticFallbackRates(t *testing.T) {
	c := newDisabledConverter()
	ctx := context.Background()

	assert.InDelta(t, 0.78, c.Rate(ctx, "USD", "GBP"), 1e-9)
	assert.InDelta(t, 78.0, c.ToGBP(ctx, 100, "USD"), 1e-9)
	assert.InDelta(t, 100.0, c.ToGBP(ctx, 100, "GBP"), 1e-9)
	assert.InDelta(t, 100.0, c.ToGBP(ctx, 100, ""), 1e-9)
	assert.InDelta(t, 1.0, c.Rate(ctx, "USD", "USD"), 1e-9)
	// Unknown pairs convert at identity.
	assert.InDelta(t, 1.0, c.Rate(ctx, "CHF", "GBP"), 1e-9)
}

func TestRateInverseForGBPSource(t *testing.T) {
	c := newDisabledConverter()
	ctx := context.Background()

	fwd := c.Rate(ctx, "USD", "GBP")
	inv := c.Rate(ctx, "GBP", "USD")
	assert.InDelta(t, 1.0, fwd*inv, 1e-9)
}

func TestRateCached(t *testing.T) {
	c := newDisabledConverter()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	ctx := context.Background()

	first := c.Rate(ctx, "EUR", "GBP")
	// Mutate the fallback anchor; a cached pair must not see it.
	c.fallbackGBPRate = 0.5
	assert.InDelta(t, first, c.Rate(ctx, "EUR", "GBP"), 1e-9)

	// Past the TTL the pair is recomputed.
	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Greater(t, math.Abs(first-c.Rate(ctx, "EUR", "GBP")), 1e-9)
}
