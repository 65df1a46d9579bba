package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	settings, err := Load("")
	require.NoError(t, err)

	assert.InDelta(t, DefaultMinProfitGBP, settings.MinProfitGBP, 1e-9)
	assert.InDelta(t, DefaultMinROI, settings.MinROI, 1e-9)
	assert.InDelta(t, DefaultFeePct, settings.FeePct, 1e-9)
	assert.Equal(t, DefaultRequestCap, settings.RequestCap)
	assert.Equal(t, DefaultCompsTTL, settings.CompsTTL)
	assert.Equal(t, DefaultScanInterval, settings.ScanInterval)
	assert.Equal(t, "ebay", settings.Marketplaces.Buy)
	assert.Equal(t, "gumtree", settings.Marketplaces.Fallback)
	assert.Equal(t, []string{"ebay"}, settings.Marketplaces.Sell)
	assert.Contains(t, settings.SeedTargets, "Nintendo Switch OLED")
	assert.False(t, settings.AllowNonGBP)
	assert.Equal(t, []string{"GBP"}, settings.CurrencyWhitelist)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FLIPSCAN_MIN_PROFIT_GBP", "25")
	t.Setenv("FLIPSCAN_REQUEST_CAP", "10")

	settings, err := Load("")
	require.NoError(t, err)
	assert.InDelta(t, 25.0, settings.MinProfitGBP, 1e-9)
	assert.Equal(t, 10, settings.RequestCap)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("min_profit_gbp: 15\nscan_interval: 5m\nmarketplaces:\n  buy: gumtree\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 15.0, settings.MinProfitGBP, 1e-9)
	assert.Equal(t, 5*time.Minute, settings.ScanInterval)
	assert.Equal(t, "gumtree", settings.Marketplaces.Buy)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrConfigLoadFailed)
}

func TestValidate(t *testing.T) {
	valid := func() *Settings {
		s, err := Load("")
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		field  string
	}{
		{"zero request cap", func(s *Settings) { s.RequestCap = 0 }, "request_cap"},
		{"fee over one", func(s *Settings) { s.FeePct = 1.0 }, "fee_pct"},
		{"negative confidence", func(s *Settings) { s.MinConfidence = -0.1 }, "min_confidence"},
		{"no workers", func(s *Settings) { s.WorkerCount = 0 }, "worker_count"},
		{"no buy marketplace", func(s *Settings) { s.Marketplaces.Buy = "" }, "marketplaces.buy"},
		{"no sell marketplaces", func(s *Settings) { s.Marketplaces.Sell = nil }, "marketplaces.sell"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := valid()
			tt.mutate(settings)
			err := settings.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCurrencyAllowed(t *testing.T) {
	settings := &Settings{CurrencyWhitelist: []string{"GBP"}}
	assert.True(t, settings.CurrencyAllowed("GBP"))
	assert.True(t, settings.CurrencyAllowed("gbp"))
	assert.False(t, settings.CurrencyAllowed("USD"))

	settings.AllowNonGBP = true
	assert.True(t, settings.CurrencyAllowed("USD"))
}
