// Package config loads and validates application settings via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults for the scoring and crawl settings. The decision thresholds
// intentionally mirror the documented product defaults even where the
// combination with small comp samples keeps profitable listings at
// "maybe".
const (
	DefaultMinProfitGBP   = 10.0
	DefaultMinROI         = 0.25
	DefaultMinConfidence  = 0.55
	DefaultFeePct         = 0.128
	DefaultShippingOutGBP = 4.0
	DefaultBufferFixedGBP = 2.0
	DefaultBufferPctOfBuy = 0.05

	DefaultRequestCap         = 40
	DefaultCompsLimit         = 25
	DefaultScanLimitPerTarget = 20
	DefaultCompsTTL           = 6 * time.Hour
	DefaultWorkerCount        = 1
	DefaultHTTPTimeout        = 20 * time.Second
	DefaultCacheTTL           = 10 * time.Minute
	DefaultScanInterval       = 15 * time.Minute

	DefaultGBPExchangeRate = 0.78
	DefaultFXCacheMinutes  = 360
)

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// MarketplaceConfig selects which marketplaces participate in a cycle.
type MarketplaceConfig struct {
	// Buy is the primary marketplace searched for active listings.
	Buy string `mapstructure:"buy"`
	// Fallback is tried once when the primary marketplace blocks the
	// crawl. Empty disables cross-marketplace fallback.
	Fallback string `mapstructure:"fallback"`
	// Sell lists the marketplaces queried for sold comps, in order.
	Sell []string `mapstructure:"sell"`
	// ActiveProxy is the marketplace whose active-listing prices are
	// sampled when no sell marketplace returns sold comps.
	ActiveProxy string `mapstructure:"active_proxy"`
	// EbayAppID enables the structured eBay API backend when set.
	EbayAppID string `mapstructure:"ebay_app_id"`
}

// Settings is the flat runtime configuration required by the scan
// pipeline. How values are loaded (file, environment) is confined to
// this package; the rest of the core only sees the populated struct.
type Settings struct {
	MinProfitGBP   float64 `mapstructure:"min_profit_gbp"`
	MinROI         float64 `mapstructure:"min_roi"`
	MinConfidence  float64 `mapstructure:"min_confidence"`
	FeePct         float64 `mapstructure:"fee_pct"`
	ShippingOutGBP float64 `mapstructure:"shipping_out_gbp"`
	BufferFixedGBP float64 `mapstructure:"buffer_fixed_gbp"`
	BufferPctOfBuy float64 `mapstructure:"buffer_pct_of_buy"`

	RequestCap         int           `mapstructure:"request_cap"`
	CompsLimit         int           `mapstructure:"comps_limit"`
	ScanLimitPerTarget int           `mapstructure:"scan_limit_per_target"`
	CompsTTL           time.Duration `mapstructure:"comps_ttl"`
	WorkerCount        int           `mapstructure:"worker_count"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	ScanInterval       time.Duration `mapstructure:"scan_interval"`

	BlockedKeywords          []string `mapstructure:"blocked_keywords"`
	MinSellerFeedbackPct     *float64 `mapstructure:"min_seller_feedback_pct"`
	MinSellerFeedbackScore   *int64   `mapstructure:"min_seller_feedback_score"`
	AllowMissingShipping     bool     `mapstructure:"allow_missing_shipping"`
	AssumedInboundGBP        float64  `mapstructure:"assumed_inbound_gbp"`
	MissingShipBufferGBP     float64  `mapstructure:"missing_ship_buffer_gbp"`
	MissingShipConfidencePen float64  `mapstructure:"missing_ship_confidence_pen"`
	DeliveryOnly             bool     `mapstructure:"delivery_only"`

	CurrencyWhitelist []string `mapstructure:"currency_whitelist"`
	AllowNonGBP       bool     `mapstructure:"allow_non_gbp"`
	GBPExchangeRate   float64  `mapstructure:"gbp_exchange_rate"`
	FXLiveEnabled     bool     `mapstructure:"fx_live_enabled"`
	FXCacheMinutes    int      `mapstructure:"fx_cache_minutes"`

	SeedTargets       []string `mapstructure:"seed_targets"`
	DiscordWebhookURL string   `mapstructure:"discord_webhook_url"`
	ServerAddr        string   `mapstructure:"server_addr"`

	LogLevel    string `mapstructure:"log_level"`
	LogEncoding string `mapstructure:"log_encoding"`
	Debug       bool   `mapstructure:"debug"`

	Marketplaces MarketplaceConfig `mapstructure:"marketplaces"`
	Database     DatabaseConfig    `mapstructure:"database"`
}

// Load reads settings from the optional config file and the
// environment (FLIPSCAN_ prefix) on top of defaults.
func Load(cfgFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FLIPSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.flipscan")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %w", ErrConfigLoadFailed, err)
		}
		// Defaults plus environment are a complete configuration.
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParseFailed, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("min_profit_gbp", DefaultMinProfitGBP)
	v.SetDefault("min_roi", DefaultMinROI)
	v.SetDefault("min_confidence", DefaultMinConfidence)
	v.SetDefault("fee_pct", DefaultFeePct)
	v.SetDefault("shipping_out_gbp", DefaultShippingOutGBP)
	v.SetDefault("buffer_fixed_gbp", DefaultBufferFixedGBP)
	v.SetDefault("buffer_pct_of_buy", DefaultBufferPctOfBuy)

	v.SetDefault("request_cap", DefaultRequestCap)
	v.SetDefault("comps_limit", DefaultCompsLimit)
	v.SetDefault("scan_limit_per_target", DefaultScanLimitPerTarget)
	v.SetDefault("comps_ttl", DefaultCompsTTL)
	v.SetDefault("worker_count", DefaultWorkerCount)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("cache_ttl", DefaultCacheTTL)
	v.SetDefault("scan_interval", DefaultScanInterval)

	v.SetDefault("blocked_keywords", []string{"faulty", "cracked", "smashed", "read description"})
	v.SetDefault("allow_missing_shipping", false)
	v.SetDefault("assumed_inbound_gbp", 3.5)
	v.SetDefault("missing_ship_buffer_gbp", 3.0)
	v.SetDefault("missing_ship_confidence_pen", 0.1)
	v.SetDefault("delivery_only", false)

	v.SetDefault("currency_whitelist", []string{"GBP"})
	v.SetDefault("allow_non_gbp", false)
	v.SetDefault("gbp_exchange_rate", DefaultGBPExchangeRate)
	v.SetDefault("fx_live_enabled", false)
	v.SetDefault("fx_cache_minutes", DefaultFXCacheMinutes)

	v.SetDefault("seed_targets", []string{"Nintendo Switch OLED", "AirPods Pro 2", "Sony WH-1000XM5"})
	v.SetDefault("server_addr", ":8080")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_encoding", "console")

	v.SetDefault("marketplaces.buy", "ebay")
	v.SetDefault("marketplaces.fallback", "gumtree")
	v.SetDefault("marketplaces.sell", []string{"ebay"})
	v.SetDefault("marketplaces.active_proxy", "ebay")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "flipscan")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "flipscan")
	v.SetDefault("database.sslmode", "disable")
}

// Validate fails fast on configuration the scan cycle cannot run with.
// Invalid values are never silently coerced.
func (s *Settings) Validate() error {
	if s.RequestCap <= 0 {
		return &ValidationError{Field: "request_cap", Value: s.RequestCap, Reason: "must be positive"}
	}
	if s.FeePct < 0 || s.FeePct >= 1 {
		return &ValidationError{Field: "fee_pct", Value: s.FeePct, Reason: "must be in [0, 1)"}
	}
	if s.BufferPctOfBuy < 0 || s.BufferPctOfBuy >= 1 {
		return &ValidationError{Field: "buffer_pct_of_buy", Value: s.BufferPctOfBuy, Reason: "must be in [0, 1)"}
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return &ValidationError{Field: "min_confidence", Value: s.MinConfidence, Reason: "must be in [0, 1]"}
	}
	if s.WorkerCount < 1 {
		return &ValidationError{Field: "worker_count", Value: s.WorkerCount, Reason: "must be at least 1"}
	}
	if s.HTTPTimeout <= 0 {
		return &ValidationError{Field: "http_timeout", Value: s.HTTPTimeout, Reason: "must be positive"}
	}
	if s.CompsTTL <= 0 {
		return &ValidationError{Field: "comps_ttl", Value: s.CompsTTL, Reason: "must be positive"}
	}
	if s.Marketplaces.Buy == "" {
		return &ValidationError{Field: "marketplaces.buy", Value: "", Reason: "a buy marketplace is required"}
	}
	if len(s.Marketplaces.Sell) == 0 {
		return &ValidationError{Field: "marketplaces.sell", Value: nil, Reason: "at least one sell marketplace is required"}
	}
	if s.GBPExchangeRate <= 0 {
		return &ValidationError{Field: "gbp_exchange_rate", Value: s.GBPExchangeRate, Reason: "must be positive"}
	}
	return nil
}

// CurrencyAllowed reports whether prices in the given currency may be
// used at all.
func (s *Settings) CurrencyAllowed(currency string) bool {
	for _, c := range s.CurrencyWhitelist {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return s.AllowNonGBP
}
