// Package filter applies target constraints and policy checks to raw
// listings before they enter the scoring pipeline.
package filter

import (
	"strings"

	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// Rejection reasons. The vocabulary is fixed; every matching reason is
// recorded for diagnostics even though a single match rejects.
const (
	ReasonInvalidPrice    = "missing/invalid price"
	ReasonOverMaxBuy      = "over max_buy"
	ReasonOverMaxShipping = "over max_shipping"
	ReasonWrongCondition  = "wrong condition"
	ReasonBlockedKeyword  = "blocked keywords"
	ReasonSellerRisk      = "seller risk thresholds"
	ReasonMissingShipping = "missing shipping price"
	ReasonNoDelivery      = "no delivery option"
	ReasonWeakRelevance   = "weak title relevance"
)

// AllReasons lists the vocabulary in reporting order.
var AllReasons = []string{
	ReasonInvalidPrice,
	ReasonOverMaxBuy,
	ReasonOverMaxShipping,
	ReasonWrongCondition,
	ReasonBlockedKeyword,
	ReasonSellerRisk,
	ReasonMissingShipping,
	ReasonNoDelivery,
	ReasonWeakRelevance,
}

// conditionCodes maps canonical marketplace condition codes to the
// text they must match (as substrings) in a listing's free-text
// condition.
var conditionCodes = map[string]string{
	"1000": "new",
	"1500": "open box",
	"2000": "manufacturer refurbished",
	"2500": "seller refurbished",
	"3000": "used",
	"7000": "for parts or not working",
}

// deliveryKeywords are scanned in classifieds titles and descriptions
// when the source exposes no structured shipping data.
var deliveryKeywords = []string{"delivery", "postage", "can post", "will post", "ship"}

// queryStopwords never count as dominant query keywords.
var queryStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "new": true,
}

// Outcome is the result of filtering one batch.
type Outcome struct {
	Kept []domain.Listing
	// Rejections counts every matched reason across the batch, keyed
	// by the fixed vocabulary (zero-valued entries included).
	Rejections map[string]int
}

// Filter evaluates listings against a target and settings. It is
// deterministic and stateless.
type Filter struct {
	settings *config.Settings
}

// New creates a filter bound to the given settings.
func New(settings *config.Settings) *Filter {
	return &Filter{settings: settings}
}

// Apply partitions listings into kept and rejected, recording every
// matching rejection reason.
func (f *Filter) Apply(listings []domain.Listing, target *domain.Target) Outcome {
	counts := make(map[string]int, len(AllReasons))
	for _, reason := range AllReasons {
		counts[reason] = 0
	}

	kept := make([]domain.Listing, 0, len(listings))
	for i := range listings {
		reasons := f.Reject(&listings[i], target)
		if len(reasons) == 0 {
			kept = append(kept, listings[i])
			continue
		}
		for _, reason := range reasons {
			counts[reason]++
		}
	}
	return Outcome{Kept: kept, Rejections: counts}
}

// Reject returns every rejection reason matching the listing, or nil
// when the listing passes. Reasons are evaluated independently.
func (f *Filter) Reject(listing *domain.Listing, target *domain.Target) []string {
	var reasons []string

	if listing.PriceGBP <= 0 || listing.TotalBuyGBP <= 0 {
		reasons = append(reasons, ReasonInvalidPrice)
	}
	if target.MaxBuyGBP != nil && listing.TotalBuyGBP > *target.MaxBuyGBP {
		reasons = append(reasons, ReasonOverMaxBuy)
	}
	if target.MaxShippingGBP != nil && listing.ShippingGBP > *target.MaxShippingGBP {
		reasons = append(reasons, ReasonOverMaxShipping)
	}
	if target.Condition != nil && *target.Condition != "" && !conditionMatches(listing.Condition, *target.Condition) {
		reasons = append(reasons, ReasonWrongCondition)
	}
	if f.blockedKeyword(listing.Title) {
		reasons = append(reasons, ReasonBlockedKeyword)
	}
	if f.sellerFailsThresholds(listing) {
		reasons = append(reasons, ReasonSellerRisk)
	}
	if listing.SourceAttrs.Bool(domain.AttrShippingMissing) && !f.settings.AllowMissingShipping {
		reasons = append(reasons, ReasonMissingShipping)
	}
	if f.settings.DeliveryOnly && !hasDeliveryOption(listing) {
		reasons = append(reasons, ReasonNoDelivery)
	}
	if !titleRelevant(listing.Title, target.EffectiveQuery()) {
		reasons = append(reasons, ReasonWeakRelevance)
	}

	return reasons
}

// conditionMatches resolves the target's condition (a canonical code
// or free text) and matches it as a substring of the listing's
// condition. A listing without a condition cannot match.
func conditionMatches(listingCondition *string, targetCondition string) bool {
	if listingCondition == nil || *listingCondition == "" {
		return false
	}
	expected := targetCondition
	if mapped, ok := conditionCodes[targetCondition]; ok {
		expected = mapped
	}
	return strings.Contains(strings.ToLower(*listingCondition), strings.ToLower(expected))
}

func (f *Filter) blockedKeyword(title string) bool {
	if title == "" {
		return false
	}
	lowered := strings.ToLower(title)
	for _, keyword := range f.settings.BlockedKeywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// sellerFailsThresholds checks configured reputation floors. Unknown
// reputation values are not penalized here; scoring handles missing
// signals separately.
func (f *Filter) sellerFailsThresholds(listing *domain.Listing) bool {
	if f.settings.MinSellerFeedbackPct != nil && listing.SellerFeedbackPct != nil {
		if *listing.SellerFeedbackPct < *f.settings.MinSellerFeedbackPct {
			return true
		}
	}
	if f.settings.MinSellerFeedbackScore != nil && listing.SellerFeedbackScore != nil {
		if *listing.SellerFeedbackScore < *f.settings.MinSellerFeedbackScore {
			return true
		}
	}
	return false
}

// hasDeliveryOption checks, in order: the source's explicit shipping
// type, a free-shipping flag, then delivery keywords in the title or
// description (classifieds sources expose nothing structured).
func hasDeliveryOption(listing *domain.Listing) bool {
	if shippingType := listing.SourceAttrs.String(domain.AttrShippingType); shippingType != "" {
		lowered := strings.ToLower(shippingType)
		if strings.Contains(lowered, "collection") || strings.Contains(lowered, "pickup") {
			return false
		}
		return true
	}
	if listing.SourceAttrs.Bool(domain.AttrFreeShipping) {
		return true
	}

	haystack := strings.ToLower(listing.Title + " " + listing.SourceAttrs.String(domain.AttrDescription))
	for _, keyword := range deliveryKeywords {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

// titleRelevant requires the listing title to contain at least half of
// the query's dominant keywords. This guards against unrelated
// classifieds results leaking through broad searches.
func titleRelevant(title, query string) bool {
	keywords := dominantKeywords(query)
	if len(keywords) == 0 {
		return true
	}

	lowered := strings.ToLower(title)
	matched := 0
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			matched++
		}
	}
	return matched*2 >= len(keywords)
}

// dominantKeywords extracts the query tokens worth matching: lowercase
// alphanumeric tokens of three or more characters, stopwords removed.
func dominantKeywords(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	keywords := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, field)
		if len(token) < 3 || queryStopwords[token] {
			continue
		}
		keywords = append(keywords, token)
	}
	return keywords
}
