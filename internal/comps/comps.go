// Package comps aggregates historical sold prices into resale
// estimates with a confidence rating.
package comps

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// Confidence tiers for a comp summary.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Tier thresholds: high needs a large, tightly clustered sample.
const (
	highSampleSize   = 30
	mediumSampleSize = 12
	highSpreadRatio  = 0.25
)

// junkPhrases are stripped from titles before they become comp
// queries; they describe the listing, not the product.
var junkPhrases = []string{
	"read description",
	"job lot",
	"joblot",
	"case only",
	"empty box",
	"box only",
	"spares repairs",
	"spares repair",
	"spares/repairs",
	"for parts",
}

// outlierPhrases mark accessory or packaging-only comps that would
// drag the resale estimate down for a search about the device itself.
var outlierPhrases = []string{
	"case",
	"cover",
	"box only",
	"empty box",
	"screen protector",
}

var (
	punctuationRe = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	storageRe     = regexp.MustCompile(`\b(\d{2,4})\s?gb\b`)

	// Word-anchored so "bookcase only" is not mangled by "case only".
	junkPhraseRes = compileJunkPhrases()
)

func compileJunkPhrases() []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(junkPhrases))
	for _, phrase := range junkPhrases {
		res = append(res, regexp.MustCompile(`\b`+regexp.QuoteMeta(phrase)+`\b`))
	}
	return res
}

// Attributes are the structured signals extracted from a title.
type Attributes struct {
	StorageGB int
	Unlocked  bool
}

// Point is one comparable sold price.
type Point struct {
	TotalGBP float64
	Title    string
	URL      string
}

// Summary holds the aggregate statistics for one comp query.
type Summary struct {
	Query      string
	SampleSize int
	MedianGBP  *float64
	P25GBP     *float64
	P75GBP     *float64
	SpreadGBP  *float64
	ComputedAt time.Time
}

// NormalizeTitle lowercases and strips a listing title, removes junk
// phrases, extracts structured attributes and folds them back into a
// canonical comp query.
func NormalizeTitle(title string) (normalized string, attrs Attributes, query string) {
	text := strings.ToLower(strings.ReplaceAll(title, "/", " "))
	text = punctuationRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	for _, re := range junkPhraseRes {
		text = re.ReplaceAllString(text, " ")
	}
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))

	if m := storageRe.FindStringSubmatch(text); m != nil {
		if size, err := strconv.Atoi(m[1]); err == nil {
			attrs.StorageGB = size
		}
	}
	if strings.Contains(text, "unlocked") || strings.Contains(text, "sim free") || strings.Contains(text, "simfree") {
		attrs.Unlocked = true
	}

	tokens := strings.Fields(text)
	if attrs.StorageGB > 0 {
		storageToken := fmt.Sprintf("%dgb", attrs.StorageGB)
		if !containsToken(tokens, storageToken) {
			tokens = append(tokens, storageToken)
		}
	}
	if attrs.Unlocked && !containsToken(tokens, "unlocked") {
		tokens = append(tokens, "unlocked")
	}

	return text, attrs, strings.Join(tokens, " ")
}

// FilterOutliers drops comps whose title matches an accessory or
// packaging phrase, unless the candidate's own title matches the same
// phrase; an accessory-specific search keeps its accessory comps.
func FilterOutliers(points []Point, candidateTitle string) []Point {
	candidate := strings.ToLower(candidateTitle)
	allowed := make(map[string]bool, len(outlierPhrases))
	for _, phrase := range outlierPhrases {
		if strings.Contains(candidate, phrase) {
			allowed[phrase] = true
		}
	}

	filtered := make([]Point, 0, len(points))
	for _, point := range points {
		title := strings.ToLower(point.Title)
		drop := false
		for _, phrase := range outlierPhrases {
			if strings.Contains(title, phrase) && !allowed[phrase] {
				drop = true
				break
			}
		}
		if !drop {
			filtered = append(filtered, point)
		}
	}
	return filtered
}

// Summarize computes sample size, median and index-based 25th/75th
// percentiles over the positive totals. Percentiles use
// idx = floor(p * (n-1)) on the sorted slice, not interpolation.
func Summarize(query string, points []Point) Summary {
	totals := make([]float64, 0, len(points))
	for _, point := range points {
		if point.TotalGBP > 0 {
			totals = append(totals, point.TotalGBP)
		}
	}
	sort.Float64s(totals)

	summary := Summary{
		Query:      query,
		SampleSize: len(totals),
		ComputedAt: time.Now().UTC(),
	}
	if len(totals) == 0 {
		return summary
	}

	median := medianOf(totals)
	p25 := totals[percentileIndex(0.25, len(totals))]
	p75 := totals[percentileIndex(0.75, len(totals))]
	spread := p75 - p25

	summary.MedianGBP = &median
	summary.P25GBP = &p25
	summary.P75GBP = &p75
	summary.SpreadGBP = &spread
	return summary
}

// Confidence rates a summary. High needs at least 30 samples with an
// interquartile spread no wider than 25% of the median; medium needs
// 12 samples; everything else, including an empty or zero-median
// summary, is low.
func Confidence(summary Summary) string {
	if summary.SampleSize == 0 || summary.MedianGBP == nil || *summary.MedianGBP == 0 {
		return ConfidenceLow
	}
	if summary.SampleSize >= highSampleSize && summary.P25GBP != nil && summary.P75GBP != nil {
		if (*summary.P75GBP-*summary.P25GBP)/(*summary.MedianGBP) <= highSpreadRatio {
			return ConfidenceHigh
		}
	}
	if summary.SampleSize >= mediumSampleSize {
		return ConfidenceMedium
	}
	return ConfidenceLow
}

// Stats converts a summary into a persistable snapshot for a listing.
func (s Summary) Stats(listingID int64) domain.CompStats {
	return domain.CompStats{
		ListingID:  listingID,
		CompQuery:  s.Query,
		SoldCount:  s.SampleSize,
		MedianGBP:  s.MedianGBP,
		P25GBP:     s.P25GBP,
		P75GBP:     s.P75GBP,
		SpreadGBP:  s.SpreadGBP,
		ComputedAt: s.ComputedAt,
	}
}

// FromSoldComps adapts search results into comp points.
func FromSoldComps(sold []domain.SoldComp) []Point {
	points := make([]Point, 0, len(sold))
	for _, comp := range sold {
		points = append(points, Point{TotalGBP: comp.PriceGBP, Title: comp.Title, URL: comp.URL})
	}
	return points
}

func percentileIndex(p float64, n int) int {
	idx := int(p * float64(n-1))
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func containsToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}
