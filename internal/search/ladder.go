package search

import (
	"regexp"
	"strings"

	"github.com/ishaqmohammed8765-png/flipscan/internal/marketplace"
)

// Retry step labels, recorded verbatim in scan diagnostics.
const (
	StepInitial        = "initial"
	StepDropCategory   = "removed category filter"
	StepDropCondition  = "removed condition filter"
	StepDropListing    = "removed listing type filter"
	StepDropPrices     = "removed price filters"
	StepBroadenedQuery = "broadened query"
)

// Step is one rung of the retry ladder.
type Step struct {
	Label    string
	Criteria marketplace.Criteria
}

// Ladder expands initial criteria into the fixed relaxation sequence.
// Each rung keeps the relaxations of the rungs before it. Rungs that
// would not change the criteria are skipped, so a target with no
// category filter never records a drop-category step.
func Ladder(initial marketplace.Criteria) []Step {
	steps := []Step{{Label: StepInitial, Criteria: initial}}
	current := initial

	if current.CategoryID != nil && *current.CategoryID != "" {
		current.CategoryID = nil
		steps = append(steps, Step{Label: StepDropCategory, Criteria: current})
	}
	if current.Condition != nil && *current.Condition != "" {
		current.Condition = nil
		steps = append(steps, Step{Label: StepDropCondition, Criteria: current})
	}
	if lt := strings.ToLower(strings.TrimSpace(current.ListingType)); lt != "" && lt != "any" {
		current.ListingType = "any"
		steps = append(steps, Step{Label: StepDropListing, Criteria: current})
	}
	if current.MaxBuyGBP != nil || current.MaxShippingGBP != nil {
		current.MaxBuyGBP = nil
		current.MaxShippingGBP = nil
		steps = append(steps, Step{Label: StepDropPrices, Criteria: current})
	}
	if broadened := BroadenQuery(current.Query); broadened != current.Query {
		current.Query = broadened
		steps = append(steps, Step{Label: StepBroadenedQuery, Criteria: current})
	}
	return steps
}

var (
	letterDigitBoundary = regexp.MustCompile(`([a-zA-Z])(\d)`)
	digitLetterBoundary = regexp.MustCompile(`(\d)([a-zA-Z])`)
	storageSizeToken    = regexp.MustCompile(`(?i)\b\d+\s?(gb|tb)\b`)
	storageSizeWord     = regexp.MustCompile(`(?i)\b\d+\s?(gig|gigabyte|terabyte)s?\b`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// colorWords are stripped during broadening. Colors narrow a resale
// query without changing the product being priced.
var colorWords = map[string]bool{
	"black":     true,
	"white":     true,
	"silver":    true,
	"gray":      true,
	"grey":      true,
	"blue":      true,
	"red":       true,
	"green":     true,
	"graphite":  true,
	"gold":      true,
	"pink":      true,
	"purple":    true,
	"midnight":  true,
	"starlight": true,
}

// BroadenQuery widens a search query for the ladder's final rung:
// quoting is stripped, glued letter/digit runs are split, storage-size
// tokens and color words are removed, and whitespace is collapsed.
func BroadenQuery(query string) string {
	q := strings.NewReplacer(`"`, " ", "'", " ").Replace(query)
	q = letterDigitBoundary.ReplaceAllString(q, "$1 $2")
	q = digitLetterBoundary.ReplaceAllString(q, "$1 $2")
	q = storageSizeToken.ReplaceAllString(q, " ")
	q = storageSizeWord.ReplaceAllString(q, " ")

	words := strings.Fields(q)
	kept := words[:0]
	for _, w := range words {
		if !colorWords[strings.ToLower(w)] {
			kept = append(kept, w)
		}
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.Join(kept, " "), " "))
}
