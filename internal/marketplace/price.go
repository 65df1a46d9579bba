package marketplace

import (
	"regexp"
	"strconv"
	"strings"
)

var moneyPattern = regexp.MustCompile(`([£$€])?\s*([\d,]+(?:\.\d{1,2})?)`)

var currencySymbols = map[string]string{
	"£": "GBP",
	"$": "USD",
	"€": "EUR",
}

// parseMoney extracts the first monetary amount from free text such as
// "£140.00", "$1,299.99 to $1,399.99" or "EUR 89,99". Range prices
// resolve to the lower bound. Returns ok=false when no amount is
// present.
func parseMoney(text string) (amount float64, currency string, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, "", false
	}

	currency = "GBP"
	switch {
	case strings.Contains(strings.ToUpper(text), "USD"):
		currency = "USD"
	case strings.Contains(strings.ToUpper(text), "EUR"):
		currency = "EUR"
	case strings.Contains(strings.ToUpper(text), "JPY"):
		currency = "JPY"
	}

	m := moneyPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	if sym, found := currencySymbols[m[1]]; found {
		currency = sym
	}

	raw := strings.ReplaceAll(m[2], ",", "")
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil || amount <= 0 {
		return 0, "", false
	}
	return amount, currency, true
}

var freeShippingPattern = regexp.MustCompile(`(?i)\bfree\s+(postage|shipping|delivery|collection in person)\b`)

// parseShipping reads a shipping cost from text like "+ £3.99 postage"
// or "Free postage". missing reports that no cost could be determined
// at all, which downstream policy may reject or buffer for.
func parseShipping(text string) (amount float64, currency string, missing bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, "", true
	}
	if freeShippingPattern.MatchString(text) {
		return 0, "GBP", false
	}
	amount, currency, ok := parseMoney(text)
	if !ok {
		return 0, "", true
	}
	return amount, currency, false
}
