package marketplace

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ishaqmohammed8765-png/flipscan/internal/blockdetect"
	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
	"github.com/ishaqmohammed8765-png/flipscan/internal/fetch"
	"github.com/ishaqmohammed8765-png/flipscan/internal/fx"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
)

const (
	ebayName      = "ebay"
	ebaySearchURL = "https://www.ebay.co.uk/sch/i.html"

	// ebayContainerSelector identifies a healthy results page. Its
	// absence on a 200 response is treated as anti-bot interference.
	ebayContainerSelector = "ul.srp-results, li.s-item, div.s-item__wrapper, div.s-item"

	ebayResultsPerPage = 60
)

// conditionParams maps canonical condition words to eBay's
// LH_ItemCondition filter codes.
var conditionParams = map[string]string{
	"new":                      "1000",
	"open box":                 "1500",
	"refurbished":              "2000|2500",
	"used":                     "3000",
	"parts":                    "7000",
	"for parts":                "7000",
	"for parts or not working": "7000",
}

var itemIDPattern = regexp.MustCompile(`/itm/(?:[^/]*/)?(\d{9,})`)

var sellerInfoPattern = regexp.MustCompile(`\(([\d,]+)\)\s+([\d.]+)%`)

// EbayHTML scrapes the public eBay search results page. It is the
// default eBay backend and the fallback when no API credentials are
// configured.
type EbayHTML struct {
	settings  *config.Settings
	client    *fetch.Client
	converter *fx.Converter
	detector  *blockdetect.Detector
	searchURL string
	log       logger.Interface
}

func NewEbayHTML(settings *config.Settings, client *fetch.Client, converter *fx.Converter, log logger.Interface) *EbayHTML {
	return &EbayHTML{
		settings:  settings,
		client:    client,
		converter: converter,
		detector:  blockdetect.New(ebayContainerSelector),
		searchURL: ebaySearchURL,
		log:       log.WithComponent("ebay_html"),
	}
}

func (b *EbayHTML) Name() string { return ebayName }

// SearchActive scrapes live listings for the criteria. A page that
// does not parse as search results yields zero listings and a nil
// error so the retry ladder can proceed.
func (b *EbayHTML) SearchActive(ctx context.Context, criteria Criteria) ([]domain.Listing, error) {
	params := b.searchParams(criteria, false)
	doc, err := b.fetchResults(ctx, params)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	limit := criteria.Limit
	if limit <= 0 {
		limit = config.DefaultScanLimitPerTarget
	}

	listings := make([]domain.Listing, 0, limit)
	doc.Find("li.s-item").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		listing, ok := b.parseCard(ctx, card)
		if ok {
			listings = append(listings, listing)
		}
		return len(listings) < limit
	})
	return listings, nil
}

// SearchSold scrapes completed-and-sold listings for the query.
func (b *EbayHTML) SearchSold(ctx context.Context, query string, limit int) ([]domain.SoldComp, error) {
	params := b.searchParams(Criteria{Query: query}, true)
	doc, err := b.fetchResults(ctx, params)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = config.DefaultCompsLimit
	}

	comps := make([]domain.SoldComp, 0, limit)
	doc.Find("li.s-item").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		title := cardTitle(card)
		if title == "" {
			return true
		}
		price, currency, ok := parseMoney(card.Find(".s-item__price").First().Text())
		if !ok {
			return true
		}
		gbp, allowed := convertGBP(ctx, b.settings, b.converter, price, currency)
		if !allowed {
			return true
		}
		link, _ := card.Find("a.s-item__link").First().Attr("href")
		comps = append(comps, domain.SoldComp{PriceGBP: gbp, Title: title, URL: link})
		return len(comps) < limit
	})
	return comps, nil
}

// fetchResults performs the budgeted, cached page fetch and runs block
// detection. A nil document with a nil error means the page fetched
// but is not worth parsing.
func (b *EbayHTML) fetchResults(ctx context.Context, params url.Values) (*goquery.Document, error) {
	resp, err := b.client.Get(ctx, b.searchURL, params, fetch.Options{Delay: true})
	if err != nil {
		return nil, err
	}

	verdict := b.detector.Detect(resp.FinalURL, resp.Status, resp.Body)
	if verdict.Blocked {
		key := b.client.CacheKey(b.searchURL, params)
		b.client.Invalidate(key)
		// Sibling cache entries holding the same challenge page would
		// poison the retry ladder, so they go too.
		b.client.PurgeCached(blockdetect.Tokens())
		return nil, &BlockedError{
			Marketplace: ebayName,
			Reason:      verdict.Reason,
			URL:         resp.FinalURL,
			Snippet:     verdict.Snippet,
			CacheKey:    key,
		}
	}

	doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(resp.Body))
	if parseErr != nil {
		b.log.Warn("failed to parse results page", "error", parseErr)
		return nil, nil
	}
	return doc, nil
}

func (b *EbayHTML) searchParams(criteria Criteria, sold bool) url.Values {
	params := url.Values{}
	params.Set("_nkw", criteria.Query)
	params.Set("_ipg", strconv.Itoa(ebayResultsPerPage))
	params.Set("_sop", "10") // newly listed first

	if criteria.CategoryID != nil && *criteria.CategoryID != "" {
		params.Set("_sacat", *criteria.CategoryID)
	}
	if criteria.Condition != nil {
		if code, ok := conditionParams[strings.ToLower(strings.TrimSpace(*criteria.Condition))]; ok {
			params.Set("LH_ItemCondition", code)
		}
	}
	switch strings.ToLower(criteria.ListingType) {
	case "auction":
		params.Set("LH_Auction", "1")
	case "fixed", "bin", "buy_it_now":
		params.Set("LH_BIN", "1")
	}
	if criteria.MaxBuyGBP != nil && *criteria.MaxBuyGBP > 0 {
		params.Set("_udhi", strconv.FormatFloat(*criteria.MaxBuyGBP, 'f', 2, 64))
	}

	if sold {
		params.Set("LH_Sold", "1")
		params.Set("LH_Complete", "1")
	}
	return params
}

func (b *EbayHTML) parseCard(ctx context.Context, card *goquery.Selection) (domain.Listing, bool) {
	title := cardTitle(card)
	if title == "" {
		return domain.Listing{}, false
	}

	link, _ := card.Find("a.s-item__link").First().Attr("href")
	externalID := ebayExternalID(link)
	if externalID == "" {
		return domain.Listing{}, false
	}

	price, priceCurrency, ok := parseMoney(card.Find(".s-item__price").First().Text())
	if !ok {
		return domain.Listing{}, false
	}
	priceGBP, allowed := convertGBP(ctx, b.settings, b.converter, price, priceCurrency)
	if !allowed {
		return domain.Listing{}, false
	}

	shippingText := card.Find(".s-item__shipping, .s-item__logisticsCost").First().Text()
	shipping, shipCurrency, shippingMissing := parseShipping(shippingText)
	shippingGBP := 0.0
	if !shippingMissing {
		var shipAllowed bool
		shippingGBP, shipAllowed = convertGBP(ctx, b.settings, b.converter, shipping, shipCurrency)
		if !shipAllowed {
			return domain.Listing{}, false
		}
	} else if b.settings.AllowMissingShipping {
		shippingGBP = b.settings.AssumedInboundGBP
	}

	attrs := domain.Attrs{domain.AttrOriginMarketplace: ebayName}
	if shippingMissing {
		attrs[domain.AttrShippingMissing] = true
	}
	if freeShippingPattern.MatchString(shippingText) {
		attrs[domain.AttrFreeShipping] = true
	}

	listing := domain.Listing{
		ExternalID:  externalID,
		Title:       title,
		URL:         link,
		PriceGBP:    priceGBP,
		ShippingGBP: shippingGBP,
		SourceAttrs: attrs,
	}
	listing.RecomputeTotal()

	if cond := strings.TrimSpace(card.Find(".SECONDARY_INFO").First().Text()); cond != "" {
		listing.Condition = &cond
	}
	if img, found := card.Find(".s-item__image-img").First().Attr("src"); found {
		listing.ImageURL = &img
	}
	if loc := strings.TrimSpace(card.Find(".s-item__location, .s-item__itemLocation").First().Text()); loc != "" {
		loc = strings.TrimPrefix(loc, "from ")
		listing.Location = &loc
	}
	if lt := listingTypeOf(card); lt != "" {
		listing.ListingType = &lt
	}
	parseSellerInfo(card.Find(".s-item__seller-info-text").First().Text(), &listing)

	return listing, true
}

// cardTitle returns the card's title, skipping eBay's injected
// placeholder cards.
func cardTitle(card *goquery.Selection) string {
	title := strings.TrimSpace(card.Find(".s-item__title").First().Text())
	title = strings.TrimPrefix(title, "New listing")
	title = strings.TrimSpace(title)
	if title == "" || strings.EqualFold(title, "Shop on eBay") {
		return ""
	}
	return title
}

func listingTypeOf(card *goquery.Selection) string {
	if strings.TrimSpace(card.Find(".s-item__bids, .s-item__bidCount").First().Text()) != "" {
		return "auction"
	}
	if strings.Contains(strings.ToLower(card.Find(".s-item__purchase-options, .s-item__dynamic").Text()), "buy it now") {
		return "fixed"
	}
	return ""
}

// parseSellerInfo reads "seller_name (1,234) 99.1%" style text.
func parseSellerInfo(text string, listing *domain.Listing) {
	m := sellerInfoPattern.FindStringSubmatch(text)
	if m == nil {
		return
	}
	if score, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64); err == nil {
		listing.SellerFeedbackScore = &score
	}
	if pct, err := strconv.ParseFloat(m[2], 64); err == nil {
		listing.SellerFeedbackPct = &pct
	}
}

func ebayExternalID(link string) string {
	m := itemIDPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s", ebayName, m[1])
}
