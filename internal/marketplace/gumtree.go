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
	gumtreeName      = "gumtree"
	gumtreeSearchURL = "https://www.gumtree.com/search"

	gumtreeContainerSelector = "article.listing-maxi, div.listing-content, ul.list-listing-maxi"
)

var gumtreeAdIDPattern = regexp.MustCompile(`/(\d{7,})/?(?:\?|$)`)

// Gumtree scrapes the Gumtree classifieds search page. Classifieds ads
// carry no shipping price and no sold history, so listings are marked
// shipping-missing and SearchSold always returns nothing.
type Gumtree struct {
	settings  *config.Settings
	client    *fetch.Client
	converter *fx.Converter
	detector  *blockdetect.Detector
	searchURL string
	log       logger.Interface
}

func NewGumtree(settings *config.Settings, client *fetch.Client, converter *fx.Converter, log logger.Interface) *Gumtree {
	return &Gumtree{
		settings:  settings,
		client:    client,
		converter: converter,
		detector:  blockdetect.New(gumtreeContainerSelector),
		searchURL: gumtreeSearchURL,
		log:       log.WithComponent("gumtree"),
	}
}

func (b *Gumtree) Name() string { return gumtreeName }

func (b *Gumtree) SearchActive(ctx context.Context, criteria Criteria) ([]domain.Listing, error) {
	params := url.Values{}
	params.Set("q", criteria.Query)
	params.Set("search_category", "all")
	if criteria.CategoryID != nil && *criteria.CategoryID != "" {
		params.Set("search_category", *criteria.CategoryID)
	}
	if criteria.MaxBuyGBP != nil && *criteria.MaxBuyGBP > 0 {
		params.Set("max_price", strconv.FormatFloat(*criteria.MaxBuyGBP, 'f', 0, 64))
	}

	resp, err := b.client.Get(ctx, b.searchURL, params, fetch.Options{Delay: true})
	if err != nil {
		return nil, err
	}

	verdict := b.detector.Detect(resp.FinalURL, resp.Status, resp.Body)
	if verdict.Blocked {
		key := b.client.CacheKey(b.searchURL, params)
		b.client.Invalidate(key)
		b.client.PurgeCached(blockdetect.Tokens())
		return nil, &BlockedError{
			Marketplace: gumtreeName,
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

	limit := criteria.Limit
	if limit <= 0 {
		limit = config.DefaultScanLimitPerTarget
	}

	listings := make([]domain.Listing, 0, limit)
	doc.Find("article.listing-maxi").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		listing, ok := b.parseCard(ctx, card)
		if ok {
			listings = append(listings, listing)
		}
		return len(listings) < limit
	})
	return listings, nil
}

// SearchSold returns no comps. Gumtree publishes no sold history, so
// it can only serve as a buy side or active-price proxy.
func (b *Gumtree) SearchSold(_ context.Context, _ string, _ int) ([]domain.SoldComp, error) {
	return nil, nil
}

func (b *Gumtree) parseCard(ctx context.Context, card *goquery.Selection) (domain.Listing, bool) {
	title := strings.TrimSpace(card.Find("h2.listing-title, .listing-title").First().Text())
	if title == "" {
		return domain.Listing{}, false
	}

	link, _ := card.Find("a.listing-link").First().Attr("href")
	if link != "" && strings.HasPrefix(link, "/") {
		link = "https://www.gumtree.com" + link
	}
	externalID := gumtreeExternalID(card, link)
	if externalID == "" {
		return domain.Listing{}, false
	}

	price, currency, ok := parseMoney(card.Find(".listing-price strong, .listing-price").First().Text())
	if !ok {
		return domain.Listing{}, false
	}
	priceGBP, allowed := convertGBP(ctx, b.settings, b.converter, price, currency)
	if !allowed {
		return domain.Listing{}, false
	}

	// Classifieds never quote postage up front.
	shippingGBP := 0.0
	if b.settings.AllowMissingShipping {
		shippingGBP = b.settings.AssumedInboundGBP
	}

	attrs := domain.Attrs{
		domain.AttrOriginMarketplace: gumtreeName,
		domain.AttrShippingMissing:   true,
	}
	if desc := strings.TrimSpace(card.Find("p.listing-description, .listing-description").First().Text()); desc != "" {
		attrs[domain.AttrDescription] = desc
	}
	if badge := strings.ToLower(card.Find(".listing-delivery, .shipping-badge").First().Text()); badge != "" {
		switch {
		case strings.Contains(badge, "deliver"), strings.Contains(badge, "post"), strings.Contains(badge, "ship"):
			attrs[domain.AttrShippingType] = "delivery"
		case strings.Contains(badge, "collect"), strings.Contains(badge, "pickup"):
			attrs[domain.AttrShippingType] = "collection"
		}
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

	if loc := strings.TrimSpace(card.Find(".listing-location span, .listing-location").First().Text()); loc != "" {
		listing.Location = &loc
	}
	if img, found := card.Find(".listing-thumbnail img").First().Attr("src"); found {
		listing.ImageURL = &img
	}

	return listing, true
}

func gumtreeExternalID(card *goquery.Selection, link string) string {
	if id, found := card.Attr("data-q"); found && strings.TrimSpace(id) != "" {
		return fmt.Sprintf("%s:%s", gumtreeName, strings.TrimSpace(id))
	}
	m := gumtreeAdIDPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s", gumtreeName, m[1])
}
