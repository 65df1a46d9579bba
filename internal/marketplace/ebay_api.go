package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
	"github.com/ishaqmohammed8765-png/flipscan/internal/fetch"
	"github.com/ishaqmohammed8765-png/flipscan/internal/fx"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
)

const ebayFindingURL = "https://svcs.ebay.com/services/search/FindingService/v1"

// EbayAPI queries the eBay Finding API. It is preferred over HTML
// scraping when an application ID is configured because responses are
// structured and far less likely to be blocked.
type EbayAPI struct {
	settings  *config.Settings
	client    *fetch.Client
	converter *fx.Converter
	appID     string
	endpoint  string
	log       logger.Interface
}

func NewEbayAPI(settings *config.Settings, client *fetch.Client, converter *fx.Converter, log logger.Interface) *EbayAPI {
	return &EbayAPI{
		settings:  settings,
		client:    client,
		converter: converter,
		appID:     settings.Marketplaces.EbayAppID,
		endpoint:  ebayFindingURL,
		log:       log.WithComponent("ebay_api"),
	}
}

func (b *EbayAPI) Name() string { return ebayName }

func (b *EbayAPI) SearchActive(ctx context.Context, criteria Criteria) ([]domain.Listing, error) {
	params := b.baseParams("findItemsByKeywords", criteria.Query)
	filters := 0
	if criteria.CategoryID != nil && *criteria.CategoryID != "" {
		params.Set("categoryId", *criteria.CategoryID)
	}
	if criteria.Condition != nil {
		if code, ok := conditionParams[strings.ToLower(strings.TrimSpace(*criteria.Condition))]; ok {
			filters = addItemFilter(params, filters, "Condition", strings.Split(code, "|")...)
		}
	}
	switch strings.ToLower(criteria.ListingType) {
	case "auction":
		filters = addItemFilter(params, filters, "ListingType", "Auction")
	case "fixed", "bin", "buy_it_now":
		filters = addItemFilter(params, filters, "ListingType", "FixedPrice")
	}
	if criteria.MaxBuyGBP != nil && *criteria.MaxBuyGBP > 0 {
		addItemFilter(params, filters, "MaxPrice", strconv.FormatFloat(*criteria.MaxBuyGBP, 'f', 2, 64))
	}

	limit := criteria.Limit
	if limit <= 0 {
		limit = config.DefaultScanLimitPerTarget
	}
	params.Set("paginationInput.entriesPerPage", strconv.Itoa(limit))

	items, err := b.fetchItems(ctx, params)
	if err != nil {
		return nil, err
	}

	listings := make([]domain.Listing, 0, len(items))
	for i := range items {
		if listing, ok := b.toListing(ctx, &items[i]); ok {
			listings = append(listings, listing)
		}
	}
	return listings, nil
}

func (b *EbayAPI) SearchSold(ctx context.Context, query string, limit int) ([]domain.SoldComp, error) {
	params := b.baseParams("findCompletedItems", query)
	addItemFilter(params, 0, "SoldItemsOnly", "true")
	if limit <= 0 {
		limit = config.DefaultCompsLimit
	}
	params.Set("paginationInput.entriesPerPage", strconv.Itoa(limit))

	items, err := b.fetchItems(ctx, params)
	if err != nil {
		return nil, err
	}

	comps := make([]domain.SoldComp, 0, len(items))
	for i := range items {
		item := &items[i]
		price, currency, ok := item.price()
		if !ok {
			continue
		}
		gbp, allowed := convertGBP(ctx, b.settings, b.converter, price, currency)
		if !allowed {
			continue
		}
		comps = append(comps, domain.SoldComp{
			PriceGBP: gbp,
			Title:    item.title(),
			URL:      item.viewURL(),
		})
	}
	return comps, nil
}

func (b *EbayAPI) baseParams(operation, query string) url.Values {
	params := url.Values{}
	params.Set("OPERATION-NAME", operation)
	params.Set("SERVICE-VERSION", "1.13.0")
	params.Set("SECURITY-APPNAME", b.appID)
	params.Set("RESPONSE-DATA-FORMAT", "JSON")
	params.Set("GLOBAL-ID", "EBAY-GB")
	params.Set("keywords", query)
	return params
}

func addItemFilter(params url.Values, index int, name string, values ...string) int {
	prefix := fmt.Sprintf("itemFilter(%d)", index)
	params.Set(prefix+".name", name)
	for i, v := range values {
		params.Set(fmt.Sprintf("%s.value(%d)", prefix, i), v)
	}
	return index + 1
}

// fetchItems issues the API call and unwraps eBay's deeply nested
// response envelope. A malformed payload yields zero items.
func (b *EbayAPI) fetchItems(ctx context.Context, params url.Values) ([]findingItem, error) {
	resp, err := b.client.Get(ctx, b.endpoint, params, fetch.Options{})
	if err != nil {
		return nil, err
	}

	var envelope map[string][]findingResponse
	if decodeErr := json.Unmarshal([]byte(resp.Body), &envelope); decodeErr != nil {
		b.log.Warn("failed to decode finding api response", "error", decodeErr)
		return nil, nil
	}
	for _, responses := range envelope {
		for _, r := range responses {
			if len(r.SearchResult) > 0 {
				return r.SearchResult[0].Item, nil
			}
		}
	}
	return nil, nil
}

func (b *EbayAPI) toListing(ctx context.Context, item *findingItem) (domain.Listing, bool) {
	title := item.title()
	id := item.itemID()
	if title == "" || id == "" {
		return domain.Listing{}, false
	}

	price, currency, ok := item.price()
	if !ok {
		return domain.Listing{}, false
	}
	priceGBP, allowed := convertGBP(ctx, b.settings, b.converter, price, currency)
	if !allowed {
		return domain.Listing{}, false
	}

	shipping, shipCurrency, shippingMissing := item.shipping()
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
	if shippingGBP == 0 && !shippingMissing {
		attrs[domain.AttrFreeShipping] = true
	}

	listing := domain.Listing{
		ExternalID:  fmt.Sprintf("%s:%s", ebayName, id),
		Title:       title,
		URL:         item.viewURL(),
		PriceGBP:    priceGBP,
		ShippingGBP: shippingGBP,
		SourceAttrs: attrs,
	}
	listing.RecomputeTotal()

	if cond := item.conditionName(); cond != "" {
		listing.Condition = &cond
	}
	if loc := first(item.Location); loc != "" {
		listing.Location = &loc
	}
	if img := first(item.GalleryURL); img != "" {
		listing.ImageURL = &img
	}
	if lt := item.listingType(); lt != "" {
		listing.ListingType = &lt
	}
	if start := item.startTime(); start != nil {
		listing.StartTime = start
	}
	if end := item.endTime(); end != nil {
		listing.EndTime = end
	}
	item.applySellerInfo(&listing)

	return listing, true
}

// Finding API response shapes. Every scalar arrives as a single-element
// string array.
type findingResponse struct {
	SearchResult []struct {
		Item []findingItem `json:"item"`
	} `json:"searchResult"`
}

type findingItem struct {
	ItemID        []string `json:"itemId"`
	Title         []string `json:"title"`
	ViewItemURL   []string `json:"viewItemURL"`
	GalleryURL    []string `json:"galleryURL"`
	Location      []string `json:"location"`
	SellingStatus []struct {
		CurrentPrice []struct {
			Value      string `json:"__value__"`
			CurrencyID string `json:"@currencyId"`
		} `json:"currentPrice"`
	} `json:"sellingStatus"`
	ShippingInfo []struct {
		ShippingServiceCost []struct {
			Value      string `json:"__value__"`
			CurrencyID string `json:"@currencyId"`
		} `json:"shippingServiceCost"`
		ShippingType []string `json:"shippingType"`
	} `json:"shippingInfo"`
	Condition []struct {
		ConditionDisplayName []string `json:"conditionDisplayName"`
	} `json:"condition"`
	ListingInfo []struct {
		ListingType []string `json:"listingType"`
		StartTime   []string `json:"startTime"`
		EndTime     []string `json:"endTime"`
	} `json:"listingInfo"`
	SellerInfo []struct {
		FeedbackScore           []string `json:"feedbackScore"`
		PositiveFeedbackPercent []string `json:"positiveFeedbackPercent"`
		TopRatedSeller          []string `json:"topRatedSeller"`
	} `json:"sellerInfo"`
	ReturnsAccepted []string `json:"returnsAccepted"`
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func (i *findingItem) itemID() string  { return first(i.ItemID) }
func (i *findingItem) title() string   { return first(i.Title) }
func (i *findingItem) viewURL() string { return first(i.ViewItemURL) }

func (i *findingItem) price() (float64, string, bool) {
	if len(i.SellingStatus) == 0 || len(i.SellingStatus[0].CurrentPrice) == 0 {
		return 0, "", false
	}
	cp := i.SellingStatus[0].CurrentPrice[0]
	amount, err := strconv.ParseFloat(cp.Value, 64)
	if err != nil || amount <= 0 {
		return 0, "", false
	}
	return amount, cp.CurrencyID, true
}

func (i *findingItem) shipping() (float64, string, bool) {
	if len(i.ShippingInfo) == 0 || len(i.ShippingInfo[0].ShippingServiceCost) == 0 {
		return 0, "", true
	}
	sc := i.ShippingInfo[0].ShippingServiceCost[0]
	amount, err := strconv.ParseFloat(sc.Value, 64)
	if err != nil {
		return 0, "", true
	}
	return amount, sc.CurrencyID, false
}

func (i *findingItem) conditionName() string {
	if len(i.Condition) == 0 {
		return ""
	}
	return first(i.Condition[0].ConditionDisplayName)
}

func (i *findingItem) listingType() string {
	if len(i.ListingInfo) == 0 {
		return ""
	}
	switch first(i.ListingInfo[0].ListingType) {
	case "Auction", "AuctionWithBIN":
		return "auction"
	case "FixedPrice", "StoreInventory":
		return "fixed"
	default:
		return ""
	}
}

func (i *findingItem) startTime() *time.Time {
	if len(i.ListingInfo) == 0 {
		return nil
	}
	return parseAPITime(first(i.ListingInfo[0].StartTime))
}

func (i *findingItem) endTime() *time.Time {
	if len(i.ListingInfo) == 0 {
		return nil
	}
	return parseAPITime(first(i.ListingInfo[0].EndTime))
}

func parseAPITime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

func (i *findingItem) applySellerInfo(listing *domain.Listing) {
	if accepted := first(i.ReturnsAccepted); accepted != "" {
		v := strings.EqualFold(accepted, "true")
		listing.ReturnsAccepted = &v
	}
	if len(i.SellerInfo) == 0 {
		return
	}
	if score, err := strconv.ParseInt(first(i.SellerInfo[0].FeedbackScore), 10, 64); err == nil {
		listing.SellerFeedbackScore = &score
	}
	if pct, err := strconv.ParseFloat(first(i.SellerInfo[0].PositiveFeedbackPercent), 64); err == nil {
		listing.SellerFeedbackPct = &pct
	}
}
