// Package market is the client of the external CS:GO marketplace API.
// Every call passes through one shared token bucket and fails soft: the
// result is an Outcome, never a panic or an unwrapped transport error.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"case-market/internal/config"
)

// Defaults used when the configuration leaves a value empty.
const (
	DefaultBaseURL    = "https://market.csgo.com/api/v2"
	DefaultPricesURL  = "https://market.csgo.com/api/v2/prices/USD.json"
	DefaultRate       = 5
	DefaultBurst      = 5
	DefaultTimeout    = 10 * time.Second
	DefaultBuyTimeout = 15 * time.Second
)

// Limiter blocks until one more call is allowed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewLimiter returns a token bucket of capacity burst refilled at perSecond.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// BuyRequest is the input of BuyFor.
type BuyRequest struct {
	HashName   string
	PriceCents int64
	Partner    string
	Token      string
	CustomID   string
}

// Client calls the marketplace API.
type Client struct {
	baseURL   string
	pricesURL string
	apiKey    string
	http      *http.Client
	buyHTTP   *http.Client
	limiter   Limiter
}

// NewClient creates a Client. The limiter is shared by every caller of the
// returned client and must not be nil.
func NewClient(cfg config.MarketConfig, limiter Limiter) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		pricesURL: cfg.PricesURL,
		apiKey:    cfg.APIKey,
		limiter:   limiter,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.pricesURL == "" {
		c.pricesURL = DefaultPricesURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	buyTimeout := cfg.BuyTimeout
	if buyTimeout <= 0 {
		buyTimeout = DefaultBuyTimeout
	}
	c.http = &http.Client{Timeout: timeout}
	c.buyHTTP = &http.Client{Timeout: buyTimeout}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	ID      flexString      `json:"id"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) reason() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Message != "" {
		return e.Message
	}
	return "success=false"
}

// do waits for the limiter, performs a GET and decodes the JSON body into out.
// Any failure on the way is reported as ErrUnavailable.
func (c *Client) do(ctx context.Context, hc *http.Client, endpoint, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: rate limiter: %v", ErrUnavailable, endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		// The transport error can contain the full URL with the key.
		return fmt.Errorf("%w: %s: request failed", ErrUnavailable, endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: http %d", ErrUnavailable, endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrUnavailable, endpoint, err)
	}
	return nil
}

func (c *Client) endpoint(name string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", c.apiKey)
	return c.baseURL + "/" + name + "?" + params.Encode()
}

func logFailure(endpoint string, err error) {
	log.Warn().Err(err).Str("endpoint", endpoint).Msg("Marketplace call failed")
}

// LowestPrice returns the cheapest live listing of hashName in cents.
func (c *Client) LowestPrice(ctx context.Context, hashName string) Outcome[int64] {
	const name = "search-list"

	var env envelope
	params := url.Values{"hash_name": {hashName}, "needed": {"1"}}
	if err := c.do(ctx, c.http, name, c.endpoint(name, params), &env); err != nil {
		logFailure(name, err)
		return fail[int64](err)
	}
	if !env.Success {
		err := fmt.Errorf("%w: %s: %s", ErrRejected, name, env.reason())
		logFailure(name, err)
		return fail[int64](err)
	}

	var data struct {
		List []struct {
			Price json.Number `json:"price"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fail[int64](fmt.Errorf("%w: %s: decode list: %v", ErrUnavailable, name, err))
	}
	if len(data.List) == 0 {
		log.Info().Str("hash_name", hashName).Msg("No marketplace listings")
		return fail[int64](fmt.Errorf("%w: %s: no listings", ErrRejected, name))
	}

	price, err := data.List[0].Price.Int64()
	if err != nil {
		return fail[int64](fmt.Errorf("%w: %s: price %q", ErrUnavailable, name, data.List[0].Price))
	}
	return ok(price)
}

// BuyFor asks the marketplace to buy hashName and send it to the trade
// partner. An accepted request always carries an offer id.
func (c *Client) BuyFor(ctx context.Context, r BuyRequest) Outcome[BuyResult] {
	const name = "buy-for"

	params := url.Values{
		"hash_name": {r.HashName},
		"price":     {fmt.Sprintf("%d", r.PriceCents)},
		"partner":   {r.Partner},
		"token":     {r.Token},
	}
	if r.CustomID != "" {
		params.Set("custom_id", r.CustomID)
	}

	var env envelope
	if err := c.do(ctx, c.buyHTTP, name, c.endpoint(name, params), &env); err != nil {
		logFailure(name, err)
		return fail[BuyResult](err)
	}
	if !env.Success {
		err := fmt.Errorf("%w: %s: %s", ErrRejected, name, env.reason())
		logFailure(name, err)
		return fail[BuyResult](err)
	}

	offerID := string(env.ID)
	if offerID == "" && len(env.Data) > 0 {
		var data struct {
			OfferID flexString `json:"offer_id"`
		}
		if err := json.Unmarshal(env.Data, &data); err == nil {
			offerID = string(data.OfferID)
		}
	}
	if offerID == "" {
		err := fmt.Errorf("%w: %s: no offer id", ErrRejected, name)
		logFailure(name, err)
		return fail[BuyResult](err)
	}
	return ok(BuyResult{OfferID: offerID})
}

// BuyInfo returns the status of one request by correlation id.
func (c *Client) BuyInfo(ctx context.Context, customID string) Outcome[BuyInfo] {
	const name = "get-buy-info-by-custom-id"

	var env envelope
	if err := c.do(ctx, c.http, name, c.endpoint(name, url.Values{"custom_id": {customID}}), &env); err != nil {
		logFailure(name, err)
		return fail[BuyInfo](err)
	}
	if !env.Success {
		return fail[BuyInfo](fmt.Errorf("%w: %s: %s", ErrRejected, name, env.reason()))
	}

	var info BuyInfo
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &info); err != nil {
			return fail[BuyInfo](fmt.Errorf("%w: %s: decode: %v", ErrUnavailable, name, err))
		}
	}
	return ok(info)
}

// BatchBuyInfo returns statuses keyed by correlation id. Ids the
// marketplace does not know are absent from the map.
func (c *Client) BatchBuyInfo(ctx context.Context, customIDs []string) Outcome[map[string]BuyInfo] {
	const name = "get-list-buy-info-by-custom-id"

	if len(customIDs) == 0 {
		return ok(map[string]BuyInfo{})
	}

	params := url.Values{"custom_id[]": customIDs}
	var env envelope
	if err := c.do(ctx, c.http, name, c.endpoint(name, params), &env); err != nil {
		logFailure(name, err)
		return fail[map[string]BuyInfo](err)
	}
	if !env.Success {
		err := fmt.Errorf("%w: %s: %s", ErrRejected, name, env.reason())
		logFailure(name, err)
		return fail[map[string]BuyInfo](err)
	}

	infos := map[string]BuyInfo{}
	// An empty result is sometimes encoded as [] instead of {}.
	trimmed := strings.TrimSpace(string(env.Data))
	if trimmed == "" || trimmed == "null" || strings.HasPrefix(trimmed, "[") {
		return ok(infos)
	}
	if err := json.Unmarshal(env.Data, &infos); err != nil {
		return fail[map[string]BuyInfo](fmt.Errorf("%w: %s: decode: %v", ErrUnavailable, name, err))
	}
	return ok(infos)
}

// Prices downloads the full price list, keyed by market hash name.
func (c *Client) Prices(ctx context.Context) Outcome[map[string]decimal.Decimal] {
	const name = "prices"

	var body struct {
		Items []struct {
			MarketHashName string           `json:"market_hash_name"`
			Price          *decimal.Decimal `json:"price"`
		} `json:"items"`
	}
	if err := c.do(ctx, c.http, name, c.pricesURL, &body); err != nil {
		logFailure(name, err)
		return fail[map[string]decimal.Decimal](err)
	}

	prices := make(map[string]decimal.Decimal, len(body.Items))
	for _, it := range body.Items {
		if it.MarketHashName == "" || it.Price == nil {
			continue
		}
		prices[it.MarketHashName] = *it.Price
	}
	return ok(prices)
}
