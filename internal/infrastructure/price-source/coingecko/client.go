package coingeckosource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/price-publisher/pkg/circuitbreaker"
	"github.com/tdex-network/price-publisher/pkg/httputil"
	"golang.org/x/time/rate"
)

const (
	// DefaultEndpoint is the base url of the public CoinGecko API.
	DefaultEndpoint = "https://api.coingecko.com/api/v3"
	// DefaultMaxIDsPerRequest is the max number of ids sent in a single query.
	DefaultMaxIDsPerRequest = 250

	pricePrecision = 18
	apiKeyHeader   = "x-cg-pro-api-key"
)

// ClientOpts defines the parameters to create a CoinGecko client.
type ClientOpts struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// MaxIDsPerRequest splits queries for many ids into smaller ones.
	MaxIDsPerRequest int
	// RequestsPerSecond paces the queries, zero means unlimited.
	RequestsPerSecond float64
}

// Client queries the simple price endpoint of the CoinGecko REST API.
type Client struct {
	endpoint         string
	apiKey           string
	maxIDsPerRequest int
	httpClient       *httputil.Client
	limiter          *rate.Limiter
	cb               *gobreaker.CircuitBreaker
}

// NewClient returns a new CoinGecko client.
func NewClient(opts ClientOpts) (*Client, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid CoinGecko endpoint: %w", err)
	}

	maxIDs := opts.MaxIDsPerRequest
	if maxIDs <= 0 {
		maxIDs = DefaultMaxIDsPerRequest
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		endpoint:         strings.TrimSuffix(endpoint, "/"),
		apiKey:           opts.APIKey,
		maxIDsPerRequest: maxIDs,
		httpClient:       httputil.NewClient(opts.Timeout),
		limiter:          rate.NewLimiter(limit, 1),
		cb:               circuitbreaker.NewCircuitBreaker("coingecko"),
	}, nil
}

// GetPrices returns the price of every given CoinGecko id in the given
// currency. Ids unknown to CoinGecko are missing from the result.
func (c *Client) GetPrices(
	ctx context.Context, ids []string, vsCurrency string,
) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(ids))

	for start := 0; start < len(ids); start += c.maxIDsPerRequest {
		end := start + c.maxIDsPerRequest
		if end > len(ids) {
			end = len(ids)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		iPrices, err := c.cb.Execute(func() (interface{}, error) {
			return c.getPrices(ctx, ids[start:end], vsCurrency)
		})
		if err != nil {
			return nil, err
		}

		for id, price := range iPrices.(map[string]decimal.Decimal) {
			prices[id] = price
		}
	}

	return prices, nil
}

func (c *Client) getPrices(
	ctx context.Context, ids []string, vsCurrency string,
) (map[string]decimal.Decimal, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", vsCurrency)
	query.Set("precision", fmt.Sprintf("%d", pricePrecision))
	reqURL := fmt.Sprintf("%s/simple/price?%s", c.endpoint, query.Encode())

	headers := map[string]string{"Accept": "application/json"}
	if c.apiKey != "" {
		headers[apiKeyHeader] = c.apiKey
	}

	status, body, err := c.httpClient.NewHTTPRequest(
		ctx, http.MethodGet, reqURL, "", headers,
	)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("CoinGecko responded with status %d: %s", status, body)
	}

	return parsePrices([]byte(body), vsCurrency)
}

func parsePrices(body []byte, vsCurrency string) (map[string]decimal.Decimal, error) {
	var resp map[string]map[string]json.Number
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("malformed CoinGecko response: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(resp))
	for id, pricesByCurrency := range resp {
		rawPrice, ok := pricesByCurrency[vsCurrency]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(rawPrice.String())
		if err != nil {
			return nil, fmt.Errorf("malformed price %s for id %s: %w", rawPrice, id, err)
		}
		prices[id] = price
	}
	return prices, nil
}
