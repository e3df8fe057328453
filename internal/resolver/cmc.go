package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/Wsquare5/notion-dashboard/internal/model"
	"github.com/Wsquare5/notion-dashboard/logger"
)

// CMCClient looks up supply metadata on the CoinMarketCap pro API. Calls are
// paced by a limiter sized for the free-tier quota.
type CMCClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Entry
}

func NewCMCClient(baseURL, apiKey string, interval time.Duration, log *logger.Log) *CMCClient {
	return &CMCClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		log:     log.WithComponent("resolver_cmc"),
	}
}

type cmcQuoteResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string][]struct {
		Name              string   `json:"name"`
		Slug              string   `json:"slug"`
		CirculatingSupply *float64 `json:"circulating_supply"`
		TotalSupply       *float64 `json:"total_supply"`
		MaxSupply         *float64 `json:"max_supply"`
	} `json:"data"`
}

// Lookup resolves one base symbol. Returns ErrNotFound when the provider
// does not know the symbol.
func (c *CMCClient) Lookup(ctx context.Context, symbol string) (*model.IdentityRecord, error) {
	if c.apiKey == "" {
		return nil, ErrNotFound
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/v2/cryptocurrency/quotes/latest?symbol=%s", c.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coinmarketcap http %d", resp.StatusCode)
	}

	var body cmcQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("coinmarketcap decode: %w", err)
	}
	if body.Status.ErrorCode != 0 {
		return nil, fmt.Errorf("coinmarketcap error %d: %s", body.Status.ErrorCode, body.Status.ErrorMessage)
	}

	entries := body.Data[symbol]
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	// Multiple tokens can share a ticker; the first entry is the highest
	// ranked one.
	e := entries[0]
	return &model.IdentityRecord{
		Name:              e.Name,
		CirculatingSupply: e.CirculatingSupply,
		TotalSupply:       e.TotalSupply,
		MaxSupply:         e.MaxSupply,
		Source:            "coinmarketcap",
	}, nil
}
