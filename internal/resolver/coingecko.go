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

// CoinGeckoClient looks up supply and identity metadata by CoinGecko coin
// id. The public API throttles hard, so the limiter default is conservative.
type CoinGeckoClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Entry
}

func NewCoinGeckoClient(baseURL string, interval time.Duration, log *logger.Log) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		log:     log.WithComponent("resolver_coingecko"),
	}
}

type geckoCoinResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MarketData struct {
		CirculatingSupply *float64 `json:"circulating_supply"`
		TotalSupply       *float64 `json:"total_supply"`
		MaxSupply         *float64 `json:"max_supply"`
	} `json:"market_data"`
	Image struct {
		Large string `json:"large"`
	} `json:"image"`
	Links struct {
		Homepage []string `json:"homepage"`
	} `json:"links"`
}

// Lookup resolves one coin by its CoinGecko id.
func (c *CoinGeckoClient) Lookup(ctx context.Context, id string) (*model.IdentityRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/coins/%s?localization=false&tickers=false&market_data=true&community_data=false&developer_data=false",
		c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("coingecko throttled")
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("coingecko http %d", resp.StatusCode)
	}

	var body geckoCoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("coingecko decode: %w", err)
	}

	rec := &model.IdentityRecord{
		Name:              body.Name,
		CirculatingSupply: body.MarketData.CirculatingSupply,
		TotalSupply:       body.MarketData.TotalSupply,
		MaxSupply:         body.MarketData.MaxSupply,
		LogoURL:           body.Image.Large,
		CoinGeckoID:       body.ID,
		Source:            "coingecko",
	}
	if len(body.Links.Homepage) > 0 {
		rec.Website = body.Links.Homepage[0]
	}
	return rec, nil
}
