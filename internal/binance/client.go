package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Wsquare5/notion-dashboard/config"
	"github.com/Wsquare5/notion-dashboard/internal/model"
	"github.com/Wsquare5/notion-dashboard/logger"
)

// weightGate is the slice of the rate governor the client needs.
type weightGate interface {
	Acquire(ctx context.Context, cost int64) (func(), error)
	ReportLockout(until time.Time)
}

// TickerCache serves recent ticker data from a push stream, saving the REST
// ticker weight when a fresh point exists.
type TickerCache interface {
	Ticker(pair string) (price, changePct, quoteVolume float64, ok bool)
}

// FetchRequest describes one symbol fetch. HasSpot gates the spot ticker
// call; IncludeStatic adds funding cycle and index composition lookups.
type FetchRequest struct {
	Symbol        string
	HasSpot       bool
	IncludeStatic bool
}

// Client fetches market data from the Binance spot and futures REST APIs.
// Every request passes through the weight gate first.
type Client struct {
	spotURL    string
	futuresURL string
	http       *http.Client
	gate       weightGate
	weights    config.WeightConfig
	tickers    TickerCache
	log        *logger.Entry
	now        func() time.Time
}

func NewClient(cfg config.BinanceConfig, gate weightGate, log *logger.Log) *Client {
	return &Client{
		spotURL:    cfg.SpotURL,
		futuresURL: cfg.FuturesURL,
		http:       &http.Client{Timeout: cfg.Timeout},
		gate:       gate,
		weights:    cfg.Weights,
		log:        log.WithComponent("binance"),
		now:        time.Now,
	}
}

// SetTickerCache enables serving perp tickers from a live stream instead of
// the REST endpoint when the cached point is fresh.
func (c *Client) SetTickerCache(cache TickerCache) {
	c.tickers = cache
}

// Fetch collects the market snapshot for one symbol. The perp ticker,
// premium index and open interest always load; spot and static fields load
// per the request flags. A missing spot listing degrades to perp-only
// rather than failing the symbol.
func (c *Client) Fetch(ctx context.Context, req FetchRequest) (*model.MarketSnapshot, error) {
	pair := req.Symbol + "USDT"
	snap := &model.MarketSnapshot{Symbol: req.Symbol, FetchedAt: c.now()}

	perp, err := c.perpTicker(ctx, pair)
	if err != nil {
		return nil, err
	}
	snap.Perp = perp

	premium, err := c.premiumIndex(ctx, pair)
	if err != nil {
		return nil, err
	}
	snap.MarkPrice = float64(premium.MarkPrice)
	snap.IndexPrice = float64(premium.IndexPrice)
	snap.FundingRate = float64(premium.LastFundingRate)
	snap.HasFunding = true

	oi, err := c.openInterest(ctx, pair)
	if err != nil {
		if !model.IsLockout(err) {
			c.log.WithFields(logger.Fields{"symbol": req.Symbol}).WithError(err).Warn("open interest unavailable")
		} else {
			return nil, err
		}
	} else {
		snap.OpenInterest = float64(oi.OpenInterest)
		snap.OpenInterestUSD = float64(oi.OpenInterest) * snap.MarkPrice
		snap.HasOpenInterest = true
	}

	if req.HasSpot {
		spot, err := c.spotTicker(ctx, pair)
		switch {
		case err == nil:
			snap.Spot = spot
		case model.IsLockout(err):
			return nil, err
		default:
			c.log.WithFields(logger.Fields{"symbol": req.Symbol}).WithError(err).Warn("spot ticker unavailable")
		}
	}

	if req.IncludeStatic {
		if err := c.fetchStatic(ctx, pair, snap); err != nil {
			return nil, err
		}
	}

	return snap, nil
}

func (c *Client) fetchStatic(ctx context.Context, pair string, snap *model.MarketSnapshot) error {
	hours, err := c.fundingInterval(ctx, pair)
	switch {
	case err == nil:
		snap.FundingIntervalHours = hours
	case model.IsLockout(err):
		return err
	default:
		c.log.WithFields(logger.Fields{"symbol": snap.Symbol}).WithError(err).Warn("funding interval unavailable")
	}

	cons, err := c.constituents(ctx, pair)
	switch {
	case err == nil:
		snap.Constituents = cons
	case model.IsLockout(err):
		return err
	default:
		// Most symbols have no index constituents endpoint data.
		c.log.WithFields(logger.Fields{"symbol": snap.Symbol}).WithError(err).Debug("constituents unavailable")
	}
	return nil
}

func (c *Client) perpTicker(ctx context.Context, pair string) (*model.PerpTicker, error) {
	if c.tickers != nil {
		if price, change, volume, ok := c.tickers.Ticker(pair); ok {
			return &model.PerpTicker{Price: price, Change24h: change, Volume24h: volume}, nil
		}
	}

	var resp perpTickerResponse
	if err := c.get(ctx, c.futuresURL, "/fapi/v1/ticker/24hr", pair, c.weights.Ticker, &resp); err != nil {
		return nil, err
	}
	return &model.PerpTicker{
		Price:     float64(resp.LastPrice),
		Change24h: float64(resp.PriceChangePercent),
		Volume24h: float64(resp.QuoteVolume),
	}, nil
}

func (c *Client) spotTicker(ctx context.Context, pair string) (*model.SpotTicker, error) {
	var resp spotTickerResponse
	if err := c.get(ctx, c.spotURL, "/api/v3/ticker/24hr", pair, c.weights.Ticker, &resp); err != nil {
		return nil, err
	}
	return &model.SpotTicker{
		Price:     float64(resp.LastPrice),
		Change24h: float64(resp.PriceChangePercent),
		Volume24h: float64(resp.QuoteVolume),
	}, nil
}

func (c *Client) premiumIndex(ctx context.Context, pair string) (*premiumIndexResponse, error) {
	var resp premiumIndexResponse
	if err := c.get(ctx, c.futuresURL, "/fapi/v1/premiumIndex", pair, c.weights.PremiumIndex, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) openInterest(ctx context.Context, pair string) (*openInterestResponse, error) {
	var resp openInterestResponse
	if err := c.get(ctx, c.futuresURL, "/fapi/v1/openInterest", pair, c.weights.OpenInterest, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// fundingInterval observes the spacing of the two most recent funding
// settlements in hours. New listings with fewer than two settlements report
// zero and the caller falls back to whatever it already knows.
func (c *Client) fundingInterval(ctx context.Context, pair string) (float64, error) {
	var entries []fundingRateEntry
	url := fmt.Sprintf("%s/fapi/v1/fundingRate?symbol=%s&limit=2", c.futuresURL, pair)
	if err := c.getURL(ctx, url, pair, "/fapi/v1/fundingRate", c.weights.FundingRate, &entries); err != nil {
		return 0, err
	}
	if len(entries) < 2 {
		return 0, nil
	}
	gap := time.Duration(entries[1].FundingTime-entries[0].FundingTime) * time.Millisecond
	return gap.Hours(), nil
}

func (c *Client) constituents(ctx context.Context, pair string) ([]model.IndexConstituent, error) {
	var resp constituentsResponse
	if err := c.get(ctx, c.futuresURL, "/fapi/v1/constituents", pair, c.weights.Constituents, &resp); err != nil {
		return nil, err
	}
	out := make([]model.IndexConstituent, 0, len(resp.Constituents))
	for _, con := range resp.Constituents {
		out = append(out, model.IndexConstituent{
			Exchange: con.Exchange,
			Weight:   float64(con.Weight),
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, base, path, pair string, cost int, out interface{}) error {
	return c.getURL(ctx, base+path+"?symbol="+pair, pair, path, cost, out)
}

func (c *Client) getURL(ctx context.Context, url, pair, endpoint string, cost int, out interface{}) error {
	release, err := c.gate.Acquire(ctx, int64(cost))
	if err != nil {
		return err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &model.FetchError{Symbol: pair, Endpoint: endpoint, Kind: model.ErrKindNetwork, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &model.FetchError{Symbol: pair, Endpoint: endpoint, Kind: model.ErrKindNetwork, Err: err}
	}
	defer resp.Body.Close()

	c.recordUsedWeight(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.FetchError{Symbol: pair, Endpoint: endpoint, Kind: model.ErrKindNetwork, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTeapot || resp.StatusCode == http.StatusTooManyRequests:
		until := c.lockoutDeadline(resp)
		c.gate.ReportLockout(until)
		return &model.FetchError{
			Symbol: pair, Endpoint: endpoint, Kind: model.ErrKindLockout,
			Err: &model.LockoutError{Until: until},
		}
	case resp.StatusCode == http.StatusNotFound:
		return &model.FetchError{
			Symbol: pair, Endpoint: endpoint, Kind: model.ErrKindNotFound,
			Err: fmt.Errorf("http 404"),
		}
	case resp.StatusCode != http.StatusOK:
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code == -1121 {
			return &model.FetchError{
				Symbol: pair, Endpoint: endpoint, Kind: model.ErrKindNotFound,
				Err: fmt.Errorf("invalid symbol"),
			}
		}
		return &model.FetchError{
			Symbol: pair, Endpoint: endpoint, Kind: model.ErrKindNetwork,
			Err: fmt.Errorf("http %d: %s", resp.StatusCode, truncate(body, 200)),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &model.FetchError{Symbol: pair, Endpoint: endpoint, Kind: model.ErrKindMalformed, Err: err}
	}
	return nil
}

func (c *Client) lockoutDeadline(resp *http.Response) time.Time {
	retryAfter := 60 * time.Second
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return c.now().Add(retryAfter)
}

func (c *Client) recordUsedWeight(resp *http.Response) {
	v := resp.Header.Get("X-MBX-USED-WEIGHT-1M")
	if v == "" {
		return
	}
	used, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	c.log.LogMetric("binance", "used_weight_1m", used, "gauge", nil)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
