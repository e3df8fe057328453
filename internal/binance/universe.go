package binance

import (
	"context"
	"sort"
	"strings"

	bn "github.com/adshao/go-binance/v2"
	futures "github.com/adshao/go-binance/v2/futures"

	"github.com/Wsquare5/notion-dashboard/config"
	"github.com/Wsquare5/notion-dashboard/logger"
)

// SymbolInfo describes one tradable base asset discovered from exchange
// info. Base is the coin name with any contract multiplier prefix still
// attached (stripping happens at valuation time).
type SymbolInfo struct {
	Base       string
	PerpPair   string
	HasSpot    bool
	Categories []string
}

// Universe is the set of USDT perpetual bases currently trading, plus the
// account request-weight limit reported by the exchange.
type Universe struct {
	Symbols         []SymbolInfo
	WeightPerMinute int
}

// Lookup returns the info for a base symbol.
func (u *Universe) Lookup(base string) (SymbolInfo, bool) {
	for _, s := range u.Symbols {
		if s.Base == base {
			return s, true
		}
	}
	return SymbolInfo{}, false
}

// UniverseLoader discovers the symbol universe from the spot and futures
// exchange info endpoints.
type UniverseLoader struct {
	spot    *bn.Client
	futures *futures.Client
	gate    weightGate
	weights config.WeightConfig
	log     *logger.Entry
}

func NewUniverseLoader(spot *bn.Client, fut *futures.Client, gate weightGate, weights config.WeightConfig, log *logger.Log) *UniverseLoader {
	return &UniverseLoader{
		spot:    spot,
		futures: fut,
		gate:    gate,
		weights: weights,
		log:     log.WithComponent("universe"),
	}
}

// Load fetches both exchange info documents and intersects them. Perp
// listing is authoritative; spot presence only widens what gets fetched per
// symbol.
func (l *UniverseLoader) Load(ctx context.Context) (*Universe, error) {
	release, err := l.gate.Acquire(ctx, int64(l.weights.ExchangeInfo))
	if err != nil {
		return nil, err
	}
	futInfo, err := l.futures.NewExchangeInfoService().Do(ctx)
	release()
	if err != nil {
		return nil, err
	}

	release, err = l.gate.Acquire(ctx, int64(l.weights.ExchangeInfo))
	if err != nil {
		return nil, err
	}
	spotInfo, err := l.spot.NewExchangeInfoService().Do(ctx)
	release()
	if err != nil {
		return nil, err
	}

	spotPairs := make(map[string]bool, len(spotInfo.Symbols))
	for _, s := range spotInfo.Symbols {
		if s.Status == "TRADING" && s.QuoteAsset == "USDT" {
			spotPairs[s.Symbol] = true
		}
	}

	u := &Universe{}
	for _, s := range futInfo.Symbols {
		if s.ContractType != "PERPETUAL" || s.Status != "TRADING" {
			continue
		}
		if s.QuoteAsset != "USDT" || !strings.HasSuffix(s.Symbol, "USDT") {
			continue
		}
		base := strings.TrimSuffix(s.Symbol, "USDT")
		u.Symbols = append(u.Symbols, SymbolInfo{
			Base:       base,
			PerpPair:   s.Symbol,
			HasSpot:    spotPairs[s.Symbol],
			Categories: append([]string(nil), s.UnderlyingSubType...),
		})
	}
	sort.Slice(u.Symbols, func(i, j int) bool { return u.Symbols[i].Base < u.Symbols[j].Base })

	for _, rl := range futInfo.RateLimits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" {
			u.WeightPerMinute = int(rl.Limit)
		}
	}

	l.log.WithFields(logger.Fields{
		"perp_symbols": len(u.Symbols),
		"weight_limit": u.WeightPerMinute,
	}).Info("symbol universe loaded")
	return u, nil
}
