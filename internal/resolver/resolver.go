package resolver

import (
	"context"
	"errors"
	"sync"

	"github.com/Wsquare5/notion-dashboard/internal/model"
	"github.com/Wsquare5/notion-dashboard/logger"
)

// ErrNotFound means no provider knows the symbol. Callers fall back to
// whatever supply data the dashboard already holds.
var ErrNotFound = errors.New("identity not found")

type provider interface {
	Lookup(ctx context.Context, key string) (*model.IdentityRecord, error)
}

// Resolver answers identity and supply lookups for base symbols. It tries
// CoinMarketCap by ticker first and falls back to CoinGecko through the id
// mapping file. Results are cached for the lifetime of the resolver, which
// in practice is one run.
type Resolver struct {
	cmc     provider
	gecko   provider
	mapping map[string]string
	log     *logger.Entry

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	rec *model.IdentityRecord
	err error
}

func New(cmc, gecko provider, mapping map[string]string, log *logger.Log) *Resolver {
	if mapping == nil {
		mapping = map[string]string{}
	}
	return &Resolver{
		cmc:     cmc,
		gecko:   gecko,
		mapping: mapping,
		log:     log.WithComponent("resolver"),
		cache:   make(map[string]cacheEntry),
	}
}

// Mapped reports whether the symbol has a CoinGecko id mapping. Unmapped
// symbols can still resolve through the ticker search on CoinMarketCap.
func (r *Resolver) Mapped(symbol string) bool {
	coin, _ := model.SplitMultiplier(symbol)
	_, ok := r.mapping[coin]
	return ok
}

// Resolve returns the identity record for a base symbol. Contract
// multiplier prefixes are stripped before querying providers, so 1000PEPE
// resolves as PEPE.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (*model.IdentityRecord, error) {
	coin, _ := model.SplitMultiplier(symbol)

	r.mu.Lock()
	if hit, ok := r.cache[coin]; ok {
		r.mu.Unlock()
		return hit.rec, hit.err
	}
	r.mu.Unlock()

	rec, err := r.lookup(ctx, coin)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// Transient provider failures are not cached; the next symbol
		// sharing the coin retries.
		return nil, err
	}

	r.mu.Lock()
	r.cache[coin] = cacheEntry{rec: rec, err: err}
	r.mu.Unlock()
	return rec, err
}

func (r *Resolver) lookup(ctx context.Context, coin string) (*model.IdentityRecord, error) {
	rec, err := r.cmc.Lookup(ctx, coin)
	if err == nil {
		if id, ok := r.mapping[coin]; ok {
			rec.CoinGeckoID = id
		}
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		r.log.WithFields(logger.Fields{"symbol": coin}).WithError(err).Warn("coinmarketcap lookup failed, trying coingecko")
	}

	id, ok := r.mapping[coin]
	if !ok {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec, gerr := r.gecko.Lookup(ctx, id)
	if gerr != nil {
		return nil, gerr
	}
	return rec, nil
}
