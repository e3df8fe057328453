package diff

import (
	"time"

	"github.com/Wsquare5/notion-dashboard/internal/model"
)

// Payload is one symbol's pending write, split into the field groups that
// the update tiers gate. Market fields are always present; Static and
// Supply are nil below their tier.
type Payload struct {
	Symbol string
	Tier   model.UpdateTier

	Market MarketFields
	Static *StaticFields
	Supply *SupplyFields

	Status model.DataStatus
	At     time.Time
}

// MarketFields are rewritten on every run. Nil pointers leave the remote
// value untouched rather than clearing it.
type MarketFields struct {
	SpotPrice       *float64
	PerpPrice       *float64
	PriceChange     *float64
	SpotVolume      *float64
	PerpVolume      *float64
	OpenInterestUSD *float64
	Funding         *float64
	Basis           *float64

	// MarketCap and FDV are derived from price and supply. The price side
	// moves every run, so they belong here rather than with the supply
	// group; supplies come from the prior record when this run did not
	// resolve them.
	MarketCap *float64
	FDV       *float64
}

// StaticFields change rarely and are only refreshed at the static tier or
// above.
type StaticFields struct {
	FundingCycle     model.FundingCycle
	Categories       []string
	IndexComposition string
}

// SupplyFields carry the resolved identity and supply metadata, written at
// the full tier only.
type SupplyFields struct {
	Name              string
	CirculatingSupply *float64
	TotalSupply       *float64
	MaxSupply         *float64
	CoinGeckoID       string
	Website           string
	LogoURL           string
}
