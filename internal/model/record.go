package model

import "time"

// DataStatus records how complete the last write for a symbol was.
type DataStatus string

const (
	StatusComplete DataStatus = "complete"
	StatusPartial  DataStatus = "partial"
	StatusError    DataStatus = "error"
)

// FundingCycle is the settlement interval bucket in hours. Zero means the
// interval could not be determined.
type FundingCycle int

const FundingCycleUnknown FundingCycle = 0

// BucketFundingCycle maps an observed settlement spacing to the nearest
// known Binance funding cycle. Anything outside the recognised bands is
// reported as unknown rather than guessed.
func BucketFundingCycle(hours float64) FundingCycle {
	switch {
	case hours >= 0.5 && hours <= 1.5:
		return 1
	case hours >= 3.5 && hours <= 4.5:
		return 4
	case hours >= 7.5 && hours <= 8.5:
		return 8
	default:
		return FundingCycleUnknown
	}
}

// IdentityRecord is the semi-static supply and naming metadata resolved from
// CoinMarketCap or CoinGecko. Pointer fields distinguish "provider returned
// null" from zero.
type IdentityRecord struct {
	Name              string
	CirculatingSupply *float64
	TotalSupply       *float64
	MaxSupply         *float64
	LogoURL           string
	Website           string
	CoinGeckoID       string

	// Source names the provider that answered, for the data-flow log.
	Source string
}

// StaticFieldSet groups the exchange-derived fields that change rarely and
// are only rewritten at tier STATIC or above.
type StaticFieldSet struct {
	FundingCycle     FundingCycle
	Categories       []string
	IndexComposition string
}

// RemoteRecord mirrors one row of the remote dashboard database. At most one
// record exists per symbol; the bulk index load at run start is the only
// existence check the pipeline performs before writing.
type RemoteRecord struct {
	Symbol string
	// PageID is the remote store's internal identifier, required for
	// updates. Empty only on records that have never been written.
	PageID string

	Name              string
	CirculatingSupply *float64
	TotalSupply       *float64
	MaxSupply         *float64

	FundingCycle     FundingCycle
	Categories       []string
	IndexComposition string

	SpotPrice *float64
	PerpPrice *float64

	LastUpdated time.Time
	Status      DataStatus
}
