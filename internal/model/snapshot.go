package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SpotTicker holds the 24h spot market stats for one symbol.
type SpotTicker struct {
	Price     float64
	Change24h float64
	Volume24h float64
}

// PerpTicker holds the 24h perpetual futures stats for one symbol.
type PerpTicker struct {
	Price     float64
	Change24h float64
	Volume24h float64
}

// IndexConstituent is one exchange's weight inside the perp index price.
type IndexConstituent struct {
	Exchange string
	Weight   float64
}

// MarketSnapshot is the ephemeral per-run view of one symbol's market data.
// It is owned by the fetch step that produced it until merged into an update
// payload; nothing here is persisted directly.
type MarketSnapshot struct {
	Symbol string

	// Spot is nil for perp-only listings or when the spot fetch failed.
	Spot *SpotTicker
	Perp *PerpTicker

	MarkPrice   float64
	IndexPrice  float64
	FundingRate float64
	HasFunding  bool

	// OpenInterest is denominated in tokens, OpenInterestUSD in quote
	// currency using the perp price at fetch time.
	OpenInterest    float64
	OpenInterestUSD float64
	HasOpenInterest bool

	// FundingIntervalHours is the observed spacing between the two most
	// recent funding settlements. Zero when history was unavailable.
	FundingIntervalHours float64

	Constituents []IndexConstituent

	FetchedAt time.Time
}

// PreferredPrice returns the price used for valuations, preferring the perp
// price over spot when both exist.
func (s *MarketSnapshot) PreferredPrice() (float64, bool) {
	if s.Perp != nil && s.Perp.Price > 0 {
		return s.Perp.Price, true
	}
	if s.Spot != nil && s.Spot.Price > 0 {
		return s.Spot.Price, true
	}
	return 0, false
}

// PriceChange returns the 24h change percent, perp preferred over spot.
func (s *MarketSnapshot) PriceChange() (float64, bool) {
	if s.Perp != nil {
		return s.Perp.Change24h, true
	}
	if s.Spot != nil {
		return s.Spot.Change24h, true
	}
	return 0, false
}

// Basis returns (perp - index) / index when both prices are present.
func (s *MarketSnapshot) Basis() (float64, bool) {
	if s.Perp == nil || s.IndexPrice <= 0 {
		return 0, false
	}
	return (s.Perp.Price - s.IndexPrice) / s.IndexPrice, true
}

// SummarizeConstituents renders the index composition as a short human
// readable string, heaviest exchanges first, capped at five entries.
func SummarizeConstituents(constituents []IndexConstituent) string {
	if len(constituents) == 0 {
		return ""
	}

	sorted := append([]IndexConstituent(nil), constituents...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })

	parts := make([]string, 0, 5)
	for i, c := range sorted {
		if i == 5 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%.0f%%)", c.Exchange, c.Weight*100))
	}

	summary := strings.Join(parts, ", ")
	if len(sorted) > 5 {
		summary += fmt.Sprintf(", +%d more", len(sorted)-5)
	}
	return summary
}
