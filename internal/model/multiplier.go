package model

import "strings"

// Tickers whose leading digits are part of the coin name, not a
// denomination prefix.
var literalPrefixSymbols = map[string]struct{}{
	"1000X": {},
}

// SplitMultiplier decomposes a denominated ticker into its base symbol and
// price multiplier. Binance lists some low-priced tokens scaled by 1000 or
// 1,000,000 ("1000PEPE", "1000000BOB", "1MBABYDOGE"); valuations must divide
// by the multiplier to get back to the token's natural unit.
func SplitMultiplier(symbol string) (base string, multiplier float64) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := literalPrefixSymbols[s]; ok {
		return s, 1
	}
	switch {
	case strings.HasPrefix(s, "1000000") && len(s) > 7:
		return s[7:], 1_000_000
	case strings.HasPrefix(s, "1000") && len(s) > 4:
		return s[4:], 1000
	case strings.HasPrefix(s, "1M") && len(s) > 2:
		return s[2:], 1_000_000
	default:
		return s, 1
	}
}

// Valuation computes supply × price ÷ multiplier, or nil when the supply is
// unknown. Used for both market cap (circulating supply) and FDV (total
// supply).
func Valuation(supply *float64, price, multiplier float64) *float64 {
	if supply == nil || price <= 0 || multiplier <= 0 {
		return nil
	}
	v := *supply * price / multiplier
	return &v
}
