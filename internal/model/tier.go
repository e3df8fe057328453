package model

import (
	"fmt"
	"strings"
)

// UpdateTier controls which field groups a run recomputes and writes.
// Each tier is a superset of the one below it: REALTIME ⊂ STATIC ⊂ FULL.
type UpdateTier int

const (
	// TierRealtime touches prices, volumes, funding, open interest and the
	// valuations derived from them. Slow-changing fields keep their prior
	// values.
	TierRealtime UpdateTier = iota
	// TierStatic additionally refreshes funding cycle, categories and the
	// index composition summary from the exchange.
	TierStatic
	// TierFull additionally resolves supply metadata from the identity
	// providers. This is the only tier allowed to spend their daily quota.
	TierFull
)

func (t UpdateTier) String() string {
	switch t {
	case TierRealtime:
		return "realtime"
	case TierStatic:
		return "static"
	case TierFull:
		return "full"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Includes reports whether the tier covers the field groups of other.
func (t UpdateTier) Includes(other UpdateTier) bool {
	return t >= other
}

// ParseTier converts the CLI/config spelling of a tier into an UpdateTier.
func ParseTier(s string) (UpdateTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "realtime", "rt":
		return TierRealtime, nil
	case "static":
		return TierStatic, nil
	case "full", "metadata":
		return TierFull, nil
	default:
		return TierRealtime, fmt.Errorf("unknown update tier %q", s)
	}
}
