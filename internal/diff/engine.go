package diff

import (
	"github.com/Wsquare5/notion-dashboard/internal/model"
	"github.com/Wsquare5/notion-dashboard/logger"
)

// Engine turns fetched snapshots into tiered write payloads.
type Engine struct {
	log *logger.Entry
}

func NewEngine(log *logger.Log) *Engine {
	return &Engine{log: log.WithComponent("diff")}
}

// EffectiveTier widens the requested tier to full for symbols the dashboard
// has never seen. A first sighting must seed every field group, otherwise
// the row sits half-empty until the next full run.
func (e *Engine) EffectiveTier(requested model.UpdateTier, prior *model.RemoteRecord) model.UpdateTier {
	if prior == nil {
		if requested != model.TierFull {
			e.log.Debug("new symbol forces full tier")
		}
		return model.TierFull
	}
	return requested
}

// BuildInput collects everything known about one symbol at payload time.
// Identity is nil when resolution failed or was not attempted; Prior is nil
// for first sightings.
type BuildInput struct {
	Tier       model.UpdateTier
	Snapshot   *model.MarketSnapshot
	Identity   *model.IdentityRecord
	Prior      *model.RemoteRecord
	Categories []string
}

// Build assembles the payload for one symbol. Field groups degrade
// independently: a failed supply resolution falls back to the previously
// written supplies and marks the payload partial instead of failing it.
func (e *Engine) Build(in BuildInput) *Payload {
	snap := in.Snapshot
	p := &Payload{
		Symbol: snap.Symbol,
		Tier:   in.Tier,
		Status: model.StatusComplete,
		At:     snap.FetchedAt,
	}

	p.Market = buildMarket(snap)
	if !snap.HasOpenInterest || !snap.HasFunding {
		p.Status = model.StatusPartial
	}

	if in.Tier.Includes(model.TierStatic) {
		p.Static = e.buildStatic(in)
	}
	if in.Tier.Includes(model.TierFull) {
		p.Supply = e.buildSupply(in, p)
	}
	e.addValuations(in, p)
	return p
}

func buildMarket(snap *model.MarketSnapshot) MarketFields {
	var m MarketFields
	if snap.Spot != nil {
		m.SpotPrice = ptr(snap.Spot.Price)
		m.SpotVolume = ptr(snap.Spot.Volume24h)
	}
	if snap.Perp != nil {
		m.PerpPrice = ptr(snap.Perp.Price)
		m.PerpVolume = ptr(snap.Perp.Volume24h)
	}
	if change, ok := snap.PriceChange(); ok {
		// The dashboard column is a percent-formatted number, which
		// renders value*100.
		m.PriceChange = ptr(change / 100)
	}
	if snap.HasFunding {
		m.Funding = ptr(snap.FundingRate)
	}
	if snap.HasOpenInterest {
		m.OpenInterestUSD = ptr(snap.OpenInterestUSD)
	}
	if basis, ok := snap.Basis(); ok {
		m.Basis = ptr(basis)
	}
	return m
}

func (e *Engine) buildStatic(in BuildInput) *StaticFields {
	s := &StaticFields{
		Categories:       in.Categories,
		IndexComposition: model.SummarizeConstituents(in.Snapshot.Constituents),
	}

	s.FundingCycle = model.BucketFundingCycle(in.Snapshot.FundingIntervalHours)
	if s.FundingCycle == model.FundingCycleUnknown && in.Prior != nil {
		s.FundingCycle = in.Prior.FundingCycle
	}
	if s.IndexComposition == "" && in.Prior != nil {
		s.IndexComposition = in.Prior.IndexComposition
	}
	return s
}

func (e *Engine) buildSupply(in BuildInput, p *Payload) *SupplyFields {
	var s *SupplyFields
	switch {
	case in.Identity != nil:
		s = &SupplyFields{
			Name:              in.Identity.Name,
			CirculatingSupply: in.Identity.CirculatingSupply,
			TotalSupply:       in.Identity.TotalSupply,
			MaxSupply:         in.Identity.MaxSupply,
			CoinGeckoID:       in.Identity.CoinGeckoID,
			Website:           in.Identity.Website,
			LogoURL:           in.Identity.LogoURL,
		}
	case in.Prior != nil:
		// Keep what the dashboard already shows rather than blanking it.
		s = &SupplyFields{
			Name:              in.Prior.Name,
			CirculatingSupply: in.Prior.CirculatingSupply,
			TotalSupply:       in.Prior.TotalSupply,
			MaxSupply:         in.Prior.MaxSupply,
		}
		p.Status = model.StatusPartial
	default:
		p.Status = model.StatusPartial
		return nil
	}
	return s
}

// addValuations recomputes market cap and FDV from this run's price and the
// freshest supplies available: the supply group when this run carries one,
// otherwise the previously persisted record. The price side moves every run,
// so the valuations refresh at every tier even while the supplies themselves
// stay untouched below full.
func (e *Engine) addValuations(in BuildInput, p *Payload) {
	var circ, total, max *float64
	switch {
	case p.Supply != nil:
		circ, total, max = p.Supply.CirculatingSupply, p.Supply.TotalSupply, p.Supply.MaxSupply
	case in.Prior != nil:
		circ, total, max = in.Prior.CirculatingSupply, in.Prior.TotalSupply, in.Prior.MaxSupply
	default:
		return
	}

	price, ok := in.Snapshot.PreferredPrice()
	if !ok {
		return
	}
	_, mult := model.SplitMultiplier(in.Snapshot.Symbol)
	p.Market.MarketCap = model.Valuation(circ, price, mult)

	fdvSupply := total
	if fdvSupply == nil {
		fdvSupply = max
	}
	p.Market.FDV = model.Valuation(fdvSupply, price, mult)
}

func ptr(v float64) *float64 { return &v }
