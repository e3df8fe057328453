package diff

import (
	"github.com/Wsquare5/notion-dashboard/internal/notion"
)

// Encode renders the payload as the partial property set of one page write.
// Absent field groups contribute nothing, so lower tiers never clobber
// higher tier columns.
func Encode(p *Payload) notion.PropertyMap {
	props := notion.PropertyMap{
		notion.PropLastUpdated: notion.Date(p.At),
		notion.PropDataStatus:  notion.Select(string(p.Status)),
	}

	m := p.Market
	if m.SpotPrice != nil {
		props[notion.PropSpotPrice] = notion.NumberPtr(m.SpotPrice)
	}
	if m.PerpPrice != nil {
		props[notion.PropPerpPrice] = notion.NumberPtr(m.PerpPrice)
	}
	if m.PriceChange != nil {
		props[notion.PropPriceChange] = notion.NumberPtr(m.PriceChange)
	}
	if m.SpotVolume != nil {
		props[notion.PropSpotVolume] = notion.NumberPtr(m.SpotVolume)
	}
	if m.PerpVolume != nil {
		props[notion.PropPerpVolume] = notion.NumberPtr(m.PerpVolume)
	}
	if m.OpenInterestUSD != nil {
		props[notion.PropOpenInterest] = notion.NumberPtr(m.OpenInterestUSD)
	}
	if m.Funding != nil {
		props[notion.PropFunding] = notion.NumberPtr(m.Funding)
	}
	if m.Basis != nil {
		props[notion.PropBasis] = notion.NumberPtr(m.Basis)
	}
	if m.MarketCap != nil {
		props[notion.PropMarketCap] = notion.NumberPtr(m.MarketCap)
	}
	if m.FDV != nil {
		props[notion.PropFDV] = notion.NumberPtr(m.FDV)
	}

	if s := p.Static; s != nil {
		if s.FundingCycle != 0 {
			cycle := float64(s.FundingCycle)
			props[notion.PropFundingCycle] = notion.Number(cycle)
		}
		if len(s.Categories) > 0 {
			props[notion.PropCategories] = notion.MultiSelect(s.Categories)
		}
		if s.IndexComposition != "" {
			props[notion.PropIndexComp] = notion.Text(s.IndexComposition)
		}
	}

	if s := p.Supply; s != nil {
		if s.Name != "" {
			props[notion.PropName] = notion.Text(s.Name)
		}
		if s.CirculatingSupply != nil {
			props[notion.PropCircSupply] = notion.NumberPtr(s.CirculatingSupply)
		}
		if s.TotalSupply != nil {
			props[notion.PropTotalSupply] = notion.NumberPtr(s.TotalSupply)
		}
		if s.MaxSupply != nil {
			props[notion.PropMaxSupply] = notion.NumberPtr(s.MaxSupply)
		}
		if s.CoinGeckoID != "" {
			props[notion.PropGeckoID] = notion.Text(s.CoinGeckoID)
		}
		if s.Website != "" {
			props[notion.PropWebsite] = notion.URL(s.Website)
		}
		if s.LogoURL != "" {
			props[notion.PropLogo] = notion.URL(s.LogoURL)
		}
	}

	return props
}
