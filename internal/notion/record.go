package notion

import (
	"context"

	"github.com/Wsquare5/notion-dashboard/internal/model"
)

// Property names of the dashboard database. The title column keys the
// symbol index; everything else is written by tier.
const (
	PropSymbol       = "Symbol"
	PropName         = "Name"
	PropSpotPrice    = "Spot Price"
	PropPerpPrice    = "Perp Price"
	PropPriceChange  = "Price change"
	PropSpotVolume   = "Spot vol 24h"
	PropPerpVolume   = "Perp vol 24h"
	PropOpenInterest = "OI"
	PropFunding      = "Funding"
	PropFundingCycle = "Funding Cycle"
	PropBasis        = "Basis"
	PropIndexComp    = "Index Composition"
	PropCircSupply   = "Circulating Supply"
	PropTotalSupply  = "Total Supply"
	PropMaxSupply    = "Max Supply"
	PropMarketCap    = "MC"
	PropFDV          = "FDV"
	PropGeckoID      = "CoinGecko ID"
	PropWebsite      = "Website"
	PropLogo         = "Logo"
	PropCategories   = "Categories"
	PropLastUpdated  = "Last Updated"
	PropDataStatus   = "Data Status"
)

// RecordFromPage projects a queried page onto the pipeline's view of the
// row. Unknown or malformed properties read as zero values; a row with an
// empty symbol title is reported as not ok and skipped by the index.
func RecordFromPage(p Page) (model.RemoteRecord, bool) {
	rec := model.RemoteRecord{PageID: p.ID, LastUpdated: p.LastEditedTime}

	for name, prop := range p.Properties {
		switch name {
		case PropSymbol:
			rec.Symbol = prop.plainText()
		case PropName:
			rec.Name = prop.plainText()
		case PropCircSupply:
			rec.CirculatingSupply = prop.Number
		case PropTotalSupply:
			rec.TotalSupply = prop.Number
		case PropMaxSupply:
			rec.MaxSupply = prop.Number
		case PropSpotPrice:
			rec.SpotPrice = prop.Number
		case PropPerpPrice:
			rec.PerpPrice = prop.Number
		case PropFundingCycle:
			if prop.Number != nil {
				rec.FundingCycle = model.FundingCycle(*prop.Number)
			}
		case PropIndexComp:
			rec.IndexComposition = prop.plainText()
		case PropCategories:
			for _, opt := range prop.MultiSelect {
				rec.Categories = append(rec.Categories, opt.Name)
			}
		case PropDataStatus:
			if prop.Select != nil {
				rec.Status = model.DataStatus(prop.Select.Name)
			}
		}
	}

	return rec, rec.Symbol != ""
}

// LoadIndex queries the whole database once and keys it by symbol. The
// index is the only existence check performed before writing; a symbol
// absent here is created, present is updated.
func (c *Client) LoadIndex(ctx context.Context) (map[string]model.RemoteRecord, error) {
	pages, err := c.QueryAll(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]model.RemoteRecord, len(pages))
	for _, p := range pages {
		rec, ok := RecordFromPage(p)
		if !ok {
			continue
		}
		index[rec.Symbol] = rec
	}
	return index, nil
}
