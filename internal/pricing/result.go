package pricing

import "github.com/shopspring/decimal"

// MarketPrice is the resolved market state for one product variant as seen by
// a requesting seller. It is derived on every fetch and never persisted.
// A nil *MarketPrice means no pool had an eligible row.
type MarketPrice struct {
	FinalPrice decimal.Decimal `json:"final_price"`
	// Owner holds the winning price; nil when the eshop holds it.
	Owner *string `json:"owner"`
	// LowestConsignorPrice is the cheapest listing by any other seller.
	LowestConsignorPrice *decimal.Decimal `json:"lowest_consignor_price"`
	LowestEshopPrice     *decimal.Decimal `json:"lowest_eshop_price"`
	IsLowestEshop        bool             `json:"is_lowest_eshop"`
	IsUserFirstInLine    bool             `json:"is_user_first_in_line"`
}

// Key returns the map key used for a product variant in resolved batches.
func Key(productID, size string) string {
	return productID + "-" + size
}

func priceOf(r rowResult) *decimal.Decimal {
	if r.row == nil {
		return nil
	}
	p := r.row.FinalPrice
	return &p
}
