package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind is the badge category shown next to a seller's listing.
type Kind string

const (
	KindNoMarket    Kind = "no_market"
	KindLowest      Kind = "lowest"
	KindTied        Kind = "tied"
	KindBelowEshop  Kind = "below_eshop"
	KindHigher      Kind = "higher"
	KindCompetition Kind = "competition"
)

// Badge compares a seller's price with the market.
type Badge struct {
	Kind Kind `json:"kind"`
	// Delta is the absolute price gap to the comparison price, when one applies.
	Delta *decimal.Decimal `json:"delta,omitempty"`
	// Against names the pool holding the comparison price ("eshop" or "consignor").
	Against     string `json:"against,omitempty"`
	Description string `json:"description"`
}

const (
	againstEshop     = "eshop"
	againstConsignor = "consignor"
)

// Classify picks the badge for a seller's price. The first matching rule wins.
func Classify(price decimal.Decimal, mp *MarketPrice) Badge {
	if mp == nil {
		return Badge{Kind: KindNoMarket, Description: "Market price unknown"}
	}

	final := mp.FinalPrice
	atMarket := Equal(price, final)

	switch {
	case atMarket && mp.IsUserFirstInLine:
		return Badge{Kind: KindLowest, Description: "You have the lowest price"}

	case atMarket && mp.LowestConsignorPrice != nil:
		return Badge{
			Kind:        KindTied,
			Against:     againstConsignor,
			Description: "Tied for lowest at " + money(final),
		}

	case mp.IsLowestEshop && mp.LowestConsignorPrice == nil && Lower(price, final):
		delta := final.Sub(price)
		return Badge{
			Kind:        KindBelowEshop,
			Delta:       &delta,
			Against:     againstEshop,
			Description: money(delta) + " below eshop price",
		}

	case Higher(price, final):
		against, ref := higherReference(price, mp)
		delta := price.Sub(ref)
		return Badge{
			Kind:        KindHigher,
			Delta:       &delta,
			Against:     against,
			Description: fmt.Sprintf("%s above %s price", money(delta), against),
		}
	}

	against := againstConsignor
	if mp.IsLowestEshop {
		against = againstEshop
	}
	b := Badge{
		Kind:        KindCompetition,
		Against:     against,
		Description: fmt.Sprintf("Competing with %s price %s", against, money(final)),
	}
	if Lower(price, final) {
		delta := final.Sub(price)
		b.Delta = &delta
	}
	return b
}

// higherReference returns the pool minimum a too-high price is measured
// against: the smaller of the two pools when both exist, else the one that
// does. It falls back to the final price when no pool minimum is below price,
// which happens when the user's own cheaper listing holds the market.
func higherReference(price decimal.Decimal, mp *MarketPrice) (string, decimal.Decimal) {
	c, e := mp.LowestConsignorPrice, mp.LowestEshopPrice

	var against string
	var ref decimal.Decimal
	switch {
	case c != nil && e != nil:
		if c.LessThan(*e) {
			against, ref = againstConsignor, *c
		} else {
			against, ref = againstEshop, *e
		}
	case c != nil:
		against, ref = againstConsignor, *c
	case e != nil:
		against, ref = againstEshop, *e
	}

	if against == "" || !Higher(price, ref) {
		if mp.IsLowestEshop {
			return againstEshop, mp.FinalPrice
		}
		return againstConsignor, mp.FinalPrice
	}
	return against, ref
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
