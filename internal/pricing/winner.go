package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

// Winner is the price a buyer would currently pay and who holds it.
// A nil Owner means the store's own inventory.
type Winner struct {
	Price decimal.Decimal
	Owner *string
}

// IsEshop reports whether the store's own inventory holds the price.
func (w Winner) IsEshop() bool { return w.Owner == nil }

// OwnedBy reports whether userID holds the price.
func (w Winner) OwnedBy(userID string) bool {
	return w.Owner != nil && *w.Owner == userID
}

// DecideWinner combines the cheapest consignor row (including the requesting
// user's own listings) and the cheapest eshop row. It returns false when
// neither pool has a price.
//
// Within Epsilon the user's own consignor row wins. Otherwise the lower
// price wins and an exact tie goes to the eshop.
func DecideWinner(consignor, eshop *store.PriceRow, userID string) (Winner, bool) {
	switch {
	case consignor != nil && eshop != nil:
		switch {
		case Equal(eshop.FinalPrice, consignor.FinalPrice):
			if consignor.Owner != nil && *consignor.Owner == userID {
				return Winner{Price: consignor.FinalPrice, Owner: consignor.Owner}, true
			}
			if eshop.FinalPrice.GreaterThan(consignor.FinalPrice) {
				return Winner{Price: consignor.FinalPrice, Owner: consignor.Owner}, true
			}
			return Winner{Price: eshop.FinalPrice}, true
		case eshop.FinalPrice.LessThan(consignor.FinalPrice):
			return Winner{Price: eshop.FinalPrice}, true
		default:
			return Winner{Price: consignor.FinalPrice, Owner: consignor.Owner}, true
		}
	case consignor != nil:
		return Winner{Price: consignor.FinalPrice, Owner: consignor.Owner}, true
	case eshop != nil:
		return Winner{Price: eshop.FinalPrice}, true
	default:
		return Winner{}, false
	}
}
