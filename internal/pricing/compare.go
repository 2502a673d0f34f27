package pricing

import "github.com/shopspring/decimal"

// Epsilon is the currency-rounding tolerance below which two prices are equal.
var Epsilon = decimal.New(1, -2)

// Equal reports whether a and b differ by less than Epsilon.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Epsilon)
}

// Lower reports whether a is below b by at least Epsilon.
func Lower(a, b decimal.Decimal) bool {
	return a.LessThan(b) && !Equal(a, b)
}

// Higher reports whether a is above b by at least Epsilon.
func Higher(a, b decimal.Decimal) bool {
	return a.GreaterThan(b) && !Equal(a, b)
}
