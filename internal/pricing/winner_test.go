package pricing_test

import (
	"testing"

	"github.com/jensholdgaard/consignment-pricing/internal/pricing"
	"github.com/jensholdgaard/consignment-pricing/internal/store"
)

func row(price string, owner string) *store.PriceRow {
	r := &store.PriceRow{ProductID: "p1", Size: "10", FinalPrice: d(price), FinalStatus: "in_stock"}
	if owner != "" {
		r.Owner = &owner
	}
	return r
}

func TestDecideWinner(t *testing.T) {
	tests := []struct {
		name      string
		consignor *store.PriceRow
		eshop     *store.PriceRow
		wantOK    bool
		wantPrice string
		wantOwner string // "" means eshop
	}{
		{name: "neither pool", wantOK: false},
		{name: "only consignor", consignor: row("7.00", "x"), wantOK: true, wantPrice: "7.00", wantOwner: "x"},
		{name: "only eshop", eshop: row("8.00", ""), wantOK: true, wantPrice: "8.00"},
		{name: "eshop strictly lower", consignor: row("9.00", "x"), eshop: row("8.00", ""), wantOK: true, wantPrice: "8.00"},
		{name: "consignor strictly lower", consignor: row("7.00", "y"), eshop: row("8.00", ""), wantOK: true, wantPrice: "7.00", wantOwner: "y"},
		{name: "equal and user owns consignor row", consignor: row("8.00", "x"), eshop: row("8.00", ""), wantOK: true, wantPrice: "8.00", wantOwner: "x"},
		{name: "equal within epsilon and user owns", consignor: row("8.005", "x"), eshop: row("8.00", ""), wantOK: true, wantPrice: "8.005", wantOwner: "x"},
		{name: "equal and another seller owns", consignor: row("8.00", "y"), eshop: row("8.00", ""), wantOK: true, wantPrice: "8.00"},
		{name: "consignor cheaper within epsilon", consignor: row("8.00", "y"), eshop: row("8.005", ""), wantOK: true, wantPrice: "8.00", wantOwner: "y"},
		{name: "eshop cheaper within epsilon", consignor: row("8.005", "y"), eshop: row("8.00", ""), wantOK: true, wantPrice: "8.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := pricing.DecideWinner(tt.consignor, tt.eshop, "x")
			if ok != tt.wantOK {
				t.Fatalf("DecideWinner() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !w.Price.Equal(d(tt.wantPrice)) {
				t.Errorf("price = %s, want %s", w.Price, tt.wantPrice)
			}
			switch {
			case tt.wantOwner == "" && !w.IsEshop():
				t.Errorf("owner = %q, want eshop", *w.Owner)
			case tt.wantOwner != "" && !w.OwnedBy(tt.wantOwner):
				t.Errorf("owner = %v, want %q", w.Owner, tt.wantOwner)
			}
		})
	}
}
