package listing

import (
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestMinimumOffer(t *testing.T) {
	cases := []struct {
		purchase float64
		want     float64
	}{
		{100, 55},
		{90, 50}, // 49.5 rounds up
		{1, 1},   // 0.55 rounds up
		{200, 110},
	}
	for _, tc := range cases {
		if got := MinimumOffer(tc.purchase); got != tc.want {
			t.Fatalf("MinimumOffer(%v) = %v, want %v", tc.purchase, got, tc.want)
		}
	}
}

func TestPriceMatches(t *testing.T) {
	if !PriceMatches(150, 150) {
		t.Fatalf("equal prices must match")
	}
	if !PriceMatches(150.0000001, 150) {
		t.Fatalf("prices within tolerance must match")
	}
	if PriceMatches(150.01, 150) {
		t.Fatalf("prices beyond tolerance must not match")
	}
}

func TestWithinClassifiedCap(t *testing.T) {
	if !WithinClassifiedCap(215, 100) {
		t.Fatalf("sale price at the cap must pass")
	}
	if WithinClassifiedCap(215.5, 100) {
		t.Fatalf("sale price above the cap must fail")
	}
}

func TestDiscountPercent(t *testing.T) {
	cases := []struct {
		name    string
		listing Listing
		wantPct float64
		wantOK  bool
	}{
		{"simple", Listing{SalePrice: 80, PurchasePrice: floatPtr(100)}, 20, true},
		{"rounded to one decimal", Listing{SalePrice: 66.6, PurchasePrice: floatPtr(99.9)}, 33.3, true},
		{"no purchase price", Listing{SalePrice: 80}, 0, false},
		{"zero purchase price", Listing{SalePrice: 80, PurchasePrice: floatPtr(0)}, 0, false},
		{"sale above purchase", Listing{SalePrice: 120, PurchasePrice: floatPtr(100)}, 0, false},
		{"sale equals purchase", Listing{SalePrice: 100, PurchasePrice: floatPtr(100)}, 0, false},
	}
	for _, tc := range cases {
		pct, ok := tc.listing.DiscountPercent()
		if ok != tc.wantOK || pct != tc.wantPct {
			t.Fatalf("%s: got (%v, %v), want (%v, %v)", tc.name, pct, ok, tc.wantPct, tc.wantOK)
		}
	}
}

func TestExpired(t *testing.T) {
	now := time.Now().UTC()

	lst := Listing{Deadline: now.Add(-time.Minute)}
	if !lst.Expired(now) {
		t.Fatalf("past deadline must be expired")
	}

	lst.Deadline = now.Add(time.Minute)
	if lst.Expired(now) {
		t.Fatalf("future deadline must not be expired")
	}

	lst.Deadline = time.Time{}
	if lst.Expired(now) {
		t.Fatalf("zero deadline never expires")
	}
}
