package listing

import (
	"math"
	"time"
)

// CategoryRestricted is the listing category subject to the extra pricing
// constraints tied to a classification label.
const CategoryRestricted = "restricted-data"

// Label classifies a restricted-data listing.
type Label string

const (
	LabelClassified   Label = "classified"
	LabelUnclassified Label = "unclassified"
)

// Status tracks listing lifecycle.
type Status string

const (
	StatusOpen    Status = "open"
	StatusExpired Status = "expired"
)

const (
	// minOfferRatio is the floor applied to offers on unclassified
	// restricted-data listings, as a fraction of the purchase price.
	minOfferRatio = 0.55

	// maxClassifiedMarkup caps the sale price of classified listings
	// relative to the purchase price.
	maxClassifiedMarkup = 2.15

	// priceTolerance bounds the float comparison used for the classified
	// auto-accept rule. The comparison is deliberately tolerance-based.
	priceTolerance = 1e-6
)

// Listing represents a posted mission: an item for sale owned by a seller.
// Quantity decreases only through offer acceptance and is never re-increased.
type Listing struct {
	ID            string
	Title         string
	Description   string
	SalePrice     float64
	PurchasePrice *float64
	Label         Label
	Deadline      time.Time
	Quantity      int
	Category      string
	SellerID      string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Restricted reports whether the listing falls under the restricted-data
// pricing rules.
func (l Listing) Restricted() bool { return l.Category == CategoryRestricted }

// Expired reports whether the deadline has passed at the given instant.
func (l Listing) Expired(now time.Time) bool {
	return !l.Deadline.IsZero() && now.After(l.Deadline)
}

// MinimumOffer returns the lowest acceptable offer for an unclassified
// restricted-data listing: ceil(55% of the purchase price).
func MinimumOffer(purchasePrice float64) float64 {
	return math.Ceil(minOfferRatio * purchasePrice)
}

// PriceMatches reports whether an offered price equals the sale price within
// tolerance. Classified listings auto-accept exactly matching offers.
func PriceMatches(offered, salePrice float64) bool {
	return math.Abs(offered-salePrice) < priceTolerance
}

// WithinClassifiedCap reports whether a classified sale price respects the
// markup cap over the purchase price.
func WithinClassifiedCap(salePrice, purchasePrice float64) bool {
	return salePrice <= maxClassifiedMarkup*purchasePrice
}

// DiscountPercent returns the displayed discount percentage, rounded to one
// decimal. It is only defined when a positive purchase price is set and the
// sale price undercuts it; otherwise ok is false and no discount is shown.
func (l Listing) DiscountPercent() (pct float64, ok bool) {
	if l.PurchasePrice == nil || *l.PurchasePrice <= 0 || l.SalePrice >= *l.PurchasePrice {
		return 0, false
	}
	raw := 100 * (*l.PurchasePrice - l.SalePrice) / *l.PurchasePrice
	return math.Round(raw*10) / 10, true
}
