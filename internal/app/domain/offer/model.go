package offer

import "time"

// Offer represents a buyer's bid against a listing. The buyer is never the
// listing's seller. Once accepted an offer is immutable and never deleted.
type Offer struct {
	ID        string
	ListingID string
	BuyerID   string
	Price     float64
	Accepted  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
