package storage

import (
	"context"
	"errors"
	"time"

	"github.com/blr-market/marketplace/internal/app/domain/account"
	"github.com/blr-market/marketplace/internal/app/domain/listing"
	"github.com/blr-market/marketplace/internal/app/domain/offer"
)

// Sentinel errors shared by all store implementations. Services translate
// them into the user-facing error taxonomy.
var (
	// ErrNotFound signals a missing record.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate signals a uniqueness violation.
	ErrDuplicate = errors.New("record already exists")

	// ErrNoStock signals an acceptance attempted when the listing quantity
	// is already zero. The store guarantees no mutation happened.
	ErrNoStock = errors.New("insufficient stock")

	// ErrAlreadyAccepted signals an acceptance attempted on an offer that
	// was accepted before. Accepted offers never mutate again.
	ErrAlreadyAccepted = errors.New("offer already accepted")
)

// AccountStore persists marketplace accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	GetAccountByName(ctx context.Context, name string) (account.Account, error)
	ListAccounts(ctx context.Context) ([]account.Account, error)
}

// ListingStore persists listings.
type ListingStore interface {
	CreateListing(ctx context.Context, lst listing.Listing) (listing.Listing, error)
	GetListing(ctx context.Context, id string) (listing.Listing, error)
	ListListings(ctx context.Context) ([]listing.Listing, error)

	// ExpireListings marks every open listing whose deadline lies before
	// now as expired and reports how many were transitioned.
	ExpireListings(ctx context.Context, now time.Time) (int, error)
}

// OfferStore persists offers. Mutations touching both an offer and its
// listing's quantity are atomic: two concurrent acceptances can never both
// decrement a quantity of one.
type OfferStore interface {
	// CreateOffer stores a new offer. When off.Accepted is set (the
	// classified auto-accept path) the insert and the listing quantity
	// decrement happen in one transaction; ErrNoStock is returned without
	// mutation when the quantity is zero.
	CreateOffer(ctx context.Context, off offer.Offer) (offer.Offer, error)

	GetOffer(ctx context.Context, id string) (offer.Offer, error)
	ListOffers(ctx context.Context, listingID string) ([]offer.Offer, error)

	// AcceptOffer atomically marks a pending offer accepted and decrements
	// the listing quantity. ErrNoStock is returned without mutation when
	// the quantity is zero.
	AcceptOffer(ctx context.Context, listingID, offerID string) (offer.Offer, listing.Listing, error)

	// DeletePendingOffer removes an offer only while it is still pending.
	// Deleting an accepted offer is a no-op: the offer stays.
	DeletePendingOffer(ctx context.Context, id string) error
}
