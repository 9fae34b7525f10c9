// Package listings implements listing creation and retrieval, including the
// pricing constraints that apply to restricted-data listings at creation
// time.
package listings

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/blr-market/marketplace/internal/app/domain/listing"
	"github.com/blr-market/marketplace/internal/app/storage"
	"github.com/blr-market/marketplace/internal/errors"
	"github.com/blr-market/marketplace/pkg/logger"
)

// deadlineLayout is the wire format for listing deadlines.
const deadlineLayout = "2006-01-02"

// Service manages listings.
type Service struct {
	store storage.ListingStore
	log   *logger.Logger
}

// New creates a listing service.
func New(store storage.ListingStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("listings")
	}
	return &Service{store: store, log: log}
}

// CreateInput carries the fields submitted when posting a listing.
type CreateInput struct {
	Title         string
	Description   string
	SalePrice     float64
	PurchasePrice *float64
	Label         string
	Deadline      string // YYYY-MM-DD
	Quantity      int
	Category      string
}

// Create validates and stores a new listing owned by sellerID.
func (s *Service) Create(ctx context.Context, sellerID string, in CreateInput) (listing.Listing, error) {
	if sellerID == "" {
		return listing.Listing{}, errors.Unauthorized("authentication required")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return listing.Listing{}, errors.Validation("title is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return listing.Listing{}, errors.Validation("description is required")
	}
	if in.SalePrice < 0 {
		return listing.Listing{}, errors.Validation("sale price cannot be negative")
	}
	if in.Quantity < 1 {
		return listing.Listing{}, errors.Validation("quantity must be at least 1")
	}

	deadline, err := time.Parse(deadlineLayout, strings.TrimSpace(in.Deadline))
	if err != nil {
		return listing.Listing{}, errors.Validation("deadline must be a YYYY-MM-DD date")
	}

	lst := listing.Listing{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		SalePrice:   in.SalePrice,
		Deadline:    deadline.UTC(),
		Quantity:    in.Quantity,
		Category:    strings.TrimSpace(in.Category),
		SellerID:    sellerID,
		Status:      listing.StatusOpen,
	}

	if lst.Category == listing.CategoryRestricted {
		if err := applyRestrictedRules(&lst, in); err != nil {
			return listing.Listing{}, err
		}
	} else if in.PurchasePrice != nil && *in.PurchasePrice > 0 {
		// Purchase price on an unrestricted listing only feeds the
		// discount display.
		price := *in.PurchasePrice
		lst.PurchasePrice = &price
	}

	created, err := s.store.CreateListing(ctx, lst)
	if err != nil {
		return listing.Listing{}, errors.Internal("create listing", err)
	}

	s.log.WithField("listing", created.ID).WithField("seller", sellerID).Info("listing created")
	return created, nil
}

// applyRestrictedRules enforces the extra constraints on restricted-data
// listings: a positive purchase price, a classification label, and for
// classified listings a cap on the sale price markup.
func applyRestrictedRules(lst *listing.Listing, in CreateInput) error {
	if in.PurchasePrice == nil || *in.PurchasePrice <= 0 {
		return errors.Validation("restricted-data listings require a positive purchase price")
	}
	price := *in.PurchasePrice
	lst.PurchasePrice = &price

	switch listing.Label(strings.TrimSpace(in.Label)) {
	case listing.LabelClassified:
		lst.Label = listing.LabelClassified
		if !listing.WithinClassifiedCap(lst.SalePrice, price) {
			return errors.Validation("sale price exceeds the allowed markup over the purchase price")
		}
	case listing.LabelUnclassified:
		lst.Label = listing.LabelUnclassified
	default:
		return errors.Validation("restricted-data listings require a classified or unclassified label")
	}
	return nil
}

// Get returns a listing by ID.
func (s *Service) Get(ctx context.Context, id string) (listing.Listing, error) {
	lst, err := s.store.GetListing(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return listing.Listing{}, errors.NotFound("listing not found")
		}
		return listing.Listing{}, errors.Internal("get listing", err)
	}
	return lst, nil
}

// List returns every listing.
func (s *Service) List(ctx context.Context) ([]listing.Listing, error) {
	lsts, err := s.store.ListListings(ctx)
	if err != nil {
		return nil, errors.Internal("list listings", err)
	}
	return lsts, nil
}
