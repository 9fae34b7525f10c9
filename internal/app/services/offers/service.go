// Package offers implements offer placement, acceptance and withdrawal.
// Placement runs the pricing rules: sellers cannot buy their own listings,
// classified restricted-data listings auto-accept exact price matches, and
// unclassified ones enforce a minimum offer floor.
package offers

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/blr-market/marketplace/internal/app/domain/listing"
	"github.com/blr-market/marketplace/internal/app/domain/offer"
	"github.com/blr-market/marketplace/internal/app/metrics"
	"github.com/blr-market/marketplace/internal/app/notify"
	"github.com/blr-market/marketplace/internal/app/storage"
	"github.com/blr-market/marketplace/internal/errors"
	"github.com/blr-market/marketplace/pkg/logger"
)

// notifyTimeout bounds the delivery of a single acceptance notification.
const notifyTimeout = 15 * time.Second

// Service manages offers.
type Service struct {
	offers    storage.OfferStore
	listings  storage.ListingStore
	accounts  storage.AccountStore
	relay     notify.Relay
	oversight string
	log       *logger.Logger
}

// New creates an offer service. oversight is an optional extra recipient
// copied on every acceptance notification.
func New(offers storage.OfferStore, listings storage.ListingStore, accounts storage.AccountStore, relay notify.Relay, oversight string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("offers")
	}
	if relay == nil {
		relay = notify.Noop{}
	}
	return &Service{
		offers:    offers,
		listings:  listings,
		accounts:  accounts,
		relay:     relay,
		oversight: oversight,
		log:       log,
	}
}

// Place records an offer from buyerID on a listing. Classified
// restricted-data listings accept the offer immediately when the price
// matches the sale price, consuming one unit of stock in the same
// transaction.
func (s *Service) Place(ctx context.Context, buyerID, listingID string, price float64) (offer.Offer, error) {
	if buyerID == "" {
		return offer.Offer{}, errors.Unauthorized("authentication required")
	}

	lst, err := s.getListing(ctx, listingID)
	if err != nil {
		return offer.Offer{}, err
	}
	if lst.SellerID == buyerID {
		return offer.Offer{}, errors.Unauthorized("sellers cannot buy their own listing")
	}
	if lst.Status == listing.StatusExpired || lst.Expired(time.Now().UTC()) {
		return offer.Offer{}, errors.Validation("listing deadline has passed")
	}

	// Any amount is recordable on an unrestricted listing; the seller decides
	// what to accept. Restricted listings apply their own floors below.
	off := offer.Offer{ListingID: lst.ID, BuyerID: buyerID, Price: price}

	if lst.Restricted() {
		switch lst.Label {
		case listing.LabelClassified:
			off.Accepted = listing.PriceMatches(price, lst.SalePrice)
		case listing.LabelUnclassified:
			if lst.PurchasePrice == nil {
				return offer.Offer{}, errors.Validation("listing is missing its purchase price")
			}
			if minimum := listing.MinimumOffer(*lst.PurchasePrice); price < minimum {
				return offer.Offer{}, errors.Validationf("offer too low: at least %.0f required", minimum)
			}
		default:
			return offer.Offer{}, errors.Validation("listing is missing its classification label")
		}
	}

	created, err := s.offers.CreateOffer(ctx, off)
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrNoStock):
			return offer.Offer{}, errors.InsufficientStock("listing is out of stock")
		case stderrors.Is(err, storage.ErrNotFound):
			return offer.Offer{}, errors.NotFound("listing not found")
		default:
			return offer.Offer{}, errors.Internal("create offer", err)
		}
	}

	s.log.WithFields(map[string]interface{}{
		"offer":    created.ID,
		"listing":  lst.ID,
		"buyer":    buyerID,
		"accepted": created.Accepted,
	}).Info("offer placed")

	if created.Accepted {
		metrics.RecordOfferPlaced("accepted")
		s.dispatchAcceptance(created, lst)
	} else {
		metrics.RecordOfferPlaced("pending")
	}
	return created, nil
}

// Accept marks a pending offer accepted on behalf of the listing's seller and
// consumes one unit of stock.
func (s *Service) Accept(ctx context.Context, actorID, listingID, offerID string) (offer.Offer, error) {
	if actorID == "" {
		return offer.Offer{}, errors.Unauthorized("authentication required")
	}

	lst, err := s.getListing(ctx, listingID)
	if err != nil {
		return offer.Offer{}, err
	}
	if lst.SellerID != actorID {
		return offer.Offer{}, errors.Unauthorized("only the seller can accept an offer")
	}
	if lst.Status == listing.StatusExpired || lst.Expired(time.Now().UTC()) {
		return offer.Offer{}, errors.Validation("listing deadline has passed")
	}

	accepted, updated, err := s.offers.AcceptOffer(ctx, listingID, offerID)
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrNotFound):
			return offer.Offer{}, errors.NotFound("offer not found")
		case stderrors.Is(err, storage.ErrNoStock):
			return offer.Offer{}, errors.InsufficientStock("listing is out of stock")
		case stderrors.Is(err, storage.ErrAlreadyAccepted):
			return offer.Offer{}, errors.Validation("offer was already accepted")
		default:
			return offer.Offer{}, errors.Internal("accept offer", err)
		}
	}

	s.log.WithFields(map[string]interface{}{
		"offer":     accepted.ID,
		"listing":   updated.ID,
		"remaining": updated.Quantity,
	}).Info("offer accepted")

	metrics.RecordOfferAccepted()
	s.dispatchAcceptance(accepted, updated)
	return accepted, nil
}

// Withdraw removes a pending offer on behalf of its buyer. Withdrawing an
// offer that was accepted in the meantime succeeds without effect.
func (s *Service) Withdraw(ctx context.Context, actorID, listingID, offerID string) error {
	if actorID == "" {
		return errors.Unauthorized("authentication required")
	}

	off, err := s.offers.GetOffer(ctx, offerID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("offer not found")
		}
		return errors.Internal("get offer", err)
	}
	if off.ListingID != listingID {
		return errors.NotFound("offer not found")
	}
	if off.BuyerID != actorID {
		return errors.Unauthorized("only the buyer can withdraw an offer")
	}

	if err := s.offers.DeletePendingOffer(ctx, offerID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("offer not found")
		}
		return errors.Internal("withdraw offer", err)
	}

	s.log.WithField("offer", offerID).WithField("buyer", actorID).Info("offer withdrawn")
	return nil
}

// ListForListing returns every offer placed on a listing.
func (s *Service) ListForListing(ctx context.Context, listingID string) ([]offer.Offer, error) {
	offs, err := s.offers.ListOffers(ctx, listingID)
	if err != nil {
		return nil, errors.Internal("list offers", err)
	}
	return offs, nil
}

func (s *Service) getListing(ctx context.Context, id string) (listing.Listing, error) {
	lst, err := s.listings.GetListing(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return listing.Listing{}, errors.NotFound("listing not found")
		}
		return listing.Listing{}, errors.Internal("get listing", err)
	}
	return lst, nil
}

// dispatchAcceptance emails the buyer, the seller and the oversight address
// about an accepted offer. Delivery happens off the request path and failures
// are only logged.
func (s *Service) dispatchAcceptance(off offer.Offer, lst listing.Listing) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		subject := fmt.Sprintf("Offer accepted: %s", lst.Title)
		body := fmt.Sprintf("The offer of %.2f on %q has been accepted. %d unit(s) remain.",
			off.Price, lst.Title, lst.Quantity)

		s.deliver(ctx, off.BuyerID, subject, body)
		s.deliver(ctx, lst.SellerID, subject, body)
		if s.oversight != "" {
			if err := s.relay.Send(ctx, s.oversight, subject, body); err != nil {
				s.log.WithError(err).WithField("offer", off.ID).Warn("oversight notification failed")
			}
		}
	}()
}

// deliver looks up an account's email and sends to it. Accounts without an
// email are skipped.
func (s *Service) deliver(ctx context.Context, accountID, subject, body string) {
	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		s.log.WithError(err).WithField("account", accountID).Warn("notification recipient lookup failed")
		return
	}
	if acct.Email == "" {
		return
	}
	if err := s.relay.Send(ctx, acct.Email, subject, body); err != nil {
		s.log.WithError(err).WithField("account", accountID).Warn("notification delivery failed")
	}
}
