package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blr-market/marketplace/internal/app/domain/account"
	"github.com/blr-market/marketplace/internal/app/domain/listing"
	"github.com/blr-market/marketplace/internal/app/domain/offer"
	"github.com/blr-market/marketplace/internal/app/storage"
)

func seedListing(t *testing.T, s *Store, quantity int) listing.Listing {
	t.Helper()
	lst, err := s.CreateListing(context.Background(), listing.Listing{
		Title:    "Recon",
		SellerID: "seller-1",
		Quantity: quantity,
		Deadline: time.Now().UTC().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return lst
}

func TestAccountNameUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateAccount(ctx, account.Account{Name: "Anon"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.CreateAccount(ctx, account.Account{Name: "anon"})
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if _, err := s.GetAccountByName(ctx, "ANON"); err != nil {
		t.Fatalf("case-insensitive lookup: %v", err)
	}
}

func TestAcceptOfferDecrementsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	lst := seedListing(t, s, 2)

	off, err := s.CreateOffer(ctx, offer.Offer{ListingID: lst.ID, BuyerID: "buyer-1", Price: 10})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	_, updated, err := s.AcceptOffer(ctx, lst.ID, off.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if updated.Quantity != 1 {
		t.Fatalf("expected quantity 1, got %d", updated.Quantity)
	}

	_, _, err = s.AcceptOffer(ctx, lst.ID, off.ID)
	if !errors.Is(err, storage.ErrAlreadyAccepted) {
		t.Fatalf("expected already-accepted error, got %v", err)
	}

	got, err := s.GetListing(ctx, lst.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if got.Quantity != 1 {
		t.Fatalf("second accept must not decrement, got quantity %d", got.Quantity)
	}
}

func TestAcceptOfferOutOfStock(t *testing.T) {
	s := New()
	ctx := context.Background()
	lst := seedListing(t, s, 1)

	first, _ := s.CreateOffer(ctx, offer.Offer{ListingID: lst.ID, BuyerID: "buyer-1", Price: 10})
	second, _ := s.CreateOffer(ctx, offer.Offer{ListingID: lst.ID, BuyerID: "buyer-2", Price: 12})

	if _, _, err := s.AcceptOffer(ctx, lst.ID, first.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, _, err := s.AcceptOffer(ctx, lst.ID, second.ID)
	if !errors.Is(err, storage.ErrNoStock) {
		t.Fatalf("expected no-stock error, got %v", err)
	}

	got, _ := s.GetOffer(ctx, second.ID)
	if got.Accepted {
		t.Fatalf("failed accept must not flag the offer")
	}
}

func TestConcurrentAcceptsNeverOversell(t *testing.T) {
	s := New()
	ctx := context.Background()
	lst := seedListing(t, s, 3)

	offerIDs := make([]string, 10)
	for i := range offerIDs {
		off, err := s.CreateOffer(ctx, offer.Offer{ListingID: lst.ID, BuyerID: "buyer", Price: 10})
		if err != nil {
			t.Fatalf("create offer: %v", err)
		}
		offerIDs[i] = off.ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for _, id := range offerIDs {
		wg.Add(1)
		go func(offerID string) {
			defer wg.Done()
			if _, _, err := s.AcceptOffer(ctx, lst.ID, offerID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("expected exactly 3 acceptances, got %d", succeeded)
	}
	got, _ := s.GetListing(ctx, lst.ID)
	if got.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", got.Quantity)
	}
}

func TestCreateAcceptedOfferConsumesStock(t *testing.T) {
	s := New()
	ctx := context.Background()
	lst := seedListing(t, s, 1)

	if _, err := s.CreateOffer(ctx, offer.Offer{ListingID: lst.ID, BuyerID: "buyer-1", Price: 10, Accepted: true}); err != nil {
		t.Fatalf("create accepted offer: %v", err)
	}
	got, _ := s.GetListing(ctx, lst.ID)
	if got.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", got.Quantity)
	}

	_, err := s.CreateOffer(ctx, offer.Offer{ListingID: lst.ID, BuyerID: "buyer-2", Price: 10, Accepted: true})
	if !errors.Is(err, storage.ErrNoStock) {
		t.Fatalf("expected no-stock error, got %v", err)
	}
}

func TestDeletePendingOffer(t *testing.T) {
	s := New()
	ctx := context.Background()
	lst := seedListing(t, s, 1)

	off, _ := s.CreateOffer(ctx, offer.Offer{ListingID: lst.ID, BuyerID: "buyer-1", Price: 10})
	if err := s.DeletePendingOffer(ctx, off.ID); err != nil {
		t.Fatalf("delete pending: %v", err)
	}
	if _, err := s.GetOffer(ctx, off.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	accepted, _ := s.CreateOffer(ctx, offer.Offer{ListingID: lst.ID, BuyerID: "buyer-1", Price: 10, Accepted: true})
	if err := s.DeletePendingOffer(ctx, accepted.ID); err != nil {
		t.Fatalf("delete accepted must no-op, got %v", err)
	}
	if _, err := s.GetOffer(ctx, accepted.ID); err != nil {
		t.Fatalf("accepted offer must survive delete: %v", err)
	}
}

func TestExpireListings(t *testing.T) {
	s := New()
	ctx := context.Background()

	past, _ := s.CreateListing(ctx, listing.Listing{Title: "old", SellerID: "s", Quantity: 1, Deadline: time.Now().UTC().Add(-time.Hour)})
	fresh, _ := s.CreateListing(ctx, listing.Listing{Title: "new", SellerID: "s", Quantity: 1, Deadline: time.Now().UTC().Add(time.Hour)})

	n, err := s.ExpireListings(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}

	got, _ := s.GetListing(ctx, past.ID)
	if got.Status != listing.StatusExpired {
		t.Fatalf("expected expired, got %q", got.Status)
	}
	got, _ = s.GetListing(ctx, fresh.ID)
	if got.Status != listing.StatusOpen {
		t.Fatalf("expected open, got %q", got.Status)
	}
}
