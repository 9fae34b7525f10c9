package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blr-market/marketplace/internal/app/domain/account"
	"github.com/blr-market/marketplace/internal/app/domain/listing"
	"github.com/blr-market/marketplace/internal/app/domain/offer"
	"github.com/blr-market/marketplace/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. One mutex guards every mutation, so the cross-record
// invariants (offer accepted flag vs listing quantity) hold trivially.
type Store struct {
	mu              sync.RWMutex
	nextID          int64
	accounts        map[string]account.Account
	accountsByName  map[string]string
	listings        map[string]listing.Listing
	offers          map[string]offer.Offer
	offersByListing map[string][]string
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.ListingStore = (*Store)(nil)
var _ storage.OfferStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:          1,
		accounts:        make(map[string]account.Account),
		accountsByName:  make(map[string]string),
		listings:        make(map[string]listing.Listing),
		offers:          make(map[string]offer.Offer),
		offersByListing: make(map[string][]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// AccountStore implementation -------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(acct.Name)
	if _, exists := s.accountsByName[key]; exists {
		return account.Account{}, fmt.Errorf("account %s: %w", acct.Name, storage.ErrDuplicate)
	}
	if acct.ID == "" {
		acct.ID = s.nextIDLocked()
	} else if _, exists := s.accounts[acct.ID]; exists {
		return account.Account{}, fmt.Errorf("account %s: %w", acct.ID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	s.accounts[acct.ID] = acct
	s.accountsByName[key] = acct.ID
	return acct, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	return acct, nil
}

func (s *Store) GetAccountByName(_ context.Context, name string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.accountsByName[strings.ToLower(name)]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s: %w", name, storage.ErrNotFound)
	}
	return s.accounts[id], nil
}

func (s *Store) ListAccounts(_ context.Context) ([]account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]account.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, acct)
	}
	return result, nil
}

// ListingStore implementation -------------------------------------------------

func (s *Store) CreateListing(_ context.Context, lst listing.Listing) (listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lst.ID == "" {
		lst.ID = s.nextIDLocked()
	} else if _, exists := s.listings[lst.ID]; exists {
		return listing.Listing{}, fmt.Errorf("listing %s: %w", lst.ID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	lst.CreatedAt = now
	lst.UpdatedAt = now
	if lst.Status == "" {
		lst.Status = listing.StatusOpen
	}
	lst.PurchasePrice = clonePrice(lst.PurchasePrice)

	s.listings[lst.ID] = lst
	return cloneListing(lst), nil
}

func (s *Store) GetListing(_ context.Context, id string) (listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lst, ok := s.listings[id]
	if !ok {
		return listing.Listing{}, fmt.Errorf("listing %s: %w", id, storage.ErrNotFound)
	}
	return cloneListing(lst), nil
}

func (s *Store) ListListings(_ context.Context) ([]listing.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]listing.Listing, 0, len(s.listings))
	for _, lst := range s.listings {
		result = append(result, cloneListing(lst))
	}
	return result, nil
}

func (s *Store) ExpireListings(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, lst := range s.listings {
		if lst.Status == listing.StatusOpen && lst.Expired(now) {
			lst.Status = listing.StatusExpired
			lst.UpdatedAt = time.Now().UTC()
			s.listings[id] = lst
			expired++
		}
	}
	return expired, nil
}

// OfferStore implementation ---------------------------------------------------

func (s *Store) CreateOffer(_ context.Context, off offer.Offer) (offer.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lst, ok := s.listings[off.ListingID]
	if !ok {
		return offer.Offer{}, fmt.Errorf("listing %s: %w", off.ListingID, storage.ErrNotFound)
	}

	if off.Accepted {
		if lst.Quantity <= 0 {
			return offer.Offer{}, storage.ErrNoStock
		}
		lst.Quantity--
		lst.UpdatedAt = time.Now().UTC()
		s.listings[lst.ID] = lst
	}

	if off.ID == "" {
		off.ID = s.nextIDLocked()
	} else if _, exists := s.offers[off.ID]; exists {
		return offer.Offer{}, fmt.Errorf("offer %s: %w", off.ID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	off.CreatedAt = now
	off.UpdatedAt = now

	s.offers[off.ID] = off
	s.offersByListing[off.ListingID] = append(s.offersByListing[off.ListingID], off.ID)
	return off, nil
}

func (s *Store) GetOffer(_ context.Context, id string) (offer.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	off, ok := s.offers[id]
	if !ok {
		return offer.Offer{}, fmt.Errorf("offer %s: %w", id, storage.ErrNotFound)
	}
	return off, nil
}

func (s *Store) ListOffers(_ context.Context, listingID string) ([]offer.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.offersByListing[listingID]
	result := make([]offer.Offer, 0, len(ids))
	for _, id := range ids {
		if off, ok := s.offers[id]; ok {
			result = append(result, off)
		}
	}
	return result, nil
}

func (s *Store) AcceptOffer(_ context.Context, listingID, offerID string) (offer.Offer, listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	off, ok := s.offers[offerID]
	if !ok || off.ListingID != listingID {
		return offer.Offer{}, listing.Listing{}, fmt.Errorf("offer %s: %w", offerID, storage.ErrNotFound)
	}
	if off.Accepted {
		return offer.Offer{}, listing.Listing{}, storage.ErrAlreadyAccepted
	}
	lst, ok := s.listings[listingID]
	if !ok {
		return offer.Offer{}, listing.Listing{}, fmt.Errorf("listing %s: %w", listingID, storage.ErrNotFound)
	}

	if lst.Quantity <= 0 {
		return offer.Offer{}, listing.Listing{}, storage.ErrNoStock
	}

	now := time.Now().UTC()
	lst.Quantity--
	lst.UpdatedAt = now
	off.Accepted = true
	off.UpdatedAt = now

	s.listings[listingID] = lst
	s.offers[offerID] = off
	return off, cloneListing(lst), nil
}

func (s *Store) DeletePendingOffer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	off, ok := s.offers[id]
	if !ok {
		return fmt.Errorf("offer %s: %w", id, storage.ErrNotFound)
	}
	if off.Accepted {
		// Accepted offers are immutable; withdrawal is an idempotent no-op.
		return nil
	}

	delete(s.offers, id)
	ids := s.offersByListing[off.ListingID]
	for i, candidate := range ids {
		if candidate == id {
			s.offersByListing[off.ListingID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func clonePrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneListing(lst listing.Listing) listing.Listing {
	lst.PurchasePrice = clonePrice(lst.PurchasePrice)
	return lst
}
