package offers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blr-market/marketplace/internal/app/domain/account"
	"github.com/blr-market/marketplace/internal/app/domain/listing"
	"github.com/blr-market/marketplace/internal/app/domain/offer"
	"github.com/blr-market/marketplace/internal/app/storage/memory"
	"github.com/blr-market/marketplace/internal/errors"
)

// captureRelay records recipients and signals each delivery.
type captureRelay struct {
	mu   sync.Mutex
	sent []string
	ch   chan string
}

func newCaptureRelay() *captureRelay {
	return &captureRelay{ch: make(chan string, 16)}
}

func (r *captureRelay) Send(_ context.Context, to, _, _ string) error {
	r.mu.Lock()
	r.sent = append(r.sent, to)
	r.mu.Unlock()
	r.ch <- to
	return nil
}

func (r *captureRelay) waitFor(t *testing.T, n int) []string {
	t.Helper()
	got := make([]string, 0, n)
	for len(got) < n {
		select {
		case to := <-r.ch:
			got = append(got, to)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d notifications, got %v", n, got)
		}
	}
	return got
}

type fixture struct {
	store  *memory.Store
	relay  *captureRelay
	svc    *Service
	seller account.Account
	buyer  account.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	seller, err := store.CreateAccount(ctx, account.Account{Name: "Gattaca", Email: "gattaca@example.org"})
	require.NoError(t, err)
	buyer, err := store.CreateAccount(ctx, account.Account{Name: "Anon", Email: "anon@example.org"})
	require.NoError(t, err)

	relay := newCaptureRelay()
	svc := New(store, store, store, relay, "oversight@example.org", nil)
	return &fixture{store: store, relay: relay, svc: svc, seller: seller, buyer: buyer}
}

func (f *fixture) createListing(t *testing.T, lst listing.Listing) listing.Listing {
	t.Helper()
	lst.SellerID = f.seller.ID
	if lst.Deadline.IsZero() {
		lst.Deadline = time.Now().UTC().Add(24 * time.Hour)
	}
	if lst.Quantity == 0 {
		lst.Quantity = 1
	}
	created, err := f.store.CreateListing(context.Background(), lst)
	require.NoError(t, err)
	return created
}

func floatPtr(v float64) *float64 { return &v }

func TestPlaceRejectsSelfPurchase(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{Title: "Recon", SalePrice: 100})

	_, err := f.svc.Place(context.Background(), f.seller.ID, lst.ID, 100)
	require.True(t, errors.Is(err, errors.CodeUnauthorized), "got %v", err)
}

func TestPlaceRejectsExpiredListing(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{
		Title:     "Recon",
		SalePrice: 100,
		Deadline:  time.Now().UTC().Add(-time.Hour),
	})

	_, err := f.svc.Place(context.Background(), f.buyer.ID, lst.ID, 100)
	require.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)
}

func TestPlacePendingOnPlainListing(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{Title: "Recon", SalePrice: 100, Quantity: 2})

	off, err := f.svc.Place(context.Background(), f.buyer.ID, lst.ID, 80)
	require.NoError(t, err)
	require.False(t, off.Accepted)

	got, err := f.store.GetListing(context.Background(), lst.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Quantity, "pending offers must not touch stock")
}

func TestPlaceAnyAmountOnPlainListing(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{Title: "Recon", SalePrice: 100, Quantity: 2})
	ctx := context.Background()

	for _, price := range []float64{0, -5, 0.01} {
		off, err := f.svc.Place(ctx, f.buyer.ID, lst.ID, price)
		require.NoError(t, err, "price %v", price)
		require.False(t, off.Accepted, "price %v", price)
		require.Equal(t, price, off.Price)
	}

	got, err := f.store.GetListing(ctx, lst.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Quantity)
}

func TestPlaceClassifiedAutoAccept(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{
		Title:         "Blueprints",
		SalePrice:     150,
		PurchasePrice: floatPtr(100),
		Label:         listing.LabelClassified,
		Category:      listing.CategoryRestricted,
		Quantity:      2,
	})

	off, err := f.svc.Place(context.Background(), f.buyer.ID, lst.ID, 150)
	require.NoError(t, err)
	require.True(t, off.Accepted)

	got, err := f.store.GetListing(context.Background(), lst.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Quantity)

	recipients := f.relay.waitFor(t, 3)
	require.ElementsMatch(t, []string{"anon@example.org", "gattaca@example.org", "oversight@example.org"}, recipients)
}

func TestPlaceClassifiedMismatchStaysPending(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{
		Title:         "Blueprints",
		SalePrice:     150,
		PurchasePrice: floatPtr(100),
		Label:         listing.LabelClassified,
		Category:      listing.CategoryRestricted,
	})

	off, err := f.svc.Place(context.Background(), f.buyer.ID, lst.ID, 149.99)
	require.NoError(t, err)
	require.False(t, off.Accepted)
}

func TestPlaceUnclassifiedFloor(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{
		Title:         "Survey data",
		SalePrice:     60,
		PurchasePrice: floatPtr(90), // floor is ceil(0.55 * 90) = 50
		Label:         listing.LabelUnclassified,
		Category:      listing.CategoryRestricted,
	})
	ctx := context.Background()

	_, err := f.svc.Place(ctx, f.buyer.ID, lst.ID, 49)
	require.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)

	off, err := f.svc.Place(ctx, f.buyer.ID, lst.ID, 50)
	require.NoError(t, err)
	require.False(t, off.Accepted)
}

func TestAcceptOffer(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{Title: "Recon", SalePrice: 100, Quantity: 1})
	ctx := context.Background()

	off, err := f.svc.Place(ctx, f.buyer.ID, lst.ID, 90)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.buyer.ID, lst.ID, off.ID)
	require.True(t, errors.Is(err, errors.CodeUnauthorized), "non-seller accept: got %v", err)

	accepted, err := f.svc.Accept(ctx, f.seller.ID, lst.ID, off.ID)
	require.NoError(t, err)
	require.True(t, accepted.Accepted)

	got, err := f.store.GetListing(ctx, lst.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Quantity)

	f.relay.waitFor(t, 3)
}

func TestAcceptRejectsExpiredListing(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{
		Title:     "Recon",
		SalePrice: 100,
		Quantity:  1,
		Deadline:  time.Now().UTC().Add(time.Minute),
	})
	ctx := context.Background()

	off, err := f.svc.Place(ctx, f.buyer.ID, lst.ID, 90)
	require.NoError(t, err)

	// The deadline passes while the offer is still pending and before the
	// sweeper has transitioned the listing.
	stale := f.createListing(t, listing.Listing{
		Title:     "Stale",
		SalePrice: 100,
		Quantity:  1,
		Deadline:  time.Now().UTC().Add(-time.Hour),
	})
	pending, err := f.store.CreateOffer(ctx, offer.Offer{ListingID: stale.ID, BuyerID: f.buyer.ID, Price: 90})
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.seller.ID, stale.ID, pending.ID)
	require.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)

	got, err := f.store.GetListing(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Quantity, "expired acceptance must not consume stock")

	// The same applies once the sweeper has flipped the status.
	expired, err := f.store.ExpireListings(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, expired)

	_, err = f.svc.Accept(ctx, f.seller.ID, lst.ID, off.ID)
	require.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)
}

func TestAcceptOutOfStock(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{Title: "Recon", SalePrice: 100, Quantity: 1})
	ctx := context.Background()

	first, err := f.svc.Place(ctx, f.buyer.ID, lst.ID, 90)
	require.NoError(t, err)
	second, err := f.svc.Place(ctx, f.buyer.ID, lst.ID, 95)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.seller.ID, lst.ID, first.ID)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.seller.ID, lst.ID, second.ID)
	require.True(t, errors.Is(err, errors.CodeInsufficientStock), "got %v", err)
}

func TestAcceptTwice(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{Title: "Recon", SalePrice: 100, Quantity: 2})
	ctx := context.Background()

	off, err := f.svc.Place(ctx, f.buyer.ID, lst.ID, 90)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.seller.ID, lst.ID, off.ID)
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, f.seller.ID, lst.ID, off.ID)
	require.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)

	got, err := f.store.GetListing(ctx, lst.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Quantity, "stock must only decrement once per offer")
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{Title: "Recon", SalePrice: 100})
	ctx := context.Background()

	off, err := f.svc.Place(ctx, f.buyer.ID, lst.ID, 90)
	require.NoError(t, err)

	err = f.svc.Withdraw(ctx, f.seller.ID, lst.ID, off.ID)
	require.True(t, errors.Is(err, errors.CodeUnauthorized), "non-buyer withdraw: got %v", err)

	require.NoError(t, f.svc.Withdraw(ctx, f.buyer.ID, lst.ID, off.ID))

	offs, err := f.svc.ListForListing(ctx, lst.ID)
	require.NoError(t, err)
	require.Empty(t, offs)
}

func TestWithdrawAcceptedOfferIsNoOp(t *testing.T) {
	f := newFixture(t)
	lst := f.createListing(t, listing.Listing{Title: "Recon", SalePrice: 100})
	ctx := context.Background()

	off, err := f.svc.Place(ctx, f.buyer.ID, lst.ID, 90)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, f.seller.ID, lst.ID, off.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Withdraw(ctx, f.buyer.ID, lst.ID, off.ID))

	offs, err := f.svc.ListForListing(ctx, lst.ID)
	require.NoError(t, err)
	require.Len(t, offs, 1, "accepted offer must survive withdrawal")
}
