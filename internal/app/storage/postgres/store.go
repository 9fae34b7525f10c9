package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/blr-market/marketplace/internal/app/domain/account"
	"github.com/blr-market/marketplace/internal/app/domain/listing"
	"github.com/blr-market/marketplace/internal/app/domain/offer"
	"github.com/blr-market/marketplace/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.ListingStore = (*Store)(nil)
var _ storage.OfferStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const uniqueViolation = "23505"

func translateErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return storage.ErrDuplicate
	}
	return err
}

// --- AccountStore -----------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_accounts (id, name, role, password_hash, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, acct.ID, acct.Name, string(acct.Role), acct.PasswordHash, acct.Email, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return account.Account{}, translateErr(err)
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, name, role, password_hash, email, created_at, updated_at
		FROM market_accounts
		WHERE id = $1
	`, id))
}

func (s *Store) GetAccountByName(ctx context.Context, name string) (account.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, name, role, password_hash, email, created_at, updated_at
		FROM market_accounts
		WHERE lower(name) = lower($1)
	`, name))
}

func (s *Store) scanAccount(row *sql.Row) (account.Account, error) {
	var (
		acct account.Account
		role string
	)
	if err := row.Scan(&acct.ID, &acct.Name, &role, &acct.PasswordHash, &acct.Email, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return account.Account{}, translateErr(err)
	}
	acct.Role = account.Role(role)
	return acct, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]account.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, password_hash, email, created_at, updated_at
		FROM market_accounts
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []account.Account
	for rows.Next() {
		var (
			acct account.Account
			role string
		)
		if err := rows.Scan(&acct.ID, &acct.Name, &role, &acct.PasswordHash, &acct.Email, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, err
		}
		acct.Role = account.Role(role)
		result = append(result, acct)
	}
	return result, rows.Err()
}

// --- ListingStore -----------------------------------------------------------

func (s *Store) CreateListing(ctx context.Context, lst listing.Listing) (listing.Listing, error) {
	if lst.ID == "" {
		lst.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lst.CreatedAt = now
	lst.UpdatedAt = now
	if lst.Status == "" {
		lst.Status = listing.StatusOpen
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_listings (id, title, description, sale_price, purchase_price, label, deadline, quantity, category, seller_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, lst.ID, lst.Title, lst.Description, lst.SalePrice, toNullFloat(lst.PurchasePrice), toNullString(string(lst.Label)),
		lst.Deadline, lst.Quantity, lst.Category, lst.SellerID, string(lst.Status), lst.CreatedAt, lst.UpdatedAt)
	if err != nil {
		return listing.Listing{}, translateErr(err)
	}
	return lst, nil
}

const listingColumns = `id, title, description, sale_price, purchase_price, label, deadline, quantity, category, seller_id, status, created_at, updated_at`

func (s *Store) GetListing(ctx context.Context, id string) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+listingColumns+`
		FROM market_listings
		WHERE id = $1
	`, id)
	return scanListing(row)
}

func (s *Store) ListListings(ctx context.Context) ([]listing.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+listingColumns+`
		FROM market_listings
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []listing.Listing
	for rows.Next() {
		lst, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lst)
	}
	return result, rows.Err()
}

func (s *Store) ExpireListings(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE market_listings
		SET status = $1, updated_at = $2
		WHERE status = $3 AND deadline < $4
	`, string(listing.StatusExpired), time.Now().UTC(), string(listing.StatusOpen), now.UTC())
	if err != nil {
		return 0, err
	}
	count, _ := result.RowsAffected()
	return int(count), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (listing.Listing, error) {
	var (
		lst           listing.Listing
		purchasePrice sql.NullFloat64
		label         sql.NullString
		status        string
	)
	if err := row.Scan(&lst.ID, &lst.Title, &lst.Description, &lst.SalePrice, &purchasePrice, &label,
		&lst.Deadline, &lst.Quantity, &lst.Category, &lst.SellerID, &status, &lst.CreatedAt, &lst.UpdatedAt); err != nil {
		return listing.Listing{}, translateErr(err)
	}
	if purchasePrice.Valid {
		v := purchasePrice.Float64
		lst.PurchasePrice = &v
	}
	if label.Valid {
		lst.Label = listing.Label(label.String)
	}
	lst.Status = listing.Status(status)
	return lst, nil
}

// --- OfferStore -------------------------------------------------------------

func (s *Store) CreateOffer(ctx context.Context, off offer.Offer) (offer.Offer, error) {
	if off.ID == "" {
		off.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	off.CreatedAt = now
	off.UpdatedAt = now

	if !off.Accepted {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO market_offers (id, listing_id, buyer_id, price, accepted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, off.ID, off.ListingID, off.BuyerID, off.Price, off.Accepted, off.CreatedAt, off.UpdatedAt)
		if err != nil {
			return offer.Offer{}, translateErr(err)
		}
		return off, nil
	}

	// Auto-accepted offer: the insert and the quantity decrement must land
	// in the same transaction.
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := decrementQuantity(ctx, tx, off.ListingID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO market_offers (id, listing_id, buyer_id, price, accepted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, off.ID, off.ListingID, off.BuyerID, off.Price, off.Accepted, off.CreatedAt, off.UpdatedAt)
		return err
	})
	if err != nil {
		return offer.Offer{}, translateErr(err)
	}
	return off, nil
}

func (s *Store) GetOffer(ctx context.Context, id string) (offer.Offer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, listing_id, buyer_id, price, accepted, created_at, updated_at
		FROM market_offers
		WHERE id = $1
	`, id)

	var off offer.Offer
	if err := row.Scan(&off.ID, &off.ListingID, &off.BuyerID, &off.Price, &off.Accepted, &off.CreatedAt, &off.UpdatedAt); err != nil {
		return offer.Offer{}, translateErr(err)
	}
	return off, nil
}

func (s *Store) ListOffers(ctx context.Context, listingID string) ([]offer.Offer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, buyer_id, price, accepted, created_at, updated_at
		FROM market_offers
		WHERE listing_id = $1
		ORDER BY created_at
	`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []offer.Offer
	for rows.Next() {
		var off offer.Offer
		if err := rows.Scan(&off.ID, &off.ListingID, &off.BuyerID, &off.Price, &off.Accepted, &off.CreatedAt, &off.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, off)
	}
	return result, rows.Err()
}

func (s *Store) AcceptOffer(ctx context.Context, listingID, offerID string) (offer.Offer, listing.Listing, error) {
	var (
		off offer.Offer
		lst listing.Listing
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, listing_id, buyer_id, price, accepted, created_at, updated_at
			FROM market_offers
			WHERE id = $1 AND listing_id = $2
			FOR UPDATE
		`, offerID, listingID)
		if err := row.Scan(&off.ID, &off.ListingID, &off.BuyerID, &off.Price, &off.Accepted, &off.CreatedAt, &off.UpdatedAt); err != nil {
			return err
		}
		if off.Accepted {
			return storage.ErrAlreadyAccepted
		}

		if err := decrementQuantity(ctx, tx, listingID); err != nil {
			return err
		}

		now := time.Now().UTC()
		off.Accepted = true
		off.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `
			UPDATE market_offers SET accepted = TRUE, updated_at = $2 WHERE id = $1
		`, off.ID, now); err != nil {
			return err
		}

		var err error
		lst, err = scanListing(tx.QueryRowContext(ctx, `
			SELECT `+listingColumns+`
			FROM market_listings
			WHERE id = $1
		`, listingID))
		return err
	})
	if err != nil {
		return offer.Offer{}, listing.Listing{}, translateErr(err)
	}
	return off, lst, nil
}

func (s *Store) DeletePendingOffer(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var accepted bool
		row := tx.QueryRowContext(ctx, `
			SELECT accepted FROM market_offers WHERE id = $1 FOR UPDATE
		`, id)
		if err := row.Scan(&accepted); err != nil {
			return err
		}
		if accepted {
			// Accepted offers stay; withdrawal is an idempotent no-op.
			return nil
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM market_offers WHERE id = $1`, id)
		return err
	})
}

// decrementQuantity takes the listing row lock and decrements the remaining
// quantity, refusing at zero so the quantity can never go negative.
func decrementQuantity(ctx context.Context, tx *sql.Tx, listingID string) error {
	var quantity int
	row := tx.QueryRowContext(ctx, `
		SELECT quantity FROM market_listings WHERE id = $1 FOR UPDATE
	`, listingID)
	if err := row.Scan(&quantity); err != nil {
		return err
	}
	if quantity <= 0 {
		return storage.ErrNoStock
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE market_listings SET quantity = quantity - 1, updated_at = $2 WHERE id = $1
	`, listingID, time.Now().UTC())
	return err
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func toNullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func toNullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
