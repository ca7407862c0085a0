package port

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/rl1809/marketplace/internal/core/domain"
)

var (
	// ErrTxConflict marks a deadlock or serialization failure; the transaction may be retried.
	ErrTxConflict = errors.New("transaction conflict")

	// ErrDuplicate marks a unique-key violation.
	ErrDuplicate = errors.New("duplicate key")

	// ErrGuardFailed is returned when a guarded update matched no row.
	ErrGuardFailed = errors.New("guarded update matched no row")
)

// Repository is the catalog store. Lookups return (nil, nil) when the row is absent.
// Methods suffixed ForUpdate lock the row until the surrounding transaction ends.
type Repository interface {
	GetListing(ctx context.Context, key domain.ListingKey) (*domain.Listing, error)
	GetListingForUpdate(ctx context.Context, key domain.ListingKey) (*domain.Listing, error)
	ListListingsBySeller(ctx context.Context, sellerID string) ([]domain.Listing, error)
	NextListingID(ctx context.Context, sellerID string) (int64, error)
	InsertListing(ctx context.Context, listing domain.Listing) error
	UpdateListing(ctx context.Context, listing domain.Listing) error

	// DecrementListingQuantity subtracts qty and writes status in one statement,
	// only if at least qty units remain. Otherwise it returns ErrGuardFailed.
	DecrementListingQuantity(ctx context.Context, key domain.ListingKey, qty int, status domain.ListingStatus) error

	GetSeller(ctx context.Context, sellerID string) (*domain.SellerAccount, error)
	GetSellerForUpdate(ctx context.Context, sellerID string) (*domain.SellerAccount, error)
	CreditSeller(ctx context.Context, sellerID string, amount decimal.Decimal) error

	// DebitSeller subtracts amount only if the balance covers it. Otherwise ErrGuardFailed.
	DebitSeller(ctx context.Context, sellerID string, amount decimal.Decimal) error

	InsertOrder(ctx context.Context, order domain.Order) (int64, error)
	GetOrderForBuyer(ctx context.Context, orderID int64, buyerID string) (*domain.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)

	GetReview(ctx context.Context, orderID int64) (*domain.Review, error)
	InsertReview(ctx context.Context, review domain.Review) error

	// SellerRatingTotals aggregates reviews joined through orders. An empty
	// sellerIDs slice means every seller with at least one review.
	SellerRatingTotals(ctx context.Context, sellerIDs []string) (map[string]domain.RatingTotals, error)

	GetCartLine(ctx context.Context, buyerID string, key domain.ListingKey) (*domain.CartLine, error)
	InsertCartLine(ctx context.Context, line domain.CartLine) error
	UpdateCartLineQuantity(ctx context.Context, buyerID string, key domain.ListingKey, qty int) error
	DeleteCartLine(ctx context.Context, buyerID string, key domain.ListingKey) error
	DeleteCartLinesForListing(ctx context.Context, key domain.ListingKey) error
	DeleteCart(ctx context.Context, buyerID string) error

	// ListCart returns the buyer's cart joined with live listing rows, in insertion order.
	ListCart(ctx context.Context, buyerID string) ([]domain.CartEntry, error)

	// ListCartForUpdate locks the buyer's cart lines and returns them in insertion order.
	ListCartForUpdate(ctx context.Context, buyerID string) ([]domain.CartLine, error)

	UpsertPromotion(ctx context.Context, promo domain.PromotedListing) error
	ListPromotionsBySeller(ctx context.Context, sellerID string) ([]domain.PromotedListing, error)

	// ListPromotedListings returns promoted listings whose status is not Inactive.
	ListPromotedListings(ctx context.Context) ([]domain.Listing, error)
}

// Store is a Repository that can also run a function inside one transaction.
// fn receives a Repository bound to the transaction; the transaction commits
// when fn returns nil and rolls back otherwise.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
