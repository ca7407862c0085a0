package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

// CartService is the cart aggregator. Stock checks here are best effort;
// checkout re-validates under lock.
type CartService struct {
	deps    Deps
	ratings *RatingService
}

func NewCartService(deps Deps, ratings *RatingService) *CartService {
	return &CartService{deps: deps, ratings: ratings}
}

// GetCart reads the buyer's cart joined with live listings and seller stats.
func (s *CartService) GetCart(ctx context.Context, buyerID string) ([]domain.CartItem, error) {
	entries, err := s.deps.Store.ListCart(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}

	listings := make([]domain.Listing, 0, len(entries))
	for _, e := range entries {
		listings = append(listings, e.Listing)
	}
	products, err := s.ratings.withStats(ctx, listings)
	if err != nil {
		return nil, err
	}

	items := make([]domain.CartItem, 0, len(entries))
	for i, e := range entries {
		items = append(items, domain.CartItem{Product: products[i], Quantity: e.Line.Quantity})
	}
	return items, nil
}

func (s *CartService) AddToCart(ctx context.Context, buyerID string, key domain.ListingKey, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	return s.deps.runTx(ctx, func(ctx context.Context, repo port.Repository) error {
		existing, err := repo.GetCartLine(ctx, buyerID, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyInCart
		}

		listing, err := repo.GetListing(ctx, key)
		if err != nil {
			return err
		}
		if listing == nil || listing.Status != domain.ListingStatusActive {
			return domain.ErrProductNotFound
		}
		if qty > listing.Quantity {
			return &domain.InsufficientStockError{Listing: key, Title: listing.Title, Available: listing.Quantity, Requested: qty}
		}

		err = repo.InsertCartLine(ctx, domain.CartLine{BuyerID: buyerID, SellerID: key.SellerID, ListingID: key.ListingID, Quantity: qty})
		switch {
		case errors.Is(err, port.ErrDuplicate):
			return domain.ErrAlreadyInCart
		case errors.Is(err, port.ErrGuardFailed):
			return domain.ErrProductNotFound
		}
		return err
	})
}

// UpdateCart sets a line's quantity. A quantity of zero or less removes the line.
func (s *CartService) UpdateCart(ctx context.Context, buyerID string, key domain.ListingKey, newQty int) error {
	return s.deps.runTx(ctx, func(ctx context.Context, repo port.Repository) error {
		line, err := repo.GetCartLine(ctx, buyerID, key)
		if err != nil {
			return err
		}
		if line == nil {
			return domain.ErrCartItemNotFound
		}

		if newQty <= 0 {
			return ignoreGuard(repo.DeleteCartLine(ctx, buyerID, key))
		}

		listing, err := repo.GetListing(ctx, key)
		if err != nil {
			return err
		}
		if listing == nil {
			return domain.ErrProductNotFound
		}
		if newQty > listing.Quantity {
			return &domain.InsufficientStockError{Listing: key, Title: listing.Title, Available: listing.Quantity, Requested: newQty}
		}

		err = repo.UpdateCartLineQuantity(ctx, buyerID, key, newQty)
		if errors.Is(err, port.ErrGuardFailed) {
			return domain.ErrCartItemNotFound
		}
		return err
	})
}

// RemoveFromCart deletes one line. Removing a line that is not there is not an error.
func (s *CartService) RemoveFromCart(ctx context.Context, buyerID string, key domain.ListingKey) error {
	if err := ignoreGuard(s.deps.Store.DeleteCartLine(ctx, buyerID, key)); err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	return nil
}

func (s *CartService) EmptyCart(ctx context.Context, buyerID string) error {
	if err := s.deps.Store.DeleteCart(ctx, buyerID); err != nil {
		return fmt.Errorf("empty cart: %w", err)
	}
	return nil
}

func ignoreGuard(err error) error {
	if errors.Is(err, port.ErrGuardFailed) {
		return nil
	}
	return err
}
