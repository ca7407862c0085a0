package service

import (
	"context"
	"fmt"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

type CatalogService struct {
	deps    Deps
	ratings *RatingService
}

func NewCatalogService(deps Deps, ratings *RatingService) *CatalogService {
	return &CatalogService{deps: deps, ratings: ratings}
}

// ListProduct creates a listing under the actor's seller with the next free listing id.
func (s *CatalogService) ListProduct(ctx context.Context, actor domain.ListingActor, fields domain.ListingFields) (domain.Listing, error) {
	if err := fields.Validate(); err != nil {
		return domain.Listing{}, err
	}
	sellerID := actor.OwnerID()

	var listing domain.Listing
	err := s.deps.runTx(ctx, func(ctx context.Context, repo port.Repository) error {
		// The seller row lock serializes id allocation per seller.
		acct, err := repo.GetSellerForUpdate(ctx, sellerID)
		if err != nil {
			return err
		}
		if acct == nil {
			return domain.ErrSellerNotFound
		}

		id, err := repo.NextListingID(ctx, sellerID)
		if err != nil {
			return err
		}

		listing = applyFields(domain.Listing{SellerID: sellerID, ListingID: id}, fields)
		listing.Status = domain.DeriveStatus(fields.Quantity, domain.ListingStatusActive)
		return repo.InsertListing(ctx, listing)
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return listing, nil
}

// EditProduct replaces a listing's fields. The stored status is derived from
// the new quantity and the requested status; a listing that is no longer
// Active is removed from every cart.
func (s *CatalogService) EditProduct(ctx context.Context, actor domain.ListingActor, listingID int64, fields domain.ListingFields, status domain.ListingStatus) (domain.Listing, error) {
	if err := fields.Validate(); err != nil {
		return domain.Listing{}, err
	}
	if !status.Valid() {
		return domain.Listing{}, domain.ErrInvalidListing
	}
	key := domain.ListingKey{SellerID: actor.OwnerID(), ListingID: listingID}

	var listing domain.Listing
	err := s.deps.runTx(ctx, func(ctx context.Context, repo port.Repository) error {
		current, err := repo.GetListingForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrProductNotFound
		}

		listing = applyFields(*current, fields)
		listing.Status = domain.DeriveStatus(fields.Quantity, status)
		if err := repo.UpdateListing(ctx, listing); err != nil {
			return err
		}

		if listing.Status != domain.ListingStatusActive {
			return repo.DeleteCartLinesForListing(ctx, key)
		}
		return nil
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return listing, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, key domain.ListingKey) (domain.ListingWithStats, error) {
	listing, err := s.deps.Store.GetListing(ctx, key)
	if err != nil {
		return domain.ListingWithStats{}, fmt.Errorf("get listing: %w", err)
	}
	if listing == nil {
		return domain.ListingWithStats{}, domain.ErrProductNotFound
	}

	stats, err := s.ratings.SellerStats(ctx, key.SellerID)
	if err != nil {
		return domain.ListingWithStats{}, err
	}
	return domain.ListingWithStats{Info: *listing, SellerStats: stats}, nil
}

func (s *CatalogService) ListSellerProducts(ctx context.Context, sellerID string) ([]domain.Listing, error) {
	listings, err := s.deps.Store.ListListingsBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	if listings == nil {
		listings = []domain.Listing{}
	}
	return listings, nil
}

func applyFields(l domain.Listing, f domain.ListingFields) domain.Listing {
	l.Category = f.Category
	l.Title = f.Title
	l.Name = f.Name
	l.Description = f.Description
	l.Quantity = f.Quantity
	l.UnitPrice = f.UnitPrice
	return l
}
