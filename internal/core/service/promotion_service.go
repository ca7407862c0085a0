package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
	"github.com/rl1809/marketplace/internal/port"
)

// PromotionService bills sellers for promoting their listings. Every call
// charges the fee, including re-promotion of an already promoted listing.
type PromotionService struct {
	deps    Deps
	ratings *RatingService
}

func NewPromotionService(deps Deps, ratings *RatingService) *PromotionService {
	return &PromotionService{deps: deps, ratings: ratings}
}

func (s *PromotionService) PromoteProduct(ctx context.Context, sellerID string, listingID int64, idempotencyKey string) (promo domain.PromotedListing, err error) {
	ctx, span := tracer.Start(ctx, "promotion.promote")
	defer span.End()
	span.SetAttributes(attribute.String("seller.id", sellerID), attribute.Int64("listing.id", listingID))

	start := time.Now()
	defer func() {
		result := promotionResult(err)
		s.deps.Metrics.ObservePromotion(result)
		f := logging.Fields{
			SellerID:   sellerID,
			ListingID:  listingID,
			Step:       "promote",
			Status:     result,
			DurationMS: logging.Since(start),
		}
		if err != nil {
			f.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		logging.Log(f)
	}()

	key := ""
	if idempotencyKey != "" {
		key = "promote:" + sellerID + ":" + strconv.FormatInt(listingID, 10) + ":" + idempotencyKey
	}
	return idempotent(ctx, s.deps, key, func() (domain.PromotedListing, error) {
		promo, err := s.charge(ctx, domain.ListingKey{SellerID: sellerID, ListingID: listingID})
		if err != nil {
			return domain.PromotedListing{}, err
		}
		s.deps.publish(ctx, domain.Event{
			ID:         uuid.NewString(),
			Type:       domain.EventListingPromoted,
			Key:        sellerID,
			OccurredAt: promo.PromotionStartTime,
			Payload:    promo,
		})
		return promo, nil
	})
}

func (s *PromotionService) charge(ctx context.Context, key domain.ListingKey) (domain.PromotedListing, error) {
	var promo domain.PromotedListing

	err := s.deps.runTx(ctx, func(ctx context.Context, repo port.Repository) error {
		listing, err := repo.GetListing(ctx, key)
		if err != nil {
			return err
		}
		if listing == nil {
			return domain.ErrProductNotFound
		}
		fee := domain.PromotionFee(listing.UnitPrice)

		acct, err := repo.GetSellerForUpdate(ctx, key.SellerID)
		if err != nil {
			return err
		}
		if acct == nil {
			return domain.ErrSellerNotFound
		}
		if acct.Balance.LessThan(fee) {
			return &domain.InsufficientBalanceError{SellerID: key.SellerID, Balance: acct.Balance, Fee: fee}
		}

		err = repo.DebitSeller(ctx, key.SellerID, fee)
		if errors.Is(err, port.ErrGuardFailed) {
			return &domain.InsufficientBalanceError{SellerID: key.SellerID, Balance: acct.Balance, Fee: fee}
		}
		if err != nil {
			return err
		}

		promo = domain.PromotedListing{
			SellerID:           key.SellerID,
			ListingID:          key.ListingID,
			PromotionStartTime: s.deps.now().UTC().Truncate(time.Microsecond),
			Fee:                fee,
		}
		return repo.UpsertPromotion(ctx, promo)
	})
	return promo, err
}

func (s *PromotionService) ListSellerPromotions(ctx context.Context, sellerID string) ([]domain.PromotedListing, error) {
	promos, err := s.deps.Store.ListPromotionsBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	if promos == nil {
		promos = []domain.PromotedListing{}
	}
	return promos, nil
}

// ListPromotedProducts returns every promoted listing that is not inactive, newest promotion first.
func (s *PromotionService) ListPromotedProducts(ctx context.Context) ([]domain.ListingWithStats, error) {
	listings, err := s.deps.Store.ListPromotedListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list promoted listings: %w", err)
	}
	return s.ratings.withStats(ctx, listings)
}

func promotionResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrSellerNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return "conflict"
	}
	return "error"
}
