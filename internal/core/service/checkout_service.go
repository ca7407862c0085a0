package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
	"github.com/rl1809/marketplace/internal/port"
)

type CheckoutService struct {
	deps Deps
}

func NewCheckoutService(deps Deps) *CheckoutService {
	return &CheckoutService{deps: deps}
}

// ConfirmCheckout turns the buyer's cart into orders in one transaction and
// returns the order ids in cart order. Any failing line aborts the whole
// checkout with nothing written. With a non-empty idempotencyKey, a replay of a
// completed checkout returns the original order ids.
func (s *CheckoutService) ConfirmCheckout(ctx context.Context, buyerID, idempotencyKey string) (ids []int64, err error) {
	ctx, span := tracer.Start(ctx, "checkout.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("buyer.id", buyerID))

	start := time.Now()
	defer func() {
		result := checkoutResult(err)
		s.deps.Metrics.ObserveCheckout(result)
		f := logging.Fields{
			BuyerID:    buyerID,
			Step:       "checkout",
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
		key = "checkout:" + buyerID + ":" + idempotencyKey
	}
	return idempotent(ctx, s.deps, key, func() ([]int64, error) {
		orders, err := s.commit(ctx, buyerID)
		if err != nil {
			return nil, err
		}

		ids := make([]int64, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
			s.deps.publish(ctx, domain.Event{
				ID:         uuid.NewString(),
				Type:       domain.EventOrderCreated,
				Key:        o.SellerID,
				OccurredAt: s.deps.now().UTC(),
				Payload:    o,
			})
		}
		span.SetAttributes(attribute.Int("checkout.orders", len(ids)))
		return ids, nil
	})
}

func (s *CheckoutService) commit(ctx context.Context, buyerID string) ([]domain.Order, error) {
	date := domain.OrderDate(s.deps.now())
	var orders []domain.Order

	err := s.deps.runTx(ctx, func(ctx context.Context, repo port.Repository) error {
		orders = orders[:0]

		lines, err := repo.ListCartForUpdate(ctx, buyerID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}

		listings, err := lockListings(ctx, repo, lines)
		if err != nil {
			return err
		}

		for _, line := range lines {
			key := line.ListingKey()
			listing := listings[key]
			if listing == nil {
				return domain.ErrProductNotFound
			}
			if line.Quantity > listing.Quantity {
				return &domain.InsufficientStockError{Listing: key, Title: listing.Title, Available: listing.Quantity, Requested: line.Quantity}
			}

			payment := domain.LinePayment(listing.UnitPrice, line.Quantity)
			remaining := listing.Quantity - line.Quantity
			status := domain.DeriveStatus(remaining, listing.Status)

			err := repo.DecrementListingQuantity(ctx, key, line.Quantity, status)
			if errors.Is(err, port.ErrGuardFailed) {
				return &domain.InsufficientStockError{Listing: key, Title: listing.Title, Available: listing.Quantity, Requested: line.Quantity}
			}
			if err != nil {
				return err
			}
			listing.Quantity = remaining
			listing.Status = status

			order := domain.Order{
				SellerID:  key.SellerID,
				ListingID: key.ListingID,
				BuyerID:   buyerID,
				Date:      date,
				Quantity:  line.Quantity,
				Payment:   payment,
			}
			if order.ID, err = repo.InsertOrder(ctx, order); err != nil {
				return err
			}

			err = repo.CreditSeller(ctx, key.SellerID, payment)
			if errors.Is(err, port.ErrGuardFailed) {
				return domain.ErrSellerNotFound
			}
			if err != nil {
				return err
			}
			orders = append(orders, order)
		}

		return repo.DeleteCart(ctx, buyerID)
	})
	if errors.Is(err, domain.ErrConcurrentUpdate) {
		return nil, domain.ErrCheckoutConflict
	}
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// lockListings takes row locks on every listing in the cart in key order, so
// two checkouts sharing listings always lock them in the same sequence.
func lockListings(ctx context.Context, repo port.Repository, lines []domain.CartLine) (map[domain.ListingKey]*domain.Listing, error) {
	keys := make([]domain.ListingKey, 0, len(lines))
	for _, l := range lines {
		keys = append(keys, l.ListingKey())
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make(map[domain.ListingKey]*domain.Listing, len(keys))
	for _, k := range keys {
		if _, ok := out[k]; ok {
			continue
		}
		l, err := repo.GetListingForUpdate(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = l
	}
	return out, nil
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrCheckoutConflict):
		return "conflict"
	}
	return "error"
}
