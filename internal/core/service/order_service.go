package service

import (
	"context"
	"fmt"

	"github.com/rl1809/marketplace/internal/core/domain"
)

// OrderService serves a buyer's order history.
type OrderService struct {
	deps Deps
}

func NewOrderService(deps Deps) *OrderService {
	return &OrderService{deps: deps}
}

// ListBuyerOrders returns the buyer's orders oldest first, each with the
// listing's current state. Payment is the snapshot taken at checkout.
func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID string) ([]domain.OrderWithListing, error) {
	orders, err := s.deps.Store.ListOrdersByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	listings := make(map[domain.ListingKey]*domain.Listing)
	out := make([]domain.OrderWithListing, 0, len(orders))
	for _, o := range orders {
		key := o.ListingKey()
		l, seen := listings[key]
		if !seen {
			if l, err = s.deps.Store.GetListing(ctx, key); err != nil {
				return nil, fmt.Errorf("get listing %s: %w", key, err)
			}
			listings[key] = l
		}
		out = append(out, domain.OrderWithListing{Order: o, Listing: l})
	}
	return out, nil
}
