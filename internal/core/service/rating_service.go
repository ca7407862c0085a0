package service

import (
	"context"
	"fmt"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

// RatingService computes seller rating aggregates on every read.
type RatingService struct {
	repo port.Repository
}

func NewRatingService(repo port.Repository) *RatingService {
	return &RatingService{repo: repo}
}

// SellerStats returns (0, 0) for a seller with no reviewed orders.
func (s *RatingService) SellerStats(ctx context.Context, sellerID string) (domain.RatingStats, error) {
	totals, err := s.repo.SellerRatingTotals(ctx, []string{sellerID})
	if err != nil {
		return domain.RatingStats{}, fmt.Errorf("seller ratings: %w", err)
	}
	return totals[sellerID].Stats(), nil
}

// SellerStatsBatch aggregates every seller in one query. Sellers without
// reviews are present with zero stats.
func (s *RatingService) SellerStatsBatch(ctx context.Context, sellerIDs []string) (map[string]domain.RatingStats, error) {
	out := make(map[string]domain.RatingStats, len(sellerIDs))
	if len(sellerIDs) == 0 {
		return out, nil
	}

	totals, err := s.repo.SellerRatingTotals(ctx, dedupe(sellerIDs))
	if err != nil {
		return nil, fmt.Errorf("seller ratings: %w", err)
	}
	for _, id := range sellerIDs {
		out[id] = totals[id].Stats()
	}
	return out, nil
}

func (s *RatingService) withStats(ctx context.Context, listings []domain.Listing) ([]domain.ListingWithStats, error) {
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.SellerID)
	}
	stats, err := s.SellerStatsBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ListingWithStats, 0, len(listings))
	for _, l := range listings {
		out = append(out, domain.ListingWithStats{Info: l, SellerStats: stats[l.SellerID]})
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
