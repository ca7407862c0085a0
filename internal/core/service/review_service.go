package service

import (
	"context"
	"errors"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

// ReviewService records at most one review per order, written by the order's buyer.
type ReviewService struct {
	deps Deps
}

func NewReviewService(deps Deps) *ReviewService {
	return &ReviewService{deps: deps}
}

func (s *ReviewService) AddReview(ctx context.Context, buyerID string, review domain.Review) error {
	if err := review.Validate(); err != nil {
		return err
	}

	return s.deps.runTx(ctx, func(ctx context.Context, repo port.Repository) error {
		order, err := repo.GetOrderForBuyer(ctx, review.OrderID, buyerID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}

		existing, err := repo.GetReview(ctx, review.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrReviewAlreadyExists
		}

		err = repo.InsertReview(ctx, review)
		if errors.Is(err, port.ErrDuplicate) {
			return domain.ErrReviewAlreadyExists
		}
		return err
	})
}
