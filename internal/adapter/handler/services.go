package handler

import (
	"errors"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/core/service"
)

// Services bundles the core services both transports dispatch to.
type Services struct {
	Cart       *service.CartService
	Checkout   *service.CheckoutService
	Promotions *service.PromotionService
	Reviews    *service.ReviewService
	Catalog    *service.CatalogService
	Orders     *service.OrderService
	Ratings    *service.RatingService
}

// NewServices builds every service over the same dependencies.
func NewServices(deps service.Deps) Services {
	ratings := service.NewRatingService(deps.Store)
	return Services{
		Cart:       service.NewCartService(deps, ratings),
		Checkout:   service.NewCheckoutService(deps),
		Promotions: service.NewPromotionService(deps, ratings),
		Reviews:    service.NewReviewService(deps),
		Catalog:    service.NewCatalogService(deps, ratings),
		Orders:     service.NewOrderService(deps),
		Ratings:    ratings,
	}
}

// errorMessage is the text returned to callers. Unclassified failures never
// leak driver detail.
func errorMessage(err error, fallback string) string {
	if domain.KindOf(err) == domain.KindFatal {
		return fallback
	}
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		return stock.Error()
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	var bal *domain.InsufficientBalanceError
	if errors.As(err, &bal) {
		return domain.ErrInsufficientBalance.Message
	}
	return err.Error()
}
