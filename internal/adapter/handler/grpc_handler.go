package handler

import (
	"context"
	"errors"
	"path"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/marketplace/internal/adapter/auth"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/logging"
)

// Every RPC is gated on one role.
var methodRoles = map[string]domain.Role{
	"GetCart":         domain.RoleBuyer,
	"AddToCart":       domain.RoleBuyer,
	"UpdateCart":      domain.RoleBuyer,
	"ConfirmCheckout": domain.RoleBuyer,
	"AddReview":       domain.RoleBuyer,
	"PromoteProduct":  domain.RoleSeller,
}

type GRPCHandler struct {
	svc      Services
	verifier *auth.Verifier
}

func NewGRPCHandler(svc Services, verifier *auth.Verifier) *GRPCHandler {
	return &GRPCHandler{svc: svc, verifier: verifier}
}

// NewGRPCServer returns a server with h registered behind the logging and
// auth interceptors.
func NewGRPCServer(h *GRPCHandler, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(logUnary, h.authUnary))
	s := grpc.NewServer(opts...)
	RegisterMarketplaceServer(s, h)
	return s
}

func (h *GRPCHandler) GetCart(ctx context.Context, _ *GetCartRequest) (*GetCartResponse, error) {
	buyer, _ := auth.PrincipalFrom(ctx)
	items, err := h.svc.Cart.GetCart(ctx, buyer.ID)
	if err != nil {
		return nil, grpcError(err)
	}

	resp := &GetCartResponse{Items: make([]CartItemMessage, 0, len(items))}
	for _, it := range items {
		info := it.Product.Info
		resp.Items = append(resp.Items, CartItemMessage{
			SellerID:    info.SellerID,
			ListingID:   info.ListingID,
			Title:       info.Title,
			UnitPrice:   info.UnitPrice.String(),
			Available:   info.Quantity,
			Quantity:    it.Quantity,
			AvgRating:   it.Product.SellerStats.AvgRating,
			ReviewCount: it.Product.SellerStats.ReviewCount,
		})
	}
	return resp, nil
}

func (h *GRPCHandler) AddToCart(ctx context.Context, req *CartLineRequest) (*AckResponse, error) {
	buyer, _ := auth.PrincipalFrom(ctx)
	key := domain.ListingKey{SellerID: req.SellerID, ListingID: req.ListingID}
	if err := h.svc.Cart.AddToCart(ctx, buyer.ID, key, req.Quantity); err != nil {
		return nil, grpcError(err)
	}
	return &AckResponse{Message: "Added product to cart."}, nil
}

func (h *GRPCHandler) UpdateCart(ctx context.Context, req *CartLineRequest) (*AckResponse, error) {
	buyer, _ := auth.PrincipalFrom(ctx)
	key := domain.ListingKey{SellerID: req.SellerID, ListingID: req.ListingID}
	if err := h.svc.Cart.UpdateCart(ctx, buyer.ID, key, req.Quantity); err != nil {
		return nil, grpcError(err)
	}
	return &AckResponse{Message: "Updated product quantity."}, nil
}

func (h *GRPCHandler) ConfirmCheckout(ctx context.Context, req *ConfirmCheckoutRequest) (*ConfirmCheckoutResponse, error) {
	buyer, _ := auth.PrincipalFrom(ctx)
	ids, err := h.svc.Checkout.ConfirmCheckout(ctx, buyer.ID, req.IdempotencyKey)
	if err != nil {
		return nil, grpcError(err)
	}
	return &ConfirmCheckoutResponse{OrderIDs: ids}, nil
}

func (h *GRPCHandler) PromoteProduct(ctx context.Context, req *PromoteProductRequest) (*PromoteProductResponse, error) {
	seller, _ := auth.PrincipalFrom(ctx)
	promo, err := h.svc.Promotions.PromoteProduct(ctx, seller.ID, req.ListingID, req.IdempotencyKey)
	if err != nil {
		return nil, grpcError(err)
	}
	return &PromoteProductResponse{
		SellerID:           promo.SellerID,
		ListingID:          promo.ListingID,
		PromotionStartTime: promo.PromotionStartTime.Format(time.RFC3339Nano),
		Fee:                promo.Fee.String(),
	}, nil
}

func (h *GRPCHandler) AddReview(ctx context.Context, req *AddReviewRequest) (*AckResponse, error) {
	buyer, _ := auth.PrincipalFrom(ctx)
	review := domain.Review{OrderID: req.OrderID, Rating: req.Rating, Description: req.Description}
	if err := h.svc.Reviews.AddReview(ctx, buyer.ID, review); err != nil {
		return nil, grpcError(err)
	}
	return &AckResponse{Message: "Review added."}, nil
}

func (h *GRPCHandler) authUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	role, gated := methodRoles[path.Base(info.FullMethod)]
	if !gated {
		return next(ctx, req)
	}

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			token = vals[0]
		}
	}
	p, err := h.verifier.Verify(token)
	if err != nil || !p.Is(role) {
		return nil, status.Error(codes.Unauthenticated, domain.ErrUnauthorized.Message)
	}
	return next(auth.WithPrincipal(ctx, p), req)
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)

	f := logging.Fields{
		Step:       "grpc",
		Status:     status.Code(err).String(),
		Message:    info.FullMethod,
		DurationMS: logging.Since(start),
	}
	if err != nil {
		f.Error = err.Error()
	}
	logging.Log(f)
	return resp, err
}

// grpcError converts a service error into a status with the caller-facing message.
func grpcError(err error) error {
	if errors.Is(err, domain.ErrCheckoutConflict) || errors.Is(err, domain.ErrConcurrentUpdate) {
		return status.Error(codes.Aborted, err.Error())
	}

	code := codes.Internal
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindConflict:
		code = codes.AlreadyExists
	case domain.KindInsufficient:
		code = codes.FailedPrecondition
	case domain.KindUnauthorized:
		code = codes.Unauthenticated
	case domain.KindForbidden:
		code = codes.PermissionDenied
	case domain.KindValidation:
		code = codes.InvalidArgument
	}
	return status.Error(code, errorMessage(err, "internal error"))
}
