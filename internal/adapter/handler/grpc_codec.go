package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype clients must select with grpc.CallContentSubtype.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

const marketplaceServiceName = "marketplace.v1.Marketplace"

type GetCartRequest struct{}

type GetCartResponse struct {
	Items []CartItemMessage `json:"items"`
}

// CartItemMessage flattens a cart item for RPC clients. Money travels as decimal strings.
type CartItemMessage struct {
	SellerID    string  `json:"seller_id"`
	ListingID   int64   `json:"listing_id"`
	Title       string  `json:"product_title"`
	UnitPrice   string  `json:"product_price"`
	Available   int     `json:"available"`
	Quantity    int     `json:"quantity"`
	AvgRating   float64 `json:"avg_rating"`
	ReviewCount int64   `json:"review_count"`
}

type CartLineRequest struct {
	SellerID  string `json:"seller_id"`
	ListingID int64  `json:"listing_id"`
	Quantity  int    `json:"quantity"`
}

type AckResponse struct {
	Message string `json:"message"`
}

type ConfirmCheckoutRequest struct {
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ConfirmCheckoutResponse struct {
	OrderIDs []int64 `json:"order_ids"`
}

type PromoteProductRequest struct {
	ListingID      int64  `json:"listing_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type PromoteProductResponse struct {
	SellerID           string `json:"seller_id"`
	ListingID          int64  `json:"listing_id"`
	PromotionStartTime string `json:"promotion_start_time"`
	Fee                string `json:"fee"`
}

type AddReviewRequest struct {
	OrderID     int64  `json:"order_id"`
	Rating      int    `json:"rating"`
	Description string `json:"review_desc"`
}

type MarketplaceServer interface {
	GetCart(context.Context, *GetCartRequest) (*GetCartResponse, error)
	AddToCart(context.Context, *CartLineRequest) (*AckResponse, error)
	UpdateCart(context.Context, *CartLineRequest) (*AckResponse, error)
	ConfirmCheckout(context.Context, *ConfirmCheckoutRequest) (*ConfirmCheckoutResponse, error)
	PromoteProduct(context.Context, *PromoteProductRequest) (*PromoteProductResponse, error)
	AddReview(context.Context, *AddReviewRequest) (*AckResponse, error)
}

func unaryHandler[Req, Resp any](method string, call func(MarketplaceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MarketplaceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + marketplaceServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(MarketplaceServer), ctx, req.(*Req))
		})
	}
}

var marketplaceServiceDesc = grpc.ServiceDesc{
	ServiceName: marketplaceServiceName,
	HandlerType: (*MarketplaceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCart", Handler: unaryHandler("GetCart", MarketplaceServer.GetCart)},
		{MethodName: "AddToCart", Handler: unaryHandler("AddToCart", MarketplaceServer.AddToCart)},
		{MethodName: "UpdateCart", Handler: unaryHandler("UpdateCart", MarketplaceServer.UpdateCart)},
		{MethodName: "ConfirmCheckout", Handler: unaryHandler("ConfirmCheckout", MarketplaceServer.ConfirmCheckout)},
		{MethodName: "PromoteProduct", Handler: unaryHandler("PromoteProduct", MarketplaceServer.PromoteProduct)},
		{MethodName: "AddReview", Handler: unaryHandler("AddReview", MarketplaceServer.AddReview)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketplace/v1/marketplace.proto",
}

func RegisterMarketplaceServer(s grpc.ServiceRegistrar, srv MarketplaceServer) {
	s.RegisterService(&marketplaceServiceDesc, srv)
}

// MarketplaceClient calls the marketplace service over the JSON codec.
type MarketplaceClient struct {
	cc grpc.ClientConnInterface
}

func NewMarketplaceClient(cc grpc.ClientConnInterface) *MarketplaceClient {
	return &MarketplaceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+marketplaceServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MarketplaceClient) GetCart(ctx context.Context, in *GetCartRequest, opts ...grpc.CallOption) (*GetCartResponse, error) {
	return invoke[GetCartResponse](ctx, c.cc, "GetCart", in, opts)
}

func (c *MarketplaceClient) AddToCart(ctx context.Context, in *CartLineRequest, opts ...grpc.CallOption) (*AckResponse, error) {
	return invoke[AckResponse](ctx, c.cc, "AddToCart", in, opts)
}

func (c *MarketplaceClient) UpdateCart(ctx context.Context, in *CartLineRequest, opts ...grpc.CallOption) (*AckResponse, error) {
	return invoke[AckResponse](ctx, c.cc, "UpdateCart", in, opts)
}

func (c *MarketplaceClient) ConfirmCheckout(ctx context.Context, in *ConfirmCheckoutRequest, opts ...grpc.CallOption) (*ConfirmCheckoutResponse, error) {
	return invoke[ConfirmCheckoutResponse](ctx, c.cc, "ConfirmCheckout", in, opts)
}

func (c *MarketplaceClient) PromoteProduct(ctx context.Context, in *PromoteProductRequest, opts ...grpc.CallOption) (*PromoteProductResponse, error) {
	return invoke[PromoteProductResponse](ctx, c.cc, "PromoteProduct", in, opts)
}

func (c *MarketplaceClient) AddReview(ctx context.Context, in *AddReviewRequest, opts ...grpc.CallOption) (*AckResponse, error) {
	return invoke[AckResponse](ctx, c.cc, "AddReview", in, opts)
}
