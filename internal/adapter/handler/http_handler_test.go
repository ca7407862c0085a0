package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/metrics"
)

type decodedResponse struct {
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ErrorType string          `json:"error_type"`
}

type httpEnv struct {
	*env
	router *gin.Engine
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := newEnv(t)
	m := metrics.NewServerMetrics(prometheus.NewRegistry(), "test")
	h := NewHTTPHandler(e.svc, e.verifier, m)
	return &httpEnv{env: e, router: h.Router(RouterConfig{CORSOrigins: []string{"*"}})}
}

func (e *httpEnv) do(t *testing.T, method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, decodedResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp decodedResponse
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestHTTP_AuthGates(t *testing.T) {
	e := newHTTPEnv(t)
	seller := e.token(t, "seller@x", domain.RoleSeller)
	buyer := e.token(t, "buyer@x", domain.RoleBuyer)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
	}{
		{"no token", http.MethodGet, "/api/cart", ""},
		{"garbage token", http.MethodGet, "/api/cart", "not-a-jwt"},
		{"seller on buyer route", http.MethodGet, "/api/cart", seller},
		{"buyer on seller route", http.MethodPost, "/api/promotions", buyer},
		{"buyer lists product", http.MethodPost, "/api/listings", buyer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := e.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, domain.ErrUnauthorized.Code, resp.ErrorType)
		})
	}
}

func TestHTTP_RequestIDAndHealth(t *testing.T) {
	e := newHTTPEnv(t)

	w, _ := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w, _ = e.do(t, http.MethodGet, "/health", "", nil, requestIDHeader, "req-1")
	assert.Equal(t, "req-1", w.Header().Get(requestIDHeader))

	w, _ = e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "marketplace_test_http_requests_total")
}

func TestHTTP_CartLifecycle(t *testing.T) {
	e := newHTTPEnv(t)
	e.store.SeedSeller("seller@x", decimal.Zero)
	e.seedListing("seller@x", 1, 3, "10.00")
	buyer := e.token(t, "buyer@x", domain.RoleBuyer)

	line := CartHTTPRequest{SellerID: "seller@x", ListingID: 1, Quantity: 2}

	w, _ := e.do(t, http.MethodPost, "/api/cart", buyer, line)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, resp := e.do(t, http.MethodPost, "/api/cart", buyer, line)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, domain.ErrAlreadyInCart.Code, resp.ErrorType)
	assert.Equal(t, domain.ErrAlreadyInCart.Message, resp.Message)

	w, resp = e.do(t, http.MethodPost, "/api/cart", buyer, CartHTTPRequest{SellerID: "seller@x", ListingID: 1, Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrInvalidQuantity.Code, resp.ErrorType)

	w, _ = e.do(t, http.MethodPost, "/api/cart", buyer, `{"seller_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = e.do(t, http.MethodGet, "/api/cart", buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []domain.CartItem
	require.NoError(t, json.Unmarshal(resp.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, int64(1), items[0].Product.Info.ListingID)

	w, resp = e.do(t, http.MethodPut, "/api/cart", buyer, CartHTTPRequest{SellerID: "seller@x", ListingID: 1, Quantity: 5})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrInsufficientStock.Code, resp.ErrorType)

	w, resp = e.do(t, http.MethodPut, "/api/cart", buyer, CartHTTPRequest{SellerID: "seller@x", ListingID: 9, Quantity: 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrCartItemNotFound.Code, resp.ErrorType)

	w, _ = e.do(t, http.MethodPut, "/api/cart", buyer, CartHTTPRequest{SellerID: "seller@x", ListingID: 1, Quantity: 3})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(t, http.MethodDelete, "/api/cart/seller@x/1", buyer, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = e.do(t, http.MethodGet, "/api/cart", buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(resp.Data))

	w, _ = e.do(t, http.MethodDelete, "/api/cart/seller@x/abc", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodDelete, "/api/cart", buyer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTP_CheckoutAndReview(t *testing.T) {
	e := newHTTPEnv(t)
	e.store.SeedSeller("seller@x", decimal.RequireFromString("1.00"))
	e.seedListing("seller@x", 1, 2, "10.00")
	buyer := e.token(t, "buyer@x", domain.RoleBuyer)

	w, _ := e.do(t, http.MethodPost, "/api/cart", buyer, CartHTTPRequest{SellerID: "seller@x", ListingID: 1, Quantity: 2})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := e.do(t, http.MethodPost, "/api/checkout", buyer, nil, idempotencyHeader, "k1")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		OrderIDs []int64 `json:"order_ids"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	require.Len(t, out.OrderIDs, 1)

	w, resp = e.do(t, http.MethodPost, "/api/checkout", buyer, nil, idempotencyHeader, "k1")
	require.Equal(t, http.StatusOK, w.Code)
	var replay struct {
		OrderIDs []int64 `json:"order_ids"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &replay))
	assert.Equal(t, out.OrderIDs, replay.OrderIDs)

	acct, err := e.store.GetSeller(context.Background(), "seller@x")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.RequireFromString("21.00")))

	w, resp = e.do(t, http.MethodGet, "/api/orders", buyer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var orders []domain.OrderWithListing
	require.NoError(t, json.Unmarshal(resp.Data, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, out.OrderIDs[0], orders[0].ID)

	review := ReviewHTTPRequest{OrderID: out.OrderIDs[0], Rating: 4, Description: "good"}
	w, _ = e.do(t, http.MethodPost, "/api/reviews", buyer, review)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, resp = e.do(t, http.MethodPost, "/api/reviews", buyer, review)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, domain.ErrReviewAlreadyExists.Code, resp.ErrorType)

	w, resp = e.do(t, http.MethodPost, "/api/reviews", buyer, ReviewHTTPRequest{OrderID: out.OrderIDs[0], Rating: 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrInvalidRating.Code, resp.ErrorType)

	w, resp = e.do(t, http.MethodGet, "/api/sellers/seller@x/rating", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats domain.RatingStats
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, domain.RatingStats{AvgRating: 4, ReviewCount: 1}, stats)
}

func TestHTTP_CheckoutInsufficientStock(t *testing.T) {
	e := newHTTPEnv(t)
	e.store.SeedSeller("seller@x", decimal.Zero)
	e.seedListing("seller@x", 1, 2, "10.00")
	buyer := e.token(t, "buyer@x", domain.RoleBuyer)

	w, _ := e.do(t, http.MethodPost, "/api/cart", buyer, CartHTTPRequest{SellerID: "seller@x", ListingID: 1, Quantity: 2})
	require.Equal(t, http.StatusCreated, w.Code)

	// Another buyer drains the stock first.
	other := e.token(t, "other@x", domain.RoleBuyer)
	w, _ = e.do(t, http.MethodPost, "/api/cart", other, CartHTTPRequest{SellerID: "seller@x", ListingID: 1, Quantity: 1})
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = e.do(t, http.MethodPost, "/api/checkout", other, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := e.do(t, http.MethodPost, "/api/checkout", buyer, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, domain.ErrInsufficientStock.Code, resp.ErrorType)
	assert.Contains(t, resp.Message, "Available: 1, Requested: 2")
}

func TestHTTP_Promotions(t *testing.T) {
	e := newHTTPEnv(t)
	e.store.SeedSeller("seller@x", decimal.RequireFromString("1.50"))
	e.seedListing("seller@x", 1, 5, "20.00")
	seller := e.token(t, "seller@x", domain.RoleSeller)

	w, resp := e.do(t, http.MethodPost, "/api/promotions", seller, PromoteHTTPRequest{ListingID: 1})
	require.Equal(t, http.StatusCreated, w.Code)
	var promo domain.PromotedListing
	require.NoError(t, json.Unmarshal(resp.Data, &promo))
	assert.True(t, promo.Fee.Equal(decimal.RequireFromString("1.00")))

	w, resp = e.do(t, http.MethodPost, "/api/promotions", seller, PromoteHTTPRequest{ListingID: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrInsufficientBalance.Code, resp.ErrorType)
	assert.Equal(t, domain.ErrInsufficientBalance.Message, resp.Message)

	w, resp = e.do(t, http.MethodPost, "/api/promotions", seller, PromoteHTTPRequest{ListingID: 42})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrProductNotFound.Code, resp.ErrorType)

	w, resp = e.do(t, http.MethodGet, "/api/promotions/mine", seller, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []domain.PromotedListing
	require.NoError(t, json.Unmarshal(resp.Data, &mine))
	assert.Len(t, mine, 1)

	w, resp = e.do(t, http.MethodGet, "/api/promotions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var promoted []domain.ListingWithStats
	require.NoError(t, json.Unmarshal(resp.Data, &promoted))
	require.Len(t, promoted, 1)
	assert.Equal(t, "seller@x", promoted[0].Info.SellerID)
}

func TestHTTP_Listings(t *testing.T) {
	e := newHTTPEnv(t)
	e.store.SeedSeller("seller@x", decimal.Zero)
	e.store.SeedSeller("rival@x", decimal.Zero)
	seller := e.token(t, "seller@x", domain.RoleSeller)
	rival := e.token(t, "rival@x", domain.RoleSeller)
	staff := e.token(t, "help@x", domain.RoleHelpdesk)

	body := map[string]any{
		"category":            "Books",
		"product_title":       "Go in Action",
		"product_name":        "Book",
		"product_description": "Paperback",
		"quantity":            3,
		"product_price":       "12.50",
	}
	w, resp := e.do(t, http.MethodPost, "/api/listings", seller, body)
	require.Equal(t, http.StatusCreated, w.Code)
	var created domain.Listing
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, int64(1), created.ListingID)
	assert.Equal(t, domain.ListingStatusActive, created.Status)

	body["product_price"] = "0"
	w, _ = e.do(t, http.MethodPost, "/api/listings", seller, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body["product_price"] = "12.50"

	edit := map[string]any{}
	for k, v := range body {
		edit[k] = v
	}
	edit["listing_id"] = 1
	edit["status"] = int(domain.ListingStatusActive)
	edit["quantity"] = 0

	edit["seller_id"] = "seller@x"
	w, resp = e.do(t, http.MethodPut, "/api/listings", rival, edit)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, domain.ErrForbidden.Code, resp.ErrorType)

	delete(edit, "seller_id")
	w, resp = e.do(t, http.MethodPut, "/api/listings", seller, edit)
	require.Equal(t, http.StatusCreated, w.Code)
	var edited domain.Listing
	require.NoError(t, json.Unmarshal(resp.Data, &edited))
	assert.Equal(t, domain.ListingStatusOutOfStockOrSold, edited.Status)

	edit["listing_id"] = 7
	w, _ = e.do(t, http.MethodPut, "/api/listings", seller, edit)
	assert.Equal(t, http.StatusNotFound, w.Code)

	edit["listing_id"] = 1
	edit["quantity"] = 4
	edit["seller_id"] = "seller@x"
	w, _ = e.do(t, http.MethodPut, "/api/listings", staff, edit)
	assert.Equal(t, http.StatusCreated, w.Code)

	delete(edit, "status")
	w, _ = e.do(t, http.MethodPut, "/api/listings", seller, edit)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = e.do(t, http.MethodGet, "/api/listings/seller@x/1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var product domain.ListingWithStats
	require.NoError(t, json.Unmarshal(resp.Data, &product))
	assert.Equal(t, 4, product.Info.Quantity)
	assert.Equal(t, domain.ListingStatusActive, product.Info.Status)

	w, _ = e.do(t, http.MethodGet, "/api/listings/seller@x/99", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = e.do(t, http.MethodGet, "/api/listings/mine", seller, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []domain.Listing
	require.NoError(t, json.Unmarshal(resp.Data, &mine))
	assert.Len(t, mine, 1)
}

func TestStatusFor(t *testing.T) {
	byKind := map[domain.ErrorKind]int{domain.KindNotFound: http.StatusNotFound}

	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrDuplicateRequest, http.StatusInternalServerError, nil))
	assert.Equal(t, http.StatusForbidden, statusFor(domain.ErrForbidden, http.StatusInternalServerError, nil))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrInvalidListing, http.StatusInternalServerError, nil))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrSellerNotFound, http.StatusInternalServerError, byKind))
	assert.Equal(t, http.StatusInternalServerError, statusFor(domain.ErrAlreadyInCart, http.StatusInternalServerError, byKind))
}
