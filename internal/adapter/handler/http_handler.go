package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/marketplace/internal/adapter/auth"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/metrics"
)

const idempotencyHeader = "Idempotency-Key"

type HTTPHandler struct {
	svc      Services
	verifier *auth.Verifier
	metrics  *metrics.ServerMetrics
}

type Response struct {
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

type CartHTTPRequest struct {
	SellerID  string `json:"seller_id" binding:"required"`
	ListingID int64  `json:"listing_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type ReviewHTTPRequest struct {
	OrderID     int64  `json:"order_id" binding:"required"`
	Rating      int    `json:"rating"`
	Description string `json:"review_desc"`
}

type PromoteHTTPRequest struct {
	ListingID int64 `json:"listing_id" binding:"required"`
}

// ListingHTTPRequest carries a listing write. SellerID is only needed when
// helpdesk staff act for a seller; ListingID and Status only on edit.
type ListingHTTPRequest struct {
	SellerID  string                `json:"seller_id"`
	ListingID int64                 `json:"listing_id"`
	Status    *domain.ListingStatus `json:"status"`
	domain.ListingFields
}

func NewHTTPHandler(svc Services, verifier *auth.Verifier, m *metrics.ServerMetrics) *HTTPHandler {
	return &HTTPHandler{svc: svc, verifier: verifier, metrics: m}
}

func (h *HTTPHandler) AddToCart(c *gin.Context) {
	var req CartHTTPRequest
	if !bind(c, &req) {
		return
	}
	buyer := principal(c)

	key := domain.ListingKey{SellerID: req.SellerID, ListingID: req.ListingID}
	if err := h.svc.Cart.AddToCart(c.Request.Context(), buyer.ID, key, req.Quantity); err != nil {
		writeError(c, statusFor(err, http.StatusInternalServerError, nil), err, "Unable to add product to cart.")
		return
	}
	writeJSON(c, http.StatusCreated, Response{Message: "Added product to cart."})
}

// UpdateCart sets a line's quantity; zero removes the line.
func (h *HTTPHandler) UpdateCart(c *gin.Context) {
	var req CartHTTPRequest
	if !bind(c, &req) {
		return
	}
	buyer := principal(c)

	key := domain.ListingKey{SellerID: req.SellerID, ListingID: req.ListingID}
	if err := h.svc.Cart.UpdateCart(c.Request.Context(), buyer.ID, key, req.Quantity); err != nil {
		status := statusFor(err, http.StatusNotFound, map[domain.ErrorKind]int{domain.KindFatal: http.StatusInternalServerError})
		writeError(c, status, err, "Unable to update product quantity.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Updated product quantity."})
}

func (h *HTTPHandler) RemoveFromCart(c *gin.Context) {
	listingID, err := strconv.ParseInt(c.Param("listing_id"), 10, 64)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, Response{Message: "invalid listing id", ErrorType: domain.ErrInvalidListing.Code})
		return
	}
	buyer := principal(c)

	key := domain.ListingKey{SellerID: c.Param("seller_id"), ListingID: listingID}
	if err := h.svc.Cart.RemoveFromCart(c.Request.Context(), buyer.ID, key); err != nil {
		writeError(c, http.StatusInternalServerError, err, "Unable to remove product from cart.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Removed product from cart."})
}

func (h *HTTPHandler) EmptyCart(c *gin.Context) {
	buyer := principal(c)
	if err := h.svc.Cart.EmptyCart(c.Request.Context(), buyer.ID); err != nil {
		writeError(c, http.StatusInternalServerError, err, "Unable to empty cart.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Emptied cart."})
}

func (h *HTTPHandler) GetCart(c *gin.Context) {
	buyer := principal(c)
	items, err := h.svc.Cart.GetCart(c.Request.Context(), buyer.ID)
	if err != nil {
		writeError(c, http.StatusNotFound, err, "Unable to get cart.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Fetched cart.", Data: items})
}

func (h *HTTPHandler) ConfirmCheckout(c *gin.Context) {
	buyer := principal(c)
	ids, err := h.svc.Checkout.ConfirmCheckout(c.Request.Context(), buyer.ID, c.GetHeader(idempotencyHeader))
	if err != nil {
		writeError(c, statusFor(err, http.StatusInternalServerError, nil), err, "Checkout failed.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Checkout confirmed.", Data: gin.H{"order_ids": ids}})
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	buyer := principal(c)
	orders, err := h.svc.Orders.ListBuyerOrders(c.Request.Context(), buyer.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err, "Unable to get order history.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Fetched order history.", Data: orders})
}

func (h *HTTPHandler) AddReview(c *gin.Context) {
	var req ReviewHTTPRequest
	if !bind(c, &req) {
		return
	}
	buyer := principal(c)

	review := domain.Review{OrderID: req.OrderID, Rating: req.Rating, Description: req.Description}
	if err := h.svc.Reviews.AddReview(c.Request.Context(), buyer.ID, review); err != nil {
		writeError(c, statusFor(err, http.StatusInternalServerError, nil), err, "Unable to add review.")
		return
	}
	writeJSON(c, http.StatusCreated, Response{Message: "Review added."})
}

func (h *HTTPHandler) PromoteProduct(c *gin.Context) {
	var req PromoteHTTPRequest
	if !bind(c, &req) {
		return
	}
	seller := principal(c)

	promo, err := h.svc.Promotions.PromoteProduct(c.Request.Context(), seller.ID, req.ListingID, c.GetHeader(idempotencyHeader))
	if err != nil {
		status := statusFor(err, http.StatusInternalServerError, map[domain.ErrorKind]int{
			domain.KindInsufficient: http.StatusBadRequest,
			domain.KindNotFound:     http.StatusNotFound,
		})
		writeError(c, status, err, "Failed to promote product")
		return
	}
	writeJSON(c, http.StatusCreated, Response{Message: "Product promoted successfully", Data: promo})
}

func (h *HTTPHandler) ListSellerPromotions(c *gin.Context) {
	seller := principal(c)
	promos, err := h.svc.Promotions.ListSellerPromotions(c.Request.Context(), seller.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err, "Unable to get promotions.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Fetched promotions.", Data: promos})
}

func (h *HTTPHandler) ListPromotedProducts(c *gin.Context) {
	products, err := h.svc.Promotions.ListPromotedProducts(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err, "Unable to get promoted products.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Fetched promoted products.", Data: products})
}

func (h *HTTPHandler) ListProduct(c *gin.Context) {
	var req ListingHTTPRequest
	if !bind(c, &req) {
		return
	}
	actor, err := domain.ListingActorFor(principal(c), req.SellerID)
	if err != nil {
		writeError(c, statusFor(err, http.StatusInternalServerError, nil), err, "Unable to list product.")
		return
	}

	listing, err := h.svc.Catalog.ListProduct(c.Request.Context(), actor, req.ListingFields)
	if err != nil {
		writeError(c, statusFor(err, http.StatusInternalServerError, nil), err, "Unable to list product.")
		return
	}
	writeJSON(c, http.StatusCreated, Response{Message: "Listed product.", Data: listing})
}

func (h *HTTPHandler) EditProduct(c *gin.Context) {
	var req ListingHTTPRequest
	if !bind(c, &req) {
		return
	}
	if req.ListingID <= 0 || req.Status == nil {
		writeJSON(c, http.StatusBadRequest, Response{Message: "listing_id and status are required", ErrorType: domain.ErrInvalidListing.Code})
		return
	}
	actor, err := domain.ListingActorFor(principal(c), req.SellerID)
	if err != nil {
		writeError(c, statusFor(err, http.StatusInternalServerError, nil), err, "Unable to edit product.")
		return
	}

	listing, err := h.svc.Catalog.EditProduct(c.Request.Context(), actor, req.ListingID, req.ListingFields, *req.Status)
	if err != nil {
		status := statusFor(err, http.StatusInternalServerError, map[domain.ErrorKind]int{domain.KindNotFound: http.StatusNotFound})
		writeError(c, status, err, "Unable to edit product.")
		return
	}
	writeJSON(c, http.StatusCreated, Response{Message: "Updated product.", Data: listing})
}

func (h *HTTPHandler) ListSellerProducts(c *gin.Context) {
	seller := principal(c)
	listings, err := h.svc.Catalog.ListSellerProducts(c.Request.Context(), seller.ID)
	if err != nil {
		writeError(c, http.StatusNotFound, err, "Unable to get seller products.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Fetched seller products.", Data: listings})
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	listingID, err := strconv.ParseInt(c.Param("listing_id"), 10, 64)
	if err != nil {
		writeJSON(c, http.StatusNotFound, Response{Message: domain.ErrProductNotFound.Message, ErrorType: domain.ErrProductNotFound.Code})
		return
	}

	key := domain.ListingKey{SellerID: c.Param("seller_id"), ListingID: listingID}
	product, err := h.svc.Catalog.GetProduct(c.Request.Context(), key)
	if err != nil {
		status := statusFor(err, http.StatusInternalServerError, map[domain.ErrorKind]int{domain.KindNotFound: http.StatusNotFound})
		writeError(c, status, err, "Unable to get product.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Fetched product.", Data: product})
}

func (h *HTTPHandler) SellerRating(c *gin.Context) {
	stats, err := h.svc.Ratings.SellerStats(c.Request.Context(), c.Param("seller_id"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, err, "Unable to get seller rating.")
		return
	}
	writeJSON(c, http.StatusOK, Response{Message: "Fetched seller rating.", Data: stats})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps err to an HTTP status. Auth, validation and duplicate
// request failures map the same way on every route; byKind overrides the
// rest, and anything left gets fallback.
func statusFor(err error, fallback int, byKind map[domain.ErrorKind]int) int {
	if errors.Is(err, domain.ErrDuplicateRequest) {
		return http.StatusConflict
	}
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindValidation:
		return http.StatusBadRequest
	}
	if status, ok := byKind[kind]; ok {
		return status
	}
	return fallback
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeJSON(c, http.StatusBadRequest, Response{Message: "invalid request body", ErrorType: "INVALID_REQUEST"})
		return false
	}
	return true
}

func principal(c *gin.Context) domain.Principal {
	p, _ := auth.PrincipalFrom(c.Request.Context())
	return p
}

func writeError(c *gin.Context, status int, err error, fallback string) {
	c.Error(err)
	writeJSON(c, status, Response{
		Message:   strings.TrimSpace(errorMessage(err, fallback)),
		ErrorType: domain.CodeOf(err),
	})
}

func writeJSON(c *gin.Context, status int, body Response) {
	c.JSON(status, body)
}
