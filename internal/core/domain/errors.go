package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ErrorKind int

const (
	KindFatal ErrorKind = iota
	KindNotFound
	KindConflict
	KindInsufficient
	KindUnauthorized
	KindForbidden
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInsufficient:
		return "insufficient_resource"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	default:
		return "fatal"
	}
}

// Error is a classified failure surfaced to callers. Sentinels are compared by identity.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrProductNotFound     = &Error{Kind: KindNotFound, Code: "PRODUCT_NOT_FOUND", Message: "Product not found"}
	ErrSellerNotFound      = &Error{Kind: KindNotFound, Code: "SELLER_NOT_FOUND", Message: "Seller not found"}
	ErrOrderNotFound       = &Error{Kind: KindNotFound, Code: "ORDER_NOT_FOUND", Message: "Order not found"}
	ErrCartItemNotFound    = &Error{Kind: KindNotFound, Code: "CART_ITEM_NOT_FOUND", Message: "Cart item not found"}
	ErrAlreadyInCart       = &Error{Kind: KindConflict, Code: "ALREADY_IN_CART", Message: "Item already in cart"}
	ErrReviewAlreadyExists = &Error{Kind: KindConflict, Code: "REVIEW_ALREADY_EXISTS", Message: "Review already exists"}
	ErrDuplicateRequest    = &Error{Kind: KindConflict, Code: "DUPLICATE_REQUEST", Message: "Duplicate request"}
	ErrCheckoutConflict    = &Error{Kind: KindConflict, Code: "CHECKOUT_CONFLICT", Message: "Concurrent update conflict, please retry"}
	ErrConcurrentUpdate    = &Error{Kind: KindConflict, Code: "CONCURRENT_UPDATE", Message: "Concurrent update conflict, please retry"}
	ErrInsufficientStock   = &Error{Kind: KindInsufficient, Code: "INSUFFICIENT_STOCK", Message: "Quantity exceeds available stock"}
	ErrInsufficientBalance = &Error{Kind: KindInsufficient, Code: "INSUFFICIENT_BALANCE", Message: "Insufficient balance for promotion"}
	ErrInvalidQuantity     = &Error{Kind: KindValidation, Code: "INVALID_QUANTITY", Message: "Quantity must be greater than 0"}
	ErrInvalidRating       = &Error{Kind: KindValidation, Code: "INVALID_RATING", Message: "Rating must be between 1 and 5"}
	ErrInvalidListing      = &Error{Kind: KindValidation, Code: "INVALID_LISTING", Message: "Invalid listing fields"}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized, Code: "UNAUTHORIZED", Message: "Unauthorized"}
	ErrForbidden           = &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: "You are not authorized to edit this listing"}
)

// InsufficientStockError names the listing that blocked a cart write or a checkout.
type InsufficientStockError struct {
	Listing   ListingKey
	Title     string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	name := e.Title
	if name == "" {
		name = e.Listing.String()
	}
	return fmt.Sprintf("Not enough stock for %s. Available: %d, Requested: %d", name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type InsufficientBalanceError struct {
	SellerID string
	Balance  decimal.Decimal
	Fee      decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: balance %s, fee %s", ErrInsufficientBalance.Message, e.Balance.String(), e.Fee.String())
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// KindOf classifies err. Anything not built from this package is fatal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInsufficientBalance):
		return KindInsufficient
	}
	return KindFatal
}

// CodeOf returns the stable error code for err, or "UNKNOWN_ERROR".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return ErrInsufficientStock.Code
	case errors.Is(err, ErrInsufficientBalance):
		return ErrInsufficientBalance.Code
	}
	return "UNKNOWN_ERROR"
}
