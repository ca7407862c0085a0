package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ListingStatus int

const (
	ListingStatusInactive         ListingStatus = 0
	ListingStatusActive           ListingStatus = 1
	ListingStatusOutOfStockOrSold ListingStatus = 2
)

func (s ListingStatus) Valid() bool {
	return s == ListingStatusInactive || s == ListingStatusActive || s == ListingStatusOutOfStockOrSold
}

func (s ListingStatus) String() string {
	switch s {
	case ListingStatusInactive:
		return "inactive"
	case ListingStatusActive:
		return "active"
	case ListingStatusOutOfStockOrSold:
		return "out_of_stock_or_sold"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// DeriveStatus is the single place where quantity drives listing status.
// Zero stock is always OutOfStockOrSold; a sold-out listing that receives
// stock again becomes Active; any other requested status is kept.
func DeriveStatus(quantity int, requested ListingStatus) ListingStatus {
	if quantity <= 0 {
		return ListingStatusOutOfStockOrSold
	}
	if requested == ListingStatusOutOfStockOrSold {
		return ListingStatusActive
	}
	return requested
}

type ListingKey struct {
	SellerID  string `json:"seller_id"`
	ListingID int64  `json:"listing_id"`
}

func (k ListingKey) String() string {
	return fmt.Sprintf("%s/%d", k.SellerID, k.ListingID)
}

// Less orders keys by seller then listing id; row locks are taken in this order.
func (k ListingKey) Less(o ListingKey) bool {
	if k.SellerID != o.SellerID {
		return k.SellerID < o.SellerID
	}
	return k.ListingID < o.ListingID
}

type Listing struct {
	SellerID    string          `json:"seller_id"`
	ListingID   int64           `json:"listing_id"`
	Category    string          `json:"category"`
	Title       string          `json:"product_title"`
	Name        string          `json:"product_name"`
	Description string          `json:"product_description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"product_price"`
	Status      ListingStatus   `json:"status"`
}

func (l *Listing) Key() ListingKey {
	return ListingKey{SellerID: l.SellerID, ListingID: l.ListingID}
}

// ListingFields are the seller-editable attributes of a listing.
type ListingFields struct {
	Category    string          `json:"category"`
	Title       string          `json:"product_title"`
	Name        string          `json:"product_name"`
	Description string          `json:"product_description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"product_price"`
}

func (f ListingFields) Validate() error {
	if strings.TrimSpace(f.Category) == "" || strings.TrimSpace(f.Title) == "" || strings.TrimSpace(f.Name) == "" {
		return ErrInvalidListing
	}
	if f.Quantity < 0 || !f.UnitPrice.IsPositive() {
		return ErrInvalidListing
	}
	// Prices are stored in whole cents.
	if !f.UnitPrice.Equal(f.UnitPrice.Round(2)) {
		return ErrInvalidListing
	}
	return nil
}

// ListingWithStats is a listing as shown on browse pages.
type ListingWithStats struct {
	Info        Listing     `json:"info"`
	SellerStats RatingStats `json:"seller_stats"`
}
