package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PromotedListing struct {
	SellerID           string          `json:"seller_id"`
	ListingID          int64           `json:"listing_id"`
	PromotionStartTime time.Time       `json:"promotion_start_time"`
	Fee                decimal.Decimal `json:"fee"`
}

type SellerAccount struct {
	SellerID string          `json:"seller_id"`
	Balance  decimal.Decimal `json:"balance"`
}
