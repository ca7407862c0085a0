package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order is an append-only purchase record. Payment is the price snapshot at checkout.
type Order struct {
	ID        int64           `json:"order_id"`
	SellerID  string          `json:"seller_id"`
	ListingID int64           `json:"listing_id"`
	BuyerID   string          `json:"buyer_id"`
	Date      string          `json:"date"`
	Quantity  int             `json:"quantity"`
	Payment   decimal.Decimal `json:"payment"`
}

func (o *Order) ListingKey() ListingKey {
	return ListingKey{SellerID: o.SellerID, ListingID: o.ListingID}
}

// OrderDate renders t as YYYY/M/D without zero padding.
func OrderDate(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", t.Year(), int(t.Month()), t.Day())
}

// OrderWithListing pairs an order with the current state of the listing it bought.
// Listing is nil when the listing no longer exists.
type OrderWithListing struct {
	Order
	Listing *Listing `json:"listing,omitempty"`
}
