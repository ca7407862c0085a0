package domain

type CartLine struct {
	BuyerID   string `json:"buyer_id"`
	SellerID  string `json:"seller_id"`
	ListingID int64  `json:"listing_id"`
	Quantity  int    `json:"quantity"`
}

func (c *CartLine) ListingKey() ListingKey {
	return ListingKey{SellerID: c.SellerID, ListingID: c.ListingID}
}

// CartEntry is a cart line joined with the live listing row.
type CartEntry struct {
	Line    CartLine
	Listing Listing
}

type CartItem struct {
	Product  ListingWithStats `json:"product"`
	Quantity int              `json:"quantity"`
}
