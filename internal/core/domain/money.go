package domain

import "github.com/shopspring/decimal"

var promotionRate = decimal.RequireFromString("0.05")

// LinePayment is unit price times quantity, rounded half-up to the cent.
func LinePayment(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// PromotionFee is 5% of the listing's unit price. It is not rounded.
func PromotionFee(unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(promotionRate)
}
