package order

import "github.com/shopspring/decimal"

// ItemTotal computes the line total for a single item:
// quantity × unitPrice − discountAmount, rounded to 2 decimal places.
func ItemTotal(quantity int, unitPrice, discountAmount decimal.Decimal) decimal.Decimal {
	qty := decimal.NewFromInt(int64(quantity))
	return unitPrice.Mul(qty).Sub(discountAmount).Round(2)
}

// CalculateTotals computes the order subtotal and total from already-priced
// items and order-level adjustments:
//
//	subtotal = Σ(item.Total)
//	total    = subtotal − discount + tax + shipping
//
// Both results are rounded to 2 decimal places. Callers are responsible for
// rejecting negative results.
func CalculateTotals(items []Item, discount, tax, shipping decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Total)
	}
	subtotal = subtotal.Round(2)
	total = subtotal.Sub(discount).Add(tax).Add(shipping).Round(2)
	return subtotal, total
}
