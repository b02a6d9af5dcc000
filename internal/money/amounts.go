package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the only currency the marketplace settles in.
const DefaultCurrency = "IDR"

// Amounts is the immutable money breakdown of an order.
// Invariant: Total = Subtotal + Shipping + Fee - Discount.
type Amounts struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Fee      decimal.Decimal `json:"fee"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// New derives Fee and Total from the given parts. feeRate is a fraction
// of the subtotal, e.g. 0.10 for a 10% marketplace fee. IDR has no minor
// units, so the fee is rounded to whole rupiah.
func New(subtotal, shipping, discount, feeRate decimal.Decimal) Amounts {
	fee := subtotal.Mul(feeRate).Round(0)

	return Amounts{
		Subtotal: subtotal,
		Shipping: shipping,
		Fee:      fee,
		Discount: discount,
		Total:    subtotal.Add(shipping).Add(fee).Sub(discount),
	}
}

// Validate checks the total invariant and that no part is negative.
func (a Amounts) Validate() error {
	for _, part := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"subtotal", a.Subtotal},
		{"shipping", a.Shipping},
		{"fee", a.Fee},
		{"discount", a.Discount},
		{"total", a.Total},
	} {
		if part.value.IsNegative() {
			return fmt.Errorf("%s must be non-negative, got %s", part.name, part.value)
		}
	}

	expected := a.Subtotal.Add(a.Shipping).Add(a.Fee).Sub(a.Discount)
	if !a.Total.Equal(expected) {
		return fmt.Errorf("total %s does not match subtotal+shipping+fee-discount = %s", a.Total, expected)
	}

	return nil
}
