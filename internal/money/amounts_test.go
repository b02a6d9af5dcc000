package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/okybprasetya/marketplace/internal/money"
)

func TestNew(t *testing.T) {
	feeRate := decimal.NewFromFloat(0.10)

	tests := []struct {
		name     string
		subtotal int64
		shipping int64
		discount int64
		wantFee  int64
		wantTot  int64
	}{
		{name: "plain", subtotal: 100000, wantFee: 10000, wantTot: 110000},
		{name: "with_shipping", subtotal: 100000, shipping: 15000, wantFee: 10000, wantTot: 125000},
		{name: "with_discount", subtotal: 100000, discount: 5000, wantFee: 10000, wantTot: 105000},
		{name: "zero", subtotal: 0, wantFee: 0, wantTot: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := money.New(
				decimal.NewFromInt(tt.subtotal),
				decimal.NewFromInt(tt.shipping),
				decimal.NewFromInt(tt.discount),
				feeRate,
			)

			assert.True(t, a.Fee.Equal(decimal.NewFromInt(tt.wantFee)), "fee = %s", a.Fee)
			assert.True(t, a.Total.Equal(decimal.NewFromInt(tt.wantTot)), "total = %s", a.Total)
			assert.NoError(t, a.Validate())
		})
	}
}

// IDR has no minor units: the fee lands on a whole rupiah even when the
// subtotal does not divide evenly.
func TestNew_FeeRoundsToWholeRupiah(t *testing.T) {
	a := money.New(decimal.NewFromInt(99995), decimal.Zero, decimal.Zero, decimal.NewFromFloat(0.10))

	// 9999.5 rounds to 10000
	assert.True(t, a.Fee.Equal(decimal.NewFromInt(10000)), "fee = %s", a.Fee)
	assert.True(t, a.Total.Equal(decimal.NewFromInt(109995)), "total = %s", a.Total)
	assert.NoError(t, a.Validate())
}

func TestValidate(t *testing.T) {
	t.Run("negative_part", func(t *testing.T) {
		a := money.Amounts{
			Subtotal: decimal.NewFromInt(-1),
			Total:    decimal.NewFromInt(-1),
		}
		assert.Error(t, a.Validate())
	})

	t.Run("broken_total", func(t *testing.T) {
		a := money.Amounts{
			Subtotal: decimal.NewFromInt(100),
			Total:    decimal.NewFromInt(90),
		}
		assert.Error(t, a.Validate())
	})
}
