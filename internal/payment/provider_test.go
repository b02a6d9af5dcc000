package payment_test

import (
	"strings"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okybprasetya/marketplace/internal/payment"
)

func TestQRProviderCreateIntent(t *testing.T) {
	provider := payment.NewQRProvider("qrpay", "https://pay.example.com/")
	orderID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))

	payload, err := provider.CreateIntent(orderID, decimal.NewFromInt(110000), "IDR")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(payload.TransactionID, "TXN-"))
	assert.Equal(t, "https://pay.example.com/qr/"+payload.TransactionID+".png", payload.QRImageURL)
	assert.Equal(t, payment.TransferRef(orderID), payload.TransferRef)

	// each intent gets a fresh transaction id
	second, err := provider.CreateIntent(orderID, decimal.NewFromInt(110000), "IDR")
	require.NoError(t, err)
	assert.NotEqual(t, payload.TransactionID, second.TransactionID)
}

func TestTransferRef(t *testing.T) {
	orderID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))

	ref := payment.TransferRef(orderID)

	assert.Equal(t, "PAY-550E8400E2", ref)
	// deterministic per order, buyers can retry a stuck transfer
	assert.Equal(t, ref, payment.TransferRef(orderID))
}

func TestToMethod(t *testing.T) {
	tests := []struct {
		raw     string
		want    payment.Method
		wantErr bool
	}{
		{raw: "online", want: payment.MethodOnline},
		{raw: "cod", want: payment.MethodCOD},
		{raw: "crypto", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			m, err := payment.ToMethod(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, payment.StatusPending.Terminal())
	assert.True(t, payment.StatusPaid.Terminal())
	assert.True(t, payment.StatusFailed.Terminal())
	assert.True(t, payment.StatusCanceled.Terminal())
}
