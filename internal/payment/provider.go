package payment

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Provider issues payment intents. The stand-in implementation renders a
// QR image URL and a short transfer reference; a real acquirer adapter
// would satisfy the same interface.
type Provider interface {
	Name() string
	CreateIntent(orderID uuid.UUID, amount decimal.Decimal, currency string) (ProviderPayload, error)
}

type qrProvider struct {
	name      string
	qrBaseURL string
}

func NewQRProvider(name, qrBaseURL string) Provider {
	return &qrProvider{
		name:      name,
		qrBaseURL: strings.TrimSuffix(qrBaseURL, "/"),
	}
}

func (p *qrProvider) Name() string {
	return p.name
}

func (p *qrProvider) CreateIntent(orderID uuid.UUID, amount decimal.Decimal, currency string) (ProviderPayload, error) {
	txnID, err := uuid.NewV4()
	if err != nil {
		return ProviderPayload{}, fmt.Errorf("failed to generate transaction id: %w", err)
	}

	transactionID := "TXN-" + txnID.String()

	return ProviderPayload{
		TransactionID: transactionID,
		QRImageURL:    fmt.Sprintf("%s/qr/%s.png", p.qrBaseURL, transactionID),
		TransferRef:   TransferRef(orderID),
	}, nil
}

// TransferRef derives a short uppercase transfer reference from the
// order id, shown to buyers doing manual bank transfers.
func TransferRef(orderID uuid.UUID) string {
	compact := strings.ReplaceAll(orderID.String(), "-", "")
	return "PAY-" + strings.ToUpper(compact[:10])
}
