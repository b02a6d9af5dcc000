package payment

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("payment not found")
	ErrPendingExists    = errors.New("order already has a pending payment")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrAmountMismatch   = errors.New("webhook amount does not match payment amount")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether no further payment status change is permitted.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusCanceled
}

type Method string

const (
	MethodOnline Method = "online"
	MethodCOD    Method = "cod"
)

var validMethods = map[Method]struct{}{
	MethodOnline: {},
	MethodCOD:    {},
}

func ToMethod(s string) (Method, error) {
	m := Method(s)
	if _, ok := validMethods[m]; ok {
		return m, nil
	}
	return "", errors.New("invalid payment method")
}

// ProviderPayload is the provider-assigned part of a payment intent.
// TransactionID doubles as the idempotency key for webhook matching.
type ProviderPayload struct {
	TransactionID string `json:"transaction_id"`
	QRImageURL    string `json:"qr_image_url"`
	TransferRef   string `json:"transfer_ref"`
}

// Payment is the single settlement intent attached to an order. At most
// one payment per order is ever in the pending state; regeneration
// mutates the pending record instead of inserting a new one.
type Payment struct {
	ID       uuid.UUID       `json:"id"`
	OrderID  uuid.UUID       `json:"order_id"`
	Method   Method          `json:"method"`
	Provider string          `json:"provider"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   Status          `json:"status"`
	Payload  ProviderPayload `json:"provider_payload"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}
