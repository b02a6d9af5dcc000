package events

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

// Event types published by the order pipeline.
const (
	TypeOrderCheckedOut   = "order.checked_out"
	TypeOrderPaymentPaid  = "order.payment_paid"
	TypeOrderStatusUpdate = "order.status_updated"
	TypeOrderCanceled     = "order.canceled"
	TypeOrderCompleted    = "order.completed"
)

type Event struct {
	Type      string         `json:"type"`
	OrderID   uuid.UUID      `json:"order_id"`
	BuyerID   uuid.UUID      `json:"buyer_id"`
	SellerIDs []uuid.UUID    `json:"seller_ids"`
	At        time.Time      `json:"at"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher notifies collaborators (notification and chat services) of
// order state changes. Delivery is fire-and-forget: implementations must
// never block the caller and failures are logged, not returned.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, Event) {}
