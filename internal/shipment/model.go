package shipment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

var ErrNotFound = errors.New("shipment not found")

type Status string

const (
	StatusPending      Status = "pending"
	StatusLabelCreated Status = "label_created"
	StatusInTransit    Status = "in_transit"
	StatusDelivered    Status = "delivered"
	StatusReturned     Status = "returned"
	StatusLost         Status = "lost"
)

func (s Status) String() string {
	return string(s)
}

var validStatuses = map[Status]struct{}{
	StatusPending:      {},
	StatusLabelCreated: {},
	StatusInTransit:    {},
	StatusDelivered:    {},
	StatusReturned:     {},
	StatusLost:         {},
}

func ToStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := validStatuses[status]; ok {
		return status, nil
	}
	return "", errors.New("invalid shipping status")
}

// EventOrderConfirmed seeds every shipment's event log on creation.
const EventOrderConfirmed = "order_confirmed"

type Event struct {
	ID         int64     `json:"id"`
	ShipmentID uuid.UUID `json:"shipment_id"`
	At         time.Time `json:"at"`
	Code       string    `json:"code"`
	Note       string    `json:"note,omitempty"`
}

// Shipment tracks carrier progress for one paid order. Created exactly
// once, by payment confirmation; carrier events are append-only.
type Shipment struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	Status         Status    `json:"status"`
	Events         []Event   `json:"events,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const defaultCarrier = "marketplace-courier"

// New builds the pending shipment seeded at payment confirmation.
func New(orderID uuid.UUID) (*Shipment, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate shipment id: %w", err)
	}

	compact := strings.ReplaceAll(id.String(), "-", "")

	return &Shipment{
		ID:             id,
		OrderID:        orderID,
		Carrier:        defaultCarrier,
		TrackingNumber: "SHP-" + strings.ToUpper(compact[:12]),
		Status:         StatusPending,
	}, nil
}
