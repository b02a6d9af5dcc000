package order

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/okybprasetya/marketplace/internal/money"
	"github.com/okybprasetya/marketplace/internal/payment"
	"github.com/okybprasetya/marketplace/internal/shipment"
)

var (
	ErrNotFound                = errors.New("order not found")
	ErrForbidden               = errors.New("actor is not a party to this order")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrEmptyCart               = errors.New("cart is empty")
	ErrNoItemsSelected         = errors.New("no cart items matched the selection")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the order status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

var validStatuses = map[Status]struct{}{
	StatusPending:    {},
	StatusProcessing: {},
	StatusShipped:    {},
	StatusDelivered:  {},
	StatusCompleted:  {},
	StatusCanceled:   {},
}

func ToStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := validStatuses[status]; ok {
		return status, nil
	}
	return "", errors.New("invalid order status")
}

// The three axes move independently; each has its own transition table.
// Absorbing states map to an empty set.
var orderTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCanceled: true},
	StatusProcessing: {StatusShipped: true, StatusCanceled: true},
	StatusShipped:    {StatusDelivered: true, StatusCanceled: true},
	StatusDelivered:  {StatusCompleted: true, StatusCanceled: true},
	StatusCompleted:  {},
	StatusCanceled:   {},
}

var paymentTransitions = map[payment.Status]map[payment.Status]bool{
	payment.StatusPending:  {payment.StatusPaid: true, payment.StatusFailed: true, payment.StatusCanceled: true},
	payment.StatusPaid:     {},
	payment.StatusFailed:   {},
	payment.StatusCanceled: {},
}

var shippingTransitions = map[shipment.Status]map[shipment.Status]bool{
	shipment.StatusPending:      {shipment.StatusLabelCreated: true},
	shipment.StatusLabelCreated: {shipment.StatusInTransit: true},
	shipment.StatusInTransit:    {shipment.StatusDelivered: true},
	shipment.StatusDelivered:    {shipment.StatusReturned: true, shipment.StatusLost: true},
	shipment.StatusReturned:     {},
	shipment.StatusLost:         {},
}

func CanTransitionOrder(from, to Status) bool {
	return orderTransitions[from][to]
}

func CanTransitionPayment(from, to payment.Status) bool {
	return paymentTransitions[from][to]
}

func CanTransitionShipping(from, to shipment.Status) bool {
	return shippingTransitions[from][to]
}

// Role of an actor relative to one order.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleNone   Role = "none"
)

// PartyOf is the single authorization policy for order operations: it
// classifies the actor against the order's buyer and seller set.
func PartyOf(actorID uuid.UUID, o *Order) Role {
	if actorID == o.BuyerID {
		return RoleBuyer
	}
	for _, sellerID := range o.SellerIDs {
		if actorID == sellerID {
			return RoleSeller
		}
	}
	return RoleNone
}

// History entry actions.
const (
	ActionCheckout         = "checkout"
	ActionStatusUpdate     = "status_update"
	ActionPaymentPaid      = "payment_paid"
	ActionPaymentFailed    = "payment_failed"
	ActionOrderCanceled    = "order_canceled"
	ActionReceiptConfirmed = "receipt_confirmed"
)

// HistoryEntry is one append-only audit record; entries are never
// edited or removed.
type HistoryEntry struct {
	ID      int64     `json:"id"`
	OrderID uuid.UUID `json:"order_id"`
	At      time.Time `json:"at"`
	By      uuid.UUID `json:"by"`
	Role    Role      `json:"role"`
	Action  string    `json:"action"`
	From    string    `json:"from,omitempty"`
	To      string    `json:"to,omitempty"`
	Note    string    `json:"note,omitempty"`
}

// Item is an immutable snapshot of a purchased line, captured at
// checkout so later listing edits cannot alter the order.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	ListingID uuid.UUID       `json:"listing_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Title     string          `json:"title"`
	ImageURL  string          `json:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Address is snapshotted at checkout time.
type Address struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone"`
	Line       string `json:"line"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
}

// Order is created once per checkout and thereafter immutable except
// for the three status axes and the appended history.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	BuyerID        uuid.UUID       `json:"buyer_id"`
	SellerIDs      []uuid.UUID     `json:"seller_ids"`
	Items          []Item          `json:"items"`
	Amounts        money.Amounts   `json:"amounts"`
	Currency       string          `json:"currency"`
	Status         Status          `json:"order_status"`
	PaymentStatus  payment.Status  `json:"payment_status"`
	ShippingStatus shipment.Status `json:"shipping_status"`
	PaymentMethod  payment.Method  `json:"payment_method"`
	Address        Address         `json:"address"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusSnapshot captures all three axes for optimistic updates.
type StatusSnapshot struct {
	Order    Status
	Payment  payment.Status
	Shipping shipment.Status
}

func (o *Order) Snapshot() StatusSnapshot {
	return StatusSnapshot{Order: o.Status, Payment: o.PaymentStatus, Shipping: o.ShippingStatus}
}

// StatusChanges carries the axes a transition actually moves.
type StatusChanges struct {
	Order    *Status
	Payment  *payment.Status
	Shipping *shipment.Status
}

func (c StatusChanges) Empty() bool {
	return c.Order == nil && c.Payment == nil && c.Shipping == nil
}

// Filter selects orders for listing; exactly one of BuyerID/SellerID is
// set by the handler.
type Filter struct {
	BuyerID  *uuid.UUID
	SellerID *uuid.UUID
	Status   *Status
	Page     int
	Limit    int
}
