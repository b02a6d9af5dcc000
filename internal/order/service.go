package order

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/okybprasetya/marketplace/internal/cart"
	"github.com/okybprasetya/marketplace/internal/events"
	"github.com/okybprasetya/marketplace/internal/money"
	"github.com/okybprasetya/marketplace/internal/payment"
	"github.com/okybprasetya/marketplace/internal/shipment"
)

type Service interface {
	Checkout(ctx context.Context, in CheckoutInput) (*Order, *payment.Payment, error)
	GetOrder(ctx context.Context, actorID, orderID uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, actorID uuid.UUID, f Filter) ([]Order, int64, error)
	GetHistory(ctx context.Context, actorID, orderID uuid.UUID) ([]HistoryEntry, error)
	UpdateStatuses(ctx context.Context, actorID, orderID uuid.UUID, upd StatusUpdate) (*Order, error)
	Cancel(ctx context.Context, actorID, orderID uuid.UUID, note string) (*Order, error)
	ConfirmReceipt(ctx context.Context, actorID, orderID uuid.UUID) (*Order, error)

	ReissuePaymentIntent(ctx context.Context, actorID, orderID uuid.UUID) (*payment.Payment, error)
	ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*ConfirmResult, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error)

	GetShipment(ctx context.Context, actorID, orderID uuid.UUID) (*shipment.Shipment, error)
	AddShipmentEvent(ctx context.Context, actorID, orderID uuid.UUID, code, note string, advance *shipment.Status) (*shipment.Shipment, error)
}

// CartStore is the slice of the cart component checkout depends on.
type CartStore interface {
	GetByBuyer(ctx context.Context, buyerID uuid.UUID) (*cart.Cart, error)
}

// PaymentStore is satisfied by payment.Repository.
type PaymentStore interface {
	Insert(ctx context.Context, p *payment.Payment) error
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error)
	GetByOrderAndTransaction(ctx context.Context, orderID uuid.UUID, transactionID string) (*payment.Payment, error)
	ReissuePending(ctx context.Context, orderID uuid.UUID, payload payment.ProviderPayload, amount decimal.Decimal, currency string) (*payment.Payment, error)
	MarkFailed(ctx context.Context, paymentID uuid.UUID) (bool, error)
}

// ShipmentStore is satisfied by shipment.Repository.
type ShipmentStore interface {
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*shipment.Shipment, error)
	AppendEvent(ctx context.Context, shipmentID uuid.UUID, code, note string, advance *shipment.Status) (*shipment.Shipment, error)
}

// Config carries the checkout pricing rules.
type Config struct {
	// FeeRate is the marketplace fee as a fraction of the subtotal.
	FeeRate decimal.Decimal
	// ShippingFlatFee is charged on the quick checkout path only.
	ShippingFlatFee decimal.Decimal
	Currency        string
}

func DefaultConfig() Config {
	return Config{
		FeeRate:         decimal.NewFromFloat(0.10),
		ShippingFlatFee: decimal.NewFromInt(15000),
		Currency:        money.DefaultCurrency,
	}
}

type service struct {
	repo      Repository
	carts     CartStore
	payments  PaymentStore
	shipments ShipmentStore
	provider  payment.Provider
	verifier  payment.SignatureVerifier
	publisher events.Publisher
	cfg       Config
}

func NewService(
	repo Repository,
	carts CartStore,
	payments PaymentStore,
	shipments ShipmentStore,
	provider payment.Provider,
	verifier payment.SignatureVerifier,
	publisher events.Publisher,
	cfg Config,
) Service {
	return &service{
		repo:      repo,
		carts:     carts,
		payments:  payments,
		shipments: shipments,
		provider:  provider,
		verifier:  verifier,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (s *service) GetOrder(ctx context.Context, actorID, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if PartyOf(actorID, o) == RoleNone {
		return nil, ErrForbidden
	}

	return o, nil
}

func (s *service) ListOrders(ctx context.Context, actorID uuid.UUID, f Filter) ([]Order, int64, error) {
	if f.BuyerID != nil && *f.BuyerID != actorID {
		return nil, 0, ErrForbidden
	}
	if f.SellerID != nil && *f.SellerID != actorID {
		return nil, 0, ErrForbidden
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}

	return s.repo.List(ctx, f)
}

func (s *service) GetHistory(ctx context.Context, actorID, orderID uuid.UUID) ([]HistoryEntry, error) {
	if _, err := s.GetOrder(ctx, actorID, orderID); err != nil {
		return nil, err
	}

	return s.repo.History(ctx, orderID)
}

// StatusUpdate is a seller-driven change of any subset of the axes.
type StatusUpdate struct {
	Order    *Status
	Payment  *payment.Status
	Shipping *shipment.Status
	Note     string
}

// History from/to values carry an axis prefix, e.g. payment_pending.
const (
	axisOrder    = "order"
	axisPayment  = "payment"
	axisShipping = "shipping"
)

func historyValue(axis, value string) string {
	return axis + "_" + value
}

func (s *service) UpdateStatuses(ctx context.Context, actorID, orderID uuid.UUID, upd StatusUpdate) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if PartyOf(actorID, o) != RoleSeller {
		return nil, ErrForbidden
	}

	now := time.Now().UTC()
	var changes StatusChanges
	var entries []HistoryEntry

	entry := func(axis, from, to string) HistoryEntry {
		return HistoryEntry{
			OrderID: orderID,
			At:      now,
			By:      actorID,
			Role:    RoleSeller,
			Action:  ActionStatusUpdate,
			From:    historyValue(axis, from),
			To:      historyValue(axis, to),
			Note:    upd.Note,
		}
	}

	if upd.Order != nil && *upd.Order != o.Status {
		if !CanTransitionOrder(o.Status, *upd.Order) {
			return nil, fmt.Errorf("order status %s -> %s: %w", o.Status, *upd.Order, ErrInvalidStatusTransition)
		}
		changes.Order = upd.Order
		entries = append(entries, entry(axisOrder, o.Status.String(), upd.Order.String()))
	}

	if upd.Payment != nil && *upd.Payment != o.PaymentStatus {
		if !CanTransitionPayment(o.PaymentStatus, *upd.Payment) {
			return nil, fmt.Errorf("payment status %s -> %s: %w", o.PaymentStatus, *upd.Payment, ErrInvalidStatusTransition)
		}
		changes.Payment = upd.Payment
		entries = append(entries, entry(axisPayment, o.PaymentStatus.String(), upd.Payment.String()))
	}

	if upd.Shipping != nil && *upd.Shipping != o.ShippingStatus {
		if !CanTransitionShipping(o.ShippingStatus, *upd.Shipping) {
			return nil, fmt.Errorf("shipping status %s -> %s: %w", o.ShippingStatus, *upd.Shipping, ErrInvalidStatusTransition)
		}
		changes.Shipping = upd.Shipping
		entries = append(entries, entry(axisShipping, o.ShippingStatus.String(), upd.Shipping.String()))
	}

	if changes.Empty() {
		return o, nil
	}

	updated, err := s.repo.ApplyTransition(ctx, orderID, o.Snapshot(), changes, entries)
	if err != nil {
		return nil, err
	}

	log.Info().
		Stringer("order_id", orderID).
		Stringer("actor_id", actorID).
		Str("order_status", updated.Status.String()).
		Str("payment_status", updated.PaymentStatus.String()).
		Str("shipping_status", updated.ShippingStatus.String()).
		Msg("service: order statuses updated")

	s.publish(ctx, events.TypeOrderStatusUpdate, updated, nil)

	return updated, nil
}

func (s *service) Cancel(ctx context.Context, actorID, orderID uuid.UUID, note string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if PartyOf(actorID, o) != RoleBuyer {
		return nil, ErrForbidden
	}

	if o.Status.Terminal() {
		return nil, fmt.Errorf("cancel order in status %s: %w", o.Status, ErrInvalidStatusTransition)
	}

	now := time.Now().UTC()
	canceled := StatusCanceled
	changes := StatusChanges{Order: &canceled}
	entries := []HistoryEntry{{
		OrderID: orderID,
		At:      now,
		By:      actorID,
		Role:    RoleBuyer,
		Action:  ActionOrderCanceled,
		From:    historyValue(axisOrder, o.Status.String()),
		To:      historyValue(axisOrder, StatusCanceled.String()),
		Note:    note,
	}}

	// An already-paid order keeps payment_status = paid; the refund is
	// handled out of band.
	if o.PaymentStatus == payment.StatusPending {
		paymentCanceled := payment.StatusCanceled
		changes.Payment = &paymentCanceled
		entries = append(entries, HistoryEntry{
			OrderID: orderID,
			At:      now,
			By:      actorID,
			Role:    RoleBuyer,
			Action:  ActionStatusUpdate,
			From:    historyValue(axisPayment, payment.StatusPending.String()),
			To:      historyValue(axisPayment, payment.StatusCanceled.String()),
		})
	}

	updated, err := s.repo.ApplyTransition(ctx, orderID, o.Snapshot(), changes, entries)
	if err != nil {
		return nil, err
	}

	log.Info().Stringer("order_id", orderID).Stringer("buyer_id", actorID).Msg("service: order canceled")

	s.publish(ctx, events.TypeOrderCanceled, updated, nil)

	return updated, nil
}

func (s *service) ConfirmReceipt(ctx context.Context, actorID, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if PartyOf(actorID, o) != RoleBuyer {
		return nil, ErrForbidden
	}

	if o.Status.Terminal() {
		return nil, fmt.Errorf("confirm receipt of order in status %s: %w", o.Status, ErrInvalidStatusTransition)
	}

	now := time.Now().UTC()
	var changes StatusChanges
	var entries []HistoryEntry

	completed := StatusCompleted
	changes.Order = &completed
	entries = append(entries, HistoryEntry{
		OrderID: orderID,
		At:      now,
		By:      actorID,
		Role:    RoleBuyer,
		Action:  ActionReceiptConfirmed,
		From:    historyValue(axisOrder, o.Status.String()),
		To:      historyValue(axisOrder, StatusCompleted.String()),
	})

	if o.ShippingStatus != shipment.StatusDelivered {
		delivered := shipment.StatusDelivered
		changes.Shipping = &delivered
		entries = append(entries, HistoryEntry{
			OrderID: orderID,
			At:      now,
			By:      actorID,
			Role:    RoleBuyer,
			Action:  ActionStatusUpdate,
			From:    historyValue(axisShipping, o.ShippingStatus.String()),
			To:      historyValue(axisShipping, shipment.StatusDelivered.String()),
		})
	}

	// COD settles at the doorstep: receipt is the moment the payment is
	// realized.
	if o.PaymentMethod == payment.MethodCOD && o.PaymentStatus == payment.StatusPending {
		paid := payment.StatusPaid
		changes.Payment = &paid
		entries = append(entries, HistoryEntry{
			OrderID: orderID,
			At:      now,
			By:      actorID,
			Role:    RoleBuyer,
			Action:  ActionPaymentPaid,
			From:    historyValue(axisPayment, payment.StatusPending.String()),
			To:      historyValue(axisPayment, payment.StatusPaid.String()),
		})
	}

	updated, err := s.repo.ApplyTransition(ctx, orderID, o.Snapshot(), changes, entries)
	if err != nil {
		return nil, err
	}

	log.Info().Stringer("order_id", orderID).Stringer("buyer_id", actorID).Msg("service: receipt confirmed, order completed")

	s.publish(ctx, events.TypeOrderCompleted, updated, nil)

	return updated, nil
}

func (s *service) GetShipment(ctx context.Context, actorID, orderID uuid.UUID) (*shipment.Shipment, error) {
	if _, err := s.GetOrder(ctx, actorID, orderID); err != nil {
		return nil, err
	}

	return s.shipments.GetByOrder(ctx, orderID)
}

func (s *service) AddShipmentEvent(ctx context.Context, actorID, orderID uuid.UUID, code, note string, advance *shipment.Status) (*shipment.Shipment, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if PartyOf(actorID, o) != RoleSeller {
		return nil, ErrForbidden
	}

	sh, err := s.shipments.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if advance != nil && *advance != sh.Status {
		if !CanTransitionShipping(sh.Status, *advance) {
			return nil, fmt.Errorf("shipment status %s -> %s: %w", sh.Status, *advance, ErrInvalidStatusTransition)
		}
	}

	// Carrier events do not feed back into order.shipping_status; the
	// order axis moves via seller updates or buyer receipt only.
	return s.shipments.AppendEvent(ctx, sh.ID, code, note, advance)
}

func (s *service) publish(ctx context.Context, eventType string, o *Order, data map[string]any) {
	s.publisher.Publish(ctx, events.Event{
		Type:      eventType,
		OrderID:   o.ID,
		BuyerID:   o.BuyerID,
		SellerIDs: o.SellerIDs,
		At:        time.Now().UTC(),
		Data:      data,
	})
}
