package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/okybprasetya/marketplace/internal/events"
	"github.com/okybprasetya/marketplace/internal/payment"
	"github.com/okybprasetya/marketplace/internal/shipment"
)

// ConfirmResult is what payment confirmation produced: the advanced
// order, the settled payment and the newly created shipment.
type ConfirmResult struct {
	Order    *Order             `json:"order"`
	Payment  *payment.Payment   `json:"payment"`
	Shipment *shipment.Shipment `json:"shipment"`
}

// ReissuePaymentIntent refreshes the order's pending payment in place:
// new transaction id, new QR payload, refreshed amount. The pending row
// is mutated rather than duplicated, so at most one pending payment
// exists per order at any instant. If no pending row is left (a prior
// intent expired into a terminal state), a fresh one is inserted.
func (s *service) ReissuePaymentIntent(ctx context.Context, actorID, orderID uuid.UUID) (*payment.Payment, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if PartyOf(actorID, o) != RoleBuyer {
		return nil, ErrForbidden
	}

	if o.PaymentStatus != payment.StatusPending {
		return nil, fmt.Errorf("reissue payment intent in payment status %s: %w", o.PaymentStatus, ErrInvalidStatusTransition)
	}

	payload, err := s.provider.CreateIntent(o.ID, o.Amounts.Total, o.Currency)
	if err != nil {
		return nil, fmt.Errorf("service: failed to create payment intent: %w", err)
	}

	p, err := s.payments.ReissuePending(ctx, orderID, payload, o.Amounts.Total, o.Currency)
	if errors.Is(err, payment.ErrNotFound) {
		p, err = s.buildPayment(o, payload)
		if err != nil {
			return nil, err
		}
		if err := s.payments.Insert(ctx, p); err != nil {
			return nil, fmt.Errorf("service: failed to insert payment intent: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("service: failed to reissue payment intent: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Str("transaction_id", payload.TransactionID).Msg("service: payment intent reissued")

	return p, nil
}

// ConfirmPayment settles the order's pending payment. Legal only while
// payment_status is pending; the repository enforces that with a
// compare-and-set, which makes a second call fail instead of creating a
// second shipment.
func (s *service) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (*ConfirmResult, error) {
	sh, err := shipment.New(orderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to build shipment: %w", err)
	}

	now := time.Now().UTC()
	entries := []HistoryEntry{
		{
			OrderID: orderID,
			At:      now,
			By:      uuid.Nil,
			Role:    RoleNone,
			Action:  ActionPaymentPaid,
			From:    historyValue(axisPayment, payment.StatusPending.String()),
			To:      historyValue(axisPayment, payment.StatusPaid.String()),
		},
	}

	o, p, err := s.repo.ConfirmPayment(ctx, orderID, sh, entries)
	if err != nil {
		return nil, err
	}

	log.Info().
		Stringer("order_id", orderID).
		Str("transaction_id", p.Payload.TransactionID).
		Stringer("shipment_id", sh.ID).
		Msg("service: payment confirmed, shipment created")

	s.publish(ctx, events.TypeOrderPaymentPaid, o, map[string]any{"transaction_id": p.Payload.TransactionID})

	return &ConfirmResult{Order: o, Payment: p, Shipment: sh}, nil
}

// Webhook outcome labels returned to the provider.
const (
	WebhookOutcomeConfirmed       = "payment_confirmed"
	WebhookOutcomeUnhandledStatus = "unhandled_status"
)

type WebhookPayload struct {
	OrderID       string          `json:"orderId"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
}

type WebhookResult struct {
	Outcome string         `json:"outcome"`
	Confirm *ConfirmResult `json:"confirm,omitempty"`
}

// HandleWebhook processes one provider notification. Duplicate
// deliveries resolve to the same payment via the transaction id and are
// rejected by the pending-only confirmation guard, giving at-most-once
// confirmation.
func (s *service) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if !s.verifier.Verify(body, signature) {
		return nil, payment.ErrInvalidSignature
	}

	var wp WebhookPayload
	if err := json.Unmarshal(body, &wp); err != nil {
		return nil, fmt.Errorf("%w: %s", payment.ErrMalformedPayload, err)
	}

	if wp.OrderID == "" || wp.TransactionID == "" {
		return nil, fmt.Errorf("%w: orderId and transactionId are required", payment.ErrMalformedPayload)
	}

	orderID, err := uuid.FromString(wp.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid orderId", payment.ErrMalformedPayload)
	}

	// (order_id, transaction_id) is the idempotency key: a duplicate
	// delivery lands on the same payment record.
	p, err := s.payments.GetByOrderAndTransaction(ctx, orderID, wp.TransactionID)
	if err != nil {
		return nil, err
	}

	if !p.Amount.Equal(wp.Amount) {
		log.Warn().
			Stringer("order_id", orderID).
			Str("transaction_id", wp.TransactionID).
			Str("expected", p.Amount.String()).
			Str("got", wp.Amount.String()).
			Msg("service: webhook amount mismatch")
		return nil, payment.ErrAmountMismatch
	}

	switch strings.ToLower(wp.Status) {
	case "success", "paid":
		confirm, err := s.ConfirmPayment(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return &WebhookResult{Outcome: WebhookOutcomeConfirmed, Confirm: confirm}, nil
	default:
		// Unknown provider status: record the failure but answer 200,
		// the delivery itself was understood.
		o, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.PaymentStatus == payment.StatusPending {
			failed := payment.StatusFailed
			entry := HistoryEntry{
				OrderID: orderID,
				At:      time.Now().UTC(),
				By:      uuid.Nil,
				Role:    RoleNone,
				Action:  ActionPaymentFailed,
				From:    historyValue(axisPayment, payment.StatusPending.String()),
				To:      historyValue(axisPayment, payment.StatusFailed.String()),
			}
			// ApplyTransition settles the pending payment row as well.
			if _, err := s.repo.ApplyTransition(ctx, orderID, o.Snapshot(), StatusChanges{Payment: &failed}, []HistoryEntry{entry}); err != nil &&
				!errors.Is(err, ErrInvalidStatusTransition) {
				return nil, err
			}
		} else if _, err := s.payments.MarkFailed(ctx, p.ID); err != nil {
			return nil, fmt.Errorf("service: failed to mark payment failed: %w", err)
		}
		log.Warn().
			Stringer("order_id", orderID).
			Str("transaction_id", wp.TransactionID).
			Str("status", wp.Status).
			Msg("service: unhandled webhook status, payment marked failed")
		return &WebhookResult{Outcome: WebhookOutcomeUnhandledStatus}, nil
	}
}
