package order_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okybprasetya/marketplace/internal/events"
	"github.com/okybprasetya/marketplace/internal/order"
	"github.com/okybprasetya/marketplace/internal/payment"
	"github.com/okybprasetya/marketplace/internal/shipment"
)

func pendingPayment() *payment.Payment {
	return &payment.Payment{
		ID:       mustUUID("88888888-0000-4000-8000-000000000001"),
		OrderID:  orderID,
		Method:   payment.MethodOnline,
		Provider: "qrpay",
		Amount:   decimal.NewFromInt(110000),
		Currency: "IDR",
		Status:   payment.StatusPending,
		Payload:  payment.ProviderPayload{TransactionID: "TXN-abc"},
	}
}

func TestReissuePaymentIntent(t *testing.T) {
	pendingOrder := testOrder()
	pendingOrder.Status = order.StatusPending
	pendingOrder.PaymentStatus = payment.StatusPending

	t.Run("seller_cannot_reissue", func(t *testing.T) {
		svc := newTestService(serviceDeps{repo: repoReturning(pendingOrder)})

		_, err := svc.ReissuePaymentIntent(context.Background(), sellerOne, orderID)
		assert.ErrorIs(t, err, order.ErrForbidden)
	})

	t.Run("paid_order_rejected", func(t *testing.T) {
		svc := newTestService(serviceDeps{repo: repoReturning(testOrder())})

		_, err := svc.ReissuePaymentIntent(context.Background(), buyerID, orderID)
		assert.ErrorIs(t, err, order.ErrInvalidStatusTransition)
	})

	t.Run("missing_pending_row_gets_a_fresh_insert", func(t *testing.T) {
		var inserted *payment.Payment
		payments := &mockPaymentStore{
			reissuePendingFunc: func(_ context.Context, _ uuid.UUID, _ payment.ProviderPayload, _ decimal.Decimal, _ string) (*payment.Payment, error) {
				return nil, payment.ErrNotFound
			},
			insertFunc: func(_ context.Context, p *payment.Payment) error {
				inserted = p
				return nil
			},
		}
		svc := newTestService(serviceDeps{repo: repoReturning(pendingOrder), payments: payments})

		p, err := svc.ReissuePaymentIntent(context.Background(), buyerID, orderID)
		require.NoError(t, err)

		require.NotNil(t, inserted)
		assert.Same(t, inserted, p)
		assert.Equal(t, orderID, p.OrderID)
		assert.Equal(t, payment.StatusPending, p.Status)
		assert.Equal(t, "TXN-test", p.Payload.TransactionID)
		assert.True(t, p.Amount.Equal(pendingOrder.Amounts.Total))
	})

	t.Run("pending_row_is_mutated_in_place", func(t *testing.T) {
		payments := &mockPaymentStore{
			reissuePendingFunc: func(_ context.Context, id uuid.UUID, payload payment.ProviderPayload, amount decimal.Decimal, currency string) (*payment.Payment, error) {
				p := pendingPayment()
				p.Payload = payload
				p.Amount = amount
				p.Currency = currency
				return p, nil
			},
		}
		svc := newTestService(serviceDeps{repo: repoReturning(pendingOrder), payments: payments})

		p, err := svc.ReissuePaymentIntent(context.Background(), buyerID, orderID)
		require.NoError(t, err)
		assert.Equal(t, "TXN-test", p.Payload.TransactionID)
		assert.True(t, p.Amount.Equal(pendingOrder.Amounts.Total))
		assert.Equal(t, payment.StatusPending, p.Status)
	})
}

func TestConfirmPayment(t *testing.T) {
	t.Run("creates_shipment_and_publishes", func(t *testing.T) {
		var gotShipment *shipment.Shipment
		var gotEntries []order.HistoryEntry
		repo := &mockRepository{
			confirmPaymentFunc: func(_ context.Context, id uuid.UUID, sh *shipment.Shipment, entries []order.HistoryEntry) (*order.Order, *payment.Payment, error) {
				gotShipment = sh
				gotEntries = entries
				o := testOrder()
				p := pendingPayment()
				p.Status = payment.StatusPaid
				return o, p, nil
			},
		}
		publisher := &capturingPublisher{}
		svc := newTestService(serviceDeps{repo: repo, publisher: publisher})

		result, err := svc.ConfirmPayment(context.Background(), orderID)
		require.NoError(t, err)

		require.NotNil(t, gotShipment)
		assert.Equal(t, orderID, gotShipment.OrderID)
		assert.Equal(t, shipment.StatusPending, gotShipment.Status)
		assert.NotEmpty(t, gotShipment.TrackingNumber)

		require.Len(t, gotEntries, 1)
		assert.Equal(t, order.ActionPaymentPaid, gotEntries[0].Action)
		assert.Equal(t, "payment_pending", gotEntries[0].From)
		assert.Equal(t, "payment_paid", gotEntries[0].To)
		assert.Equal(t, uuid.Nil, gotEntries[0].By)

		assert.Equal(t, payment.StatusPaid, result.Payment.Status)
		assert.Same(t, gotShipment, result.Shipment)

		published := publisher.published()
		require.Len(t, published, 1)
		assert.Equal(t, events.TypeOrderPaymentPaid, published[0].Type)
	})

	t.Run("second_confirmation_fails", func(t *testing.T) {
		repo := &mockRepository{
			confirmPaymentFunc: func(_ context.Context, _ uuid.UUID, _ *shipment.Shipment, _ []order.HistoryEntry) (*order.Order, *payment.Payment, error) {
				return nil, nil, order.ErrInvalidStatusTransition
			},
		}
		publisher := &capturingPublisher{}
		svc := newTestService(serviceDeps{repo: repo, publisher: publisher})

		_, err := svc.ConfirmPayment(context.Background(), orderID)
		assert.ErrorIs(t, err, order.ErrInvalidStatusTransition)
		assert.Empty(t, publisher.published())
	})
}

func webhookBody(t *testing.T, orderID, transactionID string, amount int64, status string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"orderId":       orderID,
		"transactionId": transactionID,
		"amount":        amount,
		"status":        status,
	})
	require.NoError(t, err)
	return body
}

func TestHandleWebhook_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		body      []byte
		verify    func(payload []byte, signature string) bool
		wantErrIs error
	}{
		{
			name:      "bad_signature",
			body:      []byte(`{}`),
			verify:    func(_ []byte, _ string) bool { return false },
			wantErrIs: payment.ErrInvalidSignature,
		},
		{
			name:      "malformed_json",
			body:      []byte(`{not json`),
			wantErrIs: payment.ErrMalformedPayload,
		},
		{
			name:      "missing_transaction_id",
			body:      []byte(fmt.Sprintf(`{"orderId":%q,"amount":110000,"status":"success"}`, orderID)),
			wantErrIs: payment.ErrMalformedPayload,
		},
		{
			name:      "order_id_not_a_uuid",
			body:      []byte(`{"orderId":"nope","transactionId":"TXN-abc","amount":110000,"status":"success"}`),
			wantErrIs: payment.ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(serviceDeps{verifier: &mockVerifier{verifyFunc: tt.verify}})

			_, err := svc.HandleWebhook(context.Background(), tt.body, "sig")
			assert.ErrorIs(t, err, tt.wantErrIs)
		})
	}
}

func TestHandleWebhook_AmountMismatchLeavesStateAlone(t *testing.T) {
	payments := &mockPaymentStore{
		getByOrderAndTransactionFunc: func(_ context.Context, _ uuid.UUID, _ string) (*payment.Payment, error) {
			return pendingPayment(), nil
		},
	}
	repo := &mockRepository{
		confirmPaymentFunc: func(_ context.Context, _ uuid.UUID, _ *shipment.Shipment, _ []order.HistoryEntry) (*order.Order, *payment.Payment, error) {
			t.Fatal("mismatched amount must not confirm the payment")
			return nil, nil, nil
		},
	}
	svc := newTestService(serviceDeps{repo: repo, payments: payments})

	body := webhookBody(t, orderID.String(), "TXN-abc", 999, "success")
	_, err := svc.HandleWebhook(context.Background(), body, "sig")
	assert.ErrorIs(t, err, payment.ErrAmountMismatch)
}

func TestHandleWebhook_SuccessConfirms(t *testing.T) {
	payments := &mockPaymentStore{
		getByOrderAndTransactionFunc: func(_ context.Context, id uuid.UUID, transactionID string) (*payment.Payment, error) {
			assert.Equal(t, orderID, id)
			assert.Equal(t, "TXN-abc", transactionID)
			return pendingPayment(), nil
		},
	}
	repo := &mockRepository{
		confirmPaymentFunc: func(_ context.Context, _ uuid.UUID, sh *shipment.Shipment, _ []order.HistoryEntry) (*order.Order, *payment.Payment, error) {
			o := testOrder()
			p := pendingPayment()
			p.Status = payment.StatusPaid
			return o, p, nil
		},
	}
	svc := newTestService(serviceDeps{repo: repo, payments: payments})

	body := webhookBody(t, orderID.String(), "TXN-abc", 110000, "success")
	result, err := svc.HandleWebhook(context.Background(), body, "sig")
	require.NoError(t, err)

	assert.Equal(t, order.WebhookOutcomeConfirmed, result.Outcome)
	require.NotNil(t, result.Confirm)
	assert.Equal(t, payment.StatusPaid, result.Confirm.Payment.Status)
}

// The transaction id resolves a duplicate delivery to the same payment;
// the pending-only compare-and-set then refuses the second confirmation.
func TestHandleWebhook_DuplicateDeliveryRejected(t *testing.T) {
	settled := pendingPayment()
	settled.Status = payment.StatusPaid

	payments := &mockPaymentStore{
		getByOrderAndTransactionFunc: func(_ context.Context, _ uuid.UUID, _ string) (*payment.Payment, error) {
			return settled, nil
		},
	}
	repo := &mockRepository{
		confirmPaymentFunc: func(_ context.Context, _ uuid.UUID, _ *shipment.Shipment, _ []order.HistoryEntry) (*order.Order, *payment.Payment, error) {
			return nil, nil, order.ErrInvalidStatusTransition
		},
	}
	svc := newTestService(serviceDeps{repo: repo, payments: payments})

	body := webhookBody(t, orderID.String(), "TXN-abc", 110000, "success")
	_, err := svc.HandleWebhook(context.Background(), body, "sig")
	assert.ErrorIs(t, err, order.ErrInvalidStatusTransition)
}

func TestHandleWebhook_UnhandledStatus(t *testing.T) {
	t.Run("pending_order_marks_axis_failed", func(t *testing.T) {
		pendingOrder := testOrder()
		pendingOrder.Status = order.StatusPending
		pendingOrder.PaymentStatus = payment.StatusPending

		payments := &mockPaymentStore{
			getByOrderAndTransactionFunc: func(_ context.Context, _ uuid.UUID, _ string) (*payment.Payment, error) {
				return pendingPayment(), nil
			},
		}
		var gotChanges order.StatusChanges
		repo := repoReturning(pendingOrder)
		base := repo.applyTransitionFunc
		repo.applyTransitionFunc = func(ctx context.Context, id uuid.UUID, expect order.StatusSnapshot, changes order.StatusChanges, e []order.HistoryEntry) (*order.Order, error) {
			gotChanges = changes
			return base(ctx, id, expect, changes, e)
		}
		svc := newTestService(serviceDeps{repo: repo, payments: payments})

		body := webhookBody(t, orderID.String(), "TXN-abc", 110000, "expired")
		result, err := svc.HandleWebhook(context.Background(), body, "sig")
		require.NoError(t, err)

		assert.Equal(t, order.WebhookOutcomeUnhandledStatus, result.Outcome)
		assert.Nil(t, result.Confirm)
		require.NotNil(t, gotChanges.Payment)
		assert.Equal(t, payment.StatusFailed, *gotChanges.Payment)
	})

	t.Run("settled_order_marks_payment_row_only", func(t *testing.T) {
		var markedID uuid.UUID
		payments := &mockPaymentStore{
			getByOrderAndTransactionFunc: func(_ context.Context, _ uuid.UUID, _ string) (*payment.Payment, error) {
				return pendingPayment(), nil
			},
			markFailedFunc: func(_ context.Context, paymentID uuid.UUID) (bool, error) {
				markedID = paymentID
				return true, nil
			},
		}
		svc := newTestService(serviceDeps{repo: repoReturning(testOrder()), payments: payments})

		body := webhookBody(t, orderID.String(), "TXN-abc", 110000, "expired")
		result, err := svc.HandleWebhook(context.Background(), body, "sig")
		require.NoError(t, err)

		assert.Equal(t, order.WebhookOutcomeUnhandledStatus, result.Outcome)
		assert.Equal(t, pendingPayment().ID, markedID)
	})
}
