package order_test

import (
	"context"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/okybprasetya/marketplace/internal/cart"
	"github.com/okybprasetya/marketplace/internal/events"
	"github.com/okybprasetya/marketplace/internal/order"
	"github.com/okybprasetya/marketplace/internal/payment"
	"github.com/okybprasetya/marketplace/internal/shipment"
)

type mockRepository struct {
	createCheckoutFunc  func(ctx context.Context, o *order.Order, p *payment.Payment, consumedItemIDs []uuid.UUID, entry order.HistoryEntry) error
	getByIDFunc         func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	listFunc            func(ctx context.Context, f order.Filter) ([]order.Order, int64, error)
	historyFunc         func(ctx context.Context, orderID uuid.UUID) ([]order.HistoryEntry, error)
	confirmPaymentFunc  func(ctx context.Context, orderID uuid.UUID, sh *shipment.Shipment, entries []order.HistoryEntry) (*order.Order, *payment.Payment, error)
	applyTransitionFunc func(ctx context.Context, orderID uuid.UUID, expect order.StatusSnapshot, changes order.StatusChanges, entries []order.HistoryEntry) (*order.Order, error)
}

func (m *mockRepository) CreateCheckout(ctx context.Context, o *order.Order, p *payment.Payment, consumedItemIDs []uuid.UUID, entry order.HistoryEntry) error {
	return m.createCheckoutFunc(ctx, o, p, consumedItemIDs, entry)
}

func (m *mockRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int64, error) {
	return m.listFunc(ctx, f)
}

func (m *mockRepository) History(ctx context.Context, orderID uuid.UUID) ([]order.HistoryEntry, error) {
	return m.historyFunc(ctx, orderID)
}

func (m *mockRepository) ConfirmPayment(ctx context.Context, orderID uuid.UUID, sh *shipment.Shipment, entries []order.HistoryEntry) (*order.Order, *payment.Payment, error) {
	return m.confirmPaymentFunc(ctx, orderID, sh, entries)
}

func (m *mockRepository) ApplyTransition(ctx context.Context, orderID uuid.UUID, expect order.StatusSnapshot, changes order.StatusChanges, entries []order.HistoryEntry) (*order.Order, error) {
	return m.applyTransitionFunc(ctx, orderID, expect, changes, entries)
}

type mockCartStore struct {
	getByBuyerFunc func(ctx context.Context, buyerID uuid.UUID) (*cart.Cart, error)
}

func (m *mockCartStore) GetByBuyer(ctx context.Context, buyerID uuid.UUID) (*cart.Cart, error) {
	return m.getByBuyerFunc(ctx, buyerID)
}

type mockPaymentStore struct {
	insertFunc                   func(ctx context.Context, p *payment.Payment) error
	getByOrderFunc               func(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error)
	getByOrderAndTransactionFunc func(ctx context.Context, orderID uuid.UUID, transactionID string) (*payment.Payment, error)
	reissuePendingFunc           func(ctx context.Context, orderID uuid.UUID, payload payment.ProviderPayload, amount decimal.Decimal, currency string) (*payment.Payment, error)
	markFailedFunc               func(ctx context.Context, paymentID uuid.UUID) (bool, error)
}

func (m *mockPaymentStore) Insert(ctx context.Context, p *payment.Payment) error {
	return m.insertFunc(ctx, p)
}

func (m *mockPaymentStore) GetByOrder(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	return m.getByOrderFunc(ctx, orderID)
}

func (m *mockPaymentStore) GetByOrderAndTransaction(ctx context.Context, orderID uuid.UUID, transactionID string) (*payment.Payment, error) {
	return m.getByOrderAndTransactionFunc(ctx, orderID, transactionID)
}

func (m *mockPaymentStore) ReissuePending(ctx context.Context, orderID uuid.UUID, payload payment.ProviderPayload, amount decimal.Decimal, currency string) (*payment.Payment, error) {
	return m.reissuePendingFunc(ctx, orderID, payload, amount, currency)
}

func (m *mockPaymentStore) MarkFailed(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	return m.markFailedFunc(ctx, paymentID)
}

type mockShipmentStore struct {
	getByOrderFunc  func(ctx context.Context, orderID uuid.UUID) (*shipment.Shipment, error)
	appendEventFunc func(ctx context.Context, shipmentID uuid.UUID, code, note string, advance *shipment.Status) (*shipment.Shipment, error)
}

func (m *mockShipmentStore) GetByOrder(ctx context.Context, orderID uuid.UUID) (*shipment.Shipment, error) {
	return m.getByOrderFunc(ctx, orderID)
}

func (m *mockShipmentStore) AppendEvent(ctx context.Context, shipmentID uuid.UUID, code, note string, advance *shipment.Status) (*shipment.Shipment, error) {
	return m.appendEventFunc(ctx, shipmentID, code, note, advance)
}

type mockProvider struct {
	createIntentFunc func(orderID uuid.UUID, amount decimal.Decimal, currency string) (payment.ProviderPayload, error)
}

func (m *mockProvider) Name() string {
	return "qrpay"
}

func (m *mockProvider) CreateIntent(orderID uuid.UUID, amount decimal.Decimal, currency string) (payment.ProviderPayload, error) {
	if m.createIntentFunc != nil {
		return m.createIntentFunc(orderID, amount, currency)
	}
	return payment.ProviderPayload{
		TransactionID: "TXN-test",
		QRImageURL:    "https://pay.example.com/qr/TXN-test.png",
		TransferRef:   payment.TransferRef(orderID),
	}, nil
}

type mockVerifier struct {
	verifyFunc func(payload []byte, signature string) bool
}

func (m *mockVerifier) Verify(payload []byte, signature string) bool {
	if m.verifyFunc != nil {
		return m.verifyFunc(payload, signature)
	}
	return true
}

// capturingPublisher records published events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *capturingPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type serviceDeps struct {
	repo      *mockRepository
	carts     *mockCartStore
	payments  *mockPaymentStore
	shipments *mockShipmentStore
	provider  *mockProvider
	verifier  *mockVerifier
	publisher *capturingPublisher
}

func newTestService(deps serviceDeps) order.Service {
	if deps.repo == nil {
		deps.repo = &mockRepository{}
	}
	if deps.carts == nil {
		deps.carts = &mockCartStore{}
	}
	if deps.payments == nil {
		deps.payments = &mockPaymentStore{}
	}
	if deps.shipments == nil {
		deps.shipments = &mockShipmentStore{}
	}
	if deps.provider == nil {
		deps.provider = &mockProvider{}
	}
	if deps.verifier == nil {
		deps.verifier = &mockVerifier{}
	}
	if deps.publisher == nil {
		deps.publisher = &capturingPublisher{}
	}

	return order.NewService(
		deps.repo,
		deps.carts,
		deps.payments,
		deps.shipments,
		deps.provider,
		deps.verifier,
		deps.publisher,
		order.DefaultConfig(),
	)
}

func mustUUID(s string) uuid.UUID {
	return uuid.Must(uuid.FromString(s))
}
