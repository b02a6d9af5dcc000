package order_test

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/okybprasetya/marketplace/internal/order"
	"github.com/okybprasetya/marketplace/internal/payment"
	"github.com/okybprasetya/marketplace/internal/shipment"
)

func TestCanTransitionOrder(t *testing.T) {
	tests := []struct {
		from    order.Status
		to      order.Status
		allowed bool
	}{
		{order.StatusPending, order.StatusProcessing, true},
		{order.StatusPending, order.StatusCanceled, true},
		{order.StatusPending, order.StatusShipped, false},
		{order.StatusProcessing, order.StatusShipped, true},
		{order.StatusShipped, order.StatusDelivered, true},
		{order.StatusDelivered, order.StatusCompleted, true},
		{order.StatusDelivered, order.StatusCanceled, true},
		{order.StatusCompleted, order.StatusCanceled, false},
		{order.StatusCanceled, order.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, order.CanTransitionOrder(tt.from, tt.to))
		})
	}
}

func TestCanTransitionPayment(t *testing.T) {
	// pending fans out; every other state is absorbing
	for _, to := range []payment.Status{payment.StatusPaid, payment.StatusFailed, payment.StatusCanceled} {
		assert.True(t, order.CanTransitionPayment(payment.StatusPending, to), "pending -> %s", to)
	}
	for _, from := range []payment.Status{payment.StatusPaid, payment.StatusFailed, payment.StatusCanceled} {
		for _, to := range []payment.Status{payment.StatusPending, payment.StatusPaid, payment.StatusFailed, payment.StatusCanceled} {
			assert.False(t, order.CanTransitionPayment(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionShipping(t *testing.T) {
	tests := []struct {
		from    shipment.Status
		to      shipment.Status
		allowed bool
	}{
		{shipment.StatusPending, shipment.StatusLabelCreated, true},
		{shipment.StatusPending, shipment.StatusInTransit, false},
		{shipment.StatusLabelCreated, shipment.StatusInTransit, true},
		{shipment.StatusInTransit, shipment.StatusDelivered, true},
		{shipment.StatusDelivered, shipment.StatusReturned, true},
		{shipment.StatusDelivered, shipment.StatusLost, true},
		{shipment.StatusReturned, shipment.StatusPending, false},
		{shipment.StatusLost, shipment.StatusDelivered, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, order.CanTransitionShipping(tt.from, tt.to))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, order.StatusCompleted.Terminal())
	assert.True(t, order.StatusCanceled.Terminal())
	assert.False(t, order.StatusPending.Terminal())
	assert.False(t, order.StatusDelivered.Terminal())
}

func TestToStatus(t *testing.T) {
	status, err := order.ToStatus("processing")
	assert.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, status)

	_, err = order.ToStatus("refunded")
	assert.Error(t, err)
}

func TestPartyOf(t *testing.T) {
	o := &order.Order{
		BuyerID:   buyerID,
		SellerIDs: []uuid.UUID{sellerOne, sellerTwo},
	}

	assert.Equal(t, order.RoleBuyer, order.PartyOf(buyerID, o))
	assert.Equal(t, order.RoleSeller, order.PartyOf(sellerOne, o))
	assert.Equal(t, order.RoleSeller, order.PartyOf(sellerTwo, o))
	assert.Equal(t, order.RoleNone, order.PartyOf(stranger, o))
}

func TestStatusChangesEmpty(t *testing.T) {
	assert.True(t, order.StatusChanges{}.Empty())

	shipped := order.StatusShipped
	assert.False(t, order.StatusChanges{Order: &shipped}.Empty())
}
