package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/okybprasetya/marketplace/internal/cart"
	"github.com/okybprasetya/marketplace/internal/events"
	"github.com/okybprasetya/marketplace/internal/money"
	"github.com/okybprasetya/marketplace/internal/payment"
	"github.com/okybprasetya/marketplace/internal/shipment"
)

// CheckoutInput converts a subset of the buyer's cart into an order.
// An empty Selection means the whole cart.
type CheckoutInput struct {
	BuyerID       uuid.UUID
	Selection     []uuid.UUID
	Address       Address
	PaymentMethod payment.Method
	Quick         bool
}

func (s *service) Checkout(ctx context.Context, in CheckoutInput) (*Order, *payment.Payment, error) {
	c, err := s.carts.GetByBuyer(ctx, in.BuyerID)
	if err != nil {
		return nil, nil, fmt.Errorf("service: failed to fetch cart: %w", err)
	}

	if len(c.Items) == 0 {
		return nil, nil, ErrEmptyCart
	}

	selected := c.Items
	if len(in.Selection) > 0 {
		wanted := lo.SliceToMap(in.Selection, func(id uuid.UUID) (uuid.UUID, struct{}) {
			return id, struct{}{}
		})
		selected = lo.Filter(c.Items, func(item cart.Item, _ int) bool {
			_, ok := wanted[item.ID]
			return ok
		})
	}

	// A selection that matches nothing also covers the re-checkout
	// case: the first checkout consumed the rows, the second finds none.
	if len(selected) == 0 {
		return nil, nil, ErrNoItemsSelected
	}

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	items := make([]Item, 0, len(selected))
	for _, ci := range selected {
		itemID, err := uuid.NewV4()
		if err != nil {
			return nil, nil, fmt.Errorf("service: failed to generate order item id: %w", err)
		}
		items = append(items, Item{
			ID:        itemID,
			ListingID: ci.ListingID,
			SellerID:  ci.SellerID,
			Title:     ci.Title,
			ImageURL:  ci.ImageURL,
			UnitPrice: ci.UnitPrice,
			Quantity:  ci.Quantity,
		})
	}

	sellerIDs := lo.Uniq(lo.Map(selected, func(item cart.Item, _ int) uuid.UUID {
		return item.SellerID
	}))

	subtotal := lo.Reduce(selected, func(acc decimal.Decimal, item cart.Item, _ int) decimal.Decimal {
		return acc.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}, decimal.Zero)

	// The quick path charges the flat shipping fee; the batch path
	// charges none. Asymmetric on purpose, see DESIGN.md.
	shipping := decimal.Zero
	if in.Quick {
		shipping = s.cfg.ShippingFlatFee
	}

	amounts := money.New(subtotal, shipping, decimal.Zero, s.cfg.FeeRate)

	status := StatusPending
	if in.PaymentMethod == payment.MethodCOD {
		status = StatusProcessing
	}

	o := &Order{
		ID:             orderID,
		BuyerID:        in.BuyerID,
		SellerIDs:      sellerIDs,
		Items:          items,
		Amounts:        amounts,
		Currency:       s.cfg.Currency,
		Status:         status,
		PaymentStatus:  payment.StatusPending,
		ShippingStatus: shipment.StatusPending,
		PaymentMethod:  in.PaymentMethod,
		Address:        in.Address,
	}

	p, err := s.newPaymentIntent(o)
	if err != nil {
		return nil, nil, err
	}

	consumed := lo.Map(selected, func(item cart.Item, _ int) uuid.UUID {
		return item.ID
	})

	entry := HistoryEntry{
		OrderID: orderID,
		At:      time.Now().UTC(),
		By:      in.BuyerID,
		Role:    RoleBuyer,
		Action:  ActionCheckout,
		To:      historyValue(axisOrder, status.String()),
	}

	if err := s.repo.CreateCheckout(ctx, o, p, consumed, entry); err != nil {
		if !errors.Is(err, ErrNoItemsSelected) {
			// Reconciliation marker: the order was assembled but not
			// persisted as a unit.
			log.Error().Err(err).
				Stringer("order_id", orderID).
				Stringer("buyer_id", in.BuyerID).
				Int("selected_items", len(consumed)).
				Msg("service: checkout transaction failed")
		}
		return nil, nil, err
	}

	log.Info().
		Stringer("order_id", orderID).
		Stringer("buyer_id", in.BuyerID).
		Str("payment_method", string(in.PaymentMethod)).
		Str("total", amounts.Total.String()).
		Bool("quick", in.Quick).
		Msg("service: checkout completed")

	s.publish(ctx, events.TypeOrderCheckedOut, o, map[string]any{"total": amounts.Total.String()})

	return o, p, nil
}

func (s *service) newPaymentIntent(o *Order) (*payment.Payment, error) {
	payload, err := s.provider.CreateIntent(o.ID, o.Amounts.Total, o.Currency)
	if err != nil {
		return nil, fmt.Errorf("service: failed to create payment intent: %w", err)
	}

	return s.buildPayment(o, payload)
}

func (s *service) buildPayment(o *Order, payload payment.ProviderPayload) (*payment.Payment, error) {
	paymentID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate payment id: %w", err)
	}

	return &payment.Payment{
		ID:       paymentID,
		OrderID:  o.ID,
		Method:   o.PaymentMethod,
		Provider: s.provider.Name(),
		Amount:   o.Amounts.Total,
		Currency: o.Currency,
		Status:   payment.StatusPending,
		Payload:  payload,
	}, nil
}
