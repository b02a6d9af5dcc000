package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Service interface {
	Get(ctx context.Context, buyerID uuid.UUID) (*Cart, error)
	AddItem(ctx context.Context, buyerID uuid.UUID, input AddItemInput) (*Cart, error)
	UpdateItemQuantity(ctx context.Context, buyerID uuid.UUID, index, quantity int) (*Cart, error)
	RemoveItem(ctx context.Context, buyerID uuid.UUID, index int) (*Cart, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type AddItemInput struct {
	ListingID uuid.UUID
	SellerID  uuid.UUID
	Title     string
	ImageURL  string
	UnitPrice decimal.Decimal
	Quantity  int
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Get(ctx context.Context, buyerID uuid.UUID) (*Cart, error) {
	c, err := s.repo.GetByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch cart: %w", err)
	}

	return c, nil
}

// AddItem merges into an existing row when listing and unit price both
// match, otherwise appends a new row at the end of the cart.
func (s *service) AddItem(ctx context.Context, buyerID uuid.UUID, input AddItemInput) (*Cart, error) {
	if input.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if input.UnitPrice.IsNegative() {
		return nil, errors.New("service: unit price cannot be negative")
	}
	if input.ListingID == uuid.Nil || input.SellerID == uuid.Nil {
		return nil, errors.New("service: listing and seller ids are required")
	}

	c, err := s.repo.GetByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch cart: %w", err)
	}

	for _, existing := range c.Items {
		if existing.ListingID == input.ListingID && existing.UnitPrice.Equal(input.UnitPrice) {
			if err := s.repo.UpdateQuantity(ctx, existing.ID, existing.Quantity+input.Quantity); err != nil {
				return nil, fmt.Errorf("service: failed to merge cart item: %w", err)
			}
			return s.repo.GetByBuyer(ctx, buyerID)
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate cart item id: %w", err)
	}

	item := &Item{
		ID:        id,
		ListingID: input.ListingID,
		SellerID:  input.SellerID,
		Title:     input.Title,
		ImageURL:  input.ImageURL,
		UnitPrice: input.UnitPrice,
		Quantity:  input.Quantity,
	}

	if err := s.repo.InsertItem(ctx, buyerID, item); err != nil {
		return nil, fmt.Errorf("service: failed to insert cart item: %w", err)
	}

	log.Debug().Stringer("buyer_id", buyerID).Stringer("listing_id", input.ListingID).Msg("service: cart item added")

	return s.repo.GetByBuyer(ctx, buyerID)
}

func (s *service) UpdateItemQuantity(ctx context.Context, buyerID uuid.UUID, index, quantity int) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	item, err := s.itemAt(ctx, buyerID, index)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateQuantity(ctx, item.ID, quantity); err != nil {
		return nil, fmt.Errorf("service: failed to update cart item quantity: %w", err)
	}

	return s.repo.GetByBuyer(ctx, buyerID)
}

func (s *service) RemoveItem(ctx context.Context, buyerID uuid.UUID, index int) (*Cart, error) {
	item, err := s.itemAt(ctx, buyerID, index)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.DeleteItem(ctx, item.ID); err != nil {
		return nil, fmt.Errorf("service: failed to remove cart item: %w", err)
	}

	return s.repo.GetByBuyer(ctx, buyerID)
}

func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	if err := s.repo.Clear(ctx, buyerID); err != nil {
		return fmt.Errorf("service: failed to clear cart: %w", err)
	}

	return nil
}

func (s *service) itemAt(ctx context.Context, buyerID uuid.UUID, index int) (*Item, error) {
	c, err := s.repo.GetByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch cart: %w", err)
	}

	if index < 0 || index >= len(c.Items) {
		return nil, ErrItemNotFound
	}

	return &c.Items[index], nil
}
