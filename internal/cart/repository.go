package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetByBuyer(ctx context.Context, buyerID uuid.UUID) (*Cart, error)
	InsertItem(ctx context.Context, buyerID uuid.UUID, item *Item) error
	UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) (bool, error)
	DeleteItems(ctx context.Context, buyerID uuid.UUID, itemIDs []uuid.UUID) (int64, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRepository struct {
	db dbtx
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{db: pool}
}

func NewRepositoryWithTx(tx pgx.Tx) Repository {
	return &postgresRepository{db: tx}
}

func (r *postgresRepository) GetByBuyer(ctx context.Context, buyerID uuid.UUID) (*Cart, error) {
	query := `
		SELECT id, listing_id, seller_id, title, image_url, unit_price, quantity, created_at, updated_at
		FROM cart_items
		WHERE buyer_id = $1
		ORDER BY position
	`

	rows, err := r.db.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart items for buyer %s: %w", buyerID, err)
	}
	defer rows.Close()

	c := &Cart{BuyerID: buyerID, Items: make([]Item, 0)}

	for rows.Next() {
		var item Item
		err := rows.Scan(
			&item.ID,
			&item.ListingID,
			&item.SellerID,
			&item.Title,
			&item.ImageURL,
			&item.UnitPrice,
			&item.Quantity,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item for buyer %s: %w", buyerID, err)
		}
		c.Items = append(c.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart items for buyer %s: %w", buyerID, err)
	}

	return c, nil
}

func (r *postgresRepository) InsertItem(ctx context.Context, buyerID uuid.UUID, item *Item) error {
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	query := `
		INSERT INTO cart_items (id, buyer_id, listing_id, seller_id, title, image_url, unit_price, quantity, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM cart_items WHERE buyer_id = $2),
			$9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		item.ID,
		buyerID,
		item.ListingID,
		item.SellerID,
		item.Title,
		item.ImageURL,
		item.UnitPrice,
		item.Quantity,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert cart item for buyer %s: %w", buyerID, err)
	}

	return nil
}

func (r *postgresRepository) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	query := `
		UPDATE cart_items
		SET quantity = $1, updated_at = $2
		WHERE id = $3
	`

	tag, err := r.db.Exec(ctx, query, quantity, time.Now().UTC(), itemID)
	if err != nil {
		return fmt.Errorf("repository: failed to update quantity for cart item %s: %w", itemID, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *postgresRepository) DeleteItem(ctx context.Context, itemID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return false, fmt.Errorf("repository: failed to delete cart item %s: %w", itemID, err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteItems removes the checked-out rows. The buyer_id guard keeps a
// forged selection from consuming another buyer's cart.
func (r *postgresRepository) DeleteItems(ctx context.Context, buyerID uuid.UUID, itemIDs []uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id = $1 AND id = ANY($2)`, buyerID, itemIDs)
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete cart items for buyer %s: %w", buyerID, err)
	}

	return tag.RowsAffected(), nil
}

func (r *postgresRepository) Clear(ctx context.Context, buyerID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id = $1`, buyerID); err != nil {
		return fmt.Errorf("repository: failed to clear cart for buyer %s: %w", buyerID, err)
	}

	return nil
}
