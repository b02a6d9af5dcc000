package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/okybprasetya/marketplace/internal/cart"
	"github.com/okybprasetya/marketplace/internal/payment"
	"github.com/okybprasetya/marketplace/internal/shipment"
)

type Repository interface {
	// CreateCheckout persists the order, its line snapshots, the seed
	// history entry and the payment intent, and consumes the selected
	// cart rows, all in one transaction.
	CreateCheckout(ctx context.Context, o *Order, p *payment.Payment, consumedItemIDs []uuid.UUID, entry HistoryEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, int64, error)
	History(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error)
	// ConfirmPayment runs the confirmation sequence behind a
	// compare-and-set on payment_status = pending.
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, sh *shipment.Shipment, entries []HistoryEntry) (*Order, *payment.Payment, error)
	// ApplyTransition updates the status axes only if all three still
	// hold the values the caller validated against.
	ApplyTransition(ctx context.Context, orderID uuid.UUID, expect StatusSnapshot, changes StatusChanges, entries []HistoryEntry) (*Order, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback transaction after panic")
			}
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback transaction")
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return err
}

func (r *postgresRepository) CreateCheckout(ctx context.Context, o *Order, p *payment.Payment, consumedItemIDs []uuid.UUID, entry HistoryEntry) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		o.CreatedAt = now
		o.UpdatedAt = now

		orderQuery := `
			INSERT INTO orders (id, buyer_id, seller_ids, order_status, payment_status, shipping_status, payment_method,
				subtotal, shipping, fee, discount, total, currency, address, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`
		_, err := tx.Exec(ctx, orderQuery,
			o.ID,
			o.BuyerID,
			o.SellerIDs,
			string(o.Status),
			string(o.PaymentStatus),
			string(o.ShippingStatus),
			string(o.PaymentMethod),
			o.Amounts.Subtotal,
			o.Amounts.Shipping,
			o.Amounts.Fee,
			o.Amounts.Discount,
			o.Amounts.Total,
			o.Currency,
			o.Address,
			o.CreatedAt,
			o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order: %w", err)
		}

		itemQuery := `
			INSERT INTO order_items (id, order_id, listing_id, seller_id, title, image_url, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		for i := range o.Items {
			item := &o.Items[i]
			_, err := tx.Exec(ctx, itemQuery,
				item.ID,
				o.ID,
				item.ListingID,
				item.SellerID,
				item.Title,
				item.ImageURL,
				item.UnitPrice,
				item.Quantity,
			)
			if err != nil {
				return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
			}
		}

		if err := insertHistory(ctx, tx, []HistoryEntry{entry}); err != nil {
			return err
		}

		if err := payment.NewRepositoryWithTx(tx).Insert(ctx, p); err != nil {
			return fmt.Errorf("repository: failed to insert payment intent for order %s: %w", o.ID, err)
		}

		deleted, err := cart.NewRepositoryWithTx(tx).DeleteItems(ctx, o.BuyerID, consumedItemIDs)
		if err != nil {
			return fmt.Errorf("repository: failed to consume cart items for order %s: %w", o.ID, err)
		}
		if deleted != int64(len(consumedItemIDs)) {
			// Another checkout raced us to some of the rows; roll back
			// instead of double-charging.
			return fmt.Errorf("repository: consumed %d of %d selected cart items for order %s: %w",
				deleted, len(consumedItemIDs), o.ID, ErrNoItemsSelected)
		}

		return nil
	})
}

const orderColumns = `id, buyer_id, seller_ids, order_status, payment_status, shipping_status, payment_method,
	subtotal, shipping, fee, discount, total, currency, address, created_at, updated_at`

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", id, err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	o.Items = items[id]

	return o, nil
}

func (r *postgresRepository) List(ctx context.Context, f Filter) ([]Order, int64, error) {
	where := `WHERE 1=1`
	args := []any{}

	if f.BuyerID != nil {
		args = append(args, *f.BuyerID)
		where += fmt.Sprintf(` AND buyer_id = $%d`, len(args))
	}
	if f.SellerID != nil {
		args = append(args, *f.SellerID)
		where += fmt.Sprintf(` AND $%d = ANY(seller_ids)`, len(args))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where += fmt.Sprintf(` AND order_status = $%d`, len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`SELECT `+orderColumns+` FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(ids) > 0 {
		items, err := r.loadItems(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range orders {
			orders[i].Items = items[orders[i].ID]
		}
	}

	return orders, total, nil
}

func (r *postgresRepository) History(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error) {
	query := `
		SELECT id, order_id, at, actor_id, actor_role, action, from_value, to_value, note
		FROM order_history
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query history for order %s: %w", orderID, err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		var role string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.At, &e.By, &role, &e.Action, &e.From, &e.To, &e.Note); err != nil {
			return nil, fmt.Errorf("repository: failed to scan history entry for order %s: %w", orderID, err)
		}
		e.Role = Role(role)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating history for order %s: %w", orderID, err)
	}

	return entries, nil
}

func (r *postgresRepository) ConfirmPayment(ctx context.Context, orderID uuid.UUID, sh *shipment.Shipment, entries []HistoryEntry) (*Order, *payment.Payment, error) {
	var (
		o *Order
		p *payment.Payment
	)

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		// Compare-and-set, not read-then-write: two concurrent
		// confirmations cannot both pass this guard.
		casQuery := `
			UPDATE orders
			SET payment_status = 'paid', order_status = 'processing', updated_at = $1
			WHERE id = $2 AND payment_status = 'pending'
		`
		tag, err := tx.Exec(ctx, casQuery, time.Now().UTC(), orderID)
		if err != nil {
			return fmt.Errorf("repository: failed to confirm payment for order %s: %w", orderID, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
				return fmt.Errorf("repository: failed to check order %s: %w", orderID, err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrInvalidStatusTransition
		}

		p, err = payment.NewRepositoryWithTx(tx).MarkPaid(ctx, orderID)
		if err != nil {
			return fmt.Errorf("repository: failed to mark payment paid for order %s: %w", orderID, err)
		}

		if err := insertHistory(ctx, tx, entries); err != nil {
			return err
		}

		created, err := shipment.NewRepositoryWithTx(tx).Insert(ctx, sh)
		if err != nil {
			return fmt.Errorf("repository: failed to create shipment for order %s: %w", orderID, err)
		}
		if !created {
			// Unique order_id constraint caught a duplicate behind the
			// CAS; should not happen, but never create a second one.
			log.Warn().Stringer("order_id", orderID).Msg("repository: shipment already exists, skipping creation")
		}

		o, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
		if err != nil {
			return fmt.Errorf("repository: failed to reload order %s: %w", orderID, err)
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	items, err := r.loadItems(ctx, []uuid.UUID{orderID})
	if err != nil {
		return nil, nil, err
	}
	o.Items = items[orderID]

	return o, p, nil
}

func (r *postgresRepository) ApplyTransition(ctx context.Context, orderID uuid.UUID, expect StatusSnapshot, changes StatusChanges, entries []HistoryEntry) (*Order, error) {
	next := StatusSnapshot{
		Order:    expect.Order,
		Payment:  expect.Payment,
		Shipping: expect.Shipping,
	}
	if changes.Order != nil {
		next.Order = *changes.Order
	}
	if changes.Payment != nil {
		next.Payment = *changes.Payment
	}
	if changes.Shipping != nil {
		next.Shipping = *changes.Shipping
	}

	var o *Order

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		// Optimistic write: the axes must still look exactly as they
		// did when the service validated the transition.
		query := `
			UPDATE orders
			SET order_status = $1, payment_status = $2, shipping_status = $3, updated_at = $4
			WHERE id = $5 AND order_status = $6 AND payment_status = $7 AND shipping_status = $8
		`
		tag, err := tx.Exec(ctx, query,
			string(next.Order),
			string(next.Payment),
			string(next.Shipping),
			time.Now().UTC(),
			orderID,
			string(expect.Order),
			string(expect.Payment),
			string(expect.Shipping),
		)
		if err != nil {
			return fmt.Errorf("repository: failed to update statuses for order %s: %w", orderID, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
				return fmt.Errorf("repository: failed to check order %s: %w", orderID, err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrInvalidStatusTransition
		}

		// Keep the payment record aligned with the order's payment axis.
		if changes.Payment != nil {
			settled, err := payment.NewRepositoryWithTx(tx).SettlePending(ctx, orderID, *changes.Payment)
			if err != nil {
				return fmt.Errorf("repository: failed to settle payment for order %s: %w", orderID, err)
			}
			if !settled {
				log.Warn().Stringer("order_id", orderID).Str("payment_status", changes.Payment.String()).Msg("repository: no pending payment to settle")
			}
		}

		if err := insertHistory(ctx, tx, entries); err != nil {
			return err
		}

		o, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
		if err != nil {
			return fmt.Errorf("repository: failed to reload order %s: %w", orderID, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	items, err := r.loadItems(ctx, []uuid.UUID{orderID})
	if err != nil {
		return nil, err
	}
	o.Items = items[orderID]

	return o, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, entries []HistoryEntry) error {
	query := `
		INSERT INTO order_history (order_id, at, actor_id, actor_role, action, from_value, to_value, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, e := range entries {
		_, err := tx.Exec(ctx, query, e.OrderID, e.At, e.By, string(e.Role), e.Action, e.From, e.To, e.Note)
		if err != nil {
			return fmt.Errorf("repository: failed to append history for order %s: %w", e.OrderID, err)
		}
	}
	return nil
}

func (r *postgresRepository) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]Item, error) {
	query := `
		SELECT id, order_id, listing_id, seller_id, title, image_url, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]Item)
	for rows.Next() {
		var item Item
		var orderID uuid.UUID
		err := rows.Scan(
			&item.ID,
			&orderID,
			&item.ListingID,
			&item.SellerID,
			&item.Title,
			&item.ImageURL,
			&item.UnitPrice,
			&item.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		result[orderID] = append(result[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return result, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var orderStatus, paymentStatus, shippingStatus, method string

	err := row.Scan(
		&o.ID,
		&o.BuyerID,
		&o.SellerIDs,
		&orderStatus,
		&paymentStatus,
		&shippingStatus,
		&method,
		&o.Amounts.Subtotal,
		&o.Amounts.Shipping,
		&o.Amounts.Fee,
		&o.Amounts.Discount,
		&o.Amounts.Total,
		&o.Currency,
		&o.Address,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = Status(orderStatus)
	o.PaymentStatus = payment.Status(paymentStatus)
	o.ShippingStatus = shipment.Status(shippingStatus)
	o.PaymentMethod = payment.Method(method)

	return &o, nil
}
