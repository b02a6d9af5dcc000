package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	GetByOrderAndTransaction(ctx context.Context, orderID uuid.UUID, transactionID string) (*Payment, error)
	ReissuePending(ctx context.Context, orderID uuid.UUID, payload ProviderPayload, amount decimal.Decimal, currency string) (*Payment, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	MarkFailed(ctx context.Context, paymentID uuid.UUID) (bool, error)
	SettlePending(ctx context.Context, orderID uuid.UUID, status Status) (bool, error)
}

// dbtx is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so a repository can join a caller-owned transaction.
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

const paymentColumns = `id, order_id, method, provider, amount, currency, status, transaction_id, qr_image_url, transfer_ref, created_at, updated_at, paid_at`

func (r *postgresRepository) Insert(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (id, order_id, method, provider, amount, currency, status, transaction_id, qr_image_url, transfer_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.Exec(ctx, query,
		p.ID,
		p.OrderID,
		string(p.Method),
		p.Provider,
		p.Amount,
		p.Currency,
		string(p.Status),
		p.Payload.TransactionID,
		p.Payload.QRImageURL,
		p.Payload.TransferRef,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		// The partial unique index allows one pending payment per order.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("repository: order %s: %w", p.OrderID, ErrPendingExists)
		}
		return fmt.Errorf("repository: failed to insert payment for order %s: %w", p.OrderID, err)
	}

	return nil
}

func (r *postgresRepository) GetByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	p, err := scanPayment(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment for order %s: %w", orderID, err)
	}

	return p, nil
}

func (r *postgresRepository) GetByOrderAndTransaction(ctx context.Context, orderID uuid.UUID, transactionID string) (*Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE order_id = $1 AND transaction_id = $2
	`

	p, err := scanPayment(r.db.QueryRow(ctx, query, orderID, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select payment for order %s txn %s: %w", orderID, transactionID, err)
	}

	return p, nil
}

// ReissuePending refreshes the provider payload of the order's pending
// payment in place. Returns ErrNotFound when no pending payment exists,
// which callers treat as the signal to insert a fresh one.
func (r *postgresRepository) ReissuePending(ctx context.Context, orderID uuid.UUID, payload ProviderPayload, amount decimal.Decimal, currency string) (*Payment, error) {
	query := `
		UPDATE payments
		SET transaction_id = $1, qr_image_url = $2, transfer_ref = $3, amount = $4, currency = $5, updated_at = $6
		WHERE order_id = $7 AND status = 'pending'
		RETURNING ` + paymentColumns

	p, err := scanPayment(r.db.QueryRow(ctx, query,
		payload.TransactionID,
		payload.QRImageURL,
		payload.TransferRef,
		amount,
		currency,
		time.Now().UTC(),
		orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to reissue pending payment for order %s: %w", orderID, err)
	}

	return p, nil
}

// MarkPaid flips the pending payment of the order to paid. The WHERE on
// status makes the call a compare-and-set: a second caller finds no
// pending row and gets ErrNotFound.
func (r *postgresRepository) MarkPaid(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	now := time.Now().UTC()

	query := `
		UPDATE payments
		SET status = 'paid', updated_at = $1, paid_at = $1
		WHERE order_id = $2 AND status = 'pending'
		RETURNING ` + paymentColumns

	p, err := scanPayment(r.db.QueryRow(ctx, query, now, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to mark payment paid for order %s: %w", orderID, err)
	}

	return p, nil
}

func (r *postgresRepository) MarkFailed(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	query := `
		UPDATE payments
		SET status = 'failed', updated_at = $1
		WHERE id = $2 AND status = 'pending'
	`

	tag, err := r.db.Exec(ctx, query, time.Now().UTC(), paymentID)
	if err != nil {
		return false, fmt.Errorf("repository: failed to mark payment %s failed: %w", paymentID, err)
	}

	return tag.RowsAffected() > 0, nil
}

// SettlePending moves the order's pending payment to a terminal status.
// Pending is the only state it moves from, so the call is idempotent.
func (r *postgresRepository) SettlePending(ctx context.Context, orderID uuid.UUID, status Status) (bool, error) {
	now := time.Now().UTC()

	query := `
		UPDATE payments
		SET status = $1, updated_at = $2, paid_at = CASE WHEN $1 = 'paid' THEN $2 ELSE paid_at END
		WHERE order_id = $3 AND status = 'pending'
	`

	tag, err := r.db.Exec(ctx, query, string(status), now, orderID)
	if err != nil {
		return false, fmt.Errorf("repository: failed to settle pending payment for order %s: %w", orderID, err)
	}

	return tag.RowsAffected() > 0, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var method, status string

	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&method,
		&p.Provider,
		&p.Amount,
		&p.Currency,
		&status,
		&p.Payload.TransactionID,
		&p.Payload.QRImageURL,
		&p.Payload.TransferRef,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.PaidAt,
	)
	if err != nil {
		return nil, err
	}

	p.Method = Method(method)
	p.Status = Status(status)

	return &p, nil
}
