package shipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	// Insert creates the shipment and its seed event. The unique
	// constraint on order_id makes a second insert a no-op, reported
	// through the returned bool.
	Insert(ctx context.Context, s *Shipment) (bool, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*Shipment, error)
	AppendEvent(ctx context.Context, shipmentID uuid.UUID, code, note string, advance *Status) (*Shipment, error)
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

func (r *postgresRepository) Insert(ctx context.Context, s *Shipment) (bool, error) {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	query := `
		INSERT INTO shipments (id, order_id, carrier, tracking_number, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		s.ID,
		s.OrderID,
		s.Carrier,
		s.TrackingNumber,
		string(s.Status),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to insert shipment for order %s: %w", s.OrderID, err)
	}

	if tag.RowsAffected() == 0 {
		return false, nil
	}

	eventQuery := `
		INSERT INTO shipment_events (shipment_id, at, code, note)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Exec(ctx, eventQuery, s.ID, now, EventOrderConfirmed, ""); err != nil {
		return false, fmt.Errorf("repository: failed to insert seed event for shipment %s: %w", s.ID, err)
	}

	s.Events = append(s.Events, Event{ShipmentID: s.ID, At: now, Code: EventOrderConfirmed})

	return true, nil
}

func (r *postgresRepository) GetByOrder(ctx context.Context, orderID uuid.UUID) (*Shipment, error) {
	query := `
		SELECT id, order_id, carrier, tracking_number, status, created_at, updated_at
		FROM shipments
		WHERE order_id = $1
	`

	var s Shipment
	var status string

	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&s.ID,
		&s.OrderID,
		&s.Carrier,
		&s.TrackingNumber,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select shipment for order %s: %w", orderID, err)
	}
	s.Status = Status(status)

	eventsQuery := `
		SELECT id, shipment_id, at, code, note
		FROM shipment_events
		WHERE shipment_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, eventsQuery, s.ID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query events for shipment %s: %w", s.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.ShipmentID, &e.At, &e.Code, &e.Note); err != nil {
			return nil, fmt.Errorf("repository: failed to scan event for shipment %s: %w", s.ID, err)
		}
		s.Events = append(s.Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating events for shipment %s: %w", s.ID, err)
	}

	return &s, nil
}

func (r *postgresRepository) AppendEvent(ctx context.Context, shipmentID uuid.UUID, code, note string, advance *Status) (*Shipment, error) {
	now := time.Now().UTC()

	var orderID uuid.UUID
	if advance != nil {
		query := `
			UPDATE shipments
			SET status = $1, updated_at = $2
			WHERE id = $3
			RETURNING order_id
		`
		err := r.db.QueryRow(ctx, query, string(*advance), now, shipmentID).Scan(&orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("repository: failed to advance shipment %s: %w", shipmentID, err)
		}
	} else {
		query := `SELECT order_id FROM shipments WHERE id = $1`
		err := r.db.QueryRow(ctx, query, shipmentID).Scan(&orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("repository: failed to select shipment %s: %w", shipmentID, err)
		}
	}

	eventQuery := `
		INSERT INTO shipment_events (shipment_id, at, code, note)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Exec(ctx, eventQuery, shipmentID, now, code, note); err != nil {
		return nil, fmt.Errorf("repository: failed to append event to shipment %s: %w", shipmentID, err)
	}

	return r.GetByOrder(ctx, orderID)
}
