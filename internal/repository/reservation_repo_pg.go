package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReservationRepository stores slot holds. There is deliberately no unique
// constraint on the slot: see the bookings_confirmed_slot_uniq index.
type ReservationRepository interface {
	Create(ctx context.Context, reservation *domain.Reservation) error
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)
	Delete(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.Reservation, error)
}

type PGReservationRepository struct {
	db *pgxpool.Pool
}

func NewReservationRepository(db *pgxpool.Pool) ReservationRepository {
	return &PGReservationRepository{db: db}
}

const reservationColumns = `id, requester_id, provider_id, slot_date, slot_minute, slot_start, timezone, expires_at, created_at`

func (r *PGReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	return r.db.QueryRow(ctx, `INSERT INTO reservations (id, requester_id, provider_id, slot_date, slot_minute, slot_start, timezone, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		res.ID, res.RequesterID, res.ProviderID, res.Date.Time(), int16(res.Time), res.StartsAt, res.Timezone, res.ExpiresAt).
		Scan(&res.CreatedAt)
}

// GetByID returns (nil, nil) when the reservation does not exist.
func (r *PGReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *PGReservationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM reservations WHERE id=$1`, id)
	return err
}

func (r *PGReservationRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reservations WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// activeReservation selects holds still running at $1. Slot snapshots use it
// too, so both views agree on which holds count.
const activeReservation = `expires_at > $1`

func (r *PGReservationRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE `+activeReservation+` ORDER BY slot_start, created_at`, now)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func collectReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()

	reservations := make([]domain.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, *res)
	}
	return reservations, rows.Err()
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var (
		res    domain.Reservation
		date   time.Time
		minute int16
	)
	if err := row.Scan(&res.ID, &res.RequesterID, &res.ProviderID, &date, &minute, &res.StartsAt, &res.Timezone, &res.ExpiresAt, &res.CreatedAt); err != nil {
		return nil, err
	}
	res.Date = domain.DateOf(date)
	res.Time = domain.TimeOfDay(minute)
	return &res, nil
}

var _ ReservationRepository = (*PGReservationRepository)(nil)
