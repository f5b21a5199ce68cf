package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepository interface {
	// CreatePending inserts a pending_payment booking. If a booking already
	// references the same reservation, that booking is returned instead.
	CreatePending(ctx context.Context, booking *domain.Booking) (*domain.Booking, error)
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByReservation(ctx context.Context, reservationID string) (*domain.Booking, error)
	ConfirmPayment(ctx context.Context, id string, amount int64, paidAt time.Time) (*domain.Booking, error)
	AddCallAttempt(ctx context.Context, id string, attempt domain.CallAttempt, status domain.BookingStatus) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id string, from []domain.BookingStatus, to domain.BookingStatus, reason string) (*domain.Booking, error)
	ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, requester_id, provider_id, reservation_id, slot_date, slot_minute, slot_start, slot_end, timezone, status, amount_paid, paid_at, hold_expires_at, cancel_reason, created_at, updated_at`

func (r *PGBookingRepository) CreatePending(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	booking.Status = domain.BookingStatusPendingPayment
	created, err := scanBooking(r.db.QueryRow(ctx, `INSERT INTO bookings (id, requester_id, provider_id, reservation_id, slot_date, slot_minute, slot_start, slot_end, timezone, status, hold_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (reservation_id) DO NOTHING
		RETURNING `+bookingColumns,
		booking.ID, booking.RequesterID, booking.ProviderID, booking.ReservationID, booking.Date.Time(), int16(booking.Time),
		booking.WindowStart, booking.WindowEnd, booking.Timezone, booking.Status, booking.HoldExpiresAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetByReservation(ctx, booking.ReservationID)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(ctx, r.db, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
}

// GetByReservation returns (nil, nil) when no booking references the reservation.
func (r *PGBookingRepository) GetByReservation(ctx context.Context, reservationID string) (*domain.Booking, error) {
	b, err := r.get(ctx, r.db, `SELECT `+bookingColumns+` FROM bookings WHERE reservation_id=$1`, reservationID)
	if errors.Is(err, domain.ErrBookingNotFound) {
		return nil, nil
	}
	return b, err
}

// ConfirmPayment moves a pending booking to booked and drops its reservation
// in one transaction. Losing the race on the confirmed-slot index yields
// ErrSlotNoLongerAvailable.
func (r *PGBookingRepository) ConfirmPayment(ctx context.Context, id string, amount int64, paidAt time.Time) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var reservationID *string
	err = tx.QueryRow(ctx, `UPDATE bookings SET status=$2, amount_paid=$3, paid_at=$4, updated_at=now()
		WHERE id=$1 AND status=$5
		RETURNING reservation_id`,
		id, domain.BookingStatusBooked, amount, paidAt, domain.BookingStatusPendingPayment).Scan(&reservationID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("%w: booking %s is no longer pending payment", domain.ErrPaymentNotConfirmed, id)
	case isUniqueViolation(err):
		return nil, fmt.Errorf("%w: booking %s", domain.ErrSlotNoLongerAvailable, id)
	case err != nil:
		return nil, err
	}

	if reservationID != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM reservations WHERE id=$1`, *reservationID); err != nil {
			return nil, err
		}
	}

	b, err := r.get(ctx, tx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return b, tx.Commit(ctx)
}

// AddCallAttempt records attempt and, when status is not empty, moves the
// booking to status. The (booking_id, number) key rejects a concurrent
// logger recording the same attempt number.
func (r *PGBookingRepository) AddCallAttempt(ctx context.Context, id string, attempt domain.CallAttempt, status domain.BookingStatus) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO booking_call_attempts (booking_id, number, answered, notes, attempted_at) VALUES ($1, $2, $3, $4, $5)`,
		id, attempt.Number, attempt.Answered, attempt.Notes, attempt.AttemptedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: call attempt %d already recorded", domain.ErrInvalidTransition, attempt.Number)
	}
	if err != nil {
		return nil, err
	}

	if status != "" {
		tag, err := tx.Exec(ctx, `UPDATE bookings SET status=$2, updated_at=now() WHERE id=$1 AND status = ANY($3)`,
			id, status, []string{string(domain.BookingStatusBooked), string(domain.BookingStatusInProgress)})
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("%w: booking %s changed concurrently", domain.ErrInvalidTransition, id)
		}
	}

	b, err := r.get(ctx, tx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return b, tx.Commit(ctx)
}

// UpdateStatus applies to only if the booking is currently in one of from.
func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id string, from []domain.BookingStatus, to domain.BookingStatus, reason string) (*domain.Booking, error) {
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	b, err := scanBooking(r.db.QueryRow(ctx, `UPDATE bookings SET status=$2, cancel_reason=$3, updated_at=now()
		WHERE id=$1 AND status = ANY($4)
		RETURNING `+bookingColumns, id, to, reason, allowed))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking %s cannot move to %s", domain.ErrInvalidTransition, id, to)
	}
	if err != nil {
		return nil, err
	}
	if b.CallAttempts, err = listCallAttempts(ctx, r.db, id); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *PGBookingRepository) ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `UPDATE bookings SET status=$1, cancel_reason=$2, updated_at=now()
		WHERE status=$3 AND hold_expires_at <= $4
		RETURNING `+bookingColumns,
		domain.BookingStatusCancelled, domain.CancelReasonReservationExpired, domain.BookingStatusPendingPayment, deadline)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) get(ctx context.Context, q querier, sql string, arg any) (*domain.Booking, error) {
	b, err := scanBooking(q.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", domain.ErrBookingNotFound, arg)
	}
	if err != nil {
		return nil, err
	}
	if b.CallAttempts, err = listCallAttempts(ctx, q, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

// listOccupyingBookings mirrors Booking.OccupiesSlotAt: pending bookings
// whose hold lapsed at now are left out.
func listOccupyingBookings(ctx context.Context, q querier, from, to, now time.Time) ([]domain.Booking, error) {
	rows, err := q.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status <> $1 AND slot_start >= $2 AND slot_start < $3
		AND NOT (status = $4 AND hold_expires_at <= $5)`,
		domain.BookingStatusCancelled, from, to, domain.BookingStatusPendingPayment, now)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func listCallAttempts(ctx context.Context, q querier, bookingID string) ([]domain.CallAttempt, error) {
	rows, err := q.Query(ctx, `SELECT number, answered, notes, attempted_at FROM booking_call_attempts WHERE booking_id=$1 ORDER BY number`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]domain.CallAttempt, 0)
	for rows.Next() {
		var a domain.CallAttempt
		if err := rows.Scan(&a.Number, &a.Answered, &a.Notes, &a.AttemptedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b             domain.Booking
		reservationID *string
		date          time.Time
		minute        int16
	)
	if err := row.Scan(&b.ID, &b.RequesterID, &b.ProviderID, &reservationID, &date, &minute, &b.WindowStart, &b.WindowEnd,
		&b.Timezone, &b.Status, &b.AmountPaid, &b.PaidAt, &b.HoldExpiresAt, &b.CancelReason, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if reservationID != nil {
		b.ReservationID = *reservationID
	}
	b.Date = domain.DateOf(date)
	b.Time = domain.TimeOfDay(minute)
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
