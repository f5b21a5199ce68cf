package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository reads everything slot listing needs for one date from a
// single REPEATABLE READ transaction, so blocks, bookings and reservations
// all reflect the same point in time.
type SnapshotRepository interface {
	LoadSlotSnapshot(ctx context.Context, date domain.Date, now time.Time) (*domain.SlotSnapshot, error)
}

type PGSnapshotRepository struct {
	db *pgxpool.Pool
}

func NewSnapshotRepository(db *pgxpool.Pool) SnapshotRepository {
	return &PGSnapshotRepository{db: db}
}

func (r *PGSnapshotRepository) LoadSlotSnapshot(ctx context.Context, date domain.Date, now time.Time) (*domain.SlotSnapshot, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	blocks, err := listActiveBlocks(ctx, tx, date)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}

	from, to := occupancyRange(date.Time())
	bookings, err := listOccupyingBookings(ctx, tx, from, to, now)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
		WHERE `+activeReservation+` AND slot_start >= $2 AND slot_start < $3`, now, from, to)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	reservations, err := collectReservations(rows)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &domain.SlotSnapshot{
		Blocks:       blocks,
		Bookings:     bookings,
		Reservations: reservations,
		TakenAt:      now,
	}, nil
}

var _ SnapshotRepository = (*PGSnapshotRepository)(nil)
