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

type AvailabilityRepository interface {
	Create(ctx context.Context, block *domain.AvailabilityBlock) error
	GetByID(ctx context.Context, id string) (*domain.AvailabilityBlock, error)
	ListByProvider(ctx context.Context, providerID string) ([]domain.AvailabilityBlock, error)
	ListActiveForDate(ctx context.Context, date domain.Date) ([]domain.AvailabilityBlock, error)
	Deactivate(ctx context.Context, providerID, id string) (*domain.AvailabilityBlock, error)
}

type PGAvailabilityRepository struct {
	db *pgxpool.Pool
}

func NewAvailabilityRepository(db *pgxpool.Pool) AvailabilityRepository {
	return &PGAvailabilityRepository{db: db}
}

const blockColumns = `id, provider_id, kind, day_of_week, specific_date, start_minute, end_minute, timezone, is_active, max_bookings, created_at, updated_at`

func (r *PGAvailabilityRepository) Create(ctx context.Context, block *domain.AvailabilityBlock) error {
	var day *int16
	if block.DayOfWeek != nil {
		d := int16(*block.DayOfWeek)
		day = &d
	}
	var specific *time.Time
	if block.SpecificDate != nil {
		t := block.SpecificDate.Time()
		specific = &t
	}

	return r.db.QueryRow(ctx, `INSERT INTO availability_blocks (id, provider_id, kind, day_of_week, specific_date, start_minute, end_minute, timezone, is_active, max_bookings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		block.ID, block.ProviderID, block.Kind, day, specific, int16(block.Start), int16(block.End), block.Timezone, block.IsActive, block.MaxBookings).
		Scan(&block.CreatedAt, &block.UpdatedAt)
}

func (r *PGAvailabilityRepository) GetByID(ctx context.Context, id string) (*domain.AvailabilityBlock, error) {
	b, err := scanBlock(r.db.QueryRow(ctx, `SELECT `+blockColumns+` FROM availability_blocks WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlockNotFound, id)
	}
	return b, err
}

func (r *PGAvailabilityRepository) ListByProvider(ctx context.Context, providerID string) ([]domain.AvailabilityBlock, error) {
	rows, err := r.db.Query(ctx, `SELECT `+blockColumns+` FROM availability_blocks WHERE provider_id=$1 ORDER BY created_at`, providerID)
	if err != nil {
		return nil, err
	}
	return collectBlocks(rows)
}

func (r *PGAvailabilityRepository) ListActiveForDate(ctx context.Context, date domain.Date) ([]domain.AvailabilityBlock, error) {
	return listActiveBlocks(ctx, r.db, date)
}

func (r *PGAvailabilityRepository) Deactivate(ctx context.Context, providerID, id string) (*domain.AvailabilityBlock, error) {
	b, err := scanBlock(r.db.QueryRow(ctx, `UPDATE availability_blocks SET is_active=false, updated_at=now()
		WHERE id=$1 AND provider_id=$2
		RETURNING `+blockColumns, id, providerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBlockNotFound, id)
	}
	return b, err
}

func listActiveBlocks(ctx context.Context, q querier, date domain.Date) ([]domain.AvailabilityBlock, error) {
	rows, err := q.Query(ctx, `SELECT `+blockColumns+` FROM availability_blocks
		WHERE is_active AND ((kind = 'recurring' AND day_of_week = $1) OR (kind <> 'recurring' AND specific_date = $2))
		ORDER BY provider_id, start_minute`, int16(date.Weekday()), date.Time())
	if err != nil {
		return nil, err
	}
	return collectBlocks(rows)
}

func collectBlocks(rows pgx.Rows) ([]domain.AvailabilityBlock, error) {
	defer rows.Close()

	blocks := make([]domain.AvailabilityBlock, 0)
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}

func scanBlock(row pgx.Row) (*domain.AvailabilityBlock, error) {
	var (
		b          domain.AvailabilityBlock
		day        *int16
		specific   *time.Time
		start, end int16
	)
	if err := row.Scan(&b.ID, &b.ProviderID, &b.Kind, &day, &specific, &start, &end, &b.Timezone, &b.IsActive, &b.MaxBookings, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if day != nil {
		wd := time.Weekday(*day)
		b.DayOfWeek = &wd
	}
	if specific != nil {
		d := domain.DateOf(*specific)
		b.SpecificDate = &d
	}
	b.Start, b.End = domain.TimeOfDay(start), domain.TimeOfDay(end)
	return &b, nil
}

var _ AvailabilityRepository = (*PGAvailabilityRepository)(nil)
