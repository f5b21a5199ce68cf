package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/Domenick1991/teleconsult/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultTTL = 10 * time.Minute

// ReservationUseCase holds slots while a requester pays.
//
// Create does not check for an existing hold on the same provider and
// instant. Two requesters racing for one free slot can both hold it; the
// bookings_confirmed_slot_uniq index rejects the second payment
// confirmation. WithStrictLock closes the window at reserve time instead.
type ReservationUseCase interface {
	Create(ctx context.Context, input CreateInput) (*domain.Reservation, error)
	Get(ctx context.Context, id string) (*domain.Reservation, error)
	Release(ctx context.Context, id string) error
	ListActive(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Locker is the optional reserve-time exclusive lock.
type Locker interface {
	AcquireSlotLock(ctx context.Context, providerID string, start time.Time, owner string, ttl time.Duration) (bool, error)
	ReleaseSlotLock(ctx context.Context, providerID string, start time.Time, owner string) error
}

type CreateInput struct {
	RequesterID string
	ProviderID  string
	Date        domain.Date
	Time        domain.TimeOfDay
	StartsAt    time.Time
	Timezone    string
}

type Manager struct {
	repo   repository.ReservationRepository
	locker Locker
	ttl    time.Duration
	now    func() time.Time
	log    *zap.Logger
}

type Option func(*Manager)

func WithStrictLock(l Locker) Option {
	return func(m *Manager) {
		m.locker = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(repo repository.ReservationRepository, ttl time.Duration, log *zap.Logger, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
		log:  log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Create(ctx context.Context, input CreateInput) (*domain.Reservation, error) {
	if input.RequesterID == "" || input.ProviderID == "" {
		return nil, fmt.Errorf("%w: requester and provider are required", domain.ErrInvalidInput)
	}

	now := m.now()
	res := &domain.Reservation{
		ID:          uuid.NewString(),
		RequesterID: input.RequesterID,
		ProviderID:  input.ProviderID,
		Date:        input.Date,
		Time:        input.Time,
		StartsAt:    input.StartsAt.UTC(),
		Timezone:    input.Timezone,
		ExpiresAt:   now.Add(m.ttl),
	}

	if m.locker != nil {
		ok, err := m.locker.AcquireSlotLock(ctx, res.ProviderID, res.StartsAt, res.ID, m.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire slot lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s at %s %s is held by another requester", domain.ErrSlotNoLongerAvailable, res.ProviderID, res.Date, res.Time)
		}
	}

	if err := m.repo.Create(ctx, res); err != nil {
		if m.locker != nil {
			_ = m.locker.ReleaseSlotLock(ctx, res.ProviderID, res.StartsAt, res.ID)
		}
		return nil, err
	}

	m.log.Info("reservation created",
		zap.String("reservation_id", res.ID),
		zap.String("provider_id", res.ProviderID),
		zap.Time("starts_at", res.StartsAt),
		zap.Time("expires_at", res.ExpiresAt),
	)
	return res, nil
}

// Get returns ErrReservationExpired for reservations that are gone or past
// their TTL; a purged reservation cannot be told apart from an unknown id.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	res, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil || !res.ActiveAt(m.now()) {
		return nil, fmt.Errorf("%w: %s", domain.ErrReservationExpired, id)
	}
	return res, nil
}

// Release is idempotent.
func (m *Manager) Release(ctx context.Context, id string) error {
	if m.locker != nil {
		res, err := m.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if res != nil {
			if err := m.locker.ReleaseSlotLock(ctx, res.ProviderID, res.StartsAt, res.ID); err != nil {
				m.log.Warn("release slot lock", zap.String("reservation_id", id), zap.Error(err))
			}
		}
	}
	return m.repo.Delete(ctx, id)
}

// ListActive returns holds still active at now. Expired rows are purged on
// the way; a failed purge does not fail the listing.
//
// Slot listing does not go through here. It purges with PurgeExpired and
// reads holds inside its snapshot transaction with the same expiry predicate
// as the repository's ListActive, so the two never disagree. This method
// serves callers that want the holds themselves, such as consultctl.
func (m *Manager) ListActive(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	if _, err := m.PurgeExpired(ctx, now); err != nil {
		m.log.Warn("purge expired reservations", zap.Error(err))
	}
	return m.repo.ListActive(ctx, now)
}

func (m *Manager) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := m.repo.PurgeExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.Debug("purged expired reservations", zap.Int64("count", n))
	}
	return n, nil
}

var _ ReservationUseCase = (*Manager)(nil)
