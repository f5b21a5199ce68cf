package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/teleconsult/internal/cache"
	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/Domenick1991/teleconsult/internal/repository"
	"github.com/Domenick1991/teleconsult/internal/schedule"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AvailabilityUseCase interface {
	CreateBlock(ctx context.Context, input CreateBlockInput) (*domain.AvailabilityBlock, error)
	ListBlocks(ctx context.Context, providerID string) ([]domain.AvailabilityBlock, error)
	DeactivateBlock(ctx context.Context, providerID, blockID string) (*domain.AvailabilityBlock, error)
	ListAvailableSlots(ctx context.Context, date domain.Date) ([]domain.TimeSlot, error)
}

// GridCache stores per-block grids. Occupancy is never cached.
type GridCache interface {
	GetGrids(ctx context.Context, keys []string) (map[string][]domain.TimeSlot, error)
	SetGrids(ctx context.Context, grids map[string][]domain.TimeSlot) error
}

type ReservationPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type CreateBlockInput struct {
	ProviderID   string
	Kind         domain.BlockKind
	DayOfWeek    *int
	SpecificDate *domain.Date
	Start        domain.TimeOfDay
	End          domain.TimeOfDay
	Timezone     string
	MaxBookings  int
}

type Service struct {
	blocks       repository.AvailabilityRepository
	snapshots    repository.SnapshotRepository
	reservations ReservationPurger
	cache        GridCache
	step         time.Duration
	display      *time.Location
	now          func() time.Time
	log          *zap.Logger
}

type Option func(*Service)

func WithGridCache(c GridCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(
	blocks repository.AvailabilityRepository,
	snapshots repository.SnapshotRepository,
	reservations ReservationPurger,
	step time.Duration,
	display *time.Location,
	log *zap.Logger,
	opts ...Option,
) *Service {
	if step <= 0 {
		step = schedule.DefaultStep
	}
	if display == nil {
		display = time.UTC
	}
	s := &Service{
		blocks:       blocks,
		snapshots:    snapshots,
		reservations: reservations,
		step:         step,
		display:      display,
		now:          time.Now,
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateBlock(ctx context.Context, input CreateBlockInput) (*domain.AvailabilityBlock, error) {
	if input.ProviderID == "" {
		return nil, fmt.Errorf("%w: provider is required", domain.ErrInvalidInput)
	}

	block := &domain.AvailabilityBlock{
		ID:           uuid.NewString(),
		ProviderID:   input.ProviderID,
		Kind:         input.Kind,
		SpecificDate: input.SpecificDate,
		Start:        input.Start,
		End:          input.End,
		Timezone:     input.Timezone,
		IsActive:     true,
		MaxBookings:  input.MaxBookings,
	}
	if input.DayOfWeek != nil {
		wd := time.Weekday(*input.DayOfWeek)
		block.DayOfWeek = &wd
	}
	if block.Kind == domain.BlockKindBlocked {
		block.MaxBookings = 0
	}

	if err := block.Validate(); err != nil {
		return nil, err
	}
	if _, err := block.Location(); err != nil {
		return nil, err
	}

	if err := s.blocks.Create(ctx, block); err != nil {
		return nil, err
	}
	s.log.Info("availability block created",
		zap.String("block_id", block.ID),
		zap.String("provider_id", block.ProviderID),
		zap.String("kind", string(block.Kind)),
	)
	return block, nil
}

func (s *Service) ListBlocks(ctx context.Context, providerID string) ([]domain.AvailabilityBlock, error) {
	return s.blocks.ListByProvider(ctx, providerID)
}

// DeactivateBlock keeps the row for audit; the version bump orphans any
// cached grid for it.
func (s *Service) DeactivateBlock(ctx context.Context, providerID, blockID string) (*domain.AvailabilityBlock, error) {
	return s.blocks.Deactivate(ctx, providerID, blockID)
}

// ListAvailableSlots purges expired holds, reads one snapshot for date and
// runs the slot pipeline over it in memory.
func (s *Service) ListAvailableSlots(ctx context.Context, date domain.Date) ([]domain.TimeSlot, error) {
	now := s.now()

	if s.reservations != nil {
		if _, err := s.reservations.PurgeExpired(ctx, now); err != nil {
			s.log.Warn("purge expired reservations", zap.Error(err))
		}
	}

	snap, err := s.snapshots.LoadSlotSnapshot(ctx, date, now)
	if err != nil {
		return nil, fmt.Errorf("load slot snapshot: %w", err)
	}

	opts := schedule.AggregateOptions{Step: s.step, Display: s.display}
	var fresh map[string][]domain.TimeSlot
	if s.cache != nil {
		opts.Grid, fresh = s.cachedGrid(ctx, date, snap.Blocks)
	}

	slots, err := schedule.Available(date, *snap, opts)
	if err != nil {
		return nil, err
	}

	if len(fresh) > 0 {
		if err := s.cache.SetGrids(ctx, fresh); err != nil {
			s.log.Warn("store grids", zap.Error(err))
		}
	}
	return slots, nil
}

// cachedGrid prefetches every grid the snapshot needs and returns a GridFunc
// that serves from the prefetch, recording misses into the returned map.
func (s *Service) cachedGrid(ctx context.Context, date domain.Date, blocks []domain.AvailabilityBlock) (schedule.GridFunc, map[string][]domain.TimeSlot) {
	keys := make(map[string]string, len(blocks))
	all := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Kind == domain.BlockKindBlocked || !b.ActiveOn(date) {
			continue
		}
		k := cache.GridKey(b, date, s.step)
		keys[b.ID] = k
		all = append(all, k)
	}

	cached, err := s.cache.GetGrids(ctx, all)
	if err != nil {
		s.log.Warn("load cached grids", zap.Error(err))
		cached = nil
	}

	fresh := make(map[string][]domain.TimeSlot)
	grid := func(w schedule.Window, step time.Duration) ([]domain.TimeSlot, error) {
		key, ok := keys[w.BlockID]
		if !ok {
			return schedule.GenerateGrid(w, step)
		}
		if slots, ok := cached[key]; ok {
			return slots, nil
		}
		slots, err := schedule.GenerateGrid(w, step)
		if err != nil {
			return nil, err
		}
		fresh[key] = slots
		return slots, nil
	}
	return grid, fresh
}

var _ AvailabilityUseCase = (*Service)(nil)
