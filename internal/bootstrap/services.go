package bootstrap

import (
	"github.com/Domenick1991/teleconsult/config"
	"github.com/Domenick1991/teleconsult/internal/cache"
	"github.com/Domenick1991/teleconsult/internal/repository"
	"github.com/Domenick1991/teleconsult/internal/service/availability"
	"github.com/Domenick1991/teleconsult/internal/service/booking"
	"github.com/Domenick1991/teleconsult/internal/service/reservation"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Services struct {
	Reservations *reservation.Manager
	Availability *availability.Service
	Bookings     *booking.BookingService
}

// NewServices wires repositories and use cases. redisCache and producer may
// be nil, in which case grid caching, the strict reserve lock and event
// publishing are off.
func NewServices(cfg *config.Config, pool *pgxpool.Pool, redisCache *cache.RedisCache, producer booking.Producer, log *zap.Logger) (*Services, error) {
	display, err := cfg.Booking.DisplayLocation()
	if err != nil {
		return nil, err
	}

	var resOpts []reservation.Option
	var availOpts []availability.Option
	if redisCache != nil {
		availOpts = append(availOpts, availability.WithGridCache(redisCache))
		if cfg.Booking.StrictReserveLock {
			resOpts = append(resOpts, reservation.WithStrictLock(redisCache))
		}
	}

	reservations := reservation.NewManager(
		repository.NewReservationRepository(pool),
		cfg.Booking.ReservationTTL(),
		log.Named("reservation"),
		resOpts...,
	)
	availabilityService := availability.NewService(
		repository.NewAvailabilityRepository(pool),
		repository.NewSnapshotRepository(pool),
		reservations,
		cfg.Booking.SlotStep(),
		display,
		log.Named("availability"),
		availOpts...,
	)
	bookingService := booking.NewBookingService(
		repository.NewBookingRepository(pool),
		availabilityService,
		reservations,
		producer,
		cfg.Kafka.BookingTopic,
		cfg.Booking.SlotStep(),
		log.Named("booking"),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithMaxCallAttempts(cfg.Booking.MaxCallAttempts),
	)

	return &Services{
		Reservations: reservations,
		Availability: availabilityService,
		Bookings:     bookingService,
	}, nil
}
