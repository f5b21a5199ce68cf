package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/Domenick1991/teleconsult/internal/kafka"
	"github.com/Domenick1991/teleconsult/internal/repository"
	"github.com/Domenick1991/teleconsult/internal/service/reservation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMaxCallAttempts = 3

type BookingUseCase interface {
	ReserveSlot(ctx context.Context, input ReserveSlotInput) (*domain.Reservation, error)
	ReleaseReservation(ctx context.Context, reservationID string) error
	CreateBooking(ctx context.Context, reservationID string) (*domain.Booking, error)
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	ConfirmPayment(ctx context.Context, id string, amount int64) (*domain.Booking, error)
	LogCallAttempt(ctx context.Context, id string, answered bool, notes string) (*domain.Booking, error)
	MarkNoAnswer(ctx context.Context, id string) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, id string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id string) (*domain.Booking, error)
	ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error)
}

type SlotLister interface {
	ListAvailableSlots(ctx context.Context, date domain.Date) ([]domain.TimeSlot, error)
}

type Reservations interface {
	Create(ctx context.Context, input reservation.CreateInput) (*domain.Reservation, error)
	Get(ctx context.Context, id string) (*domain.Reservation, error)
	Release(ctx context.Context, id string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type BookingService struct {
	bookings           repository.BookingRepository
	slots              SlotLister
	reservations       Reservations
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	slotLength         time.Duration
	maxAttempts        int
	now                func() time.Time
	log                *zap.Logger
}

type ReserveSlotInput struct {
	RequesterID string           `json:"requester_id"`
	ProviderID  string           `json:"provider_id"`
	Date        domain.Date      `json:"date"`
	Time        domain.TimeOfDay `json:"time"`
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithMaxCallAttempts(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	slots SlotLister,
	reservations Reservations,
	producer Producer,
	bookingTopic string,
	slotLength time.Duration,
	log *zap.Logger,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		slots:        slots,
		reservations: reservations,
		producer:     producer,
		bookingTopic: bookingTopic,
		slotLength:   slotLength,
		maxAttempts:  DefaultMaxCallAttempts,
		now:          time.Now,
		log:          log,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// ReserveSlot re-runs the slot listing around the date and holds the slot
// only if the provider is still free there. Date and Time are the labels the
// listing showed, in the display zone.
func (s *BookingService) ReserveSlot(ctx context.Context, input ReserveSlotInput) (*domain.Reservation, error) {
	if input.RequesterID == "" || input.ProviderID == "" {
		return nil, fmt.Errorf("%w: requester_id and provider_id are required", domain.ErrInvalidInput)
	}
	if input.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", domain.ErrInvalidInput)
	}

	chosen, err := s.findSlot(ctx, input)
	if err != nil {
		return nil, err
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: %s at %s %s", domain.ErrSlotNoLongerAvailable, input.ProviderID, input.Date, input.Time)
	}

	res, err := s.reservations.Create(ctx, reservation.CreateInput{
		RequesterID: input.RequesterID,
		ProviderID:  input.ProviderID,
		Date:        chosen.Date,
		Time:        chosen.Time,
		StartsAt:    chosen.UTC,
		Timezone:    chosen.Timezone,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, kafka.BookingEvent{
		Type:        kafka.EventReservationCreated,
		RequesterID: res.RequesterID,
		ProviderID:  res.ProviderID,
		Date:        res.Date.String(),
		Time:        res.Time.String(),
		StartsAt:    res.StartsAt,
		Timezone:    res.Timezone,
	}, res.ID)
	return res, nil
}

// findSlot looks the labelled slot up in the listing for its own date and
// then for the neighbouring dates, because slots are labelled in the display
// zone and a provider's evening can carry the next day's label.
func (s *BookingService) findSlot(ctx context.Context, input ReserveSlotInput) (*domain.TimeSlot, error) {
	for _, date := range []domain.Date{input.Date, input.Date.AddDays(-1), input.Date.AddDays(1)} {
		slots, err := s.slots.ListAvailableSlots(ctx, date)
		if err != nil {
			return nil, err
		}
		for i := range slots {
			if slots[i].Date == input.Date && slots[i].Time == input.Time && slots[i].HasProvider(input.ProviderID) {
				return &slots[i], nil
			}
		}
	}
	return nil, nil
}

func (s *BookingService) ReleaseReservation(ctx context.Context, reservationID string) error {
	return s.reservations.Release(ctx, reservationID)
}

// CreateBooking attaches a pending_payment booking to an active
// reservation. Calling it again for the same reservation returns the
// booking created the first time.
func (s *BookingService) CreateBooking(ctx context.Context, reservationID string) (*domain.Booking, error) {
	if reservationID == "" {
		return nil, fmt.Errorf("%w: reservation_id is required", domain.ErrInvalidInput)
	}

	existing, err := s.bookings.GetByReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	res, err := s.reservations.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	booking, err := s.bookings.CreatePending(ctx, &domain.Booking{
		ID:            uuid.NewString(),
		RequesterID:   res.RequesterID,
		ProviderID:    res.ProviderID,
		ReservationID: res.ID,
		Date:          res.Date,
		Time:          res.Time,
		WindowStart:   res.StartsAt,
		WindowEnd:     res.StartsAt.Add(s.slotLength),
		Timezone:      res.Timezone,
		HoldExpiresAt: res.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	s.publishBooking(ctx, kafka.EventBookingCreated, booking)
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

// ConfirmPayment is called once the payment collaborator reports success.
// If another booking for the same slot was confirmed first, this booking is
// cancelled and ErrSlotNoLongerAvailable is returned.
func (s *BookingService) ConfirmPayment(ctx context.Context, id string, amount int64) (*domain.Booking, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", domain.ErrInvalidInput)
	}

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusPendingPayment {
		return nil, fmt.Errorf("%w: booking %s is %s", domain.ErrPaymentNotConfirmed, id, current.Status)
	}

	now := s.now()
	if !now.Before(current.HoldExpiresAt) {
		s.abandon(ctx, current, domain.CancelReasonReservationExpired, kafka.EventBookingExpired)
		return nil, fmt.Errorf("%w: hold on booking %s lapsed at %s", domain.ErrReservationExpired, id, current.HoldExpiresAt.Format(time.RFC3339))
	}

	updated, err := s.bookings.ConfirmPayment(ctx, id, amount, now)
	if err != nil {
		if errors.Is(err, domain.ErrSlotNoLongerAvailable) {
			s.abandon(ctx, current, domain.CancelReasonSlotTaken, kafka.EventBookingCancelled)
		}
		return nil, err
	}

	s.publishBooking(ctx, kafka.EventBookingConfirmed, updated)
	return updated, nil
}

// abandon cancels a pending booking that can no longer be confirmed.
// Failures are logged; the caller already has the error to report.
func (s *BookingService) abandon(ctx context.Context, b *domain.Booking, reason, eventType string) {
	cancelled, err := s.bookings.UpdateStatus(ctx, b.ID,
		[]domain.BookingStatus{domain.BookingStatusPendingPayment}, domain.BookingStatusCancelled, reason)
	if err != nil {
		s.log.Warn("cancel unconfirmable booking", zap.String("booking_id", b.ID), zap.Error(err))
		return
	}
	s.releaseHold(ctx, b)
	s.publishBooking(ctx, eventType, cancelled)
}

func (s *BookingService) LogCallAttempt(ctx context.Context, id string, answered bool, notes string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(current.CallAttempts) >= s.maxAttempts {
		return nil, fmt.Errorf("%w: booking %s already has %d attempts", domain.ErrMaxAttemptsReached, id, len(current.CallAttempts))
	}
	if current.Status != domain.BookingStatusBooked && current.Status != domain.BookingStatusInProgress {
		return nil, fmt.Errorf("%w: cannot log a call on a %s booking", domain.ErrInvalidTransition, current.Status)
	}

	attempt := domain.CallAttempt{
		Number:      len(current.CallAttempts) + 1,
		Answered:    answered,
		Notes:       notes,
		AttemptedAt: s.now(),
	}
	var next domain.BookingStatus
	if answered && current.Status == domain.BookingStatusBooked {
		next = domain.BookingStatusInProgress
	}

	updated, err := s.bookings.AddCallAttempt(ctx, id, attempt, next)
	if err != nil {
		return nil, err
	}

	event := s.bookingEvent(kafka.EventCallAttemptLogged, updated)
	event.Attempt = attempt.Number
	s.publish(ctx, event, updated.ID)
	return updated, nil
}

// MarkNoAnswer closes a booked consultation after every allowed call
// attempt went unanswered.
func (s *BookingService) MarkNoAnswer(ctx context.Context, id string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() || current.Status == domain.BookingStatusPendingPayment {
		return nil, fmt.Errorf("%w: booking %s is %s", domain.ErrInvalidTransition, id, current.Status)
	}
	unanswered := current.UnansweredAttempts()
	if current.Status != domain.BookingStatusBooked || unanswered < s.maxAttempts || unanswered != len(current.CallAttempts) {
		return nil, fmt.Errorf("%w: %d of %d required unanswered attempts", domain.ErrInsufficientAttempts, unanswered, s.maxAttempts)
	}

	updated, err := s.bookings.UpdateStatus(ctx, id,
		[]domain.BookingStatus{domain.BookingStatusBooked}, domain.BookingStatusNoAnswer, "")
	if err != nil {
		return nil, err
	}
	s.publishBooking(ctx, kafka.EventBookingNoAnswer, updated)
	return updated, nil
}

// CompleteBooking is triggered by the clinical workflow once a prescription
// decision is recorded.
func (s *BookingService) CompleteBooking(ctx context.Context, id string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusInProgress {
		return nil, fmt.Errorf("%w: cannot complete a %s booking", domain.ErrInvalidTransition, current.Status)
	}

	updated, err := s.bookings.UpdateStatus(ctx, id,
		[]domain.BookingStatus{domain.BookingStatusInProgress}, domain.BookingStatusCompleted, "")
	if err != nil {
		return nil, err
	}
	s.publishBooking(ctx, kafka.EventBookingCompleted, updated)
	return updated, nil
}

// CancelBooking is idempotent: cancelling a cancelled booking returns it
// unchanged.
func (s *BookingService) CancelBooking(ctx context.Context, id string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.BookingStatusCancelled {
		return current, nil
	}
	if current.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot cancel a %s booking", domain.ErrInvalidTransition, current.Status)
	}

	updated, err := s.bookings.UpdateStatus(ctx, id,
		[]domain.BookingStatus{domain.BookingStatusPendingPayment, domain.BookingStatusBooked, domain.BookingStatusInProgress},
		domain.BookingStatusCancelled, domain.CancelReasonRequested)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			if latest, getErr := s.bookings.GetByID(ctx, id); getErr == nil && latest.Status == domain.BookingStatusCancelled {
				return latest, nil
			}
		}
		return nil, err
	}

	if current.Status == domain.BookingStatusPendingPayment {
		s.releaseHold(ctx, current)
	}
	s.publishBooking(ctx, kafka.EventBookingCancelled, updated)
	return updated, nil
}

// ExpirePendingBookings cancels pending_payment bookings whose hold has
// lapsed. Listing already ignores them; this keeps their status honest.
func (s *BookingService) ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error) {
	expired, err := s.bookings.ExpirePendingBefore(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for i := range expired {
		s.releaseHold(ctx, &expired[i])
		s.publishBooking(ctx, kafka.EventBookingExpired, &expired[i])
	}
	return expired, nil
}

func (s *BookingService) releaseHold(ctx context.Context, b *domain.Booking) {
	if b.ReservationID == "" {
		return
	}
	if err := s.reservations.Release(ctx, b.ReservationID); err != nil {
		s.log.Warn("release reservation",
			zap.String("booking_id", b.ID),
			zap.String("reservation_id", b.ReservationID),
			zap.Error(err),
		)
	}
}

func (s *BookingService) bookingEvent(eventType string, b *domain.Booking) kafka.BookingEvent {
	return kafka.BookingEvent{
		Type:        eventType,
		BookingID:   b.ID,
		RequesterID: b.RequesterID,
		ProviderID:  b.ProviderID,
		Date:        b.Date.String(),
		Time:        b.Time.String(),
		StartsAt:    b.WindowStart,
		Timezone:    b.Timezone,
		Status:      string(b.Status),
		Reason:      b.CancelReason,
	}
}

func (s *BookingService) publishBooking(ctx context.Context, eventType string, b *domain.Booking) {
	s.publish(ctx, s.bookingEvent(eventType, b), b.ID)
}

// publish is best effort: a broker outage must not undo a state change that
// is already committed.
func (s *BookingService) publish(ctx context.Context, event kafka.BookingEvent, key string) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event.OccurredAt = s.now()

	if err := s.producer.Publish(ctx, s.bookingTopic, key, event); err != nil {
		s.log.Warn("publish booking event", zap.String("type", event.Type), zap.String("key", key), zap.Error(err))
		return
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, key, event); err != nil {
			s.log.Warn("publish notification", zap.String("type", event.Type), zap.String("key", key), zap.Error(err))
		}
	}
}

var _ BookingUseCase = (*BookingService)(nil)
