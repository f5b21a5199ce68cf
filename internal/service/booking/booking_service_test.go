package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/Domenick1991/teleconsult/internal/kafka"
	"github.com/Domenick1991/teleconsult/internal/schedule"
	"github.com/Domenick1991/teleconsult/internal/service/reservation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) CreatePending(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	args := m.Called(ctx, booking)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByReservation(ctx context.Context, reservationID string) (*domain.Booking, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ConfirmPayment(ctx context.Context, id string, amount int64, paidAt time.Time) (*domain.Booking, error) {
	args := m.Called(ctx, id, amount, paidAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) AddCallAttempt(ctx context.Context, id string, attempt domain.CallAttempt, status domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, id, attempt, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, id string, from []domain.BookingStatus, to domain.BookingStatus, reason string) (*domain.Booking, error) {
	args := m.Called(ctx, id, from, to, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, deadline)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

type MockSlotLister struct {
	mock.Mock
}

func (m *MockSlotLister) ListAvailableSlots(ctx context.Context, date domain.Date) ([]domain.TimeSlot, error) {
	args := m.Called(ctx, date)
	return args.Get(0).([]domain.TimeSlot), args.Error(1)
}

type MockReservations struct {
	mock.Mock
}

func (m *MockReservations) Create(ctx context.Context, input reservation.CreateInput) (*domain.Reservation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservations) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservations) Release(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

var (
	testNow    = time.Date(2024, time.January, 8, 8, 0, 0, 0, time.UTC)
	testMonday = domain.NewDate(2024, time.January, 8)
)

type fixture struct {
	bookings     *MockBookingRepository
	slots        *MockSlotLister
	reservations *MockReservations
	producer     *MockProducer
	service      *BookingService
}

func newFixture(opts ...BookingServiceOption) *fixture {
	f := &fixture{
		bookings:     &MockBookingRepository{},
		slots:        &MockSlotLister{},
		reservations: &MockReservations{},
		producer:     &MockProducer{},
	}
	opts = append([]BookingServiceOption{WithClock(func() time.Time { return testNow })}, opts...)
	f.service = NewBookingService(f.bookings, f.slots, f.reservations, f.producer,
		"booking_events", 5*time.Minute, zap.NewNop(), opts...)
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.bookings.AssertExpectations(t)
	f.slots.AssertExpectations(t)
	f.reservations.AssertExpectations(t)
	f.producer.AssertExpectations(t)
}

func eventOfType(eventType string) interface{} {
	return mock.MatchedBy(func(e kafka.BookingEvent) bool { return e.Type == eventType })
}

func booking(status domain.BookingStatus, attempts ...domain.CallAttempt) *domain.Booking {
	start := time.Date(2024, time.January, 8, 9, 5, 0, 0, time.UTC)
	return &domain.Booking{
		ID:            "bk-1",
		RequesterID:   "X",
		ProviderID:    "P",
		ReservationID: "res-1",
		Date:          testMonday,
		Time:          domain.NewTimeOfDay(9, 5),
		WindowStart:   start,
		WindowEnd:     start.Add(5 * time.Minute),
		Timezone:      "UTC",
		Status:        status,
		HoldExpiresAt: testNow.Add(10 * time.Minute),
		CallAttempts:  attempts,
	}
}

func unanswered(n int) []domain.CallAttempt {
	out := make([]domain.CallAttempt, n)
	for i := range out {
		out[i] = domain.CallAttempt{Number: i + 1, AttemptedAt: testNow}
	}
	return out
}

func TestBookingService_ReserveSlot_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	at := time.Date(2024, time.January, 8, 9, 5, 0, 0, time.UTC)

	f.slots.On("ListAvailableSlots", ctx, testMonday).Return([]domain.TimeSlot{
		{Date: testMonday, Time: domain.NewTimeOfDay(9, 5), UTC: at, Timezone: "UTC", ProviderIDs: []string{"P", "Q"}},
	}, nil).Once()
	f.reservations.On("Create", ctx, reservation.CreateInput{
		RequesterID: "X", ProviderID: "P", Date: testMonday, Time: domain.NewTimeOfDay(9, 5), StartsAt: at, Timezone: "UTC",
	}).Return(&domain.Reservation{ID: "res-1", RequesterID: "X", ProviderID: "P", Date: testMonday, StartsAt: at}, nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "res-1", eventOfType(kafka.EventReservationCreated)).Return(nil).Once()

	res, err := f.service.ReserveSlot(ctx, ReserveSlotInput{
		RequesterID: "X", ProviderID: "P", Date: testMonday, Time: domain.NewTimeOfDay(9, 5),
	})

	require.NoError(t, err)
	assert.Equal(t, "res-1", res.ID)
	f.assertExpectations(t)
}

func TestBookingService_ReserveSlot_ProviderNotListed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.slots.On("ListAvailableSlots", ctx, testMonday).Return([]domain.TimeSlot{
		{Date: testMonday, Time: domain.NewTimeOfDay(9, 5), ProviderIDs: []string{"Q"}},
	}, nil).Once()
	f.slots.On("ListAvailableSlots", ctx, testMonday.AddDays(-1)).Return([]domain.TimeSlot{}, nil).Once()
	f.slots.On("ListAvailableSlots", ctx, testMonday.AddDays(1)).Return([]domain.TimeSlot{}, nil).Once()

	_, err := f.service.ReserveSlot(ctx, ReserveSlotInput{
		RequesterID: "X", ProviderID: "P", Date: testMonday, Time: domain.NewTimeOfDay(9, 5),
	})

	assert.ErrorIs(t, err, domain.ErrSlotNoLongerAvailable)
	f.reservations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.slots.AssertExpectations(t)
}

func TestBookingService_ReserveSlot_ListingErrorPropagates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	boom := errors.New("snapshot failed")

	f.slots.On("ListAvailableSlots", ctx, testMonday).Return([]domain.TimeSlot{}, boom).Once()

	_, err := f.service.ReserveSlot(ctx, ReserveSlotInput{
		RequesterID: "X", ProviderID: "P", Date: testMonday, Time: domain.NewTimeOfDay(9, 5),
	})

	assert.ErrorIs(t, err, boom)
	f.slots.AssertNumberOfCalls(t, "ListAvailableSlots", 1)
}

func TestBookingService_ReserveSlot_RejectsMissingFields(t *testing.T) {
	f := newFixture()

	_, err := f.service.ReserveSlot(context.Background(), ReserveSlotInput{ProviderID: "P", Date: testMonday})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.service.ReserveSlot(context.Background(), ReserveSlotInput{RequesterID: "X", ProviderID: "P"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// memoryReservations and snapshotSlots run the real listing pipeline so the
// reserve path sees its own holds.
type memoryReservations struct {
	mu   sync.Mutex
	rows map[string]domain.Reservation
	now  time.Time
}

func (m *memoryReservations) Create(_ context.Context, in reservation.CreateInput) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := domain.Reservation{
		ID: in.RequesterID + "-" + in.Time.String(), RequesterID: in.RequesterID, ProviderID: in.ProviderID,
		Date: in.Date, Time: in.Time, StartsAt: in.StartsAt, Timezone: in.Timezone,
		CreatedAt: m.now, ExpiresAt: m.now.Add(10 * time.Minute),
	}
	m.rows[res.ID] = res
	return &res, nil
}

func (m *memoryReservations) Get(_ context.Context, id string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrReservationExpired
	}
	return &res, nil
}

func (m *memoryReservations) Release(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memoryReservations) list() []domain.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Reservation, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out
}

type snapshotSlots struct {
	blocks       []domain.AvailabilityBlock
	reservations *memoryReservations
	display      *time.Location
}

func (s *snapshotSlots) ListAvailableSlots(_ context.Context, date domain.Date) ([]domain.TimeSlot, error) {
	return schedule.Available(date, domain.SlotSnapshot{
		Blocks:       s.blocks,
		Reservations: s.reservations.list(),
		TakenAt:      s.reservations.now,
	}, schedule.AggregateOptions{Step: 5 * time.Minute, Display: s.display})
}

func TestBookingService_ReserveSlot_SecondRequesterBlocked(t *testing.T) {
	monday := time.Monday
	held := &memoryReservations{rows: make(map[string]domain.Reservation), now: testNow}
	lister := &snapshotSlots{
		blocks: []domain.AvailabilityBlock{{
			ID: "b1", ProviderID: "P", Kind: domain.BlockKindRecurring, DayOfWeek: &monday,
			Start: domain.NewTimeOfDay(9, 0), End: domain.NewTimeOfDay(9, 15), Timezone: "UTC", IsActive: true,
		}},
		reservations: held,
	}
	service := NewBookingService(&MockBookingRepository{}, lister, held, nil, "", 5*time.Minute, zap.NewNop(),
		WithClock(func() time.Time { return testNow }))
	ctx := context.Background()
	nineOhFive := domain.NewTimeOfDay(9, 5)

	res, err := service.ReserveSlot(ctx, ReserveSlotInput{RequesterID: "X", ProviderID: "P", Date: testMonday, Time: nineOhFive})
	require.NoError(t, err)

	slots, err := lister.ListAvailableSlots(ctx, testMonday)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, domain.NewTimeOfDay(9, 0), slots[0].Time)
	assert.Equal(t, domain.NewTimeOfDay(9, 10), slots[1].Time)

	_, err = service.ReserveSlot(ctx, ReserveSlotInput{RequesterID: "Y", ProviderID: "P", Date: testMonday, Time: nineOhFive})
	assert.ErrorIs(t, err, domain.ErrSlotNoLongerAvailable)

	require.NoError(t, service.ReleaseReservation(ctx, res.ID))
	_, err = service.ReserveSlot(ctx, ReserveSlotInput{RequesterID: "Y", ProviderID: "P", Date: testMonday, Time: nineOhFive})
	assert.NoError(t, err)
}

func TestBookingService_ReserveSlot_LabelOnNextDay(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	monday := time.Monday
	held := &memoryReservations{rows: make(map[string]domain.Reservation), now: testNow}
	lister := &snapshotSlots{
		blocks: []domain.AvailabilityBlock{{
			ID: "b1", ProviderID: "P", Kind: domain.BlockKindRecurring, DayOfWeek: &monday,
			Start: domain.NewTimeOfDay(22, 0), End: domain.NewTimeOfDay(22, 10), Timezone: newYork.String(), IsActive: true,
		}},
		reservations: held,
		display:      london,
	}
	service := NewBookingService(&MockBookingRepository{}, lister, held, nil, "", 5*time.Minute, zap.NewNop(),
		WithClock(func() time.Time { return testNow }))
	ctx := context.Background()

	listed, err := lister.ListAvailableSlots(ctx, testMonday)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	tuesday := testMonday.AddDays(1)
	assert.Equal(t, tuesday, listed[0].Date)
	assert.Equal(t, domain.NewTimeOfDay(3, 0), listed[0].Time)

	res, err := service.ReserveSlot(ctx, ReserveSlotInput{RequesterID: "X", ProviderID: "P", Date: tuesday, Time: domain.NewTimeOfDay(3, 0)})
	require.NoError(t, err)
	assert.Equal(t, tuesday, res.Date)
	assert.Equal(t, time.Date(2024, time.January, 9, 3, 0, 0, 0, time.UTC), res.StartsAt)

	_, err = service.ReserveSlot(ctx, ReserveSlotInput{RequesterID: "Y", ProviderID: "P", Date: tuesday, Time: domain.NewTimeOfDay(3, 0)})
	assert.ErrorIs(t, err, domain.ErrSlotNoLongerAvailable)
}

func TestBookingService_CreateBooking_FromReservation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	start := time.Date(2024, time.January, 8, 9, 5, 0, 0, time.UTC)
	res := &domain.Reservation{
		ID: "res-1", RequesterID: "X", ProviderID: "P", Date: testMonday, Time: domain.NewTimeOfDay(9, 5),
		StartsAt: start, Timezone: "UTC", ExpiresAt: testNow.Add(10 * time.Minute),
	}

	f.bookings.On("GetByReservation", ctx, "res-1").Return(nil, nil).Once()
	f.reservations.On("Get", ctx, "res-1").Return(res, nil).Once()
	f.bookings.On("CreatePending", ctx, mock.MatchedBy(func(b *domain.Booking) bool {
		return b.ID != "" &&
			b.ReservationID == "res-1" &&
			b.WindowStart.Equal(start) &&
			b.WindowEnd.Equal(start.Add(5*time.Minute)) &&
			b.HoldExpiresAt.Equal(res.ExpiresAt)
	})).Return(booking(domain.BookingStatusPendingPayment), nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", eventOfType(kafka.EventBookingCreated)).Return(nil).Once()

	b, err := f.service.CreateBooking(ctx, "res-1")

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPendingPayment, b.Status)
	f.assertExpectations(t)
}

func TestBookingService_CreateBooking_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	existing := booking(domain.BookingStatusPendingPayment)

	f.bookings.On("GetByReservation", ctx, "res-1").Return(existing, nil).Once()

	b, err := f.service.CreateBooking(ctx, "res-1")

	require.NoError(t, err)
	assert.Same(t, existing, b)
	f.reservations.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	f.bookings.AssertNotCalled(t, "CreatePending", mock.Anything, mock.Anything)
}

func TestBookingService_CreateBooking_ExpiredReservation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByReservation", ctx, "gone").Return(nil, nil).Once()
	f.reservations.On("Get", ctx, "gone").Return(nil, domain.ErrReservationExpired).Once()

	_, err := f.service.CreateBooking(ctx, "gone")

	assert.ErrorIs(t, err, domain.ErrReservationExpired)
}

func TestBookingService_ConfirmPayment_Success(t *testing.T) {
	f := newFixture(WithNotificationsTopic("notifications"))
	ctx := context.Background()
	confirmed := booking(domain.BookingStatusBooked)

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusPendingPayment), nil).Once()
	f.bookings.On("ConfirmPayment", ctx, "bk-1", int64(4500), testNow).Return(confirmed, nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", eventOfType(kafka.EventBookingConfirmed)).Return(nil).Once()
	f.producer.On("Publish", ctx, "notifications", "bk-1", eventOfType(kafka.EventBookingConfirmed)).Return(nil).Once()

	b, err := f.service.ConfirmPayment(ctx, "bk-1", 4500)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusBooked, b.Status)
	f.assertExpectations(t)
}

func TestBookingService_ConfirmPayment_NotPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusBooked), nil).Once()

	_, err := f.service.ConfirmPayment(ctx, "bk-1", 4500)

	assert.ErrorIs(t, err, domain.ErrPaymentNotConfirmed)
	f.bookings.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_ConfirmPayment_NegativeAmount(t *testing.T) {
	f := newFixture()

	_, err := f.service.ConfirmPayment(context.Background(), "bk-1", -1)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	f.bookings.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestBookingService_ConfirmPayment_HoldLapsed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pending := booking(domain.BookingStatusPendingPayment)
	pending.HoldExpiresAt = testNow.Add(-time.Second)
	cancelled := booking(domain.BookingStatusCancelled)

	f.bookings.On("GetByID", ctx, "bk-1").Return(pending, nil).Once()
	f.bookings.On("UpdateStatus", ctx, "bk-1", []domain.BookingStatus{domain.BookingStatusPendingPayment},
		domain.BookingStatusCancelled, domain.CancelReasonReservationExpired).Return(cancelled, nil).Once()
	f.reservations.On("Release", ctx, "res-1").Return(nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", eventOfType(kafka.EventBookingExpired)).Return(nil).Once()

	_, err := f.service.ConfirmPayment(ctx, "bk-1", 4500)

	assert.ErrorIs(t, err, domain.ErrReservationExpired)
	f.assertExpectations(t)
}

func TestBookingService_ConfirmPayment_SlotTakenByOtherBooking(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusPendingPayment), nil).Once()
	f.bookings.On("ConfirmPayment", ctx, "bk-1", int64(4500), testNow).Return(nil, domain.ErrSlotNoLongerAvailable).Once()
	f.bookings.On("UpdateStatus", ctx, "bk-1", []domain.BookingStatus{domain.BookingStatusPendingPayment},
		domain.BookingStatusCancelled, domain.CancelReasonSlotTaken).Return(booking(domain.BookingStatusCancelled), nil).Once()
	f.reservations.On("Release", ctx, "res-1").Return(nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", eventOfType(kafka.EventBookingCancelled)).Return(nil).Once()

	_, err := f.service.ConfirmPayment(ctx, "bk-1", 4500)

	assert.ErrorIs(t, err, domain.ErrSlotNoLongerAvailable)
	f.assertExpectations(t)
}

func TestBookingService_ConfirmPayment_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusPendingPayment), nil).Once()
	f.bookings.On("ConfirmPayment", ctx, "bk-1", int64(0), testNow).Return(booking(domain.BookingStatusBooked), nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", mock.Anything).Return(errors.New("broker down")).Once()

	b, err := f.service.ConfirmPayment(ctx, "bk-1", 0)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusBooked, b.Status)
}

func TestBookingService_LogCallAttempt_AnsweredStartsConsultation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	expected := domain.CallAttempt{Number: 1, Answered: true, Notes: "patient picked up", AttemptedAt: testNow}

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusBooked), nil).Once()
	f.bookings.On("AddCallAttempt", ctx, "bk-1", expected, domain.BookingStatusInProgress).
		Return(booking(domain.BookingStatusInProgress, expected), nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventCallAttemptLogged && e.Attempt == 1
	})).Return(nil).Once()

	b, err := f.service.LogCallAttempt(ctx, "bk-1", true, "patient picked up")

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusInProgress, b.Status)
	f.assertExpectations(t)
}

func TestBookingService_LogCallAttempt_UnansweredKeepsStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	expected := domain.CallAttempt{Number: 2, AttemptedAt: testNow}

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusBooked, unanswered(1)...), nil).Once()
	f.bookings.On("AddCallAttempt", ctx, "bk-1", expected, domain.BookingStatus("")).
		Return(booking(domain.BookingStatusBooked, unanswered(2)...), nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", mock.Anything).Return(nil).Once()

	b, err := f.service.LogCallAttempt(ctx, "bk-1", false, "")

	require.NoError(t, err)
	assert.Len(t, b.CallAttempts, 2)
}

func TestBookingService_LogCallAttempt_CapReached(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusBooked, unanswered(3)...), nil).Once()

	_, err := f.service.LogCallAttempt(ctx, "bk-1", false, "")

	assert.ErrorIs(t, err, domain.ErrMaxAttemptsReached)
	f.bookings.AssertNotCalled(t, "AddCallAttempt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_LogCallAttempt_ConfigurableCap(t *testing.T) {
	f := newFixture(WithMaxCallAttempts(1))
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusBooked, unanswered(1)...), nil).Once()

	_, err := f.service.LogCallAttempt(ctx, "bk-1", false, "")

	assert.ErrorIs(t, err, domain.ErrMaxAttemptsReached)
}

func TestBookingService_LogCallAttempt_WrongStatus(t *testing.T) {
	for _, status := range []domain.BookingStatus{
		domain.BookingStatusPendingPayment,
		domain.BookingStatusCompleted,
		domain.BookingStatusCancelled,
		domain.BookingStatusNoAnswer,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			f.bookings.On("GetByID", ctx, "bk-1").Return(booking(status), nil).Once()

			_, err := f.service.LogCallAttempt(ctx, "bk-1", true, "")

			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		})
	}
}

func TestBookingService_MarkNoAnswer_AfterAllAttempts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusBooked, unanswered(3)...), nil).Once()
	f.bookings.On("UpdateStatus", ctx, "bk-1", []domain.BookingStatus{domain.BookingStatusBooked},
		domain.BookingStatusNoAnswer, "").Return(booking(domain.BookingStatusNoAnswer, unanswered(3)...), nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", eventOfType(kafka.EventBookingNoAnswer)).Return(nil).Once()

	b, err := f.service.MarkNoAnswer(ctx, "bk-1")

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusNoAnswer, b.Status)
	f.assertExpectations(t)
}

func TestBookingService_MarkNoAnswer_TooFewAttempts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusBooked, unanswered(2)...), nil).Once()

	_, err := f.service.MarkNoAnswer(ctx, "bk-1")

	assert.ErrorIs(t, err, domain.ErrInsufficientAttempts)
	f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_MarkNoAnswer_InProgress(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	attempts := append(unanswered(2), domain.CallAttempt{Number: 3, Answered: true})

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusInProgress, attempts...), nil).Once()

	_, err := f.service.MarkNoAnswer(ctx, "bk-1")

	assert.ErrorIs(t, err, domain.ErrInsufficientAttempts)
}

func TestBookingService_MarkNoAnswer_Terminal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusCompleted), nil).Once()

	_, err := f.service.MarkNoAnswer(ctx, "bk-1")

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBookingService_CompleteBooking(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusInProgress), nil).Once()
	f.bookings.On("UpdateStatus", ctx, "bk-1", []domain.BookingStatus{domain.BookingStatusInProgress},
		domain.BookingStatusCompleted, "").Return(booking(domain.BookingStatusCompleted), nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", eventOfType(kafka.EventBookingCompleted)).Return(nil).Once()

	b, err := f.service.CompleteBooking(ctx, "bk-1")

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCompleted, b.Status)
	f.assertExpectations(t)
}

func TestBookingService_CompleteBooking_RequiresInProgress(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusBooked), nil).Once()

	_, err := f.service.CompleteBooking(ctx, "bk-1")

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBookingService_CancelBooking_PendingReleasesHold(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusPendingPayment), nil).Once()
	f.bookings.On("UpdateStatus", ctx, "bk-1", mock.Anything, domain.BookingStatusCancelled, domain.CancelReasonRequested).
		Return(booking(domain.BookingStatusCancelled), nil).Once()
	f.reservations.On("Release", ctx, "res-1").Return(nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", eventOfType(kafka.EventBookingCancelled)).Return(nil).Once()

	b, err := f.service.CancelBooking(ctx, "bk-1")

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, b.Status)
	f.assertExpectations(t)
}

func TestBookingService_CancelBooking_BookedKeepsNoHold(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusBooked), nil).Once()
	f.bookings.On("UpdateStatus", ctx, "bk-1", mock.Anything, domain.BookingStatusCancelled, domain.CancelReasonRequested).
		Return(booking(domain.BookingStatusCancelled), nil).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", mock.Anything).Return(nil).Once()

	_, err := f.service.CancelBooking(ctx, "bk-1")

	require.NoError(t, err)
	f.reservations.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestBookingService_CancelBooking_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cancelled := booking(domain.BookingStatusCancelled)

	f.bookings.On("GetByID", ctx, "bk-1").Return(cancelled, nil).Twice()

	first, err := f.service.CancelBooking(ctx, "bk-1")
	require.NoError(t, err)
	second, err := f.service.CancelBooking(ctx, "bk-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	f.bookings.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_CancelBooking_ConcurrentCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusBooked), nil).Once()
	f.bookings.On("UpdateStatus", ctx, "bk-1", mock.Anything, domain.BookingStatusCancelled, domain.CancelReasonRequested).
		Return(nil, domain.ErrInvalidTransition).Once()
	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusCancelled), nil).Once()

	b, err := f.service.CancelBooking(ctx, "bk-1")

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, b.Status)
}

func TestBookingService_CancelBooking_Terminal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.bookings.On("GetByID", ctx, "bk-1").Return(booking(domain.BookingStatusNoAnswer), nil).Once()

	_, err := f.service.CancelBooking(ctx, "bk-1")

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBookingService_ExpirePendingBookings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	expired := []domain.Booking{*booking(domain.BookingStatusCancelled)}

	f.bookings.On("ExpirePendingBefore", ctx, testNow).Return(expired, nil).Once()
	f.reservations.On("Release", ctx, "res-1").Return(errors.New("already gone")).Once()
	f.producer.On("Publish", ctx, "booking_events", "bk-1", eventOfType(kafka.EventBookingExpired)).Return(nil).Once()

	out, err := f.service.ExpirePendingBookings(ctx)

	require.NoError(t, err)
	assert.Len(t, out, 1)
	f.assertExpectations(t)
}
