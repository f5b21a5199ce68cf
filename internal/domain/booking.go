package domain

import "time"

type BookingStatus string

const (
	BookingStatusPendingPayment BookingStatus = "pending_payment"
	BookingStatusBooked         BookingStatus = "booked"
	BookingStatusInProgress     BookingStatus = "in_progress"
	BookingStatusCompleted      BookingStatus = "completed"
	BookingStatusNoAnswer       BookingStatus = "no_answer"
	BookingStatusCancelled      BookingStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusNoAnswer, BookingStatusCancelled:
		return true
	}
	return false
}

const (
	CancelReasonRequested          = "requested"
	CancelReasonSlotTaken          = "slot_taken"
	CancelReasonReservationExpired = "reservation_expired"
)

type Booking struct {
	ID            string        `json:"id"`
	RequesterID   string        `json:"requester_id"`
	ProviderID    string        `json:"provider_id"`
	ReservationID string        `json:"reservation_id,omitempty"`
	Date          Date          `json:"date"`
	Time          TimeOfDay     `json:"time"`
	WindowStart   time.Time     `json:"window_start"`
	WindowEnd     time.Time     `json:"window_end"`
	Timezone      string        `json:"timezone"`
	Status        BookingStatus `json:"status"`
	AmountPaid    int64         `json:"amount_paid"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	HoldExpiresAt time.Time     `json:"hold_expires_at"`
	CancelReason  string        `json:"cancel_reason,omitempty"`
	CallAttempts  []CallAttempt `json:"call_attempts"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// OccupiesSlotAt reports whether the booking holds its slot at now. Cancelled
// bookings never do; pending_payment ones only until their hold lapses.
func (b Booking) OccupiesSlotAt(now time.Time) bool {
	switch b.Status {
	case BookingStatusCancelled:
		return false
	case BookingStatusPendingPayment:
		return b.HoldExpiresAt.After(now)
	}
	return true
}

func (b Booking) Key() SlotKey {
	return NewSlotKey(b.ProviderID, b.WindowStart)
}

func (b Booking) UnansweredAttempts() int {
	n := 0
	for _, a := range b.CallAttempts {
		if !a.Answered {
			n++
		}
	}
	return n
}

// CallAttempt is immutable once recorded.
type CallAttempt struct {
	Number      int       `json:"number"`
	Answered    bool      `json:"answered"`
	Notes       string    `json:"notes,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}
