package domain

import "errors"

var (
	ErrInvalidWindow         = errors.New("invalid availability window")
	ErrInvalidTimezone       = errors.New("invalid timezone")
	ErrSlotNoLongerAvailable = errors.New("slot no longer available")
	ErrPaymentNotConfirmed   = errors.New("payment not confirmed")
	ErrMaxAttemptsReached    = errors.New("max call attempts reached")
	ErrInsufficientAttempts  = errors.New("insufficient unanswered call attempts")
	ErrReservationExpired    = errors.New("reservation expired")
	ErrInvalidTransition     = errors.New("invalid booking transition")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrBlockNotFound         = errors.New("availability block not found")
	ErrInvalidInput          = errors.New("invalid input")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidWindow, "invalid_window"},
	{ErrInvalidTimezone, "invalid_timezone"},
	{ErrSlotNoLongerAvailable, "slot_no_longer_available"},
	{ErrPaymentNotConfirmed, "payment_not_confirmed"},
	{ErrMaxAttemptsReached, "max_attempts_reached"},
	{ErrInsufficientAttempts, "insufficient_attempts"},
	{ErrReservationExpired, "reservation_expired"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrBookingNotFound, "booking_not_found"},
	{ErrBlockNotFound, "block_not_found"},
	{ErrInvalidInput, "invalid_input"},
}

// ErrorCode returns a stable machine-readable code for err, or "internal"
// when err is not one of the domain errors.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}
