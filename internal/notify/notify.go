// Package notify turns booking events into patient and doctor notifications.
// Delivery is logged; the messaging channel itself is an external concern.
package notify

import (
	"context"
	"fmt"

	"github.com/Domenick1991/teleconsult/internal/kafka"
	"go.uber.org/zap"
)

type Audience string

const (
	AudienceRequester Audience = "requester"
	AudienceProvider  Audience = "provider"
)

type Message struct {
	Audience    Audience
	RecipientID string
	Subject     string
	Body        string
}

type Sender struct {
	log *zap.Logger
}

func NewSender(log *zap.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	for _, msg := range Compose(event) {
		s.log.Info("notification",
			zap.String("audience", string(msg.Audience)),
			zap.String("recipient_id", msg.RecipientID),
			zap.String("subject", msg.Subject),
			zap.String("body", msg.Body),
			zap.String("event", event.Type),
			zap.String("booking_id", event.BookingID),
		)
	}
	return nil
}

// Compose returns the messages an event produces. Events nobody needs to
// hear about return nil.
func Compose(e kafka.BookingEvent) []Message {
	when := fmt.Sprintf("%s %s (%s)", e.Date, e.Time, e.Timezone)

	switch e.Type {
	case kafka.EventBookingConfirmed:
		return []Message{
			{AudienceRequester, e.RequesterID, "Consultation booked", "Your phone consultation is booked for " + when + "."},
			{AudienceProvider, e.ProviderID, "New consultation", "A consultation was booked with you for " + when + "."},
		}
	case kafka.EventBookingCancelled:
		return []Message{
			{AudienceRequester, e.RequesterID, "Consultation cancelled", "Your consultation on " + when + " was cancelled."},
			{AudienceProvider, e.ProviderID, "Consultation cancelled", "The consultation on " + when + " was cancelled."},
		}
	case kafka.EventBookingExpired:
		return []Message{
			{AudienceRequester, e.RequesterID, "Reservation expired", "Your hold on " + when + " expired before payment. Please pick a new time."},
		}
	case kafka.EventCallAttemptLogged:
		return []Message{
			{AudienceRequester, e.RequesterID, "We tried to call you", fmt.Sprintf("The doctor tried to call you (attempt %d) for your %s consultation.", e.Attempt, when)},
		}
	case kafka.EventBookingNoAnswer:
		return []Message{
			{AudienceRequester, e.RequesterID, "Missed consultation", "We could not reach you for your consultation on " + when + "."},
		}
	}
	return nil
}
