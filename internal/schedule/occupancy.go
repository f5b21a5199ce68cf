package schedule

import (
	"time"

	"github.com/Domenick1991/teleconsult/internal/domain"
)

// FilterOccupied removes every provider already taken at a slot's instant by
// a booking or a reservation still holding it at now, and drops slots left
// without providers. A pending_payment booking stops holding its slot once
// its hold lapses. The input slice is not modified.
func FilterOccupied(slots []domain.TimeSlot, bookings []domain.Booking, reservations []domain.Reservation, now time.Time) []domain.TimeSlot {
	taken := make(map[domain.SlotKey]struct{}, len(bookings)+len(reservations))
	for _, b := range bookings {
		if b.OccupiesSlotAt(now) {
			taken[b.Key()] = struct{}{}
		}
	}
	for _, r := range reservations {
		if r.ActiveAt(now) {
			taken[r.Key()] = struct{}{}
		}
	}

	out := make([]domain.TimeSlot, 0, len(slots))
	for _, s := range slots {
		free := make([]string, 0, len(s.ProviderIDs))
		for _, id := range s.ProviderIDs {
			if _, ok := taken[domain.NewSlotKey(id, s.UTC)]; ok {
				continue
			}
			free = append(free, id)
		}
		if len(free) == 0 {
			continue
		}
		s.ProviderIDs = free
		out = append(out, s)
	}
	return out
}

// Available runs the whole listing pipeline over one snapshot.
func Available(date domain.Date, snap domain.SlotSnapshot, opts AggregateOptions) ([]domain.TimeSlot, error) {
	slots, err := Aggregate(date, snap.Blocks, opts)
	if err != nil {
		return nil, err
	}
	return FilterOccupied(slots, snap.Bookings, snap.Reservations, snap.TakenAt), nil
}
