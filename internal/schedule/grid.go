// Package schedule turns availability blocks into bookable slots. Everything
// here is pure: callers fetch blocks, bookings and reservations first and
// pass them in.
package schedule

import (
	"fmt"
	"time"

	"github.com/Domenick1991/teleconsult/internal/domain"
)

const DefaultStep = 5 * time.Minute

// Window is one provider's offered range on one date, in the provider's zone.
type Window struct {
	BlockID    string
	ProviderID string
	Date       domain.Date
	Start      domain.TimeOfDay
	End        domain.TimeOfDay
	Location   *time.Location
}

// GenerateGrid splits w into slots of length step. Only slots that fit
// entirely inside [Start, End) are emitted, and wall clock readings that do
// not exist on the date are skipped.
func GenerateGrid(w Window, step time.Duration) ([]domain.TimeSlot, error) {
	if !w.Start.Valid() || !w.End.Valid() || w.Start >= w.End {
		return nil, fmt.Errorf("%w: %s-%s", domain.ErrInvalidWindow, w.Start, w.End)
	}
	if step < time.Minute || step%time.Minute != 0 {
		return nil, fmt.Errorf("%w: step %s", domain.ErrInvalidWindow, step)
	}

	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}

	slots := make([]domain.TimeSlot, 0, int(w.End-w.Start)/int(step/time.Minute))
	for t := w.Start; t.Add(step) <= w.End; t = t.Add(step) {
		at, ok := w.Date.At(t, loc)
		if !ok {
			continue
		}
		abbrev, _ := at.Zone()
		slot := domain.TimeSlot{
			Date:       w.Date,
			Time:       t,
			UTC:        at.UTC(),
			Timezone:   loc.String(),
			ZoneAbbrev: abbrev,
		}
		if w.ProviderID != "" {
			slot.ProviderIDs = []string{w.ProviderID}
		}
		slots = append(slots, slot)
	}
	return slots, nil
}
