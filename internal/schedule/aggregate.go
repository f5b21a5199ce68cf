package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/Domenick1991/teleconsult/internal/domain"
)

// GridFunc produces the grid for a single window. GenerateGrid is the default;
// callers holding precomputed grids can supply their own.
type GridFunc func(w Window, step time.Duration) ([]domain.TimeSlot, error)

type AggregateOptions struct {
	Step    time.Duration
	Display *time.Location
	Grid    GridFunc
}

func (o AggregateOptions) withDefaults() AggregateOptions {
	if o.Step == 0 {
		o.Step = DefaultStep
	}
	if o.Display == nil {
		o.Display = time.UTC
	}
	if o.Grid == nil {
		o.Grid = GenerateGrid
	}
	return o
}

type suppression struct {
	providerID string
	start, end time.Time
}

type mergedSlot struct {
	at        time.Time
	providers map[string]struct{}
}

// Aggregate merges the grids of every capacity block active on date into one
// list of slots keyed by instant. Blocked blocks only remove their provider
// from slots they overlap. The result is sorted by time and every slot has at
// least one provider.
func Aggregate(date domain.Date, blocks []domain.AvailabilityBlock, opts AggregateOptions) ([]domain.TimeSlot, error) {
	opts = opts.withDefaults()

	merged := make(map[int64]*mergedSlot)
	var blocked []suppression

	for _, b := range blocks {
		if !b.ActiveOn(date) {
			continue
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("block %s: %w", b.ID, err)
		}
		loc, err := b.Location()
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", b.ID, err)
		}

		if b.Kind == domain.BlockKindBlocked {
			blocked = append(blocked, suppression{
				providerID: b.ProviderID,
				start:      wallClock(date, b.Start, loc),
				end:        wallClock(date, b.End, loc),
			})
			continue
		}

		grid, err := opts.Grid(Window{
			BlockID:    b.ID,
			ProviderID: b.ProviderID,
			Date:       date,
			Start:      b.Start,
			End:        b.End,
			Location:   loc,
		}, opts.Step)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", b.ID, err)
		}

		for _, s := range grid {
			key := s.UTC.Unix()
			m, ok := merged[key]
			if !ok {
				m = &mergedSlot{at: s.UTC, providers: make(map[string]struct{})}
				merged[key] = m
			}
			m.providers[b.ProviderID] = struct{}{}
		}
	}

	out := make([]domain.TimeSlot, 0, len(merged))
	for _, m := range merged {
		end := m.at.Add(opts.Step)
		ids := make([]string, 0, len(m.providers))
		for id := range m.providers {
			if isBlocked(blocked, id, m.at, end) {
				continue
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			continue
		}
		sort.Strings(ids)
		out = append(out, label(m.at, opts.Display, ids))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UTC.Before(out[j].UTC) })
	return out, nil
}

func isBlocked(blocked []suppression, providerID string, start, end time.Time) bool {
	for _, s := range blocked {
		if s.providerID == providerID && start.Before(s.end) && end.After(s.start) {
			return true
		}
	}
	return false
}

// wallClock resolves tod on date in loc; 24:00 is midnight of the next day.
func wallClock(date domain.Date, tod domain.TimeOfDay, loc *time.Location) time.Time {
	if tod >= domain.MinutesPerDay {
		date, tod = date.AddDays(1), tod-domain.MinutesPerDay
	}
	t, _ := date.At(tod, loc)
	return t
}

func label(at time.Time, display *time.Location, providerIDs []string) domain.TimeSlot {
	local := at.In(display)
	abbrev, _ := local.Zone()
	return domain.TimeSlot{
		Date:        domain.DateOf(local),
		Time:        domain.NewTimeOfDay(local.Hour(), local.Minute()),
		UTC:         at.UTC(),
		Timezone:    display.String(),
		ZoneAbbrev:  abbrev,
		ProviderIDs: providerIDs,
	}
}
