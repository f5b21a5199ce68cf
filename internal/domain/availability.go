package domain

import (
	"fmt"
	"time"
)

type BlockKind string

const (
	BlockKindRecurring BlockKind = "recurring"
	BlockKindOneOff    BlockKind = "one_off"
	BlockKindBlocked   BlockKind = "blocked"
)

func (k BlockKind) Valid() bool {
	switch k {
	case BlockKindRecurring, BlockKindOneOff, BlockKindBlocked:
		return true
	}
	return false
}

// AvailabilityBlock is one provider's offered (or withheld) time window.
// Recurring blocks carry DayOfWeek, one_off and blocked carry SpecificDate.
type AvailabilityBlock struct {
	ID           string        `json:"id"`
	ProviderID   string        `json:"provider_id"`
	Kind         BlockKind     `json:"kind"`
	DayOfWeek    *time.Weekday `json:"day_of_week,omitempty"`
	SpecificDate *Date         `json:"specific_date,omitempty"`
	Start        TimeOfDay     `json:"start_time"`
	End          TimeOfDay     `json:"end_time"`
	Timezone     string        `json:"timezone"`
	IsActive     bool          `json:"is_active"`
	MaxBookings  int           `json:"max_bookings,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Validate checks the shape invariants of a block. It does not load the
// timezone; see Location.
func (b AvailabilityBlock) Validate() error {
	if !b.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidWindow, b.Kind)
	}
	if !b.Start.Valid() || !b.End.Valid() || b.Start >= b.End {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidWindow, b.Start, b.End)
	}
	switch b.Kind {
	case BlockKindRecurring:
		if b.DayOfWeek == nil || b.SpecificDate != nil {
			return fmt.Errorf("%w: recurring block needs day_of_week only", ErrInvalidWindow)
		}
		if *b.DayOfWeek < time.Sunday || *b.DayOfWeek > time.Saturday {
			return fmt.Errorf("%w: day_of_week %d out of range", ErrInvalidWindow, *b.DayOfWeek)
		}
	default:
		if b.SpecificDate == nil || b.DayOfWeek != nil {
			return fmt.Errorf("%w: %s block needs specific_date only", ErrInvalidWindow, b.Kind)
		}
	}
	return nil
}

func (b AvailabilityBlock) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil || b.Timezone == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, b.Timezone)
	}
	return loc, nil
}

// ActiveOn reports whether the block applies to date. Blocked blocks can be
// active; callers decide whether a block adds or removes capacity.
func (b AvailabilityBlock) ActiveOn(date Date) bool {
	if !b.IsActive {
		return false
	}
	switch b.Kind {
	case BlockKindRecurring:
		return b.DayOfWeek != nil && *b.DayOfWeek == date.Weekday()
	case BlockKindOneOff, BlockKindBlocked:
		return b.SpecificDate != nil && *b.SpecificDate == date
	}
	return false
}

// Version changes whenever the block is edited or deactivated.
func (b AvailabilityBlock) Version() int64 {
	return b.UpdatedAt.UnixNano()
}
