package domain

import "time"

// TimeSlot is a single bookable instant. It is derived per request and
// never persisted.
type TimeSlot struct {
	Date        Date      `json:"date"`
	Time        TimeOfDay `json:"time"`
	UTC         time.Time `json:"utc"`
	Timezone    string    `json:"timezone"`
	ZoneAbbrev  string    `json:"zone_abbrev"`
	ProviderIDs []string  `json:"provider_ids"`
}

func (s TimeSlot) HasProvider(providerID string) bool {
	for _, id := range s.ProviderIDs {
		if id == providerID {
			return true
		}
	}
	return false
}

// SlotKey identifies the occupancy of one provider at one instant.
type SlotKey struct {
	ProviderID string
	Start      int64
}

func NewSlotKey(providerID string, start time.Time) SlotKey {
	return SlotKey{ProviderID: providerID, Start: start.UTC().Unix()}
}

// SlotSnapshot is everything the listing pipeline reads for one date,
// taken at a single point in time.
type SlotSnapshot struct {
	Blocks       []AvailabilityBlock
	Bookings     []Booking
	Reservations []Reservation
	TakenAt      time.Time
}
