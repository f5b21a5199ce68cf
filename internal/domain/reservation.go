package domain

import "time"

type Reservation struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	ProviderID  string    `json:"provider_id"`
	Date        Date      `json:"date"`
	Time        TimeOfDay `json:"time"`
	StartsAt    time.Time `json:"starts_at"`
	Timezone    string    `json:"timezone"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r Reservation) ActiveAt(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

func (r Reservation) Key() SlotKey {
	return NewSlotKey(r.ProviderID, r.StartsAt)
}
