package models

import "time"

// BookingDraft is a booking candidate being filled in progressively by a client.
// Any field of Booking may still be empty.
type BookingDraft struct {
	Key       string    `json:"key"`
	Booking   Booking   `json:"booking"`
	UpdatedAt time.Time `json:"updated_at"`
}
