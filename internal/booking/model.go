package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDeclined  Status = "declined"
	StatusCompleted Status = "completed"
)

// Booking references the provider profile, not the provider's user account.
// Identity checks go through ServiceProvider.UserID.
type Booking struct {
	ID                uuid.UUID  `json:"id"`
	ClientID          uuid.UUID  `json:"client_id"`
	ServiceProviderID uuid.UUID  `json:"service_provider_id"`
	ServiceID         *uuid.UUID `json:"service_id,omitempty"`
	BookingDate       time.Time  `json:"booking_date"`
	BookingTime       string     `json:"booking_time"` // HH:MM:SS
	DurationHours     int        `json:"duration_hours"`
	Status            Status     `json:"status"`
	Notes             *string    `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// StartsAt combines the booking date and time in UTC.
func (b Booking) StartsAt() time.Time {
	t, err := time.Parse(timeLayout, b.BookingTime)
	if err != nil {
		return b.BookingDate
	}
	y, m, d := b.BookingDate.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// EndsAt is StartsAt plus the booked duration.
func (b Booking) EndsAt() time.Time {
	return b.StartsAt().Add(time.Duration(b.DurationHours) * time.Hour)
}

type ServiceProvider struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	BusinessName string    `json:"business_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the display identity of a user account.
type Profile struct {
	UserID    uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	AvatarURL *string   `json:"avatar_url"`
}

// Offering is a service listed by a provider.
type Offering struct {
	ID                uuid.UUID `json:"id"`
	ServiceProviderID uuid.UUID `json:"service_provider_id"`
	Title             string    `json:"title"`
	Description       *string   `json:"description,omitempty"`
}

type NewBooking struct {
	ClientID          uuid.UUID
	ServiceProviderID uuid.UUID
	ServiceID         *uuid.UUID
	BookingDate       time.Time
	BookingTime       string
	DurationHours     int
	Notes             *string
}
