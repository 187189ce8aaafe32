package notification

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindBookingRequest Kind = "booking_request"
	KindBookingUpdate  Kind = "booking_update"
	KindNewMessage     Kind = "new_message"
)

type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      Kind       `json:"type"`
	RelatedID *uuid.UUID `json:"related_id,omitempty"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
}

// Payload is the content of one notification. RelatedID points at the
// booking or message that triggered it.
type Payload struct {
	Title     string
	Message   string
	RelatedID *uuid.UUID
}
