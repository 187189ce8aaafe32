package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/booking"
)

// Message is one direct message on a booking. Sender and recipient are
// always the booking's client and the provider's owning account.
type Message struct {
	ID          uuid.UUID `json:"id"`
	BookingID   uuid.UUID `json:"booking_id"`
	SenderID    uuid.UUID `json:"sender_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Content     string    `json:"content"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`

	// Sender is attached by live sessions for display; never persisted.
	Sender *booking.Profile `json:"sender,omitempty"`
}

type NewMessage struct {
	BookingID   uuid.UUID
	SenderID    uuid.UUID
	RecipientID uuid.UUID
	Content     string
}
