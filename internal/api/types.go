package api

import (
	"github.com/hackgods/service-marketplace/internal/chat"
)

type CreateBookingRequest struct {
	ServiceProviderID string  `json:"service_provider_id"`
	ServiceID         *string `json:"service_id,omitempty"`
	BookingDate       string  `json:"booking_date"`
	BookingTime       string  `json:"booking_time"`
	DurationHours     int     `json:"duration_hours"`
	Notes             string  `json:"notes"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type UpdateStatusResponse struct {
	Updated bool `json:"updated"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type MarkReadResponse struct {
	Updated  int            `json:"updated"`
	Messages []chat.Message `json:"messages"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
