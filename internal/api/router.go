package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/auth"
	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/chat"
	"github.com/hackgods/service-marketplace/internal/messaging"
	"github.com/hackgods/service-marketplace/internal/notification"
)

type BookingService interface {
	Create(ctx context.Context, in booking.CreateInput) (*booking.Booking, error)
	NotifyRequested(ctx context.Context, b *booking.Booking)
	SetStatus(ctx context.Context, bookingID, callerUserID uuid.UUID, status booking.Status) (bool, error)
	Get(ctx context.Context, id, viewer uuid.UUID) (*booking.Booking, error)
	ListForUser(ctx context.Context, viewer uuid.UUID) ([]booking.Booking, error)
}

type MessageService interface {
	Send(ctx context.Context, viewer, bookingID uuid.UUID, content string) (*chat.Message, error)
	Messages(ctx context.Context, viewer, bookingID uuid.UUID) ([]chat.Message, error)
	MarkRead(ctx context.Context, viewer, bookingID uuid.UUID) ([]chat.Message, error)
}

type NotificationService interface {
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]notification.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) (*notification.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// SessionFactory opens a live messaging session for one viewer.
type SessionFactory func(viewer uuid.UUID) *messaging.Session

type RouterConfig struct {
	Bookings      BookingService
	Conversations messaging.ConversationLister
	Messages      MessageService
	Notifications NotificationService
	Sessions      SessionFactory
	Tokens        *auth.Issuer
	Checks        []Check
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(AuthMiddleware(cfg.Tokens))
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.Env, cfg.Version, cfg.Checks...)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Booking endpoints
	r.Post("/bookings", createBookingHandler(cfg.Bookings))
	r.Get("/bookings", listBookingsHandler(cfg.Bookings))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Bookings))
	r.Post("/bookings/{id}/status", updateBookingStatusHandler(cfg.Bookings))

	// Conversation endpoints
	r.Get("/conversations", listConversationsHandler(cfg.Conversations))
	r.Get("/conversations/{bookingID}/messages", listMessagesHandler(cfg.Messages))
	r.Post("/conversations/{bookingID}/messages", sendMessageHandler(cfg.Messages))
	r.Post("/conversations/{bookingID}/read", markConversationReadHandler(cfg.Messages))

	// Notification endpoints
	r.Get("/notifications", listNotificationsHandler(cfg.Notifications))
	r.Post("/notifications/read-all", markAllNotificationsReadHandler(cfg.Notifications))
	r.Post("/notifications/{id}/read", markNotificationReadHandler(cfg.Notifications))

	// Live messaging
	r.Get("/ws", sessionHandler(cfg.Sessions))

	return r
}
