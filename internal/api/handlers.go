package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/apperr"
	"github.com/hackgods/service-marketplace/internal/auth"
	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/chat"
	"github.com/hackgods/service-marketplace/internal/messaging"
	"github.com/hackgods/service-marketplace/internal/notification"
	redisclient "github.com/hackgods/service-marketplace/internal/redis"
)

func createBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ServiceProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_provider_id", "service_provider_id must be a valid UUID")
			return
		}

		var serviceID *uuid.UUID
		if req.ServiceID != nil && *req.ServiceID != "" {
			id, err := uuid.Parse(*req.ServiceID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
				return
			}
			serviceID = &id
		}

		b, err := svc.Create(r.Context(), booking.CreateInput{
			ClientID:          auth.UserIDFrom(r.Context()),
			ServiceProviderID: providerID,
			ServiceID:         serviceID,
			Date:              req.BookingDate,
			Time:              req.BookingTime,
			Notes:             req.Notes,
			DurationHours:     req.DurationHours,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}

		svc.NotifyRequested(context.WithoutCancel(r.Context()), b)

		writeJSON(w, http.StatusCreated, b)
	}
}

func listBookingsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.ListForUser(r.Context(), auth.UserIDFrom(r.Context()))
		if err != nil {
			writeAppError(w, err)
			return
		}
		if items == nil {
			items = []booking.Booking{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func getBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_booking_id")
		if !ok {
			return
		}

		b, err := svc.Get(r.Context(), id, auth.UserIDFrom(r.Context()))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func updateBookingStatusHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_booking_id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		updated, err := svc.SetStatus(r.Context(), id, auth.UserIDFrom(r.Context()), booking.Status(req.Status))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, UpdateStatusResponse{Updated: updated})
	}
}

func listConversationsHandler(lister messaging.ConversationLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := lister.List(r.Context(), auth.UserIDFrom(r.Context()))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func listMessagesHandler(svc MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := uuidParam(w, r, "bookingID", "invalid_booking_id")
		if !ok {
			return
		}

		msgs, err := svc.Messages(r.Context(), auth.UserIDFrom(r.Context()), bookingID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func sendMessageHandler(svc MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := uuidParam(w, r, "bookingID", "invalid_booking_id")
		if !ok {
			return
		}

		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		m, err := svc.Send(r.Context(), auth.UserIDFrom(r.Context()), bookingID, req.Content)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func markConversationReadHandler(svc MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := uuidParam(w, r, "bookingID", "invalid_booking_id")
		if !ok {
			return
		}

		updated, err := svc.MarkRead(r.Context(), auth.UserIDFrom(r.Context()), bookingID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if updated == nil {
			updated = []chat.Message{}
		}
		writeJSON(w, http.StatusOK, MarkReadResponse{Updated: len(updated), Messages: updated})
	}
}

func listNotificationsHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		unreadOnly := q.Get("unread") == "true"

		limit := 0
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
				return
			}
			limit = n
		}

		items, err := svc.List(r.Context(), auth.UserIDFrom(r.Context()), unreadOnly, limit)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if items == nil {
			items = []notification.Notification{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func markNotificationReadHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_notification_id")
		if !ok {
			return
		}

		n, err := svc.MarkRead(r.Context(), auth.UserIDFrom(r.Context()), id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func markAllNotificationsReadHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.MarkAllRead(r.Context(), auth.UserIDFrom(r.Context()))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MarkAllReadResponse{Updated: n})
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// classify maps a domain error to an HTTP status and an error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrAuthRequired):
		return http.StatusUnauthorized, "auth_required"
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, apperr.ErrRecipientUnresolved):
		return http.StatusUnprocessableEntity, "recipient_unresolved"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, booking.ErrStatusChangeInProgress),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		return http.StatusConflict, "status_change_in_progress"
	case errors.Is(err, apperr.ErrTransport):
		return http.StatusBadGateway, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeAppError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: status=%d error=%v", status, err)
	}
	writeError(w, status, code, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
