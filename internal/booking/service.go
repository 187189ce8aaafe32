package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/apperr"
	"github.com/hackgods/service-marketplace/internal/notification"
	redisclient "github.com/hackgods/service-marketplace/internal/redis"
)

var (
	ErrStatusChangeInProgress = errors.New("booking status is being changed, please retry")
)

type CreateInput struct {
	ClientID          uuid.UUID
	ServiceProviderID uuid.UUID
	ServiceID         *uuid.UUID
	Date              string
	Time              string
	Notes             string
	DurationHours     int
}

// Service is the booking ledger. It owns booking creation and the
// pending -> confirmed | declined transitions.
type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier notification.Notifier
}

func NewService(repo Repository, locker redisclient.Locker, notifier notification.Notifier) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
	}
}

// Create stores a pending booking. It does not notify anyone; callers follow
// up with NotifyRequested once the booking is persisted.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Booking, error) {
	if in.ClientID == uuid.Nil {
		return nil, apperr.ErrAuthRequired
	}
	if in.ServiceProviderID == uuid.Nil {
		return nil, apperr.Validation("service_provider_id is required")
	}

	date, err := NormalizeDate(in.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: booking_date: %w", apperr.ErrValidation, err)
	}
	clock, err := NormalizeTime(in.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: booking_time: %w", apperr.ErrValidation, err)
	}

	duration := in.DurationHours
	if duration <= 0 {
		duration = 1
	}

	var notes *string
	if n := strings.TrimSpace(in.Notes); n != "" {
		notes = &n
	}

	b, err := s.repo.CreateBooking(ctx, NewBooking{
		ClientID:          in.ClientID,
		ServiceProviderID: in.ServiceProviderID,
		ServiceID:         in.ServiceID,
		BookingDate:       date,
		BookingTime:       clock,
		DurationHours:     duration,
		Notes:             notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	return b, nil
}

// NotifyRequested tells the provider about a new booking request.
func (s *Service) NotifyRequested(ctx context.Context, b *Booking) {
	provider, err := s.repo.GetProviderByID(ctx, b.ServiceProviderID)
	if err != nil {
		log.Printf("booking %s request notification: load provider: %v", b.ID, err)
		return
	}

	clientName := "A client"
	if p, err := s.repo.GetProfile(ctx, b.ClientID); err == nil && p.FullName != "" {
		clientName = p.FullName
	}

	s.notify(ctx, provider.UserID, notification.KindBookingRequest, notification.Payload{
		Title:     "New Booking Request",
		Message:   fmt.Sprintf("%s requested a booking on %s.", clientName, FormatWhen(*b)),
		RelatedID: &b.ID,
	}, b.ID)
}

// SetStatus confirms or declines a pending booking on behalf of the provider
// that owns it. It reports false without an error when the caller does not
// own the booking, the booking is gone, or it is no longer pending.
// Declining deletes the row.
func (s *Service) SetStatus(ctx context.Context, bookingID, callerUserID uuid.UUID, status Status) (bool, error) {
	if callerUserID == uuid.Nil {
		return false, apperr.ErrAuthRequired
	}
	if status != StatusConfirmed && status != StatusDeclined {
		return false, apperr.Validation("status must be %q or %q", StatusConfirmed, StatusDeclined)
	}

	provider, err := s.repo.GetProviderByUserID(ctx, callerUserID)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load caller provider: %w", err)
	}

	var (
		changed *Booking
		ok      bool
	)

	err = s.locker.WithLock(ctx, "booking:"+bookingID.String(), func(lockCtx context.Context) error {
		b, err := s.repo.GetBookingByID(lockCtx, bookingID)
		if err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				return nil
			}
			return fmt.Errorf("load booking: %w", err)
		}
		if b.ServiceProviderID != provider.ID || b.Status != StatusPending {
			return nil
		}

		if status == StatusConfirmed {
			changed, err = s.repo.UpdateBookingStatus(lockCtx, b.ID, StatusPending, StatusConfirmed)
		} else {
			changed, err = s.repo.DeleteBooking(lockCtx, b.ID, StatusPending)
		}
		if err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				// lost the compare-and-swap to a writer outside the lock
				changed = nil
				return nil
			}
			return fmt.Errorf("set booking status: %w", err)
		}
		ok = true
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return false, ErrStatusChangeInProgress
		}
		return false, err
	}
	if !ok {
		return false, nil
	}

	s.notifyStatus(ctx, changed, provider, status)
	return true, nil
}

func (s *Service) notifyStatus(ctx context.Context, b *Booking, provider *ServiceProvider, status Status) {
	when := FormatWhen(*b)

	p := notification.Payload{RelatedID: &b.ID}
	switch status {
	case StatusConfirmed:
		p.Title = "Booking Confirmed"
		p.Message = fmt.Sprintf("%s confirmed your booking for %s.", provider.BusinessName, when)
	case StatusDeclined:
		p.Title = "Booking Declined"
		p.Message = fmt.Sprintf("%s declined your booking for %s.", provider.BusinessName, when)
	}

	s.notify(ctx, b.ClientID, notification.KindBookingUpdate, p, b.ID)
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, kind notification.Kind, p notification.Payload, bookingID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, p); err != nil {
		log.Printf("booking %s %s notification failed: %v", bookingID, kind, err)
	}
}

// Get returns a booking the viewer takes part in.
func (s *Service) Get(ctx context.Context, id, viewer uuid.UUID) (*Booking, error) {
	if viewer == uuid.Nil {
		return nil, apperr.ErrAuthRequired
	}

	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b.ClientID == viewer {
		return b, nil
	}

	provider, err := s.repo.GetProviderByID(ctx, b.ServiceProviderID)
	if err != nil {
		return nil, fmt.Errorf("get booking provider: %w", err)
	}
	if provider.UserID != viewer {
		// non participants see the same answer as for a missing row
		return nil, ErrBookingNotFound
	}
	return b, nil
}

// ListForUser returns bookings where the viewer is the client or owns the
// provider profile, latest slot first.
func (s *Service) ListForUser(ctx context.Context, viewer uuid.UUID) ([]Booking, error) {
	if viewer == uuid.Nil {
		return nil, apperr.ErrAuthRequired
	}

	items, err := s.repo.ListBookingsForUser(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartsAt().After(items[j].StartsAt())
	})
	return items, nil
}

// CompleteElapsed moves confirmed bookings whose slot has ended to
// completed. Intended to be called by the worker periodically.
func (s *Service) CompleteElapsed(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.repo.FindElapsedConfirmed(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find elapsed bookings: %w", err)
	}

	completed := 0
	for _, b := range candidates {
		if !b.EndsAt().Before(now) {
			continue
		}
		_, err := s.repo.UpdateBookingStatus(ctx, b.ID, StatusConfirmed, StatusCompleted)
		if err != nil {
			if !errors.Is(err, ErrBookingNotFound) {
				log.Printf("failed to complete booking %s: %v", b.ID, err)
			}
			continue
		}
		completed++
	}

	return completed, nil
}
