package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/apperr"
	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/chat"
	"github.com/hackgods/service-marketplace/internal/conversation"
	"github.com/hackgods/service-marketplace/internal/notification"
	"github.com/hackgods/service-marketplace/internal/role"
)

const (
	notifyTimeout  = 10 * time.Second
	previewMaxRune = 100
)

type BookingReader interface {
	GetBookingByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*booking.Profile, error)
}

// Service is the stateless side of messaging: persisting messages, reading a
// booking's thread and read receipts. Live views wrap it in a Session.
type Service struct {
	messages chat.Repository
	bookings BookingReader
	resolver *role.Resolver
	notifier notification.Notifier

	wg sync.WaitGroup
}

func NewService(messages chat.Repository, bookings BookingReader, resolver *role.Resolver, notifier notification.Notifier) *Service {
	return &Service{
		messages: messages,
		bookings: bookings,
		resolver: resolver,
		notifier: notifier,
	}
}

// participant loads the booking and resolves the viewer against it.
func (s *Service) participant(ctx context.Context, viewer, bookingID uuid.UUID) (*booking.Booking, role.Resolution, error) {
	if viewer == uuid.Nil {
		return nil, role.Resolution{}, apperr.ErrAuthRequired
	}

	b, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, role.Resolution{}, fmt.Errorf("load booking: %w", err)
	}

	res, err := s.resolver.Resolve(ctx, *b, viewer)
	if err != nil {
		return nil, role.Resolution{}, err
	}
	return b, res, nil
}

// authorize fails with booking.ErrBookingNotFound unless viewer is a party
// to the booking.
func (s *Service) authorize(ctx context.Context, viewer, bookingID uuid.UUID) error {
	_, res, err := s.participant(ctx, viewer, bookingID)
	if err != nil {
		return err
	}
	if !res.Resolved() {
		return booking.ErrBookingNotFound
	}
	return nil
}

// Send persists a message from viewer to the other party of the booking and
// notifies the recipient in the background.
func (s *Service) Send(ctx context.Context, viewer, bookingID uuid.UUID, content string) (*chat.Message, error) {
	if viewer == uuid.Nil {
		return nil, apperr.ErrAuthRequired
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("message content is empty")
	}

	b, res, err := s.participant(ctx, viewer, bookingID)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			return nil, fmt.Errorf("%w: booking %s not found", apperr.ErrRecipientUnresolved, bookingID)
		}
		return nil, err
	}
	if !res.Resolved() {
		return nil, fmt.Errorf("%w: booking %s", apperr.ErrRecipientUnresolved, b.ID)
	}

	m, err := s.messages.Insert(ctx, chat.NewMessage{
		BookingID:   b.ID,
		SenderID:    viewer,
		RecipientID: res.OtherParty,
		Content:     content,
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	s.notifyAsync(ctx, *m)
	return m, nil
}

func (s *Service) notifyAsync(ctx context.Context, m chat.Message) {
	if s.notifier == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		sender := s.Profile(ctx, m.SenderID)
		err := s.notifier.Notify(ctx, m.RecipientID, notification.KindNewMessage, notification.Payload{
			Title:     "New message from " + sender.FullName,
			Message:   preview(m.Content),
			RelatedID: &m.BookingID,
		})
		if err != nil {
			log.Printf("message %s new_message notification failed: %v", m.ID, err)
		}
	}()
}

// Wait blocks until background notifications have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Messages returns the booking's thread, oldest first.
func (s *Service) Messages(ctx context.Context, viewer, bookingID uuid.UUID) ([]chat.Message, error) {
	if err := s.authorize(ctx, viewer, bookingID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return msgs, nil
}

// MarkRead marks every unread message on the booking addressed to viewer.
func (s *Service) MarkRead(ctx context.Context, viewer, bookingID uuid.UUID) ([]chat.Message, error) {
	if err := s.authorize(ctx, viewer, bookingID); err != nil {
		return nil, err
	}

	updated, err := s.messages.MarkRead(ctx, bookingID, viewer)
	if err != nil {
		return nil, fmt.Errorf("mark messages read: %w", err)
	}
	return updated, nil
}

// Profile returns the user's display profile, or a placeholder when it
// cannot be loaded.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) booking.Profile {
	p, err := s.bookings.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			log.Printf("load profile %s: %v", userID, err)
		}
		return conversation.Placeholder(userID)
	}
	return *p
}

func preview(content string) string {
	r := []rune(content)
	if len(r) <= previewMaxRune {
		return content
	}
	return string(r[:previewMaxRune-1]) + "…"
}
