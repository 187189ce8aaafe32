// Package chattest provides an in-memory chat.Repository for tests.
package chattest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/chat"
)

type Store struct {
	mu       sync.Mutex
	messages []chat.Message
	clock    time.Time

	// InsertErr, when set, fails Insert.
	InsertErr error
	// ListErr, when set, fails ListForUser and ListByBooking.
	ListErr error
}

func NewStore() *Store {
	return &Store{clock: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

// Seed appends m, assigning an id and a strictly increasing timestamp when
// they are empty.
func (s *Store) Seed(m chat.Message) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		s.clock = s.clock.Add(time.Minute)
		m.CreatedAt = s.clock
	}
	s.messages = append(s.messages, m)
	return m
}

func (s *Store) All() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Insert(_ context.Context, nm chat.NewMessage) (*chat.Message, error) {
	if s.InsertErr != nil {
		return nil, s.InsertErr
	}
	m := s.Seed(chat.Message{
		BookingID:   nm.BookingID,
		SenderID:    nm.SenderID,
		RecipientID: nm.RecipientID,
		Content:     nm.Content,
	})
	return &m, nil
}

func (s *Store) ListByBooking(_ context.Context, bookingID uuid.UUID) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []chat.Message
	for _, m := range s.messages {
		if m.BookingID == bookingID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListForUser(_ context.Context, userID uuid.UUID) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []chat.Message
	for _, m := range s.messages {
		if m.SenderID == userID || m.RecipientID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, bookingID, recipientID uuid.UUID) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated []chat.Message
	for i := range s.messages {
		m := &s.messages[i]
		if m.BookingID == bookingID && m.RecipientID == recipientID && !m.IsRead {
			m.IsRead = true
			updated = append(updated, *m)
		}
	}
	return updated, nil
}
