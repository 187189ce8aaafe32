// Package bookingtest provides an in-memory booking.Repository for tests.
package bookingtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/booking"
)

type Store struct {
	mu        sync.Mutex
	bookings  map[uuid.UUID]booking.Booking
	providers map[uuid.UUID]booking.ServiceProvider
	profiles  map[uuid.UUID]booking.Profile
	offerings map[uuid.UUID]booking.Offering

	// Err, when set, is returned by every call.
	Err error
	// ProfileErr, when set, is returned by profile lookups only.
	ProfileErr error
}

func NewStore() *Store {
	return &Store{
		bookings:  make(map[uuid.UUID]booking.Booking),
		providers: make(map[uuid.UUID]booking.ServiceProvider),
		profiles:  make(map[uuid.UUID]booking.Profile),
		offerings: make(map[uuid.UUID]booking.Offering),
	}
}

// AddUser stores a profile and returns its user id.
func (s *Store) AddUser(name string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.profiles[id] = booking.Profile{UserID: id, FullName: name}
	return id
}

// AddProvider stores a provider profile owned by userID.
func (s *Store) AddProvider(userID uuid.UUID, businessName string) booking.ServiceProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := booking.ServiceProvider{ID: uuid.New(), UserID: userID, BusinessName: businessName, CreatedAt: time.Now()}
	s.providers[p.ID] = p
	return p
}

func (s *Store) AddOffering(providerID uuid.UUID, title string, description *string) booking.Offering {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := booking.Offering{ID: uuid.New(), ServiceProviderID: providerID, Title: title, Description: description}
	s.offerings[o.ID] = o
	return o
}

// Put stores b as is, assigning an id when empty.
func (s *Store) Put(b booking.Booking) booking.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = booking.StatusPending
	}
	if b.DurationHours == 0 {
		b.DurationHours = 1
	}
	if b.BookingTime == "" {
		b.BookingTime = "10:00:00"
	}
	s.bookings[b.ID] = b
	return b
}

func (s *Store) RemoveProvider(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.providers, id)
}

func (s *Store) RemoveProfile(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
}

func (s *Store) GetBookingByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	b, ok := s.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return &b, nil
}

func (s *Store) GetBookingsByIDs(_ context.Context, ids []uuid.UUID) ([]booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []booking.Booking
	for _, id := range ids {
		if b, ok := s.bookings[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) ListBookingsForUser(_ context.Context, userID uuid.UUID) ([]booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []booking.Booking
	for _, b := range s.bookings {
		p := s.providers[b.ServiceProviderID]
		if b.ClientID == userID || p.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) CreateBooking(_ context.Context, nb booking.NewBooking) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	now := time.Now()
	b := booking.Booking{
		ID:                uuid.New(),
		ClientID:          nb.ClientID,
		ServiceProviderID: nb.ServiceProviderID,
		ServiceID:         nb.ServiceID,
		BookingDate:       nb.BookingDate,
		BookingTime:       nb.BookingTime,
		DurationHours:     nb.DurationHours,
		Status:            booking.StatusPending,
		Notes:             nb.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.bookings[b.ID] = b
	return &b, nil
}

func (s *Store) UpdateBookingStatus(_ context.Context, id uuid.UUID, from, to booking.Status) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	b, ok := s.bookings[id]
	if !ok || b.Status != from {
		return nil, booking.ErrBookingNotFound
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	s.bookings[id] = b
	return &b, nil
}

func (s *Store) DeleteBooking(_ context.Context, id uuid.UUID, from booking.Status) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	b, ok := s.bookings[id]
	if !ok || b.Status != from {
		return nil, booking.ErrBookingNotFound
	}
	delete(s.bookings, id)
	return &b, nil
}

func (s *Store) FindElapsedConfirmed(_ context.Context, now time.Time) ([]booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []booking.Booking
	for _, b := range s.bookings {
		if b.Status == booking.StatusConfirmed && b.EndsAt().Before(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) GetProviderByID(_ context.Context, id uuid.UUID) (*booking.ServiceProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.providers[id]
	if !ok {
		return nil, booking.ErrProviderNotFound
	}
	return &p, nil
}

func (s *Store) GetProviderByUserID(_ context.Context, userID uuid.UUID) (*booking.ServiceProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, p := range s.providers {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, booking.ErrProviderNotFound
}

func (s *Store) GetProvidersByIDs(_ context.Context, ids []uuid.UUID) ([]booking.ServiceProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []booking.ServiceProvider
	for _, id := range ids {
		if p, ok := s.providers[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) GetProfile(_ context.Context, userID uuid.UUID) (*booking.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.ProfileErr != nil {
		return nil, s.ProfileErr
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, booking.ErrProfileNotFound
	}
	return &p, nil
}

func (s *Store) GetProfilesByUserIDs(_ context.Context, userIDs []uuid.UUID) ([]booking.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.ProfileErr != nil {
		return nil, s.ProfileErr
	}
	var out []booking.Profile
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) GetOfferingsByIDs(_ context.Context, ids []uuid.UUID) ([]booking.Offering, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []booking.Offering
	for _, id := range ids {
		if o, ok := s.offerings[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// Locker runs fn directly, or fails with Err when set.
type Locker struct {
	Err   error
	Calls int
}

func (l *Locker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	l.Calls++
	if l.Err != nil {
		return l.Err
	}
	return fn(ctx)
}
