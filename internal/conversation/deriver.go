package conversation

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/apperr"
	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/chat"
	"github.com/hackgods/service-marketplace/internal/role"
)

type MessageSource interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]chat.Message, error)
}

type BookingSource interface {
	GetBookingsByIDs(ctx context.Context, ids []uuid.UUID) ([]booking.Booking, error)
	GetProvidersByIDs(ctx context.Context, ids []uuid.UUID) ([]booking.ServiceProvider, error)
	GetProfilesByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]booking.Profile, error)
	GetOfferingsByIDs(ctx context.Context, ids []uuid.UUID) ([]booking.Offering, error)
}

// Deriver loads the rows Derive needs, in batches, and runs it.
type Deriver struct {
	messages MessageSource
	bookings BookingSource
}

func NewDeriver(messages MessageSource, bookings BookingSource) *Deriver {
	return &Deriver{messages: messages, bookings: bookings}
}

// List returns the viewer's conversations. Failing to load messages,
// bookings or providers fails the call; failing to load profiles or
// services only degrades the display.
func (d *Deriver) List(ctx context.Context, viewer uuid.UUID) ([]Conversation, error) {
	if viewer == uuid.Nil {
		return nil, apperr.ErrAuthRequired
	}

	msgs, err := d.messages.ListForUser(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	groups := groupMessages(viewer, msgs)
	if len(groups) == 0 {
		return []Conversation{}, nil
	}

	bookingIDs := make([]uuid.UUID, 0, len(groups))
	for id := range groups {
		bookingIDs = append(bookingIDs, id)
	}

	bookings, err := d.bookings.GetBookingsByIDs(ctx, bookingIDs)
	if err != nil {
		return nil, fmt.Errorf("load conversation bookings: %w", err)
	}

	providers, err := d.bookings.GetProvidersByIDs(ctx, uniq(bookings, func(b booking.Booking) (uuid.UUID, bool) {
		return b.ServiceProviderID, true
	}))
	if err != nil {
		return nil, fmt.Errorf("load conversation providers: %w", err)
	}

	byID := make(map[uuid.UUID]booking.ServiceProvider, len(providers))
	for _, p := range providers {
		byID[p.ID] = p
	}
	otherIDs := uniq(bookings, func(b booking.Booking) (uuid.UUID, bool) {
		p, ok := byID[b.ServiceProviderID]
		if !ok {
			return uuid.Nil, false
		}
		res := role.Resolve(b, &p, viewer)
		return res.OtherParty, res.Resolved()
	})

	profiles, err := d.bookings.GetProfilesByUserIDs(ctx, otherIDs)
	if err != nil {
		log.Printf("conversation list for %s: load profiles: %v", viewer, err)
		profiles = nil
	}

	offerings, err := d.bookings.GetOfferingsByIDs(ctx, uniq(bookings, func(b booking.Booking) (uuid.UUID, bool) {
		if b.ServiceID == nil {
			return uuid.Nil, false
		}
		return *b.ServiceID, true
	}))
	if err != nil {
		log.Printf("conversation list for %s: load services: %v", viewer, err)
		offerings = nil
	}

	return Derive(viewer, Inputs{
		Messages:  msgs,
		Bookings:  bookings,
		Providers: providers,
		Profiles:  profiles,
		Offerings: offerings,
	}), nil
}

func uniq(bookings []booking.Booking, key func(booking.Booking) (uuid.UUID, bool)) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(bookings))
	var out []uuid.UUID
	for _, b := range bookings {
		id, ok := key(b)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
