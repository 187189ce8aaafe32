// Package conversation derives a user's conversation list from the message
// log. There is no conversation table: a conversation is every message on
// one booking, enriched with the booking and the other participant.
package conversation

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/chat"
	"github.com/hackgods/service-marketplace/internal/role"
)

const (
	PlaceholderName     = "Unknown User"
	DefaultServiceTitle = "Service Booking"
)

type BookingSnapshot struct {
	BookingDate  time.Time      `json:"booking_date"`
	BookingTime  string         `json:"booking_time"`
	Status       booking.Status `json:"status"`
	ServiceTitle string         `json:"service_title"`
	Notes        *string        `json:"notes,omitempty"`
}

type Conversation struct {
	BookingID         uuid.UUID       `json:"booking_id"`
	ServiceProviderID uuid.UUID       `json:"service_provider_id"`
	ClientID          uuid.UUID       `json:"client_id"`
	LastMessageDate   time.Time       `json:"last_message_date"`
	IsProvider        bool            `json:"is_provider"`
	Booking           BookingSnapshot `json:"booking"`
	OtherUser         booking.Profile `json:"other_user"`
	UnreadCount       int             `json:"unread_count"`
}

// Inputs is everything Derive reads. Rows missing from a slice are treated
// as missing from the store.
type Inputs struct {
	Messages  []chat.Message
	Bookings  []booking.Booking
	Providers []booking.ServiceProvider
	Profiles  []booking.Profile
	Offerings []booking.Offering
}

type group struct {
	last   time.Time
	unread int
}

// groupMessages keeps only messages the viewer sent or received, keyed by
// booking.
func groupMessages(viewer uuid.UUID, msgs []chat.Message) map[uuid.UUID]*group {
	groups := make(map[uuid.UUID]*group)
	for _, m := range msgs {
		if m.SenderID != viewer && m.RecipientID != viewer {
			continue
		}
		g, ok := groups[m.BookingID]
		if !ok {
			g = &group{last: m.CreatedAt}
			groups[m.BookingID] = g
		}
		if m.CreatedAt.After(g.last) {
			g.last = m.CreatedAt
		}
		if m.RecipientID == viewer && !m.IsRead {
			g.unread++
		}
	}
	return groups
}

// Derive builds the viewer's conversation list. Bookings with no messages,
// missing bookings and bookings whose roles cannot be resolved are left out;
// a missing profile becomes a placeholder. Output is sorted by last message,
// newest first. Derive is pure: the same inputs give the same list.
func Derive(viewer uuid.UUID, in Inputs) []Conversation {
	groups := groupMessages(viewer, in.Messages)

	bookings := make(map[uuid.UUID]booking.Booking, len(in.Bookings))
	for _, b := range in.Bookings {
		bookings[b.ID] = b
	}
	providers := make(map[uuid.UUID]booking.ServiceProvider, len(in.Providers))
	for _, p := range in.Providers {
		providers[p.ID] = p
	}
	profiles := make(map[uuid.UUID]booking.Profile, len(in.Profiles))
	for _, p := range in.Profiles {
		profiles[p.UserID] = p
	}
	offerings := make(map[uuid.UUID]booking.Offering, len(in.Offerings))
	for _, o := range in.Offerings {
		offerings[o.ID] = o
	}

	out := make([]Conversation, 0, len(groups))
	for bookingID, g := range groups {
		b, ok := bookings[bookingID]
		if !ok {
			continue
		}

		var provider *booking.ServiceProvider
		if p, ok := providers[b.ServiceProviderID]; ok {
			provider = &p
		}
		res := role.Resolve(b, provider, viewer)
		if !res.Resolved() {
			continue
		}

		other, ok := profiles[res.OtherParty]
		if !ok {
			other = Placeholder(res.OtherParty)
		}

		out = append(out, Conversation{
			BookingID:         b.ID,
			ServiceProviderID: b.ServiceProviderID,
			ClientID:          b.ClientID,
			LastMessageDate:   g.last,
			IsProvider:        res.IsProvider(),
			Booking: BookingSnapshot{
				BookingDate:  b.BookingDate,
				BookingTime:  b.BookingTime,
				Status:       b.Status,
				ServiceTitle: ServiceTitle(b, offerings),
				Notes:        b.Notes,
			},
			OtherUser:   other,
			UnreadCount: g.unread,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageDate.Equal(out[j].LastMessageDate) {
			return out[i].LastMessageDate.After(out[j].LastMessageDate)
		}
		return out[i].BookingID.String() < out[j].BookingID.String()
	})

	return out
}

// ServiceTitle prefers the linked service's description, then the booking
// notes, then a generic label.
func ServiceTitle(b booking.Booking, offerings map[uuid.UUID]booking.Offering) string {
	if b.ServiceID != nil {
		if o, ok := offerings[*b.ServiceID]; ok && o.Description != nil {
			if d := strings.TrimSpace(*o.Description); d != "" {
				return d
			}
		}
	}
	if b.Notes != nil {
		if n := strings.TrimSpace(*b.Notes); n != "" {
			return n
		}
	}
	return DefaultServiceTitle
}

func Placeholder(userID uuid.UUID) booking.Profile {
	return booking.Profile{UserID: userID, FullName: PlaceholderName}
}
