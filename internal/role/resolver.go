// Package role works out which side of a booking a user is on. Bookings
// point at a provider profile, so deciding whether a user is the provider
// takes a lookup of that profile's owning account.
package role

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/booking"
)

type Role int

const (
	// Unresolvable means the provider profile is missing or the viewer is
	// not a party to the booking.
	Unresolvable Role = iota
	Provider
	Client
)

func (r Role) String() string {
	switch r {
	case Provider:
		return "provider"
	case Client:
		return "client"
	default:
		return "unresolvable"
	}
}

type Resolution struct {
	Role       Role
	OtherParty uuid.UUID
}

func (r Resolution) IsProvider() bool { return r.Role == Provider }

func (r Resolution) Resolved() bool { return r.Role != Unresolvable }

// Resolve decides the viewer's role given the booking's provider profile.
// A nil provider yields Unresolvable.
func Resolve(b booking.Booking, provider *booking.ServiceProvider, viewer uuid.UUID) Resolution {
	if provider == nil || provider.ID != b.ServiceProviderID || viewer == uuid.Nil {
		return Resolution{Role: Unresolvable}
	}

	switch viewer {
	case provider.UserID:
		return Resolution{Role: Provider, OtherParty: b.ClientID}
	case b.ClientID:
		return Resolution{Role: Client, OtherParty: provider.UserID}
	default:
		return Resolution{Role: Unresolvable}
	}
}

type ProviderLookup interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*booking.ServiceProvider, error)
}

type Resolver struct {
	providers ProviderLookup
}

func NewResolver(providers ProviderLookup) *Resolver {
	return &Resolver{providers: providers}
}

// Resolve looks up the booking's provider and resolves the viewer against
// it. A missing provider is Unresolvable, not an error; lookup failures are
// returned so callers can tell "mapping missing" from "store down".
func (r *Resolver) Resolve(ctx context.Context, b booking.Booking, viewer uuid.UUID) (Resolution, error) {
	provider, err := r.providers.GetProviderByID(ctx, b.ServiceProviderID)
	if err != nil {
		if errors.Is(err, booking.ErrProviderNotFound) {
			return Resolution{Role: Unresolvable}, nil
		}
		return Resolution{Role: Unresolvable}, fmt.Errorf("resolve role: %w", err)
	}
	return Resolve(b, provider, viewer), nil
}

// IsProvider reports whether viewer owns the booking's provider profile.
func (r *Resolver) IsProvider(ctx context.Context, b booking.Booking, viewer uuid.UUID) (bool, error) {
	res, err := r.Resolve(ctx, b, viewer)
	if err != nil {
		return false, err
	}
	return res.IsProvider(), nil
}

// OtherParty returns the account on the other side of the booking.
func (r *Resolver) OtherParty(ctx context.Context, b booking.Booking, viewer uuid.UUID) (uuid.UUID, bool, error) {
	res, err := r.Resolve(ctx, b, viewer)
	if err != nil {
		return uuid.Nil, false, err
	}
	return res.OtherParty, res.Resolved(), nil
}
