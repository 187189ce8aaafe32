package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/apperr"
)

var (
	ErrBookingNotFound  = fmt.Errorf("booking %w", apperr.ErrNotFound)
	ErrProviderNotFound = fmt.Errorf("service provider %w", apperr.ErrNotFound)
	ErrProfileNotFound  = fmt.Errorf("profile %w", apperr.ErrNotFound)
	ErrOfferingNotFound = fmt.Errorf("service %w", apperr.ErrNotFound)
)

// Repository contains all DB interactions needed by the ledger and by the
// read side that enriches conversations.
type Repository interface {
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetBookingsByIDs(ctx context.Context, ids []uuid.UUID) ([]Booking, error)
	ListBookingsForUser(ctx context.Context, userID uuid.UUID) ([]Booking, error)

	// Creation and status changes. Status changes are compare-and-swap on
	// the current status and return ErrBookingNotFound when the row is gone
	// or no longer in the expected status.
	CreateBooking(ctx context.Context, nb NewBooking) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID, from Status) (*Booking, error)

	// Completion worker
	FindElapsedConfirmed(ctx context.Context, now time.Time) ([]Booking, error)

	GetProviderByID(ctx context.Context, id uuid.UUID) (*ServiceProvider, error)
	GetProviderByUserID(ctx context.Context, userID uuid.UUID) (*ServiceProvider, error)
	GetProvidersByIDs(ctx context.Context, ids []uuid.UUID) ([]ServiceProvider, error)

	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	GetProfilesByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]Profile, error)

	GetOfferingsByIDs(ctx context.Context, ids []uuid.UUID) ([]Offering, error)
}
