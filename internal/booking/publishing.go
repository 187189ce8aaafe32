package booking

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/realtime"
)

// PublishingRepository emits a realtime event on the bookings topic after
// every successful write. Publish failures are logged; the write stands.
type PublishingRepository struct {
	Repository
	transport realtime.Transport
}

func NewPublishingRepository(repo Repository, transport realtime.Transport) *PublishingRepository {
	return &PublishingRepository{Repository: repo, transport: transport}
}

func (r *PublishingRepository) CreateBooking(ctx context.Context, nb NewBooking) (*Booking, error) {
	b, err := r.Repository.CreateBooking(ctx, nb)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, realtime.EventInsert, b)
	return b, nil
}

func (r *PublishingRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	b, err := r.Repository.UpdateBookingStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, realtime.EventUpdate, b)
	return b, nil
}

func (r *PublishingRepository) DeleteBooking(ctx context.Context, id uuid.UUID, from Status) (*Booking, error) {
	b, err := r.Repository.DeleteBooking(ctx, id, from)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, realtime.EventDelete, b)
	return b, nil
}

func (r *PublishingRepository) publish(ctx context.Context, typ realtime.EventType, b *Booking) {
	ev, err := realtime.NewEvent(realtime.TableBookings, typ, b)
	if err != nil {
		log.Printf("booking %s realtime event: %v", b.ID, err)
		return
	}
	if err := r.transport.Publish(ctx, realtime.BookingsTopic(), ev); err != nil {
		log.Printf("booking %s realtime publish: %v", b.ID, err)
	}
}
