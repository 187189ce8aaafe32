package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/booking/bookingtest"
	"github.com/hackgods/service-marketplace/internal/realtime"
)

func nextEvent(t *testing.T, sub realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for booking event")
		return realtime.Event{}
	}
}

func TestPublishingRepository_EmitsBookingLifecycle(t *testing.T) {
	ctx := context.Background()
	bus := realtime.NewMemoryBus(8)
	defer bus.Close()

	sub, err := bus.Subscribe(ctx, realtime.BookingsTopic())
	require.NoError(t, err)
	defer sub.Close()

	store := bookingtest.NewStore()
	repo := booking.NewPublishingRepository(store, bus)

	b, err := repo.CreateBooking(ctx, booking.NewBooking{
		ClientID:          uuid.New(),
		ServiceProviderID: uuid.New(),
		BookingDate:       time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC),
		BookingTime:       "09:30:00",
		DurationHours:     2,
	})
	require.NoError(t, err)

	ev := nextEvent(t, sub)
	assert.Equal(t, realtime.TableBookings, ev.Table)
	assert.Equal(t, realtime.EventInsert, ev.Type)
	var got booking.Booking
	require.NoError(t, ev.Decode(&got))
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, booking.StatusPending, got.Status)

	_, err = repo.UpdateBookingStatus(ctx, b.ID, booking.StatusPending, booking.StatusConfirmed)
	require.NoError(t, err)
	ev = nextEvent(t, sub)
	assert.Equal(t, realtime.EventUpdate, ev.Type)
	require.NoError(t, ev.Decode(&got))
	assert.Equal(t, booking.StatusConfirmed, got.Status)

	_, err = repo.DeleteBooking(ctx, b.ID, booking.StatusConfirmed)
	require.NoError(t, err)
	ev = nextEvent(t, sub)
	assert.Equal(t, realtime.EventDelete, ev.Type)
	require.NoError(t, ev.Decode(&got))
	assert.Equal(t, b.ID, got.ID)
}

func TestPublishingRepository_FailedWriteIsSilent(t *testing.T) {
	ctx := context.Background()
	bus := realtime.NewMemoryBus(8)
	defer bus.Close()

	sub, err := bus.Subscribe(ctx, realtime.BookingsTopic())
	require.NoError(t, err)
	defer sub.Close()

	store := bookingtest.NewStore()
	repo := booking.NewPublishingRepository(store, bus)

	// lost compare-and-swap
	_, err = repo.UpdateBookingStatus(ctx, uuid.New(), booking.StatusPending, booking.StatusConfirmed)
	assert.True(t, errors.Is(err, booking.ErrBookingNotFound))

	store.Err = errors.New("connection reset")
	_, err = repo.CreateBooking(ctx, booking.NewBooking{ClientID: uuid.New(), ServiceProviderID: uuid.New()})
	require.Error(t, err)

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
