package conversation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/service-marketplace/internal/apperr"
	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/booking/bookingtest"
	"github.com/hackgods/service-marketplace/internal/chat"
	"github.com/hackgods/service-marketplace/internal/chat/chattest"
	"github.com/hackgods/service-marketplace/internal/conversation"
)

type world struct {
	bookings     *bookingtest.Store
	messages     *chattest.Store
	deriver      *conversation.Deriver
	client       uuid.UUID
	providerUser uuid.UUID
	provider     booking.ServiceProvider
}

func newWorld() *world {
	bs := bookingtest.NewStore()
	ms := chattest.NewStore()
	client := bs.AddUser("Casey Client")
	providerUser := bs.AddUser("Pat Provider")
	provider := bs.AddProvider(providerUser, "Pat's Plumbing")
	return &world{
		bookings:     bs,
		messages:     ms,
		deriver:      conversation.NewDeriver(ms, bs),
		client:       client,
		providerUser: providerUser,
		provider:     provider,
	}
}

func (w *world) booking(notes string) booking.Booking {
	b := booking.Booking{ClientID: w.client, ServiceProviderID: w.provider.ID}
	if notes != "" {
		b.Notes = &notes
	}
	return w.bookings.Put(b)
}

func (w *world) say(b booking.Booking, from, to uuid.UUID, content string) chat.Message {
	return w.messages.Seed(chat.Message{BookingID: b.ID, SenderID: from, RecipientID: to, Content: content})
}

func TestList_OneConversationPerBooking(t *testing.T) {
	w := newWorld()
	b := w.booking("")
	w.say(b, w.client, w.providerUser, "hi")
	w.say(b, w.providerUser, w.client, "hello")
	last := w.say(b, w.client, w.providerUser, "when?")

	convs, err := w.deriver.List(context.Background(), w.client)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	c := convs[0]
	assert.Equal(t, b.ID, c.BookingID)
	assert.Equal(t, last.CreatedAt, c.LastMessageDate)
	assert.False(t, c.IsProvider)
	assert.Equal(t, w.providerUser, c.OtherUser.UserID)
	assert.Equal(t, "Pat Provider", c.OtherUser.FullName)
	assert.Equal(t, 1, c.UnreadCount)
}

func TestList_ProviderSeesClient(t *testing.T) {
	w := newWorld()
	b := w.booking("")
	w.say(b, w.client, w.providerUser, "When can you arrive?")

	convs, err := w.deriver.List(context.Background(), w.providerUser)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.True(t, convs[0].IsProvider)
	assert.Equal(t, w.client, convs[0].OtherUser.UserID)
	assert.Equal(t, "Casey Client", convs[0].OtherUser.FullName)
}

func TestList_CompletenessAndOrdering(t *testing.T) {
	w := newWorld()
	older := w.booking("")
	newer := w.booking("")
	silent := w.booking("")
	w.say(older, w.client, w.providerUser, "first")
	w.say(newer, w.providerUser, w.client, "second")
	_ = silent

	convs, err := w.deriver.List(context.Background(), w.client)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, newer.ID, convs[0].BookingID)
	assert.Equal(t, older.ID, convs[1].BookingID)

	seen := map[uuid.UUID]bool{}
	for _, m := range w.messages.All() {
		seen[m.BookingID] = true
	}
	for _, c := range convs {
		assert.True(t, seen[c.BookingID])
	}
}

func TestList_DropsMissingBookingAndProvider(t *testing.T) {
	w := newWorld()
	kept := w.booking("")
	w.say(kept, w.client, w.providerUser, "kept")

	// message on a booking row that no longer exists
	w.messages.Seed(chat.Message{BookingID: uuid.New(), SenderID: w.client, RecipientID: w.providerUser, Content: "orphan"})

	// booking whose provider profile vanished
	otherUser := w.bookings.AddUser("Gone Provider")
	gone := w.bookings.AddProvider(otherUser, "Gone")
	orphaned := w.bookings.Put(booking.Booking{ClientID: w.client, ServiceProviderID: gone.ID})
	w.say(orphaned, w.client, otherUser, "anyone?")
	w.bookings.RemoveProvider(gone.ID)

	convs, err := w.deriver.List(context.Background(), w.client)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, kept.ID, convs[0].BookingID)
}

func TestList_PlaceholderProfile(t *testing.T) {
	w := newWorld()
	b := w.booking("")
	w.say(b, w.providerUser, w.client, "hello")
	w.bookings.RemoveProfile(w.providerUser)

	convs, err := w.deriver.List(context.Background(), w.client)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, conversation.PlaceholderName, convs[0].OtherUser.FullName)
	assert.Nil(t, convs[0].OtherUser.AvatarURL)
	assert.Equal(t, w.providerUser, convs[0].OtherUser.UserID)
}

func TestList_ProfileLoadFailureDegrades(t *testing.T) {
	w := newWorld()
	b := w.booking("")
	w.say(b, w.providerUser, w.client, "hello")
	w.bookings.ProfileErr = errors.New("profiles timed out")

	convs, err := w.deriver.List(context.Background(), w.client)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, conversation.PlaceholderName, convs[0].OtherUser.FullName)
}

func TestList_MessageLoadFailureFails(t *testing.T) {
	w := newWorld()
	w.messages.ListErr = apperr.Transport("list", errors.New("boom"))

	_, err := w.deriver.List(context.Background(), w.client)
	assert.ErrorIs(t, err, apperr.ErrTransport)
}

func TestList_RequiresViewer(t *testing.T) {
	w := newWorld()
	_, err := w.deriver.List(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)
}

func TestList_ServiceTitleFallbacks(t *testing.T) {
	w := newWorld()
	desc := "Full bathroom inspection"
	offering := w.bookings.AddOffering(w.provider.ID, "Inspection", &desc)

	withService := w.bookings.Put(booking.Booking{ClientID: w.client, ServiceProviderID: w.provider.ID, ServiceID: &offering.ID})
	withNotes := w.booking("Fix the sink")
	bare := w.booking("")
	for _, b := range []booking.Booking{withService, withNotes, bare} {
		w.say(b, w.client, w.providerUser, "hi")
	}

	convs, err := w.deriver.List(context.Background(), w.client)
	require.NoError(t, err)

	titles := map[uuid.UUID]string{}
	for _, c := range convs {
		titles[c.BookingID] = c.Booking.ServiceTitle
	}
	assert.Equal(t, desc, titles[withService.ID])
	assert.Equal(t, "Fix the sink", titles[withNotes.ID])
	assert.Equal(t, conversation.DefaultServiceTitle, titles[bare.ID])
}

func TestDerive_IsPureAndUnique(t *testing.T) {
	viewer, other := uuid.New(), uuid.New()
	provider := booking.ServiceProvider{ID: uuid.New(), UserID: other}
	b := booking.Booking{ID: uuid.New(), ClientID: viewer, ServiceProviderID: provider.ID}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	in := conversation.Inputs{
		Messages: []chat.Message{
			{ID: uuid.New(), BookingID: b.ID, SenderID: viewer, RecipientID: other, CreatedAt: base},
			{ID: uuid.New(), BookingID: b.ID, SenderID: other, RecipientID: viewer, CreatedAt: base.Add(time.Hour)},
			// not involving the viewer
			{ID: uuid.New(), BookingID: uuid.New(), SenderID: other, RecipientID: uuid.New(), CreatedAt: base},
		},
		Bookings:  []booking.Booking{b},
		Providers: []booking.ServiceProvider{provider},
	}

	first := conversation.Derive(viewer, in)
	second := conversation.Derive(viewer, in)
	assert.Equal(t, first, second)
	require.Len(t, first, 1)
	assert.Equal(t, base.Add(time.Hour), first[0].LastMessageDate)
}
