package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/service-marketplace/internal/apperr"
	"github.com/hackgods/service-marketplace/internal/auth"
	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/booking/bookingtest"
	"github.com/hackgods/service-marketplace/internal/chat"
	"github.com/hackgods/service-marketplace/internal/chat/chattest"
	"github.com/hackgods/service-marketplace/internal/conversation"
	"github.com/hackgods/service-marketplace/internal/messaging"
	"github.com/hackgods/service-marketplace/internal/notification"
	"github.com/hackgods/service-marketplace/internal/realtime"
	"github.com/hackgods/service-marketplace/internal/role"
)

// --- Fakes ---

type nopNotifier struct {
	mu    sync.Mutex
	kinds []notification.Kind
}

func (n *nopNotifier) Notify(_ context.Context, _ uuid.UUID, kind notification.Kind, _ notification.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	return nil
}

type mockNotifications struct {
	listFn        func(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]notification.Notification, error)
	markReadFn    func(ctx context.Context, userID, id uuid.UUID) (*notification.Notification, error)
	markAllReadFn func(ctx context.Context, userID uuid.UUID) (int64, error)
}

func (m *mockNotifications) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]notification.Notification, error) {
	return m.listFn(ctx, userID, unreadOnly, limit)
}
func (m *mockNotifications) MarkRead(ctx context.Context, userID, id uuid.UUID) (*notification.Notification, error) {
	return m.markReadFn(ctx, userID, id)
}
func (m *mockNotifications) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return m.markAllReadFn(ctx, userID)
}

// --- Test server ---

type testEnv struct {
	handler       http.Handler
	tokens        *auth.Issuer
	bookings      *bookingtest.Store
	messages      *chattest.Store
	notifier      *nopNotifier
	notifications *mockNotifications
	client        uuid.UUID
	providerUser  uuid.UUID
	provider      booking.ServiceProvider
	booking       booking.Booking
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	bs := bookingtest.NewStore()
	ms := chattest.NewStore()
	bus := realtime.NewMemoryBus(16)
	t.Cleanup(func() { _ = bus.Close() })

	client := bs.AddUser("Casey Client")
	providerUser := bs.AddUser("Pat Provider")
	provider := bs.AddProvider(providerUser, "Pat's Plumbing")
	b := bs.Put(booking.Booking{
		ClientID:          client,
		ServiceProviderID: provider.ID,
		BookingDate:       time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC),
	})

	notifier := &nopNotifier{}
	notifications := &mockNotifications{}
	msgSvc := messaging.NewService(chat.NewPublishingRepository(ms, bus), bs, role.NewResolver(bs), notifier)
	t.Cleanup(msgSvc.Wait)
	deriver := conversation.NewDeriver(ms, bs)
	tokens := auth.NewIssuer("test-secret")

	handler := NewRouter(RouterConfig{
		Bookings:      booking.NewService(bs, &bookingtest.Locker{}, notifier),
		Conversations: deriver,
		Messages:      msgSvc,
		Notifications: notifications,
		Sessions: func(viewer uuid.UUID) *messaging.Session {
			return messaging.NewSession(viewer, msgSvc, deriver, bus, 10*time.Millisecond)
		},
		Tokens: tokens,
		Checks: []Check{
			{Name: "postgres", Critical: true, Ping: func(context.Context) error { return nil }},
		},
		Env:     "test",
		Version: "v0",
	})

	return &testEnv{
		handler:       handler,
		tokens:        tokens,
		bookings:      bs,
		messages:      ms,
		notifier:      notifier,
		notifications: notifications,
		client:        client,
		providerUser:  providerUser,
		provider:      provider,
		booking:       b,
	}
}

func (e *testEnv) token(t *testing.T, user uuid.UUID) string {
	t.Helper()
	tok, err := e.tokens.CreateAccessToken(user, "", time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, user uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// --- Tests ---

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, uuid.Nil, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = e.do(t, uuid.Nil, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[ReadinessResponse](t, rec).Status)
}

func TestReadinessDegradedAndError(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }
	up := func(context.Context) error { return nil }

	cases := []struct {
		name   string
		checks []Check
		code   int
		status string
	}{
		{"optional down", []Check{{Name: "postgres", Critical: true, Ping: up}, {Name: "redis", Ping: down}}, http.StatusOK, "degraded"},
		{"critical down", []Check{{Name: "postgres", Critical: true, Ping: down}, {Name: "redis", Ping: up}}, http.StatusServiceUnavailable, "error"},
		{"both down", []Check{{Name: "redis", Ping: down}, {Name: "postgres", Critical: true, Ping: down}}, http.StatusServiceUnavailable, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler("test", "v0", tc.checks...).Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.status, decodeBody[ReadinessResponse](t, rec).Status)
		})
	}
}

func TestCreateBooking(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, e.client, http.MethodPost, "/bookings", CreateBookingRequest{
		ServiceProviderID: e.provider.ID.String(),
		BookingDate:       "2030-06-01",
		BookingTime:       "2:30 PM",
		Notes:             "Leaky tap",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	b := decodeBody[booking.Booking](t, rec)
	assert.Equal(t, booking.StatusPending, b.Status)
	assert.Equal(t, "14:30:00", b.BookingTime)
	assert.Equal(t, e.client, b.ClientID)
	assert.Contains(t, e.notifier.kinds, notification.KindBookingRequest)
}

func TestCreateBookingErrors(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, uuid.Nil, http.MethodPost, "/bookings", CreateBookingRequest{
		ServiceProviderID: e.provider.ID.String(),
		BookingDate:       "2030-06-01",
		BookingTime:       "10:00",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "auth_required", decodeBody[ErrorResponse](t, rec).Error)

	rec = e.do(t, e.client, http.MethodPost, "/bookings", CreateBookingRequest{
		ServiceProviderID: e.provider.ID.String(),
		BookingDate:       "2030-06-01",
		BookingTime:       "teatime",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeBody[ErrorResponse](t, rec).Error)

	rec = e.do(t, e.client, http.MethodPost, "/bookings", CreateBookingRequest{ServiceProviderID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_service_provider_id", decodeBody[ErrorResponse](t, rec).Error)
}

func TestInvalidTokenRejected(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decodeBody[ErrorResponse](t, rec).Error)
}

func TestGetBookingHiddenFromOutsiders(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, e.providerUser, http.MethodGet, "/bookings/"+e.booking.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, uuid.New(), http.MethodGet, "/bookings/"+e.booking.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, e.client, http.MethodGet, "/bookings/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateBookingStatus(t *testing.T) {
	e := newTestEnv(t)
	path := "/bookings/" + e.booking.ID.String() + "/status"

	// the client does not own the provider profile
	rec := e.do(t, e.client, http.MethodPost, path, UpdateStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[UpdateStatusResponse](t, rec).Updated)

	rec = e.do(t, e.providerUser, http.MethodPost, path, UpdateStatusRequest{Status: "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, e.providerUser, http.MethodPost, path, UpdateStatusRequest{Status: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[UpdateStatusResponse](t, rec).Updated)

	// already confirmed
	rec = e.do(t, e.providerUser, http.MethodPost, path, UpdateStatusRequest{Status: "declined"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[UpdateStatusResponse](t, rec).Updated)
}

func TestConversationFlow(t *testing.T) {
	e := newTestEnv(t)
	base := "/conversations/" + e.booking.ID.String()

	rec := e.do(t, e.client, http.MethodPost, base+"/messages", SendMessageRequest{Content: "Can you come earlier?"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decodeBody[chat.Message](t, rec)
	assert.Equal(t, e.providerUser, sent.RecipientID)

	rec = e.do(t, e.providerUser, http.MethodGet, "/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	convs := decodeBody[[]conversation.Conversation](t, rec)
	require.Len(t, convs, 1)
	assert.True(t, convs[0].IsProvider)
	assert.Equal(t, 1, convs[0].UnreadCount)
	assert.Equal(t, "Casey Client", convs[0].OtherUser.FullName)

	rec = e.do(t, e.providerUser, http.MethodGet, base+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]chat.Message](t, rec), 1)

	rec = e.do(t, e.providerUser, http.MethodPost, base+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[MarkReadResponse](t, rec).Updated)

	rec = e.do(t, e.providerUser, http.MethodPost, base+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[MarkReadResponse](t, rec).Updated)
}

func TestSendMessageErrors(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, e.client, http.MethodPost, "/conversations/"+uuid.NewString()+"/messages", SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "recipient_unresolved", decodeBody[ErrorResponse](t, rec).Error)

	rec = e.do(t, e.client, http.MethodPost, "/conversations/"+e.booking.ID.String()+"/messages", SendMessageRequest{Content: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	e.messages.InsertErr = apperr.Transport("insert message", errors.New("connection reset"))
	rec = e.do(t, e.client, http.MethodPost, "/conversations/"+e.booking.ID.String()+"/messages", SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "upstream_unavailable", decodeBody[ErrorResponse](t, rec).Error)
}

func TestNotifications(t *testing.T) {
	e := newTestEnv(t)
	id := uuid.New()

	var gotUnread bool
	var gotLimit int
	e.notifications.listFn = func(_ context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]notification.Notification, error) {
		gotUnread, gotLimit = unreadOnly, limit
		return []notification.Notification{{ID: id, UserID: userID, Type: notification.KindNewMessage}}, nil
	}
	e.notifications.markReadFn = func(_ context.Context, userID, nid uuid.UUID) (*notification.Notification, error) {
		if nid != id {
			return nil, notification.ErrNotificationNotFound
		}
		return &notification.Notification{ID: nid, UserID: userID, IsRead: true}, nil
	}
	e.notifications.markAllReadFn = func(context.Context, uuid.UUID) (int64, error) { return 3, nil }

	rec := e.do(t, e.client, http.MethodGet, "/notifications?unread=true&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]notification.Notification](t, rec), 1)
	assert.True(t, gotUnread)
	assert.Equal(t, 5, gotLimit)

	rec = e.do(t, e.client, http.MethodGet, "/notifications?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, e.client, http.MethodPost, "/notifications/"+id.String()+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[notification.Notification](t, rec).IsRead)

	rec = e.do(t, e.client, http.MethodPost, "/notifications/"+uuid.NewString()+"/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, e.client, http.MethodPost, "/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), decodeBody[MarkAllReadResponse](t, rec).Updated)
}

func TestWebSocketRequiresAuth(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketSession(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?access_token=" + e.token(t, e.client)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// reads frames until one satisfies match
	await := func(match func(wsFrame) bool) wsFrame {
		t.Helper()
		for {
			var f wsFrame
			require.NoError(t, conn.ReadJSON(&f))
			if match(f) {
				return f
			}
		}
	}

	await(func(f wsFrame) bool { return f.Type == "state" })

	require.NoError(t, conn.WriteJSON(wsCommand{Type: cmdOpen, BookingID: e.booking.ID.String()}))
	await(func(f wsFrame) bool {
		return f.Type == "state" && f.State.CurrentBookingID != nil && *f.State.CurrentBookingID == e.booking.ID && !f.State.Loading
	})

	require.NoError(t, conn.WriteJSON(wsCommand{Type: cmdSend, BookingID: e.booking.ID.String(), Content: "Hello there", RequestID: "r1"}))
	sent := await(func(f wsFrame) bool { return f.Type == "sent" })
	assert.Equal(t, "r1", sent.RequestID)
	require.NotNil(t, sent.Message)
	assert.Equal(t, "Hello there", sent.Message.Content)

	require.NoError(t, conn.WriteJSON(wsCommand{Type: cmdSend, BookingID: e.booking.ID.String(), Content: " ", RequestID: "r2"}))
	bad := await(func(f wsFrame) bool { return f.Type == "error" })
	assert.Equal(t, "r2", bad.RequestID)
	assert.Equal(t, "validation_failed", bad.Error.Error)

	require.NoError(t, conn.WriteJSON(wsCommand{Type: "dance"}))
	unknown := await(func(f wsFrame) bool { return f.Type == "error" })
	assert.Equal(t, "validation_failed", unknown.Error.Error)

	// a reply from the provider shows up in the pushed state
	rec := e.do(t, e.providerUser, http.MethodPost, "/conversations/"+e.booking.ID.String()+"/messages", SendMessageRequest{Content: "On my way"})
	require.Equal(t, http.StatusCreated, rec.Code)
	reply := decodeBody[chat.Message](t, rec)
	await(func(f wsFrame) bool {
		if f.Type != "state" {
			return false
		}
		for _, m := range f.State.Messages {
			if m.ID == reply.ID {
				return true
			}
		}
		return false
	})
}
