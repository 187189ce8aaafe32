package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hackgods/service-marketplace/internal/apperr"
	"github.com/hackgods/service-marketplace/internal/auth"
	"github.com/hackgods/service-marketplace/internal/chat"
	"github.com/hackgods/service-marketplace/internal/messaging"
)

const (
	wsReadLimit     = 64 << 10
	wsReadDeadline  = 120 * time.Second // extended by every pong
	wsWriteDeadline = 5 * time.Second
	wsPingInterval  = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client commands.
const (
	cmdOpen     = "open"
	cmdSend     = "send"
	cmdMarkRead = "mark_read"
	cmdRefresh  = "refresh"
)

type wsCommand struct {
	Type      string `json:"type"`
	BookingID string `json:"booking_id,omitempty"`
	Content   string `json:"content,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type wsFrame struct {
	Type      string           `json:"type"`
	RequestID string           `json:"request_id,omitempty"`
	State     *messaging.State `json:"state,omitempty"`
	Message   *chat.Message    `json:"message,omitempty"`
	Error     *ErrorResponse   `json:"error,omitempty"`
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(f wsFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return c.conn.WriteJSON(f)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) writeErr(requestID string, err error) error {
	_, code := classify(err)
	return c.write(wsFrame{
		Type:      "error",
		RequestID: requestID,
		Error:     &ErrorResponse{Error: code, Details: err.Error()},
	})
}

// sessionHandler runs one live messaging session over a WebSocket. The
// server pushes a "state" frame after every change; the client drives the
// session with open, send, mark_read and refresh commands.
func sessionHandler(newSession SessionFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := auth.UserIDFrom(r.Context())
		if viewer == uuid.Nil {
			writeAppError(w, apperr.ErrAuthRequired)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade error user=%s: %v", viewer, err)
			return
		}
		defer conn.Close()

		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		})

		ws := &wsConn{conn: conn}
		sess := newSession(viewer)
		defer sess.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		if err := sess.Start(ctx); err != nil {
			_ = ws.writeErr("", err)
			return
		}
		log.Printf("websocket session opened user=%s", viewer)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			pushLoop(ctx, cancel, ws, sess)
		}()

		for {
			var cmd wsCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket read error user=%s: %v", viewer, err)
				}
				break
			}
			if err := handleCommand(ctx, ws, sess, cmd); err != nil {
				log.Printf("websocket write error user=%s: %v", viewer, err)
				break
			}
		}

		cancel()
		wg.Wait()
		log.Printf("websocket session closed user=%s", viewer)
	}
}

// pushLoop writes a state frame for every session change and keeps the
// connection alive with pings. When it stops it closes the connection so the
// blocked reader returns too.
func pushLoop(ctx context.Context, cancel context.CancelFunc, ws *wsConn, sess *messaging.Session) {
	defer ws.conn.Close()
	defer cancel()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	st := sess.Snapshot()
	if err := ws.write(wsFrame{Type: "state", State: &st}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sess.Changes():
			if !ok {
				return
			}
			st := sess.Snapshot()
			if err := ws.write(wsFrame{Type: "state", State: &st}); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				return
			}
		}
	}
}

// handleCommand runs one client command. Command failures go back to the
// client as error frames; only a failed write is returned.
func handleCommand(ctx context.Context, ws *wsConn, sess *messaging.Session, cmd wsCommand) error {
	switch cmd.Type {
	case cmdRefresh:
		if err := sess.RefreshConversations(ctx); err != nil {
			return ws.writeErr(cmd.RequestID, err)
		}
		return nil
	case cmdOpen, cmdMarkRead, cmdSend:
	default:
		return ws.writeErr(cmd.RequestID, apperr.Validation("unknown command %q", cmd.Type))
	}

	bookingID, err := uuid.Parse(cmd.BookingID)
	if err != nil {
		return ws.writeErr(cmd.RequestID, apperr.Validation("booking_id must be a valid UUID"))
	}

	switch cmd.Type {
	case cmdOpen:
		err = sess.Open(ctx, bookingID)
	case cmdMarkRead:
		err = sess.MarkRead(ctx, bookingID)
	case cmdSend:
		var m *chat.Message
		m, err = sess.Send(ctx, bookingID, cmd.Content)
		if err == nil {
			return ws.write(wsFrame{Type: "sent", RequestID: cmd.RequestID, Message: m})
		}
	}

	if err != nil {
		if errors.Is(err, messaging.ErrSessionClosed) {
			return err
		}
		return ws.writeErr(cmd.RequestID, err)
	}
	return nil
}
