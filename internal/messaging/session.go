package messaging

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/apperr"
	"github.com/hackgods/service-marketplace/internal/chat"
	"github.com/hackgods/service-marketplace/internal/conversation"
	"github.com/hackgods/service-marketplace/internal/realtime"
)

var ErrSessionClosed = errors.New("messaging session closed")

type ConversationLister interface {
	List(ctx context.Context, viewer uuid.UUID) ([]conversation.Conversation, error)
}

// State is what a live messaging view renders.
type State struct {
	Conversations    []conversation.Conversation `json:"conversations"`
	Messages         []chat.Message              `json:"messages"`
	CurrentBookingID *uuid.UUID                  `json:"current_booking_id,omitempty"`
	Loading          bool                        `json:"loading"`
}

// Session is one viewer's live messaging view: the conversation list, the
// open conversation and the two subscriptions that keep them current.
//
// Every state change happens under mu. Fetches started before a switch or a
// Close are dropped when they land: Open bumps gen, Close clears alive.
type Session struct {
	viewer        uuid.UUID
	svc           *Service
	lister        ConversationLister
	transport     realtime.Transport
	markReadDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	alive         bool
	gen           uint64
	current       uuid.UUID
	messages      []chat.Message
	conversations []conversation.Conversation
	pending       int
	listSeq       uint64
	listApplied   uint64
	inboxSub      realtime.Subscription
	convSub       realtime.Subscription
	timers        map[uint64]*time.Timer
	timerSeq      uint64
	changes       chan struct{}
}

func NewSession(viewer uuid.UUID, svc *Service, lister ConversationLister, transport realtime.Transport, markReadDelay time.Duration) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		viewer:        viewer,
		svc:           svc,
		lister:        lister,
		transport:     transport,
		markReadDelay: markReadDelay,
		ctx:           ctx,
		cancel:        cancel,
		alive:         true,
		conversations: []conversation.Conversation{},
		messages:      []chat.Message{},
		timers:        make(map[uint64]*time.Timer),
		changes:       make(chan struct{}, 1),
	}
}

// Changes fires, coalesced, whenever the state changes. It is closed by
// Close.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

func (s *Session) signal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.alive {
		return
	}
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Conversations: make([]conversation.Conversation, len(s.conversations)),
		Messages:      make([]chat.Message, len(s.messages)),
		Loading:       s.pending > 0,
	}
	copy(st.Conversations, s.conversations)
	copy(st.Messages, s.messages)
	if s.current != uuid.Nil {
		id := s.current
		st.CurrentBookingID = &id
	}
	return st
}

// Start subscribes to the viewer's inbox and loads the conversation list.
func (s *Session) Start(ctx context.Context) error {
	if s.viewer == uuid.Nil {
		return apperr.ErrAuthRequired
	}

	sub, err := s.transport.Subscribe(ctx, realtime.UserMessagesTopic(s.viewer))
	if err != nil {
		return apperr.Transport("subscribe inbox", err)
	}

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		_ = sub.Close()
		return ErrSessionClosed
	}
	s.inboxSub = sub
	s.wg.Add(1)
	s.mu.Unlock()

	s.consume(sub, s.onInboxEvent)
	return s.RefreshConversations(ctx)
}

// consume drains sub on its own goroutine. The caller has already added it
// to wg while holding mu.
func (s *Session) consume(sub realtime.Subscription, handle func(realtime.Event)) {
	go func() {
		defer s.wg.Done()
		for ev := range sub.Events() {
			handle(ev)
		}
	}()
}

// RefreshConversations re-derives the conversation list. A result that
// lands after a newer refresh has already been applied is dropped.
func (s *Session) RefreshConversations(ctx context.Context) error {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.listSeq++
	seq := s.listSeq
	s.pending++
	s.mu.Unlock()
	s.signal()

	convs, err := s.lister.List(ctx, s.viewer)

	s.mu.Lock()
	s.pending--
	if !s.alive {
		s.mu.Unlock()
		return nil
	}
	if err == nil && seq > s.listApplied {
		s.listApplied = seq
		s.conversations = convs
	}
	s.mu.Unlock()
	s.signal()
	return err
}

// Open switches the view to a booking's conversation: it swaps the
// per-conversation subscription, loads the thread and marks it read when
// anything addressed to the viewer is unread.
func (s *Session) Open(ctx context.Context, bookingID uuid.UUID) error {
	if !s.isAlive() {
		return ErrSessionClosed
	}
	// outsiders never get a subscription; the open thread stays as it was
	if err := s.svc.authorize(ctx, s.viewer, bookingID); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.gen++
	gen := s.gen
	s.current = bookingID
	s.messages = []chat.Message{}
	s.pending++
	old := s.convSub
	s.convSub = nil
	s.mu.Unlock()
	s.signal()

	if old != nil {
		_ = old.Close()
	}

	sub, err := s.transport.Subscribe(ctx, realtime.BookingMessagesTopic(bookingID))
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.current = uuid.Nil
		}
		s.mu.Unlock()
		s.done()
		return apperr.Transport("subscribe conversation", err)
	}

	s.mu.Lock()
	if !s.alive || s.gen != gen {
		s.pending--
		s.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	s.convSub = sub
	s.wg.Add(1)
	s.mu.Unlock()
	s.consume(sub, s.onConversationEvent)

	msgs, err := s.svc.Messages(ctx, s.viewer, bookingID)

	s.mu.Lock()
	s.pending--
	if !s.alive || s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		// nothing was shown for this booking, so stop listening to it
		s.current = uuid.Nil
		s.messages = []chat.Message{}
		s.convSub = nil
		s.mu.Unlock()
		_ = sub.Close()
		s.signal()
		return err
	}
	s.messages = merge(msgs, s.messages)
	unread := false
	for _, m := range s.messages {
		if m.RecipientID == s.viewer && !m.IsRead {
			unread = true
			break
		}
	}
	s.mu.Unlock()
	s.signal()

	if unread {
		return s.MarkRead(ctx, bookingID)
	}
	return nil
}

func (s *Session) isAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *Session) done() {
	s.mu.Lock()
	s.pending--
	s.mu.Unlock()
	s.signal()
}

// Send persists a message and appends it to the open thread. The realtime
// echo of the same row is recognised by id and not appended twice. On
// failure local state is left untouched.
func (s *Session) Send(ctx context.Context, bookingID uuid.UUID, content string) (*chat.Message, error) {
	m, err := s.svc.Send(ctx, s.viewer, bookingID, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.alive && s.current == bookingID && indexOf(s.messages, m.ID) < 0 {
		s.messages = append(s.messages, *m)
	}
	s.mu.Unlock()
	s.signal()
	return m, nil
}

// MarkRead marks the booking's messages to the viewer read and patches the
// open thread to match.
func (s *Session) MarkRead(ctx context.Context, bookingID uuid.UUID) error {
	if _, err := s.svc.MarkRead(ctx, s.viewer, bookingID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.alive && s.current == bookingID {
		for i := range s.messages {
			m := &s.messages[i]
			if m.RecipientID == s.viewer && !m.IsRead {
				m.IsRead = true
			}
		}
	}
	s.mu.Unlock()
	s.signal()
	return nil
}

func (s *Session) onConversationEvent(ev realtime.Event) {
	if ev.Table != realtime.TableMessages {
		return
	}
	var m chat.Message
	if err := ev.Decode(&m); err != nil {
		log.Printf("session %s: %v", s.viewer, err)
		return
	}

	switch ev.Type {
	case realtime.EventInsert:
		s.onMessageInserted(m)
	case realtime.EventUpdate:
		s.mu.Lock()
		if s.alive && m.BookingID == s.current {
			if i := indexOf(s.messages, m.ID); i >= 0 {
				m.Sender = s.messages[i].Sender
				s.messages[i] = m
			}
		}
		s.mu.Unlock()
		s.signal()
	}
}

func (s *Session) onMessageInserted(m chat.Message) {
	if m.SenderID == s.viewer {
		return
	}

	s.mu.Lock()
	relevant := s.alive && m.BookingID == s.current
	s.mu.Unlock()
	if !relevant {
		return
	}

	sender := s.svc.Profile(s.ctx, m.SenderID)
	m.Sender = &sender

	s.mu.Lock()
	if !s.alive || m.BookingID != s.current || indexOf(s.messages, m.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, m)
	if m.RecipientID == s.viewer && !m.IsRead {
		s.scheduleMarkRead(m.BookingID)
	}
	s.mu.Unlock()
	s.signal()
}

// scheduleMarkRead must be called with mu held.
func (s *Session) scheduleMarkRead(bookingID uuid.UUID) {
	s.timerSeq++
	id := s.timerSeq
	s.timers[id] = time.AfterFunc(s.markReadDelay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		if !s.alive || s.current != bookingID {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()

		if err := s.MarkRead(s.ctx, bookingID); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("session %s: mark booking %s read: %v", s.viewer, bookingID, err)
		}
	})
}

func (s *Session) onInboxEvent(ev realtime.Event) {
	if ev.Table != realtime.TableMessages || ev.Type != realtime.EventInsert {
		return
	}
	err := s.RefreshConversations(s.ctx)
	if err != nil && !errors.Is(err, ErrSessionClosed) && !errors.Is(err, context.Canceled) {
		log.Printf("session %s: refresh conversations: %v", s.viewer, err)
	}
}

// Close tears down both subscriptions and pending timers. Results of any
// fetch still in flight are discarded.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return nil
	}
	s.alive = false
	subs := []realtime.Subscription{s.inboxSub, s.convSub}
	s.inboxSub, s.convSub = nil, nil
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()

	var errs []error
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.wg.Wait()

	s.mu.Lock()
	close(s.changes)
	s.mu.Unlock()

	return errors.Join(errs...)
}

func indexOf(msgs []chat.Message, id uuid.UUID) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// merge returns fetched followed by any live messages the fetch missed. A
// fetched row keeps the sender profile its live copy already carried.
func merge(fetched, live []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(fetched)+len(live))
	out = append(out, fetched...)
	for _, m := range live {
		i := indexOf(out, m.ID)
		if i < 0 {
			out = append(out, m)
			continue
		}
		if out[i].Sender == nil {
			out[i].Sender = m.Sender
		}
	}
	return out
}
