package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/realtime"
)

// Notifier is what domain code calls when an event should reach a user.
// Callers treat a failed Notify as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind Kind, p Payload) error
}

// EventPublisher forwards notifications to downstream consumers (push,
// email). Satisfied by *mq.Publisher.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// FanOut persists the notification, then pushes it to the recipient's live
// sessions and to the broker. Only the insert decides success.
type FanOut struct {
	repo      Repository
	transport realtime.Transport
	events    EventPublisher
}

// NewFanOut wires the fan-out. transport and events may be nil.
func NewFanOut(repo Repository, transport realtime.Transport, events EventPublisher) *FanOut {
	return &FanOut{repo: repo, transport: transport, events: events}
}

func (f *FanOut) Notify(ctx context.Context, userID uuid.UUID, kind Kind, p Payload) error {
	if userID == uuid.Nil {
		return fmt.Errorf("notify %s: empty recipient", kind)
	}

	n, err := f.repo.Insert(ctx, userID, kind, p)
	if err != nil {
		return fmt.Errorf("insert %s notification: %w", kind, err)
	}

	if f.transport != nil {
		ev, err := realtime.NewEvent(realtime.TableNotifications, realtime.EventInsert, n)
		if err == nil {
			err = f.transport.Publish(ctx, realtime.UserNotificationsTopic(userID), ev)
		}
		if err != nil {
			log.Printf("notification %s realtime publish: %v", n.ID, err)
		}
	}

	if f.events != nil {
		if err := f.events.PublishJSON(ctx, "notification."+string(kind), n); err != nil {
			log.Printf("notification %s broker publish: %v", n.ID, err)
		}
	}

	return nil
}
