// Package realtime defines the row change events pushed to live sessions and
// the transport they travel over. Writers publish after a successful commit;
// readers subscribe to the topics that match their row filter.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const (
	TableBookings      = "bookings"
	TableMessages      = "messages"
	TableNotifications = "notifications"
)

var ErrClosed = errors.New("realtime transport closed")

// Event is one row change. Record holds the row as JSON.
type Event struct {
	Table  string          `json:"table"`
	Type   EventType       `json:"type"`
	Record json.RawMessage `json:"record"`
}

func NewEvent(table string, typ EventType, record any) (Event, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s record: %w", table, err)
	}
	return Event{Table: table, Type: typ, Record: data}, nil
}

// Decode unmarshals the event record into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Record, v); err != nil {
		return fmt.Errorf("decode %s record: %w", e.Table, err)
	}
	return nil
}

// Subscription delivers events until Close is called. The Events channel is
// closed once the subscription is torn down.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Transport interface {
	Publish(ctx context.Context, topic string, ev Event) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

// Topic names mirror the row filters the store would offer: messages by
// booking, messages by participant, bookings, notifications by recipient.

func BookingMessagesTopic(bookingID uuid.UUID) string {
	return "messages:booking:" + bookingID.String()
}

func UserMessagesTopic(userID uuid.UUID) string {
	return "messages:user:" + userID.String()
}

func BookingsTopic() string {
	return "bookings"
}

func UserNotificationsTopic(userID uuid.UUID) string {
	return "notifications:user:" + userID.String()
}

// PublishAll sends ev to every topic and joins the errors.
func PublishAll(ctx context.Context, t Transport, ev Event, topics ...string) error {
	var errs []error
	for _, topic := range topics {
		if err := t.Publish(ctx, topic, ev); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
