package chat

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/service-marketplace/internal/apperr"
	"github.com/hackgods/service-marketplace/internal/realtime"
)

type Repository interface {
	Insert(ctx context.Context, nm NewMessage) (*Message, error)
	// ListByBooking returns the booking's messages oldest first.
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Message, error)
	// ListForUser returns every message the user sent or received.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Message, error)
	// MarkRead flips is_read on unread messages in the booking addressed to
	// recipientID and returns the updated rows.
	MarkRead(ctx context.Context, bookingID, recipientID uuid.UUID) ([]Message, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const messageColumns = `id, booking_id, sender_id, recipient_id, content, is_read, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID,
		&m.BookingID,
		&m.SenderID,
		&m.RecipientID,
		&m.Content,
		&m.IsRead,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, apperr.Transport("scan message", err)
	}
	return &m, nil
}

func (r *PgRepository) query(ctx context.Context, op, sql string, args ...any) ([]Message, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Transport(op, err)
	}

	return result, nil
}

func (r *PgRepository) Insert(ctx context.Context, nm NewMessage) (*Message, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO messages (id, booking_id, sender_id, recipient_id, content, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, false, now())
		RETURNING `+messageColumns+`
	`, uuid.New(), nm.BookingID, nm.SenderID, nm.RecipientID, nm.Content)
	return scanMessage(row)
}

func (r *PgRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]Message, error) {
	return r.query(ctx, "list booking messages", `
		SELECT `+messageColumns+`
		FROM messages
		WHERE booking_id = $1
		ORDER BY created_at ASC, id ASC
	`, bookingID)
}

func (r *PgRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Message, error) {
	return r.query(ctx, "list user messages", `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY created_at DESC
	`, userID)
}

func (r *PgRepository) MarkRead(ctx context.Context, bookingID, recipientID uuid.UUID) ([]Message, error) {
	return r.query(ctx, "mark messages read", `
		UPDATE messages
		SET is_read = true
		WHERE booking_id = $1
		  AND recipient_id = $2
		  AND is_read = false
		RETURNING `+messageColumns+`
	`, bookingID, recipientID)
}

// PublishingRepository pushes message inserts to the booking's channel and to
// both participants' inbox channels, and read receipts to the booking's
// channel. Publish failures are logged; the write stands.
type PublishingRepository struct {
	Repository
	transport realtime.Transport
}

func NewPublishingRepository(repo Repository, transport realtime.Transport) *PublishingRepository {
	return &PublishingRepository{Repository: repo, transport: transport}
}

func (r *PublishingRepository) Insert(ctx context.Context, nm NewMessage) (*Message, error) {
	m, err := r.Repository.Insert(ctx, nm)
	if err != nil {
		return nil, err
	}

	ev, err := realtime.NewEvent(realtime.TableMessages, realtime.EventInsert, m)
	if err == nil {
		err = realtime.PublishAll(ctx, r.transport, ev,
			realtime.BookingMessagesTopic(m.BookingID),
			realtime.UserMessagesTopic(m.SenderID),
			realtime.UserMessagesTopic(m.RecipientID),
		)
	}
	if err != nil {
		log.Printf("message %s realtime publish: %v", m.ID, err)
	}

	return m, nil
}

func (r *PublishingRepository) MarkRead(ctx context.Context, bookingID, recipientID uuid.UUID) ([]Message, error) {
	updated, err := r.Repository.MarkRead(ctx, bookingID, recipientID)
	if err != nil {
		return nil, err
	}

	for i := range updated {
		ev, err := realtime.NewEvent(realtime.TableMessages, realtime.EventUpdate, updated[i])
		if err == nil {
			err = r.transport.Publish(ctx, realtime.BookingMessagesTopic(bookingID), ev)
		}
		if err != nil {
			log.Printf("message %s realtime publish: %v", updated[i].ID, err)
		}
	}

	return updated, nil
}
