package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/service-marketplace/internal/apperr"
)

var ErrNotificationNotFound = fmt.Errorf("notification %w", apperr.ErrNotFound)

type Repository interface {
	Insert(ctx context.Context, userID uuid.UUID, kind Kind, p Payload) (*Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error)
	// MarkRead flips is_read on one notification owned by userID.
	MarkRead(ctx context.Context, userID, id uuid.UUID) (*Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&n.Type,
		&n.RelatedID,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, apperr.Transport("scan notification", err)
	}

	return &n, nil
}

func (r *PgRepository) Insert(ctx context.Context, userID uuid.UUID, kind Kind, p Payload) (*Notification, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, related_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, now())
		RETURNING id, user_id, title, message, type, related_id, is_read, created_at
	`, uuid.New(), userID, p.Title, p.Message, kind, p.RelatedID)
	return scanNotification(row)
}

func (r *PgRepository) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, message, type, related_id, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		  AND (NOT $2 OR is_read = false)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, apperr.Transport("list notifications", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Transport("list notifications", err)
	}

	return result, nil
}

func (r *PgRepository) MarkRead(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE id = $1
		  AND user_id = $2
		RETURNING id, user_id, title, message, type, related_id, is_read, created_at
	`, id, userID)
	return scanNotification(row)
}

func (r *PgRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET is_read = true
		WHERE user_id = $1
		  AND is_read = false
	`, userID)
	if err != nil {
		return 0, apperr.Transport("mark notifications read", err)
	}
	return tag.RowsAffected(), nil
}
