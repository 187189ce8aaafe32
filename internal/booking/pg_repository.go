package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/service-marketplace/internal/apperr"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const bookingColumns = `id, client_id, service_provider_id, service_id, booking_date, booking_time::text,
		       duration_hours, status, notes, created_at, updated_at`

// Helpers

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking

	err := row.Scan(
		&b.ID,
		&b.ClientID,
		&b.ServiceProviderID,
		&b.ServiceID,
		&b.BookingDate,
		&b.BookingTime,
		&b.DurationHours,
		&b.Status,
		&b.Notes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, apperr.Transport("scan booking", err)
	}

	return &b, nil
}

func scanProvider(row pgx.Row) (*ServiceProvider, error) {
	var p ServiceProvider

	err := row.Scan(&p.ID, &p.UserID, &p.BusinessName, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, apperr.Transport("scan service provider", err)
	}

	return &p, nil
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile

	err := row.Scan(&p.UserID, &p.FullName, &p.AvatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, apperr.Transport("scan profile", err)
	}

	return &p, nil
}

func scanOffering(row pgx.Row) (*Offering, error) {
	var o Offering

	err := row.Scan(&o.ID, &o.ServiceProviderID, &o.Title, &o.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferingNotFound
		}
		return nil, apperr.Transport("scan service", err)
	}

	return &o, nil
}

// collect drains rows through scan. Callers pass the query error through so
// the Query + collect pair reads as one step.
func collect[T any](rows pgx.Rows, err error, op string, scan func(pgx.Row) (*T, error)) ([]T, error) {
	if err != nil {
		return nil, apperr.Transport(op, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Transport(op, err)
	}

	return result, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// Interface methods

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) GetBookingsByIDs(ctx context.Context, ids []uuid.UUID) ([]Booking, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = ANY($1::uuid[])
	`, idStrings(ids))
	return collect(rows, err, "get bookings", scanBooking)
}

func (r *PgRepository) ListBookingsForUser(ctx context.Context, userID uuid.UUID) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE client_id = $1
		   OR service_provider_id IN (SELECT id FROM service_providers WHERE user_id = $1)
		ORDER BY booking_date DESC, booking_time DESC
	`, userID)
	return collect(rows, err, "list bookings", scanBooking)
}

func (r *PgRepository) CreateBooking(ctx context.Context, nb NewBooking) (*Booking, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, client_id, service_provider_id, service_id, booking_date, booking_time,
		                      duration_hours, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::time, $7, 'pending', $8, now(), now())
		RETURNING `+bookingColumns+`
	`, id, nb.ClientID, nb.ServiceProviderID, nb.ServiceID, nb.BookingDate, nb.BookingTime, nb.DurationHours, nb.Notes)

	return scanBooking(row)
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns+`
	`, id, to, from)

	return scanBooking(row)
}

func (r *PgRepository) DeleteBooking(ctx context.Context, id uuid.UUID, from Status) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM bookings
		WHERE id = $1
		  AND status = $2
		RETURNING `+bookingColumns+`
	`, id, from)

	return scanBooking(row)
}

func (r *PgRepository) FindElapsedConfirmed(ctx context.Context, now time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'confirmed'
		  AND ((booking_date + booking_time + make_interval(hours => duration_hours)) AT TIME ZONE 'UTC') < $1
	`, now)
	return collect(rows, err, "find elapsed bookings", scanBooking)
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*ServiceProvider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, business_name, created_at
		FROM service_providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetProviderByUserID(ctx context.Context, userID uuid.UUID) (*ServiceProvider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, business_name, created_at
		FROM service_providers
		WHERE user_id = $1
	`, userID)
	return scanProvider(row)
}

func (r *PgRepository) GetProvidersByIDs(ctx context.Context, ids []uuid.UUID) ([]ServiceProvider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, business_name, created_at
		FROM service_providers
		WHERE id = ANY($1::uuid[])
	`, idStrings(ids))
	return collect(rows, err, "get service providers", scanProvider)
}

func (r *PgRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, full_name, avatar_url
		FROM profiles
		WHERE id = $1
	`, userID)
	return scanProfile(row)
}

func (r *PgRepository) GetProfilesByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, full_name, avatar_url
		FROM profiles
		WHERE id = ANY($1::uuid[])
	`, idStrings(userIDs))
	return collect(rows, err, "get profiles", scanProfile)
}

func (r *PgRepository) GetOfferingsByIDs(ctx context.Context, ids []uuid.UUID) ([]Offering, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, service_provider_id, title, description
		FROM services
		WHERE id = ANY($1::uuid[])
	`, idStrings(ids))
	return collect(rows, err, "get services", scanOffering)
}
