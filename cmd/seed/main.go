package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/service-marketplace/internal/auth"
	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/config"
	"github.com/hackgods/service-marketplace/internal/db"
)

var serviceTitles = []string{
	"Plumbing Repair",
	"House Cleaning",
	"Electrical Inspection",
	"Lawn Care",
	"Furniture Assembly",
	"Interior Painting",
	"Appliance Repair",
	"Pet Sitting",
	"Moving Help",
	"Window Washing",
}

var clientLines = []string{
	"Hi, is the booking still on?",
	"Could you bring your own ladder?",
	"The gate code is 4512.",
	"Can we move it an hour later?",
	"Thanks, see you then!",
	"Is parking available on the street?",
}

var providerLines = []string{
	"Yes, confirmed on my side.",
	"I'll be there ten minutes early.",
	"Running a little late, sorry.",
	"Please clear the area before I arrive.",
	"All done, thanks for having me.",
	"Could you send a photo of the problem?",
}

type seeded struct {
	clients   []uuid.UUID
	providers []booking.ServiceProvider
	offerings map[uuid.UUID][]uuid.UUID
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providers, clients := getInt("SEED_PROVIDERS", 20), getInt("SEED_CLIENTS", 200)
	if providers <= 0 || clients <= 0 {
		log.Fatal("SEED_PROVIDERS and SEED_CLIENTS must be > 0")
	}

	s := &seeded{offerings: make(map[uuid.UUID][]uuid.UUID)}

	if err := seedProviders(context.Background(), pool, s, providers); err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedClients(context.Background(), pool, s, clients); err != nil {
		log.Fatalf("seed clients: %v", err)
	}
	if err := seedBookings(context.Background(), pool, s); err != nil {
		log.Fatalf("seed bookings: %v", err)
	}

	log.Println("seed complete")

	issuer := auth.NewIssuer(cfg.JWTSecret)
	clientToken, err := issuer.CreateAccessToken(s.clients[0], "client", 24*time.Hour)
	if err != nil {
		log.Fatalf("create client token: %v", err)
	}
	providerToken, err := issuer.CreateAccessToken(s.providers[0].UserID, "provider", 24*time.Hour)
	if err != nil {
		log.Fatalf("create provider token: %v", err)
	}
	fmt.Printf("client   user_id=%s\n  token=%s\n", s.clients[0], clientToken)
	fmt.Printf("provider user_id=%s provider_id=%s\n  token=%s\n", s.providers[0].UserID, s.providers[0].ID, providerToken)
}

func insertProfile(ctx context.Context, tx pgx.Tx) (uuid.UUID, error) {
	id := uuid.New()
	var avatar *string
	if gofakeit.Bool() {
		url := gofakeit.URL()
		avatar = &url
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO profiles (id, full_name, avatar_url, created_at)
		VALUES ($1, $2, $3, now())
	`, id, gofakeit.Name(), avatar)
	return id, err
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, s *seeded, count int) error {
	log.Printf("seeding %d providers", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		userID, err := insertProfile(ctx, tx)
		if err != nil {
			return err
		}

		p := booking.ServiceProvider{ID: uuid.New(), UserID: userID, BusinessName: gofakeit.Company()}
		_, err = tx.Exec(ctx, `
			INSERT INTO service_providers (id, user_id, business_name, created_at)
			VALUES ($1, $2, $3, now())
		`, p.ID, p.UserID, p.BusinessName)
		if err != nil {
			return err
		}

		services := gofakeit.Number(1, 3)
		for j := 0; j < services; j++ {
			serviceID := uuid.New()
			title := gofakeit.RandomString(serviceTitles)
			_, err := tx.Exec(ctx, `
				INSERT INTO services (id, service_provider_id, title, description)
				VALUES ($1, $2, $3, $4)
			`, serviceID, p.ID, title, title+": "+gofakeit.HackerPhrase())
			if err != nil {
				return err
			}
			s.offerings[p.ID] = append(s.offerings[p.ID], serviceID)
		}

		s.providers = append(s.providers, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("providers seeded")
	return nil
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, s *seeded, count int) error {
	log.Printf("seeding %d clients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id, err := insertProfile(ctx, tx)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
			s.clients = append(s.clients, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("clients seeded: %d/%d", end, count)
	}

	return nil
}

// seedBookings gives every client a few bookings and puts a short exchange
// of messages on about half of them.
func seedBookings(ctx context.Context, pool *pgxpool.Pool, s *seeded) error {
	log.Println("seeding bookings and messages")

	statuses := []booking.Status{booking.StatusPending, booking.StatusConfirmed, booking.StatusCompleted}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	bookings, messages := 0, 0

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, clientID := range s.clients {
		for n := gofakeit.Number(1, 3); n > 0; n-- {
			p := s.providers[gofakeit.Number(0, len(s.providers)-1)]

			var serviceID *uuid.UUID
			if offered := s.offerings[p.ID]; len(offered) > 0 && gofakeit.Bool() {
				id := offered[gofakeit.Number(0, len(offered)-1)]
				serviceID = &id
			}
			var notes *string
			if gofakeit.Bool() {
				text := gofakeit.HackerPhrase()
				notes = &text
			}

			bookingID := uuid.New()
			date := gofakeit.DateRange(today.AddDate(0, 0, -30), today.AddDate(0, 0, 30)).Truncate(24 * time.Hour)
			clock := fmt.Sprintf("%02d:00:00", gofakeit.Number(8, 17))

			_, err := tx.Exec(ctx, `
				INSERT INTO bookings (id, client_id, service_provider_id, service_id, booking_date, booking_time,
				                      duration_hours, status, notes, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6::time, $7, $8, $9, now(), now())
			`, bookingID, clientID, p.ID, serviceID, date, clock, gofakeit.Number(1, 4),
				string(statuses[gofakeit.Number(0, len(statuses)-1)]), notes)
			if err != nil {
				return err
			}
			bookings++

			if gofakeit.Bool() {
				continue
			}

			at := time.Now().UTC().Add(-time.Duration(gofakeit.Number(60, 7*24*60)) * time.Minute)
			lines := gofakeit.Number(2, 6)
			for k := 0; k < lines; k++ {
				sender, recipient, line := clientID, p.UserID, gofakeit.RandomString(clientLines)
				if k%2 == 1 {
					sender, recipient, line = p.UserID, clientID, gofakeit.RandomString(providerLines)
				}
				at = at.Add(time.Duration(gofakeit.Number(1, 90)) * time.Minute)

				_, err := tx.Exec(ctx, `
					INSERT INTO messages (id, booking_id, sender_id, recipient_id, content, is_read, created_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
				`, uuid.New(), bookingID, sender, recipient, line, gofakeit.Bool(), at)
				if err != nil {
					return err
				}
				messages++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("seeded bookings=%d messages=%d", bookings, messages)
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
