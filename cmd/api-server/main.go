package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/service-marketplace/internal/api"
	"github.com/hackgods/service-marketplace/internal/auth"
	"github.com/hackgods/service-marketplace/internal/booking"
	"github.com/hackgods/service-marketplace/internal/chat"
	"github.com/hackgods/service-marketplace/internal/config"
	"github.com/hackgods/service-marketplace/internal/conversation"
	"github.com/hackgods/service-marketplace/internal/db"
	"github.com/hackgods/service-marketplace/internal/messaging"
	"github.com/hackgods/service-marketplace/internal/mq"
	"github.com/hackgods/service-marketplace/internal/notification"
	redisclient "github.com/hackgods/service-marketplace/internal/redis"
	"github.com/hackgods/service-marketplace/internal/role"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s version=%s", cfg.Env, cfg.HTTPPort, cfg.Version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	// Connect RabbitMQ, optional
	var events notification.EventPublisher
	if cfg.RabbitURL != "" {
		pub, err := mq.NewPublisher(cfg.RabbitURL, cfg.NotificationExchange)
		if err != nil {
			log.Fatalf("rabbitmq connection error: %v", err)
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.Printf("error closing rabbitmq: %v", err)
			}
		}()
		events = pub
		log.Printf("connected to RabbitMQ exchange=%s", cfg.NotificationExchange)
	} else {
		log.Println("RABBIT_URL not set, notification events are not published to a broker")
	}

	transport := redisclient.NewPubSub(rdb)

	bookingRepo := booking.NewPublishingRepository(booking.NewPgRepository(pgPool), transport)
	messageRepo := chat.NewPublishingRepository(chat.NewPgRepository(pgPool), transport)
	notificationRepo := notification.NewPgRepository(pgPool)

	notifier := notification.NewFanOut(notificationRepo, transport, events)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	bookings := booking.NewService(bookingRepo, locker, notifier)
	resolver := role.NewResolver(bookingRepo)
	messages := messaging.NewService(messageRepo, bookingRepo, resolver, notifier)
	deriver := conversation.NewDeriver(messageRepo, bookingRepo)

	router := api.NewRouter(api.RouterConfig{
		Bookings:      bookings,
		Conversations: deriver,
		Messages:      messages,
		Notifications: notification.NewService(notificationRepo),
		Sessions: func(viewer uuid.UUID) *messaging.Session {
			return messaging.NewSession(viewer, messages, deriver, transport, cfg.MarkReadDelay)
		},
		Tokens: auth.NewIssuer(cfg.JWTSecret),
		Checks: []api.Check{
			{Name: "postgres", Critical: true, Ping: pgPool.Ping},
			{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		Env:     cfg.Env,
		Version: cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("http server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	// let in-flight new_message notifications land before the pools close
	messages.Wait()

	log.Println("api-server stopped")
}
