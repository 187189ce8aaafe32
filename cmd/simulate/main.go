package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/service-marketplace/internal/auth"
	"github.com/hackgods/service-marketplace/internal/config"
	"github.com/hackgods/service-marketplace/internal/db"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	StatusRatio   float64
	MessageRatio  float64
	ReadRatio     float64
	ClientLimit   int
	ProviderLimit int
	PostgresDSN   string
	PostgresConns int32
	JWTSecret     string
}

type simProvider struct {
	ID    uuid.UUID
	Token string
}

// simBooking is a booking the simulator may act on, with a token for each
// side.
type simBooking struct {
	ID            uuid.UUID
	ClientToken   string
	ProviderToken string
	Pending       bool
}

type DataPool struct {
	ClientTokens []string
	Providers    []simProvider
	mu           sync.RWMutex
	bookings     []simBooking
}

func (dp *DataPool) AddBooking(b simBooking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

func (dp *DataPool) RandomBooking(rng *rand.Rand, pendingOnly bool) (simBooking, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return simBooking{}, false
	}
	for tries := 0; tries < 8; tries++ {
		b := dp.bookings[rng.Intn(len(dp.bookings))]
		if !pendingOnly || b.Pending {
			return b, true
		}
	}
	return simBooking{}, false
}

func (dp *DataPool) Settle(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	for i := range dp.bookings {
		if dp.bookings[i].ID == id {
			dp.bookings[i].Pending = false
			return
		}
	}
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	percentile := func(p int) time.Duration {
		idx := len(latencies) * p / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), latencies[0], latencies[len(latencies)-1], percentile(50), percentile(95)
}

type Metrics struct {
	CreateBooking     OperationMetrics
	SetStatus         OperationMetrics
	SendMessage       OperationMetrics
	ListConversations OperationMetrics
	ListMessages      OperationMetrics
	ListBookings      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f status=%.2f message=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.StatusRatio, cfg.MessageRatio, cfg.ReadRatio)

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresConns)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d clients, %d providers, %d bookings",
		len(dataPool.ClientTokens), len(dataPool.Providers), len(dataPool.bookings))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	gofakeit.Seed(time.Now().UnixNano())

	// Run simulation
	sim.Run()

	// Print report
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.2),
		StatusRatio:   getFloat("SIM_STATUS_RATIO", 0.1),
		MessageRatio:  getFloat("SIM_MESSAGE_RATIO", 0.4),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		ClientLimit:   getInt("SIM_CLIENT_LIMIT", 1000),
		ProviderLimit: getInt("SIM_PROVIDER_LIMIT", 200),
		PostgresDSN:   baseCfg.PostgresDSN,
		PostgresConns: baseCfg.PostgresMaxConns,
		JWTSecret:     baseCfg.JWTSecret,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.StatusRatio + cfg.MessageRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.StatusRatio /= total
		cfg.MessageRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadDataPool picks seeded users and mints a bearer token for each, the
// same way the api-server validates them.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	issuer := auth.NewIssuer(cfg.JWTSecret)
	tokens := make(map[uuid.UUID]string)
	token := func(userID uuid.UUID, role string) (string, error) {
		if t, ok := tokens[userID]; ok {
			return t, nil
		}
		t, err := issuer.CreateAccessToken(userID, role, cfg.Duration+time.Hour)
		if err != nil {
			return "", err
		}
		tokens[userID] = t
		return t, nil
	}

	dataPool := &DataPool{}

	// Load providers
	rows, err := pool.Query(ctx, `
		SELECT id, user_id FROM service_providers LIMIT $1
	`, cfg.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	for rows.Next() {
		var id, userID uuid.UUID
		if err := rows.Scan(&id, &userID); err != nil {
			rows.Close()
			return nil, err
		}
		t, err := token(userID, "provider")
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Providers = append(dataPool.Providers, simProvider{ID: id, Token: t})
	}
	rows.Close()

	// Load clients: profiles that do not own a provider
	rows, err = pool.Query(ctx, `
		SELECT p.id FROM profiles p
		WHERE NOT EXISTS (SELECT 1 FROM service_providers sp WHERE sp.user_id = p.id)
		LIMIT $1
	`, cfg.ClientLimit)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		t, err := token(id, "client")
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.ClientTokens = append(dataPool.ClientTokens, t)
	}
	rows.Close()

	// Load existing bookings between loaded users
	rows, err = pool.Query(ctx, `
		SELECT b.id, b.client_id, sp.user_id, b.status
		FROM bookings b
		JOIN service_providers sp ON sp.id = b.service_provider_id
		LIMIT $1
	`, cfg.ClientLimit)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	for rows.Next() {
		var id, clientID, providerUserID uuid.UUID
		var status string
		if err := rows.Scan(&id, &clientID, &providerUserID, &status); err != nil {
			rows.Close()
			return nil, err
		}
		ct, err := token(clientID, "client")
		if err != nil {
			rows.Close()
			return nil, err
		}
		pt, err := token(providerUserID, "provider")
		if err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.bookings = append(dataPool.bookings, simBooking{ID: id, ClientToken: ct, ProviderToken: pt, Pending: status == "pending"})
	}
	rows.Close()

	if len(dataPool.ClientTokens) == 0 {
		return nil, fmt.Errorf("no clients loaded")
	}
	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers loaded")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doCreateBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.StatusRatio:
				s.doSetStatus(ctx, rng)
			case r < s.config.BookingRatio+s.config.StatusRatio+s.config.MessageRatio:
				s.doSendMessage(ctx, rng)
			default:
				switch rng.Intn(3) {
				case 0:
					s.doListConversations(ctx, rng)
				case 1:
					s.doListMessages(ctx, rng)
				case 2:
					s.doListBookings(ctx, rng)
				}
			}
		}
	}
}

// call sends one authenticated JSON request and returns the status code and
// body.
func (s *Simulator) call(ctx context.Context, method, path, token string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, latency, err
}

func (s *Simulator) doCreateBooking(ctx context.Context, rng *rand.Rand) {
	clientToken := s.pool.ClientTokens[rng.Intn(len(s.pool.ClientTokens))]
	provider := s.pool.Providers[rng.Intn(len(s.pool.Providers))]

	reqBody := map[string]any{
		"service_provider_id": provider.ID.String(),
		"booking_date":        time.Now().AddDate(0, 0, 1+rng.Intn(30)).Format("2006-01-02"),
		"booking_time":        fmt.Sprintf("%d:00 %s", 1+rng.Intn(11), []string{"AM", "PM"}[rng.Intn(2)]),
		"duration_hours":      1 + rng.Intn(3),
		"notes":               gofakeit.HackerPhrase(),
	}

	status, data, latency, err := s.call(ctx, http.MethodPost, "/bookings", clientToken, reqBody)
	success := err == nil && status == http.StatusCreated
	if success {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(data, &created) == nil && created.ID != uuid.Nil {
			s.pool.AddBooking(simBooking{ID: created.ID, ClientToken: clientToken, ProviderToken: provider.Token, Pending: true})
		}
	}

	s.metrics.CreateBooking.Record(latency, success, false)
}

func (s *Simulator) doSetStatus(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng, true)
	if !ok {
		return
	}

	next := "confirmed"
	if rng.Intn(4) == 0 {
		next = "declined"
	}

	status, data, latency, err := s.call(ctx, http.MethodPost, "/bookings/"+b.ID.String()+"/status", b.ProviderToken,
		map[string]string{"status": next})

	success, conflict := false, false
	if err == nil {
		switch status {
		case http.StatusOK:
			var resp struct {
				Updated bool `json:"updated"`
			}
			_ = json.Unmarshal(data, &resp)
			// lost races come back as updated=false
			success, conflict = resp.Updated, !resp.Updated
			s.pool.Settle(b.ID)
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.SetStatus.Record(latency, success, conflict)
}

func (s *Simulator) doSendMessage(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng, false)
	if !ok {
		return
	}

	token := b.ClientToken
	if rng.Intn(2) == 0 {
		token = b.ProviderToken
	}

	status, _, latency, err := s.call(ctx, http.MethodPost, "/conversations/"+b.ID.String()+"/messages", token,
		map[string]string{"content": gofakeit.HackerPhrase()})

	// declined bookings are deleted, so their recipient no longer resolves
	success := err == nil && status == http.StatusCreated
	conflict := err == nil && status == http.StatusUnprocessableEntity
	s.metrics.SendMessage.Record(latency, success, conflict)
}

func (s *Simulator) doListConversations(ctx context.Context, rng *rand.Rand) {
	token := s.pool.ClientTokens[rng.Intn(len(s.pool.ClientTokens))]
	if rng.Intn(2) == 0 {
		token = s.pool.Providers[rng.Intn(len(s.pool.Providers))].Token
	}

	status, _, latency, err := s.call(ctx, http.MethodGet, "/conversations", token, nil)
	s.metrics.ListConversations.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListMessages(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng, false)
	if !ok {
		return
	}

	status, _, latency, err := s.call(ctx, http.MethodGet, "/conversations/"+b.ID.String()+"/messages", b.ClientToken, nil)
	success := err == nil && status == http.StatusOK
	conflict := err == nil && status == http.StatusNotFound
	s.metrics.ListMessages.Record(latency, success, conflict)
}

func (s *Simulator) doListBookings(ctx context.Context, rng *rand.Rand) {
	token := s.pool.ClientTokens[rng.Intn(len(s.pool.ClientTokens))]

	status, _, latency, err := s.call(ctx, http.MethodGet, "/bookings", token, nil)
	s.metrics.ListBookings.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Create booking", &s.metrics.CreateBooking)
	printOperationReport("Set status", &s.metrics.SetStatus)
	printOperationReport("Send message", &s.metrics.SendMessage)
	printOperationReport("List conversations", &s.metrics.ListConversations)
	printOperationReport("List messages", &s.metrics.ListMessages)
	printOperationReport("List bookings", &s.metrics.ListBookings)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
