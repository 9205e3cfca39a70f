//go:build integration

// Package integration contains integration tests for the order routing gateway.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle through the routing pipeline
// - WebSocket tests: connection, broadcast messaging
// - Database tests: schema, repositories, idempotency constraint
//
// Integration tests use build tag "integration" to separate from unit tests.
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"tradegate/internal/api"
	"tradegate/internal/exchange"
	"tradegate/internal/models"
	"tradegate/internal/repository"
	"tradegate/internal/risk"
	"tradegate/internal/router"
	"tradegate/internal/symbols"
	"tradegate/internal/websocket"
	"tradegate/pkg/ratelimit"
	"tradegate/pkg/retry"

	_ "github.com/lib/pq"
)

// ============================================================
// Database setup
// ============================================================

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB connects to the test database. Returns nil when the
// database is not reachable so callers can skip.
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5432"),
		getEnv("TEST_DB_USER", "postgres"),
		getEnv("TEST_DB_PASSWORD", "postgres"),
		getEnv("TEST_DB_NAME", "tradegate_test"),
		getEnv("TEST_DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, func() {}
	}

	cleanup := func() {
		db.Exec(`DROP TABLE IF EXISTS orders`)
		db.Exec(`DROP TABLE IF EXISTS risk_state`)
		db.Exec(`DROP TABLE IF EXISTS exchange_credentials`)
		db.Close()
	}
	return db, cleanup
}

// initTestTables creates the schema the repositories expect
func initTestTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			idempotency_key TEXT NOT NULL UNIQUE,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL,
			exchange_order_id TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			filled_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS risk_state (
			id INTEGER PRIMARY KEY,
			state TEXT NOT NULL,
			lock_reason TEXT NOT NULL DEFAULT '',
			locked_at TIMESTAMPTZ,
			seq_losses INTEGER NOT NULL DEFAULT 0,
			trades_today INTEGER NOT NULL DEFAULT 0,
			starting_equity DOUBLE PRECISION NOT NULL,
			current_equity DOUBLE PRECISION NOT NULL,
			daily_high DOUBLE PRECISION NOT NULL,
			daily_low DOUBLE PRECISION NOT NULL,
			day_start TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS exchange_credentials (
			exchange TEXT PRIMARY KEY,
			api_key_encrypted TEXT NOT NULL,
			secret_encrypted TEXT NOT NULL,
			passphrase_encrypted TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================
// Fake exchange adapter
// ============================================================

// fakeAdapter is an in-process exchange: deterministic listing,
// instant fills, no network
type fakeAdapter struct {
	name     string
	refPrice float64

	mu          sync.Mutex
	execCount   int
	cancelCount int
}

func newFakeBinance() *fakeAdapter {
	return &fakeAdapter{name: "binance", refPrice: 20000}
}

func (a *fakeAdapter) Connect(apiKey, secret, passphrase string) error { return nil }
func (a *fakeAdapter) Name() string                                    { return a.name }
func (a *fakeAdapter) Close() error                                    { return nil }

func (a *fakeAdapter) ListMarkets(ctx context.Context) ([]models.MarketRule, error) {
	return []models.MarketRule{
		{
			Exchange:    a.name,
			Symbol:      "BTCUSDT",
			BaseAsset:   "BTC",
			QuoteAsset:  "USDT",
			Status:      models.MarketStatusTradable,
			StepSize:    0.001,
			MinQty:      0.001,
			MinNotional: 10,
			FetchedAt:   time.Now(),
		},
		{
			Exchange:   a.name,
			Symbol:     "ETHUSDT",
			BaseAsset:  "ETH",
			QuoteAsset: "USDT",
			Status:     models.MarketStatusHalted,
			StepSize:   0.01,
			MinQty:     0.01,
			FetchedAt:  time.Now(),
		},
	}, nil
}

func (a *fakeAdapter) Preview(ctx context.Context, req exchange.OrderRequest) (*exchange.PreviewResult, error) {
	return &exchange.PreviewResult{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Qty:      req.Qty,
		RefPrice: a.refPrice,
		Notional: req.Qty * a.refPrice,
	}, nil
}

func (a *fakeAdapter) Execute(ctx context.Context, req exchange.OrderRequest) (*exchange.ExecutionResult, error) {
	a.mu.Lock()
	a.execCount++
	n := a.execCount
	a.mu.Unlock()

	return &exchange.ExecutionResult{
		OrderID:      fmt.Sprintf("%s-%d", a.name, n),
		Symbol:       req.Symbol,
		Side:         req.Side,
		FilledQty:    req.Qty,
		AvgFillPrice: a.refPrice,
		Status:       "filled",
		SubmittedAt:  time.Now(),
	}, nil
}

func (a *fakeAdapter) CancelAll(ctx context.Context) ([]exchange.CancelOutcome, error) {
	a.mu.Lock()
	a.cancelCount++
	a.mu.Unlock()
	return []exchange.CancelOutcome{{Exchange: a.name, OrderID: "open-1", OK: true}}, nil
}

func (a *fakeAdapter) executions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.execCount
}

// ============================================================
// In-memory order store
// ============================================================

// memStore implements router.OrderStore and the order reader API
// without a database
type memStore struct {
	mu      sync.Mutex
	records map[string]*models.OrderRecord
	nextID  int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*models.OrderRecord), nextID: 1}
}

func (s *memStore) CreateIfAbsent(order *models.OrderRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[order.IdempotencyKey]; exists {
		return false, nil
	}
	clone := *order
	clone.ID = s.nextID
	s.nextID++
	s.records[order.IdempotencyKey] = &clone
	return true, nil
}

func (s *memStore) GetByKey(key string) (*models.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *memStore) UpdateStatus(key, status, exchangeOrderID, errorMessage string, filledAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return repository.ErrOrderNotFound
	}
	record.Status = status
	record.ExchangeOrderID = exchangeOrderID
	record.ErrorMessage = errorMessage
	record.FilledAt = filledAt
	return nil
}

func (s *memStore) GetRecent(limit int) ([]*models.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*models.OrderRecord, 0, len(s.records))
	for _, r := range s.records {
		clone := *r
		all = append(all, &clone)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *memStore) GetPending() ([]*models.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*models.OrderRecord
	for _, r := range s.records {
		if r.Status == models.OrderStatusPending {
			clone := *r
			pending = append(pending, &clone)
		}
	}
	return pending, nil
}

func (s *memStore) CountByStatus() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, r := range s.records {
		counts[r.Status]++
	}
	return counts, nil
}

// noopValidator accepts every symbol; used to probe middleware
// behaviour without the full pipeline
type noopValidator struct{}

func (noopValidator) ValidateWithReason(ctx context.Context, exchangeName, symbol string) (bool, string) {
	return true, ""
}

func (noopValidator) Rule(ctx context.Context, exchangeName, symbol string) (*models.MarketRule, error) {
	return &models.MarketRule{Exchange: exchangeName, Symbol: symbol, Status: models.MarketStatusTradable}, nil
}

func (noopValidator) Refresh(ctx context.Context, exchangeName string) error { return nil }

// ============================================================
// Test server
// ============================================================

// TestServer encapsulates the full stack with fake exchanges
type TestServer struct {
	Server  *httptest.Server
	Adapter *fakeAdapter
	Store   *memStore
	Guard   *risk.Guard
	Hub     *websocket.Hub
	Cleanup func()
}

// SetupTestServer builds the routing pipeline on fake adapters and an
// in-memory store and exposes it over httptest
func SetupTestServer(t *testing.T) *TestServer {
	t.Helper()

	adapter := newFakeBinance()
	registry := exchange.NewRegistry()
	registry.Register(adapter.name, adapter)

	validator := symbols.NewValidator(registry, symbols.Config{
		TTL:   time.Minute,
		Retry: &retry.Config{MaxRetries: 1},
	})

	guard := risk.NewGuard(risk.DefaultConfig(), 100000)

	limits := ratelimit.NewRegistry(ratelimit.BucketConfig{Capacity: 100, RefillRate: 100})

	store := newMemStore()

	orderRouter := router.New(router.Config{
		AdapterTimeout: 2 * time.Second,
		CancelTimeout:  2 * time.Second,
	}, registry, validator, guard, limits, store)

	hub := websocket.NewHub()
	go hub.Run()

	notifications := make(chan *models.Notification, 64)
	orderRouter.SetNotifications(notifications)
	go hub.ConsumeNotifications(notifications)

	mux := api.SetupRoutes(&api.Dependencies{
		Router:    orderRouter,
		Risk:      orderRouter,
		Orders:    store,
		Validator: validator,
		Hub:       hub,
	})

	server := httptest.NewServer(mux)

	return &TestServer{
		Server:  server,
		Adapter: adapter,
		Store:   store,
		Guard:   guard,
		Hub:     hub,
		Cleanup: func() {
			server.Close()
			close(notifications)
			hub.Stop()
		},
	}
}
