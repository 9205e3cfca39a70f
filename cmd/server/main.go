package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradegate/internal/api"
	"tradegate/internal/config"
	"tradegate/internal/exchange"
	"tradegate/internal/models"
	"tradegate/internal/repository"
	"tradegate/internal/risk"
	"tradegate/internal/router"
	"tradegate/internal/symbols"
	"tradegate/internal/websocket"
	"tradegate/pkg/ratelimit"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Connected to database successfully")

	// Инициализация репозиториев
	orderRepo := repository.NewOrderRepository(db)
	riskRepo := repository.NewRiskRepository(db)
	credsRepo := repository.NewCredentialsRepository(db, []byte(cfg.Security.EncryptionKey))

	// Реестр адаптеров бирж: учётные данные из БД, без них адаптер
	// работает в публичном режиме (листинги доступны, ордера - нет)
	registry := exchange.NewRegistry()
	for _, name := range exchange.SupportedExchanges {
		adapter, err := exchange.New(name)
		if err != nil {
			log.Fatalf("Failed to create %s adapter: %v", name, err)
		}

		creds, err := credsRepo.Get(name)
		switch {
		case err == nil:
			if err := adapter.Connect(creds.APIKey, creds.Secret, creds.Passphrase); err != nil {
				log.Printf("WARNING: failed to connect %s: %v", name, err)
			} else {
				log.Printf("Connected to %s", name)
			}
		case errors.Is(err, repository.ErrCredentialsNotFound):
			log.Printf("No credentials for %s, public endpoints only", name)
		default:
			log.Fatalf("Failed to load credentials for %s: %v", name, err)
		}

		registry.Register(name, adapter)
	}

	// Rate limiter: отдельные вёдра на ордера и market data каждой биржи
	limits := ratelimit.NewRegistry(ratelimit.BucketConfig{
		Capacity:   cfg.Rate.OrdersCapacity,
		RefillRate: cfg.Rate.OrdersRefill,
	})
	for _, name := range exchange.SupportedExchanges {
		limits.Configure(name, ratelimit.ActionOrders, ratelimit.BucketConfig{
			Capacity:   cfg.Rate.OrdersCapacity,
			RefillRate: cfg.Rate.OrdersRefill,
		})
		limits.Configure(name, ratelimit.ActionMarketData, ratelimit.BucketConfig{
			Capacity:   cfg.Rate.MarketDataCapacity,
			RefillRate: cfg.Rate.MarketDataRefill,
		})
	}

	// Валидатор символов
	validator := symbols.NewValidator(registry, symbols.Config{
		TTL:     cfg.Symbols.CacheTTL,
		Offline: cfg.Symbols.Offline,
	})
	if cfg.Symbols.Warmup {
		warmupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := validator.Warmup(warmupCtx); err != nil {
			log.Printf("WARNING: %v", err)
		}
		cancel()
	}

	// Риск-гард: состояние переживает рестарт через снапшот в БД
	guard := risk.NewGuard(risk.Config{
		RiskPerTrade: cfg.Risk.RiskPerTrade,
		DailyDDMax:   cfg.Risk.DailyDDMax,
		MaxSeqLosses: cfg.Risk.MaxSeqLosses,
		LockoutTTL:   cfg.Risk.LockoutTTL,
	}, cfg.Risk.StartingEquity)

	snapshot, err := riskRepo.Load()
	switch {
	case err == nil:
		guard.Restore(*snapshot)
		log.Printf("Risk state restored: %s", snapshot.State)
	case errors.Is(err, repository.ErrRiskStateNotFound):
		log.Println("No saved risk state, starting fresh")
	default:
		log.Fatalf("Failed to load risk state: %v", err)
	}

	// Конвейер маршрутизации
	orderRouter := router.New(router.Config{
		AdapterTimeout: cfg.Router.AdapterTimeout,
		CancelTimeout:  cfg.Router.CancelTimeout,
	}, registry, validator, guard, limits, orderRepo)

	// WebSocket hub транслирует уведомления конвейера клиентам
	hub := websocket.NewHub()
	go hub.Run()

	notifications := make(chan *models.Notification, 64)
	orderRouter.SetNotifications(notifications)
	go hub.ConsumeNotifications(notifications)

	// Периодический снапшот состояния риск-гарда
	snapshotDone := make(chan struct{})
	go persistRiskState(guard, riskRepo, snapshotDone)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		Router:       orderRouter,
		Risk:         orderRouter,
		Orders:       orderRepo,
		Validator:    validator,
		Hub:          hub,
		APITokenHash: cfg.Security.APITokenHash,
	}

	// Настройка HTTP роутера
	mux := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	close(snapshotDone)

	// Финальный снапшот риск-состояния
	if err := riskRepo.Save(guard.Status()); err != nil {
		log.Printf("Error saving risk state: %v", err)
	}

	// Закрываем соединения с биржами
	if err := registry.Close(); err != nil {
		log.Printf("Error closing exchange connections: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Канал уведомлений закрывается после остановки HTTP: запросов,
	// способных в него писать, больше нет
	close(notifications)
	hub.Stop()

	log.Println("Server exited")
}

// persistRiskState периодически сохраняет снапшот риск-гарда в БД,
// чтобы блокировки и учёт просадки переживали рестарт процесса
func persistRiskState(guard *risk.Guard, repo *repository.RiskRepository, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := repo.Save(guard.Status()); err != nil {
				log.Printf("Error saving risk state: %v", err)
			}
		case <-done:
			return
		}
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
