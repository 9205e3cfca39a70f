package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Risk     RiskConfig
	Symbols  SymbolsConfig
	Rate     RateConfig
	Router   RouterConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	APITokenHash  string // bcrypt-хэш токена операторского API
	EncryptionKey string // 32 байта для AES-256 (ключи бирж в БД)
}

// RiskConfig - лимиты риск-гарда
type RiskConfig struct {
	RiskPerTrade   float64       // доля капитала на сделку
	DailyDDMax     float64       // дневная просадка
	MaxSeqLosses   int           // серия убытков до блокировки (0 = выкл)
	LockoutTTL     time.Duration // 0 = блокировка до ручного unlock
	StartingEquity float64       // стартовый капитал при пустой БД
}

// SymbolsConfig - кэш листингов бирж
type SymbolsConfig struct {
	CacheTTL time.Duration
	Offline  bool // жить на кэше, в сеть не ходить
	Warmup   bool // прогреть листинги при старте
}

// RateConfig - вёдра rate limiter по классам действий
type RateConfig struct {
	OrdersCapacity     float64
	OrdersRefill       float64 // токенов в секунду
	MarketDataCapacity float64
	MarketDataRefill   float64
}

// RouterConfig - таймауты конвейера
type RouterConfig struct {
	AdapterTimeout time.Duration
	CancelTimeout  time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradegate"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			APITokenHash:  getEnv("API_TOKEN_HASH", ""),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Risk: RiskConfig{
			RiskPerTrade:   getEnvAsFloat("RISK_PER_TRADE", 0.01),
			DailyDDMax:     getEnvAsFloat("DAILY_DD_MAX", 0.05),
			MaxSeqLosses:   getEnvAsInt("MAX_SEQ_LOSSES", 3),
			LockoutTTL:     time.Duration(getEnvAsInt("LOCKOUT_TTL_SECONDS", 0)) * time.Second,
			StartingEquity: getEnvAsFloat("STARTING_EQUITY", 10000),
		},
		Symbols: SymbolsConfig{
			CacheTTL: getEnvAsDuration("SYMBOL_CACHE_TTL", 10*time.Minute),
			Offline:  getEnvAsBool("OFFLINE_RULES", false),
			Warmup:   getEnvAsBool("WARMUP", true),
		},
		Rate: RateConfig{
			OrdersCapacity:     getEnvAsFloat("RATE_ORDERS_CAPACITY", 10),
			OrdersRefill:       getEnvAsFloat("RATE_ORDERS_REFILL", 5),
			MarketDataCapacity: getEnvAsFloat("RATE_MARKETDATA_CAPACITY", 20),
			MarketDataRefill:   getEnvAsFloat("RATE_MARKETDATA_REFILL", 10),
		},
		Router: RouterConfig{
			AdapterTimeout: getEnvAsDuration("ADAPTER_TIMEOUT", 10*time.Second),
			CancelTimeout:  getEnvAsDuration("CANCEL_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования API ключей бирж
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting exchange API keys")
	}
	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	// API_TOKEN_HASH обязателен: операторский API без аутентификации
	// может отправить ордер от чужого имени
	if c.Security.APITokenHash == "" {
		return fmt.Errorf("API_TOKEN_HASH is required (bcrypt hash of the operator token)")
	}
	if !strings.HasPrefix(c.Security.APITokenHash, "$2") {
		return fmt.Errorf("API_TOKEN_HASH must be a bcrypt hash, got a plaintext-looking value")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 0.5 {
		return fmt.Errorf("RISK_PER_TRADE must be in (0, 0.5], got %g", c.Risk.RiskPerTrade)
	}
	if c.Risk.DailyDDMax <= 0 || c.Risk.DailyDDMax > 1 {
		return fmt.Errorf("DAILY_DD_MAX must be in (0, 1], got %g", c.Risk.DailyDDMax)
	}
	if c.Risk.MaxSeqLosses < 0 {
		return fmt.Errorf("MAX_SEQ_LOSSES cannot be negative, got %d", c.Risk.MaxSeqLosses)
	}
	if c.Risk.LockoutTTL < 0 {
		return fmt.Errorf("LOCKOUT_TTL_SECONDS cannot be negative, got %v", c.Risk.LockoutTTL)
	}
	if c.Risk.StartingEquity <= 0 {
		return fmt.Errorf("STARTING_EQUITY must be positive, got %g", c.Risk.StartingEquity)
	}

	if c.Symbols.CacheTTL <= 0 {
		return fmt.Errorf("SYMBOL_CACHE_TTL must be positive, got %v", c.Symbols.CacheTTL)
	}
	if c.Symbols.Offline && c.Symbols.Warmup {
		return fmt.Errorf("WARMUP cannot be enabled together with OFFLINE_RULES")
	}

	if c.Rate.OrdersCapacity <= 0 || c.Rate.OrdersRefill <= 0 {
		return fmt.Errorf("RATE_ORDERS_CAPACITY and RATE_ORDERS_REFILL must be positive")
	}
	if c.Rate.MarketDataCapacity <= 0 || c.Rate.MarketDataRefill <= 0 {
		return fmt.Errorf("RATE_MARKETDATA_CAPACITY and RATE_MARKETDATA_REFILL must be positive")
	}

	if c.Router.AdapterTimeout <= 0 {
		return fmt.Errorf("ADAPTER_TIMEOUT must be positive, got %v", c.Router.AdapterTimeout)
	}
	if c.Router.CancelTimeout <= 0 {
		return fmt.Errorf("CANCEL_TIMEOUT must be positive, got %v", c.Router.CancelTimeout)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
