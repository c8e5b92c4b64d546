package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the trading core
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server (observer API)
	Port string
	Env  string // development, staging, production

	// Core components
	Engine    EngineConfig
	Risk      RiskConfig
	Portfolio PortfolioConfig

	// Execution venue
	Kite KiteConfig

	// Audit persistence (optional; empty URL disables the audit repository)
	Database DatabaseConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// EngineConfig holds order lifecycle parameters
type EngineConfig struct {
	MaxRetries      int           // 주문 제출 재시도 횟수
	RetryDelay      time.Duration // 재시도 간격 (고정)
	MonitorInterval time.Duration // 체결 모니터링 주기
	QueueSize       int           // 주문 제출 큐 크기
	ShutdownTimeout time.Duration // 종료 시 pending 주문 대기 한도
}

// RiskConfig holds risk admission thresholds
type RiskConfig struct {
	MaxDailyLoss              float64 // 일일 손실 한도 (양수)
	MaxPositionSizePercent    float64 // 포트폴리오 대비 최대 포지션 비중 (%)
	StopLossPercent           float64 // 기본 손절 비율 (%)
	MaxPositionsPerInstrument int
	EmergencyStopEnabled      bool
}

// PortfolioConfig holds ledger parameters
type PortfolioConfig struct {
	InitialCapital float64
	CommissionRate float64 // 수수료율 (예: 0.0003 = 0.03%)
	TaxRate        float64
}

// KiteConfig holds Zerodha Kite API configuration
type KiteConfig struct {
	APIKey      string
	AccessToken string
	BaseURL     string
	RateLimit   int // 초당 요청 한도
}

// DatabaseConfig holds PostgreSQL configuration for the audit repository
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		Engine: EngineConfig{
			MaxRetries:      getEnvAsInt("ENGINE_MAX_RETRIES", 3),
			RetryDelay:      getEnvAsDuration("ENGINE_RETRY_DELAY", "1s"),
			MonitorInterval: getEnvAsDuration("ENGINE_MONITOR_INTERVAL", "1s"),
			QueueSize:       getEnvAsInt("ENGINE_QUEUE_SIZE", 256),
			ShutdownTimeout: getEnvAsDuration("ENGINE_SHUTDOWN_TIMEOUT", "10s"),
		},

		Risk: RiskConfig{
			MaxDailyLoss:              getEnvAsFloat("RISK_MAX_DAILY_LOSS", 10000),
			MaxPositionSizePercent:    getEnvAsFloat("RISK_MAX_POSITION_SIZE_PCT", 10),
			StopLossPercent:           getEnvAsFloat("RISK_STOP_LOSS_PCT", 2),
			MaxPositionsPerInstrument: getEnvAsInt("RISK_MAX_POSITIONS_PER_INSTRUMENT", 1),
			EmergencyStopEnabled:      getEnvAsBool("RISK_EMERGENCY_STOP_ENABLED", true),
		},

		Portfolio: PortfolioConfig{
			InitialCapital: getEnvAsFloat("PORTFOLIO_INITIAL_CAPITAL", 1_000_000),
			CommissionRate: getEnvAsFloat("PORTFOLIO_COMMISSION_RATE", 0.0003),
			TaxRate:        getEnvAsFloat("PORTFOLIO_TAX_RATE", 0),
		},

		Kite: KiteConfig{
			APIKey:      getEnv("KITE_API_KEY", ""),
			AccessToken: getEnv("KITE_ACCESS_TOKEN", ""),
			BaseURL:     getEnv("KITE_BASE_URL", "https://api.kite.trade"),
			RateLimit:   getEnvAsInt("KITE_RATE_LIMIT", 3),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("ENGINE_MAX_RETRIES must not be negative")
	}

	if c.Engine.QueueSize <= 0 {
		return fmt.Errorf("ENGINE_QUEUE_SIZE must be positive")
	}

	if c.Portfolio.InitialCapital <= 0 {
		return fmt.Errorf("PORTFOLIO_INITIAL_CAPITAL must be positive")
	}

	if c.Risk.MaxPositionSizePercent <= 0 || c.Risk.MaxPositionSizePercent > 100 {
		return fmt.Errorf("RISK_MAX_POSITION_SIZE_PCT must be in (0, 100]")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
