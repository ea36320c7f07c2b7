package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server ServerConfig
	App    AppConfig
	Log    LogConfig
	Cache  CacheConfig
	Store  StoreConfig
	Ledger LedgerConfig
	Events EventsConfig
	Auth   AuthConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"cardvault-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"` // debug, info, warn, error
}

// CacheConfig holds read-through cache settings.
type CacheConfig struct {
	Type            string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	CleanupInterval time.Duration `envconfig:"CACHE_CLEANUP_INTERVAL" default:"1m"`

	ListingTTL  time.Duration `envconfig:"CACHE_LISTING_TTL" default:"15s"`
	PresenceTTL time.Duration `envconfig:"CACHE_PRESENCE_TTL" default:"5s"`
	RapTTL      time.Duration `envconfig:"CACHE_RAP_TTL" default:"30s"`
	HistoryTTL  time.Duration `envconfig:"CACHE_HISTORY_TTL" default:"1m"`

	RedisHost      string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort      int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"cardvault:cache"`
}

// StoreConfig selects and configures the key-value store backend.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"level"` // level, sqlite, postgres or mysql

	// LevelDB directory. Empty runs fully in memory.
	LevelPath string `envconfig:"STORE_LEVEL_PATH" default:"./data/ledger"`
	// SQLite file.
	SQLitePath string `envconfig:"STORE_SQLITE_PATH" default:"./data/ledger.db"`

	// PostgreSQL settings
	PostgresHost     string `envconfig:"STORE_PG_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"STORE_PG_PORT" default:"5432"`
	PostgresName     string `envconfig:"STORE_PG_NAME" default:"cardvault"`
	PostgresUser     string `envconfig:"STORE_PG_USER" default:"postgres"`
	PostgresPassword string `envconfig:"STORE_PG_PASS" default:""`
	PostgresSSLMode  string `envconfig:"STORE_PG_SSLMODE" default:"disable"`

	// MySQL settings
	MySQLHost     string `envconfig:"STORE_MYSQL_HOST" default:"localhost"`
	MySQLPort     int    `envconfig:"STORE_MYSQL_PORT" default:"3306"`
	MySQLName     string `envconfig:"STORE_MYSQL_NAME" default:"cardvault"`
	MySQLUser     string `envconfig:"STORE_MYSQL_USER" default:"root"`
	MySQLPassword string `envconfig:"STORE_MYSQL_PASS" default:""`
}

// LedgerConfig holds the tunables of the ledger engines.
type LedgerConfig struct {
	MaxAttempts        int           `envconfig:"LEDGER_MAX_ATTEMPTS" default:"5"`
	BaseDelay          time.Duration `envconfig:"LEDGER_BASE_DELAY" default:"50ms"`
	MaxListingsPerUser int           `envconfig:"LEDGER_MAX_LISTINGS_PER_USER" default:"256"`
	IdempotencyTTL     time.Duration `envconfig:"LEDGER_IDEMPOTENCY_TTL" default:"24h"`
	PresenceWindow     time.Duration `envconfig:"LEDGER_PRESENCE_WINDOW" default:"60s"`
	FindSellersLimit   int           `envconfig:"LEDGER_FIND_SELLERS_LIMIT" default:"30"`
	CleanupInterval    time.Duration `envconfig:"LEDGER_CLEANUP_INTERVAL" default:"10m"`
	BackfillInterval   time.Duration `envconfig:"LEDGER_BACKFILL_INTERVAL" default:"1h"`
}

// EventsConfig holds event publishing settings.
type EventsConfig struct {
	NATSURL       string `envconfig:"NATS_URL" default:""` // empty disables NATS
	Stream        string `envconfig:"NATS_STREAM" default:"CARDVAULT_EVENTS"`
	SubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"cardvault.events"`
	WebSocket     bool   `envconfig:"EVENTS_WEBSOCKET" default:"true"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeys []string `envconfig:"API_KEYS"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.PostgresUser, s.PostgresPassword, s.PostgresHost, s.PostgresPort, s.PostgresName, s.PostgresSSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		s.MySQLUser, s.MySQLPassword, s.MySQLHost, s.MySQLPort, s.MySQLName)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Ledger.MaxAttempts < 1 {
		return nil, fmt.Errorf("LEDGER_MAX_ATTEMPTS must be at least 1, got %d", cfg.Ledger.MaxAttempts)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
