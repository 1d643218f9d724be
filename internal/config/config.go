package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultResolveTimeoutMS = 10000

type Config struct {
	Server   ServerConfig
	Resolver ResolverConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Worker   WorkerConfig
	Relay    RelayConfig
	Snapshot SnapshotConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ResolverConfig struct {
	TimeoutMS    int
	UserAgent    string
	MaxBodyBytes int64
	FetchMode    string
}

// Timeout converts PRODUCT_RESOLVE_TIMEOUT_MS, falling back to the default
// for non-positive values.
func (r ResolverConfig) Timeout() time.Duration {
	if r.TimeoutMS <= 0 {
		return DefaultResolveTimeoutMS * time.Millisecond
	}
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

type BrowserConfig struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type QueueConfig struct {
	Type    string
	Key     string
	MaxSize int
}

type WorkerConfig struct {
	Enabled      bool
	Concurrency  int
	PopTimeout   time.Duration
	HostRate     float64
	HostBurst    int
	TaskDeadline time.Duration
}

type RelayConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
	Stream       string
}

type SnapshotConfig struct {
	Store    string
	FilePath string
}

type LoggingConfig struct {
	Level  string
	Format string
}

const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"

	QueueTypeMemory = "memory"
	QueueTypeRedis  = "redis"

	SnapshotStorePostgres = "postgres"
	SnapshotStoreFile     = "file"
)

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Resolver: ResolverConfig{
			TimeoutMS:    getIntOrDefault("PRODUCT_RESOLVE_TIMEOUT_MS", DefaultResolveTimeoutMS),
			UserAgent:    getEnvOrDefault("PRODUCT_RESOLVE_USER_AGENT", ""),
			MaxBodyBytes: int64(getIntOrDefault("PRODUCT_RESOLVE_MAX_BODY_BYTES", 5<<20)),
			FetchMode:    strings.ToLower(getEnvOrDefault("FETCH_MODE", FetchModeHTTP)),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/London"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-GB"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Database: DatabaseConfig{
			Host:        getEnvOrDefault("DB_HOST", "localhost"),
			Port:        getIntOrDefault("DB_PORT", 5432),
			User:        getEnvOrDefault("DB_USER", "postgres"),
			Password:    getEnvOrDefault("DB_PASSWORD", ""),
			DBName:      getEnvOrDefault("DB_NAME", "product_resolver"),
			SSLMode:     getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns:    int32(getIntOrDefault("DB_MAX_CONNS", 20)),
			MinConns:    int32(getIntOrDefault("DB_MIN_CONNS", 2)),
			MaxConnLife: getDurationOrDefault("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdle: getDurationOrDefault("DB_MAX_CONN_IDLE", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Type:    strings.ToLower(getEnvOrDefault("QUEUE_TYPE", QueueTypeMemory)),
			Key:     getEnvOrDefault("QUEUE_KEY", "queue:resolve_product"),
			MaxSize: getIntOrDefault("QUEUE_MAX_SIZE", 1000),
		},
		Worker: WorkerConfig{
			Enabled:      getBoolOrDefault("WORKER_ENABLED", true),
			Concurrency:  getIntOrDefault("WORKER_CONCURRENCY", 2),
			PopTimeout:   getDurationOrDefault("WORKER_POP_TIMEOUT", 5*time.Second),
			HostRate:     getFloatOrDefault("WORKER_HOST_RATE", 0.5),
			HostBurst:    getIntOrDefault("WORKER_HOST_BURST", 1),
			TaskDeadline: getDurationOrDefault("WORKER_TASK_DEADLINE", time.Minute),
		},
		Relay: RelayConfig{
			Enabled:      getBoolOrDefault("RELAY_ENABLED", true),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
			Stream:       getEnvOrDefault("RELAY_STREAM", "stream:product_snapshots"),
		},
		Snapshot: SnapshotConfig{
			Store:    strings.ToLower(getEnvOrDefault("SNAPSHOT_STORE", SnapshotStorePostgres)),
			FilePath: getEnvOrDefault("SNAPSHOT_FILE", "snapshots.json"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %q", c.Server.Port)
	}

	switch c.Resolver.FetchMode {
	case FetchModeHTTP, FetchModeBrowser:
	default:
		return fmt.Errorf("FETCH_MODE must be %q or %q, got %q", FetchModeHTTP, FetchModeBrowser, c.Resolver.FetchMode)
	}

	switch c.Queue.Type {
	case QueueTypeMemory, QueueTypeRedis:
	default:
		return fmt.Errorf("QUEUE_TYPE must be %q or %q, got %q", QueueTypeMemory, QueueTypeRedis, c.Queue.Type)
	}

	switch c.Snapshot.Store {
	case SnapshotStorePostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres snapshot store")
		}
	case SnapshotStoreFile:
		if c.Snapshot.FilePath == "" {
			return fmt.Errorf("SNAPSHOT_FILE is required for the file snapshot store")
		}
	default:
		return fmt.Errorf("SNAPSHOT_STORE must be %q or %q, got %q", SnapshotStorePostgres, SnapshotStoreFile, c.Snapshot.Store)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}

	if c.Worker.HostRate <= 0 || c.Worker.HostBurst < 1 {
		return fmt.Errorf("WORKER_HOST_RATE must be positive and WORKER_HOST_BURST at least 1")
	}

	if c.Relay.BatchSize < 1 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be at least 1")
	}

	if c.Queue.MaxSize < 1 {
		return fmt.Errorf("QUEUE_MAX_SIZE must be at least 1")
	}

	return nil
}

// RelayActive reports whether the outbox relay should run. The outbox only
// exists in the postgres store.
func (c *Config) RelayActive() bool {
	return c.Relay.Enabled && c.Snapshot.Store == SnapshotStorePostgres
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (l LoggingConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(l.Level)}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
