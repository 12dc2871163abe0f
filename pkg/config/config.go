package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const envPrefix = "STREAMHUB_"

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		AuthTimeout    time.Duration `yaml:"auth_timeout"`
		PersistTimeout time.Duration `yaml:"persist_timeout"`
		SendQueueSize  int           `yaml:"send_queue_size"`
		HistoryLimit   int           `yaml:"history_limit"`

		// DisconnectOnViolation closes the connection when a role check or a
		// state precondition fails, instead of only refusing the action.
		DisconnectOnViolation bool `yaml:"disconnect_on_violation"`
		// CloseOnAuthFailure closes the connection after a failed authenticate
		// instead of letting the client retry on the same transport.
		CloseOnAuthFailure bool `yaml:"close_on_auth_failure"`

		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"signal"`

	Client struct {
		URL               string        `yaml:"url"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
		ConnectTimeout    time.Duration `yaml:"connect_timeout"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
		ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
		ReconnectFactor   float64       `yaml:"reconnect_factor"`
		MaxReconnects     int           `yaml:"max_reconnects"`
	} `yaml:"client"`

	Chat struct {
		MaxMessageLength int      `yaml:"max_message_length"`
		CensoredWords    []string `yaml:"censored_words"`
		CensorChar       string   `yaml:"censor_char"`
	} `yaml:"chat"`

	Storage struct {
		// Driver is one of memory, redis, badger, postgres.
		Driver           string         `yaml:"driver"`
		BadgerPath       string         `yaml:"badger_path"`
		Seed             []SeedIdentity `yaml:"seed_identities"`
		IdentityCacheTTL time.Duration  `yaml:"identity_cache_ttl"`
	} `yaml:"storage"`

	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"postgres"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		// NotificationChannel is the pub/sub channel carrying stream lifecycle
		// and operator notifications from the media side.
		NotificationChannel string `yaml:"notification_channel"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	} `yaml:"auth"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		HealthTimeout     time.Duration `yaml:"health_timeout"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Reliability struct {
		RetryEnabled     bool          `yaml:"retry_enabled"`
		RetryAttempts    int           `yaml:"retry_attempts"`
		RetryDelay       time.Duration `yaml:"retry_delay"`
		RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
		FailureThreshold int           `yaml:"failure_threshold"`
		OpenTimeout      time.Duration `yaml:"open_timeout"`
	} `yaml:"reliability"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int     `yaml:"connections_per_minute"`
			MessagesPerSecond    float64 `yaml:"messages_per_second"`
			Burst                int     `yaml:"burst"`
			MaxConcurrent        int     `yaml:"max_concurrent_connections"`
			MaxMessageSizeBytes  int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// SeedIdentity is an account written to the identity store at startup.
type SeedIdentity struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Email       string `yaml:"email"`
	Role        string `yaml:"role"`
}

var storageDrivers = map[string]bool{
	"memory":   true,
	"redis":    true,
	"badger":   true,
	"postgres": true,
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must be >= 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be greater than signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.AuthTimeout <= 0 {
		return fmt.Errorf("signal.auth_timeout must be > 0")
	}
	if c.Signal.PersistTimeout <= 0 {
		return fmt.Errorf("signal.persist_timeout must be > 0")
	}
	if c.Signal.SendQueueSize <= 0 {
		return fmt.Errorf("signal.send_queue_size must be > 0")
	}
	if c.Signal.HistoryLimit <= 0 || c.Signal.HistoryLimit > 500 {
		return fmt.Errorf("signal.history_limit must be in (0, 500]")
	}

	// Client
	if c.Client.HeartbeatInterval <= 0 || c.Client.HeartbeatTimeout <= 0 {
		return fmt.Errorf("client heartbeat interval and timeout must be > 0")
	}
	if c.Client.ConnectTimeout <= 0 {
		return fmt.Errorf("client.connect_timeout must be > 0")
	}
	if c.Client.ReconnectDelay <= 0 || c.Client.ReconnectMaxDelay < c.Client.ReconnectDelay {
		return fmt.Errorf("client.reconnect_delay must be > 0 and <= client.reconnect_max_delay")
	}
	if c.Client.ReconnectFactor < 1 {
		return fmt.Errorf("client.reconnect_factor must be >= 1")
	}
	if c.Client.MaxReconnects <= 0 {
		return fmt.Errorf("client.max_reconnects must be > 0")
	}

	// Chat
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("chat.max_message_length must be > 0")
	}
	if len([]rune(c.Chat.CensorChar)) != 1 {
		return fmt.Errorf("chat.censor_char must be a single character")
	}

	// Storage
	if !storageDrivers[c.Storage.Driver] {
		return fmt.Errorf("storage.driver %q is not supported (memory, redis, badger, postgres)", c.Storage.Driver)
	}
	if c.Storage.Driver == "badger" && c.Storage.BadgerPath == "" {
		return fmt.Errorf("storage.badger_path must not be empty when storage.driver=badger")
	}
	if c.Storage.Driver == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn must not be empty when storage.driver=postgres")
	}
	for i, seed := range c.Storage.Seed {
		if seed.ID == "" {
			return fmt.Errorf("storage.seed_identities[%d].id must not be empty", i)
		}
	}

	// Redis
	if c.Redis.Enabled || c.Storage.Driver == "redis" {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis is used")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis is used")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled && (c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing.sample_rate must be in (0, 1] when tracing is enabled")
	}

	// Reliability
	if c.Reliability.RetryEnabled && c.Reliability.RetryAttempts < 0 {
		return fmt.Errorf("reliability.retry_attempts must be >= 0")
	}
	if c.Reliability.FailureThreshold <= 0 {
		return fmt.Errorf("reliability.failure_threshold must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}
	if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// A .env file in the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// No file: defaults plus environment.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFirst tries each path in order and returns the first config that loads
// from an existing file, or defaults with env overrides when none exist.
func LoadFirst(paths ...string) (*Config, string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := Load(path)
		return cfg, path, err
	}
	cfg, err := Load("")
	return cfg, "", err
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8081"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 0 // websocket connections are long-lived
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.PingInterval = 25 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.AuthTimeout = 15 * time.Second
	cfg.Signal.PersistTimeout = 3 * time.Second
	cfg.Signal.SendQueueSize = 64
	cfg.Signal.HistoryLimit = 50
	cfg.Signal.DisconnectOnViolation = false
	cfg.Signal.CloseOnAuthFailure = false
	cfg.Signal.AllowedOrigins = []string{"*"}

	cfg.Client.URL = "ws://localhost:8081/ws"
	cfg.Client.HeartbeatInterval = 30 * time.Second
	cfg.Client.HeartbeatTimeout = 10 * time.Second
	cfg.Client.ConnectTimeout = 10 * time.Second
	cfg.Client.ReconnectDelay = 2 * time.Second
	cfg.Client.ReconnectMaxDelay = 30 * time.Second
	cfg.Client.ReconnectFactor = 1.5
	cfg.Client.MaxReconnects = 10

	cfg.Chat.MaxMessageLength = 500
	cfg.Chat.CensorChar = "*"

	cfg.Storage.Driver = "memory"
	cfg.Storage.BadgerPath = "data/chat"
	cfg.Storage.IdentityCacheTTL = 30 * time.Second

	cfg.Postgres.MaxConns = 10
	cfg.Postgres.Migrate = true

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.NotificationChannel = "streamhub:notifications"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 24 * time.Hour

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthTimeout = 2 * time.Second

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Reliability.RetryEnabled = true
	cfg.Reliability.RetryAttempts = 2
	cfg.Reliability.RetryDelay = 50 * time.Millisecond
	cfg.Reliability.RetryMaxDelay = 500 * time.Millisecond
	cfg.Reliability.FailureThreshold = 5
	cfg.Reliability.OpenTimeout = 15 * time.Second

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(envPrefix + "SERVER_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv(envPrefix + "STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(envPrefix + "POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv(envPrefix + "REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv(envPrefix + "REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(envPrefix + "DISCONNECT_ON_VIOLATION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Signal.DisconnectOnViolation = b
		}
	}
	if v := os.Getenv(envPrefix + "CLIENT_URL"); v != "" {
		c.Client.URL = v
	}
}
