package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Broker holds the RabbitMQ connection and RPC tuning shared by every
// service.
type Broker struct {
	DSN            string
	ConnectTimeout time.Duration
	RPCTimeout     time.Duration
	RPCMaxRetries  int
	RPCRetryDelay  time.Duration
}

// Database is the Postgres surface of the auth service.
type Database struct {
	URL    string
	Schema string
}

// Redis is the brute-force counter backend.
type Redis struct {
	URL              string
	Password         string
	PoolSize         int
	Timeout          time.Duration
	LoginMaxAttempts int
	LoginBanTTL      time.Duration
	LoginWindowTTL   time.Duration
}

// JWT is the token-signing surface.
type JWT struct {
	Secret          string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	Issuer          string
	Audience        string // access-token audience; refresh tokens use Audience+"refresh" semantics
	AcceptLegacyAud bool   // compatibility: accept access audience on refresh
}

// Gateway holds the WS/HTTP surface of the gateway.
type Gateway struct {
	HTTPAddr     string
	PingInterval time.Duration
	IdleTimeout  time.Duration
}

type Config struct {
	Env     string // dev / staging / prod
	Broker  Broker
	DB      Database
	Redis   Redis
	JWT     JWT
	Gateway Gateway
}

// Load reads the full configuration from the environment. Services use the
// sections relevant to them; required variables are validated eagerly so a
// misconfigured process fails at startup, not mid-request.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.Env = getEnvFirst([]string{"APP_ENV", "ENV"}, "dev")

	var err error

	// Broker
	cfg.Broker.DSN = strings.TrimSpace(os.Getenv("RABBITMQ_DSN"))
	if cfg.Broker.DSN == "" {
		return nil, fmt.Errorf("missing required env var: RABBITMQ_DSN")
	}
	if err = validateAMQPDSN(cfg.Broker.DSN); err != nil {
		return nil, fmt.Errorf("invalid RABBITMQ_DSN: %w", err)
	}
	cfg.Broker.ConnectTimeout, err = getDuration("RABBITMQ_CONNECT_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.Broker.RPCTimeout, err = getMillis("RPC_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}
	cfg.Broker.RPCMaxRetries, err = getInt("RPC_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	if cfg.Broker.RPCMaxRetries < 0 {
		return nil, fmt.Errorf("RPC_MAX_RETRIES must be >= 0")
	}
	cfg.Broker.RPCRetryDelay, err = getMillis("RPC_RETRY_DELAY_MS", 5000)
	if err != nil {
		return nil, err
	}

	// Database
	cfg.DB.URL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DB.URL != "" {
		if err = validatePostgresDSN(cfg.DB.URL); err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
	}
	cfg.DB.Schema = getEnv("DB_SCHEMA", "")

	// Redis
	cfg.Redis.URL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.Redis.Password = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	cfg.Redis.PoolSize, err = getInt("REDIS_POOL_SIZE", 10)
	if err != nil {
		return nil, err
	}
	cfg.Redis.Timeout, err = getSeconds("REDIS_TIMEOUT_SEC", 3)
	if err != nil {
		return nil, err
	}
	cfg.Redis.LoginMaxAttempts, err = getInt("REDIS_LOGIN_MAX_ATTEMPTS", 10)
	if err != nil {
		return nil, err
	}
	cfg.Redis.LoginBanTTL, err = getSeconds("REDIS_TTL_LOGIN_BAN_SEC", 900)
	if err != nil {
		return nil, err
	}
	cfg.Redis.LoginWindowTTL, err = getSeconds("REDIS_TTL_LOGIN_WINDOW_SEC", 300)
	if err != nil {
		return nil, err
	}

	// JWT
	cfg.JWT.Secret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	cfg.JWT.AccessTTL, err = getSeconds("AUTH_ACCESS_TTL", 1800)
	if err != nil {
		return nil, err
	}
	cfg.JWT.RefreshTTL, err = getSeconds("AUTH_REFRESH_TTL", 14*24*3600)
	if err != nil {
		return nil, err
	}
	cfg.JWT.Issuer = getEnv("AUTH_JWT_ISS", "auth-service")
	cfg.JWT.Audience = getEnv("AUTH_JWT_AUD", "access")
	cfg.JWT.AcceptLegacyAud = parseBool(getEnv("AUTH_JWT_ACCEPT_LEGACY_AUD", "false"))

	// Gateway
	cfg.Gateway.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.Gateway.PingInterval, err = getSeconds("GATEWAY_WS_PING_INTERVAL", 30)
	if err != nil {
		return nil, err
	}
	cfg.Gateway.IdleTimeout, err = getSeconds("GATEWAY_WS_IDLE_TIMEOUT", 120)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireAuth validates the variables only the auth service needs.
func (c *Config) RequireAuth() error {
	if c.DB.URL == "" {
		return fmt.Errorf("missing required env var: DATABASE_URL")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("missing required env var: REDIS_URL")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("missing required env var: JWT_SECRET")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFirst(keys []string, def string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	// accept both "15s" and bare seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q: %w", key, v, err)
	}
	return d, nil
}

func getMillis(key string, defMS int) (time.Duration, error) {
	n, err := getInt(key, defMS)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be >= 0", key)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func getSeconds(key string, defSec int) (time.Duration, error) {
	n, err := getInt(key, defSec)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be >= 0", key)
	}
	return time.Duration(n) * time.Second, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func validateAMQPDSN(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return fmt.Errorf("scheme must be amqp/amqps, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func validatePostgresDSN(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("scheme must be postgres/postgresql, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	if strings.Trim(u.Path, "/") == "" {
		return fmt.Errorf("missing database name in path, expected /<db>")
	}
	return nil
}
