package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Port         string
	Env          string
	StoreBackend string

	// TrustProxy makes the client address come from X-Forwarded-For/X-Real-IP
	TrustProxy bool

	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	JWTSecret        string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	BcryptCost           int
	SessionHashCost      int
	SessionPurgeInterval time.Duration

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RateLimitWindow time.Duration
	RateLimitMax    int

	AMQPURL    string
	AuditQueue string

	LogLevel  string
	LogPretty bool
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:         envStr("PORT", "5000"),
		Env:          envStr("APP_ENV", "development"),
		StoreBackend: strings.ToLower(envStr("STORE_BACKEND", BackendPostgres)),
		TrustProxy:   envBool("TRUST_PROXY", false),
		AuditQueue:   envStr("AUDIT_QUEUE", "forensic.audit"),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		LogPretty:    envBool("LOG_PRETTY", false),
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		// Load DATABASE_URL and log connection details (password masked)
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
		cfg.DatabaseURL = databaseURL
		if u, err := url.Parse(databaseURL); err == nil {
			log.Info().
				Str("host", u.Hostname()).
				Str("db", strings.TrimPrefix(u.Path, "/")).
				Str("user", u.User.Username()).
				Msg("postgres store selected")
		}
	case BackendMongo:
		cfg.MongoURI = os.Getenv("MONGODB_URI")
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGODB_URI environment variable is required")
		}
		cfg.MongoDatabase = envStr("MONGODB_DATABASE", "forensic")
	case BackendMemory:
		log.Warn().Msg("memory store selected; data is lost on restart")
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTRefreshSecret = os.Getenv("JWT_REFRESH_SECRET")
	if cfg.JWTRefreshSecret == "" {
		return nil, fmt.Errorf("JWT_REFRESH_SECRET environment variable is required")
	}
	if cfg.JWTSecret == cfg.JWTRefreshSecret {
		return nil, fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}

	var err error
	if cfg.AccessTokenTTL, err = envLifetime("JWT_EXPIRE", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = envLifetime("JWT_REFRESH_EXPIRE", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionPurgeInterval, err = envLifetime("SESSION_PURGE_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = envLifetime("RATE_LIMIT_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}

	cfg.BcryptCost = envInt("BCRYPT_COST", 12)
	cfg.SessionHashCost = envInt("SESSION_HASH_COST", 10)
	if cfg.RateLimitMax, err = envPositiveInt("RATE_LIMIT_MAX", 5); err != nil {
		return nil, err
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = envInt("REDIS_DB", 0)
	cfg.AMQPURL = os.Getenv("AMQP_URL")

	return cfg, nil
}

// ParseLifetime parses a Go duration and additionally accepts a day suffix ("7d").
func ParseLifetime(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day lifetime %q", v)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid lifetime %q: %w", v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("lifetime %q must be positive", v)
	}
	return d, nil
}

func envLifetime(k string, d time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	dur, err := ParseLifetime(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return dur, nil
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envPositiveInt(k string, d int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", k, v)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %d", k, n)
	}
	return n, nil
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}
