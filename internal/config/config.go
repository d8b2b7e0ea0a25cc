package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/config"
	"github.com/Eran2001/safe-lanka-smart-crime-advisor-api-service/pkg/database"
)

const (
	minSecretLength = 32
	minBcryptCost   = 10
	maxBcryptCost   = 31
)

// Config holds all configuration for the API service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"safelanka-api"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort          int      `env:"HTTP_PORT" envDefault:"4000"`
	CORSAllowedOrigin []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	TrustProxyHeaders bool     `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// PostgreSQL
	PostgresHost     string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string        `env:"POSTGRES_USER" envDefault:"safelanka"`
	PostgresPass     string        `env:"POSTGRES_PASSWORD" envDefault:"safelanka"`
	PostgresDB       string        `env:"POSTGRES_DB" envDefault:"safelanka"`
	PostgresSSL      string        `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	DBMaxConns       int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns       int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBSlowQuery      time.Duration `env:"DB_SLOW_QUERY" envDefault:"200ms"`

	// Tokens and passwords
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET,required,notEmpty"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET,required,notEmpty"`
	JWTAccessTTL     time.Duration `env:"JWT_ACCESS_EXPIRES" envDefault:"15m"`
	JWTRefreshTTL    time.Duration `env:"JWT_REFRESH_EXPIRES" envDefault:"168h"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"safelanka-api"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"12"`

	// Rate limiting
	RateLimitBackend string        `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	AuthRateLimit    int           `env:"AUTH_RATE_LIMIT" envDefault:"5"`
	AuthRateWindow   time.Duration `env:"AUTH_RATE_WINDOW" envDefault:"1m"`
	APIRateLimit     int           `env:"API_RATE_LIMIT" envDefault:"100"`
	APIRateWindow    time.Duration `env:"API_RATE_WINDOW" envDefault:"15m"`

	// Redis, used when RATE_LIMIT_BACKEND=redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// LoadFromMap reads configuration from vars. Used by tests and cmd/seed.
func LoadFromMap(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFromMap(cfg, vars); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate enforces cross-field rules that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort))
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if !c.IsDevelopment() {
		if len(c.JWTAccessSecret) < minSecretLength {
			errs = append(errs, fmt.Errorf("JWT_ACCESS_SECRET must be at least %d bytes outside development", minSecretLength))
		}
		if len(c.JWTRefreshSecret) < minSecretLength {
			errs = append(errs, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d bytes outside development", minSecretLength))
		}
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", minBcryptCost, maxBcryptCost, c.BcryptCost))
	}
	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis, got %q", c.RateLimitBackend))
	}
	if c.AuthRateLimit < 1 || c.AuthRateWindow <= 0 || c.APIRateLimit < 1 || c.APIRateWindow <= 0 {
		errs = append(errs, errors.New("rate limits and windows must be positive"))
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.OTelSampleRate))
	}

	return errors.Join(errs...)
}

// Postgres returns the connection settings for database.NewPostgresPool.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		User:     c.PostgresUser,
		Password: c.PostgresPass,
		DBName:   c.PostgresDB,
		SSLMode:  c.PostgresSSL,
		MaxConns: c.DBMaxConns,
		MinConns: c.DBMinConns,
	}
}

// Redis returns the connection settings for database.NewRedisClient.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
