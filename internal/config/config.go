// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage, rate limiting, the digest
// scheduler, the notification channel and observability.
//
// Variables are bound with struct tags through cleanenv; Load then normalizes
// and validates the result.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // DIGEST_TIMEZONE must resolve without system zoneinfo

	"github.com/ilyakaznacheev/cleanenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:","`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS"  env-default:"false"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" env-default:"4320h"`
}

// AuthConfig configures bearer-token authentication. An empty JWTSecret
// disables authentication.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	JWTIssuer string `env:"AUTH_JWT_ISSUER"`
}

// Enabled reports whether requests must carry a valid token.
func (a AuthConfig) Enabled() bool { return a.JWTSecret != "" }

// DigestConfig drives the aggregation scheduler.
type DigestConfig struct {
	Enabled    bool          `env:"DIGEST_ENABLED"     env-default:"true"`
	Interval   time.Duration `env:"DIGEST_INTERVAL"    env-default:"1h"`
	BatchSize  int           `env:"DIGEST_BATCH_SIZE"  env-default:"500"`
	LeaseTTL   time.Duration `env:"DIGEST_LEASE_TTL"   env-default:"5m"`
	EventKind  string        `env:"DIGEST_EVENT_KIND"`
	Timezone   string        `env:"DIGEST_TIMEZONE"    env-default:"Asia/Tokyo"`
	RetryLimit int           `env:"DIGEST_RETRY_LIMIT" env-default:"10"`
}

// Location resolves Timezone. It is valid after a successful Load.
func (d DigestConfig) Location() *time.Location {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotifyConfig selects and configures the notification channel.
type NotifyConfig struct {
	Mode         string        `env:"NOTIFY_MODE"          env-default:"log"` // log|webhook|kafka
	WebhookURL   string        `env:"NOTIFY_WEBHOOK_URL"`
	WebhookToken string        `env:"NOTIFY_WEBHOOK_TOKEN"`
	Timeout      time.Duration `env:"NOTIFY_TIMEOUT"       env-default:"10s"`
	MaxAttempts  int           `env:"NOTIFY_MAX_ATTEMPTS"  env-default:"5"`
	KafkaBrokers []string      `env:"KAFKA_BROKERS"        env-separator:","`
	KafkaTopic   string        `env:"KAFKA_DIGEST_TOPIC"   env-default:"location-digests"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED"                env-default:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"` // true if no TLS
	ServiceName string  `env:"OTEL_SERVICE_NAME"           env-default:"go-location-digest"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG"     env-default:"1.0"` // [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        `env:"PORT"                env-default:"8080"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT"        env-default:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" env-default:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT"       env-default:"20s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT"        env-default:"60s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES"    env-default:"1048576"`
	GinMode           string        `env:"GIN_MODE"            env-default:"release"` // debug|release|test

	// Logging / Docs
	LogLevel       string `env:"LOG_LEVEL"       env-default:"info"`
	LogPretty      bool   `env:"LOG_PRETTY"      env-default:"false"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED" env-default:"false"`
	APIBasePath    string `env:"API_BASE_PATH"   env-default:"/api/v1"`

	// Storage
	DBDriver    string `env:"DB_DRIVER"    env-default:"sqlite"` // sqlite|postgres
	DBPath      string `env:"DB_PATH"      env-default:"app.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Rate limiting
	RateRPS   float64 `env:"RATE_RPS"   env-default:"5"`
	RateBurst int     `env:"RATE_BURST" env-default:"10"`

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig
	Auth     AuthConfig

	Digest DigestConfig
	Notify NotifyConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	normalize(&cfg)
	return cfg, validate(cfg)
}

func normalize(cfg *Config) {
	cfg.GinMode = strings.ToLower(strings.TrimSpace(cfg.GinMode))
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.APIBasePath = normalizeBasePath(cfg.APIBasePath)
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	cfg.CORS.AllowedOrigins = compact(cfg.CORS.AllowedOrigins)
	cfg.Notify.KafkaBrokers = compact(cfg.Notify.KafkaBrokers)
	cfg.Notify.Mode = strings.ToLower(strings.TrimSpace(cfg.Notify.Mode))
	cfg.Digest.EventKind = strings.ToLower(strings.TrimSpace(cfg.Digest.EventKind))
}

func validate(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}

	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}

	if cfg.Digest.Interval <= 0 {
		return errors.New("DIGEST_INTERVAL must be > 0")
	}
	if cfg.Digest.BatchSize < 1 {
		return errors.New("DIGEST_BATCH_SIZE must be >= 1")
	}
	if cfg.Digest.LeaseTTL <= 0 {
		return errors.New("DIGEST_LEASE_TTL must be > 0")
	}
	if cfg.Digest.RetryLimit < 0 {
		return errors.New("DIGEST_RETRY_LIMIT must be >= 0")
	}
	if _, err := time.LoadLocation(cfg.Digest.Timezone); err != nil {
		return fmt.Errorf("DIGEST_TIMEZONE: %w", err)
	}

	switch cfg.Notify.Mode {
	case "log":
	case "webhook":
		if strings.TrimSpace(cfg.Notify.WebhookURL) == "" {
			return errors.New("NOTIFY_WEBHOOK_URL is required when NOTIFY_MODE=webhook")
		}
	case "kafka":
		if len(cfg.Notify.KafkaBrokers) == 0 || cfg.Notify.KafkaTopic == "" {
			return errors.New("KAFKA_BROKERS and KAFKA_DIGEST_TOPIC are required when NOTIFY_MODE=kafka")
		}
	default:
		return errors.New("NOTIFY_MODE must be one of: log, webhook, kafka")
	}
	if cfg.Notify.Timeout <= 0 {
		return errors.New("NOTIFY_TIMEOUT must be > 0")
	}
	if cfg.Notify.MaxAttempts < 1 {
		return errors.New("NOTIFY_MAX_ATTEMPTS must be >= 1")
	}

	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// compact trims entries and drops empty ones.
func compact(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
