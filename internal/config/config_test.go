package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
}

// --- Load defaults ---

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.ReadTimeout != 15*time.Second || cfg.MaxHeaderBytes != 1<<20 {
		t.Fatalf("server defaults unexpected: %+v", cfg)
	}
	if cfg.DBDriver != "sqlite" || cfg.DBPath != "app.db" {
		t.Fatalf("storage defaults unexpected: %q %q", cfg.DBDriver, cfg.DBPath)
	}
	d := cfg.Digest
	if !d.Enabled || d.Interval != time.Hour || d.BatchSize != 500 || d.LeaseTTL != 5*time.Minute ||
		d.Timezone != "Asia/Tokyo" || d.RetryLimit != 10 || d.EventKind != "" {
		t.Fatalf("digest defaults unexpected: %+v", d)
	}
	n := cfg.Notify
	if n.Mode != "log" || n.Timeout != 10*time.Second || n.MaxAttempts != 5 || n.KafkaTopic != "location-digests" {
		t.Fatalf("notify defaults unexpected: %+v", n)
	}
	if cfg.Auth.Enabled() {
		t.Fatalf("auth must be disabled without a secret")
	}
	if cfg.Security.HSTSMaxAge != 180*24*time.Hour {
		t.Fatalf("HSTS default unexpected: %v", cfg.Security.HSTSMaxAge)
	}
	if cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 1.0 || !cfg.OTEL.Insecure {
		t.Fatalf("otel defaults unexpected: %+v", cfg.OTEL)
	}
}

// --- Load overrides + normalization ---

func TestLoad_OverridesAndNormalization(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("GIN_MODE", "weird")    // -> release
	t.Setenv("LOG_LEVEL", "WARNING") // -> warn
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("API_BASE_PATH", "api/v2/") // -> /api/v2
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("AUTH_JWT_ISSUER", "issuer")
	t.Setenv("DIGEST_ENABLED", "false")
	t.Setenv("DIGEST_INTERVAL", "15m")
	t.Setenv("DIGEST_EVENT_KIND", " Location ")
	t.Setenv("DIGEST_TIMEZONE", "UTC")
	t.Setenv("NOTIFY_MODE", "KAFKA")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs fields unexpected: %q %v %q", cfg.LogLevel, cfg.LogPretty, cfg.APIBasePath)
	}
	if want := []string{"https://a.com", "http://b"}; !reflect.DeepEqual(cfg.CORS.AllowedOrigins, want) {
		t.Fatalf("CORS origins = %#v, want %#v", cfg.CORS.AllowedOrigins, want)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if !cfg.Auth.Enabled() || cfg.Auth.JWTIssuer != "issuer" {
		t.Fatalf("auth unexpected: %+v", cfg.Auth)
	}
	if cfg.Digest.Enabled || cfg.Digest.Interval != 15*time.Minute || cfg.Digest.EventKind != "location" {
		t.Fatalf("digest unexpected: %+v", cfg.Digest)
	}
	if cfg.Digest.Location() != time.UTC {
		t.Fatalf("location = %v", cfg.Digest.Location())
	}
	if cfg.Notify.Mode != "kafka" || !reflect.DeepEqual(cfg.Notify.KafkaBrokers, []string{"k1:9092", "k2:9092"}) {
		t.Fatalf("notify unexpected: %+v", cfg.Notify)
	}
	if cfg.OTEL.SampleRatio != 0.25 {
		t.Fatalf("otel ratio = %v", cfg.OTEL.SampleRatio)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"unknown DB_DRIVER", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"rate rps negative", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst < 1", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"digest interval", map[string]string{"DIGEST_INTERVAL": "0s"}, "DIGEST_INTERVAL"},
		{"digest batch", map[string]string{"DIGEST_BATCH_SIZE": "0"}, "DIGEST_BATCH_SIZE"},
		{"digest lease", map[string]string{"DIGEST_LEASE_TTL": "0s"}, "DIGEST_LEASE_TTL"},
		{"digest retry", map[string]string{"DIGEST_RETRY_LIMIT": "-1"}, "DIGEST_RETRY_LIMIT"},
		{"bad timezone", map[string]string{"DIGEST_TIMEZONE": "Mars/Olympus"}, "DIGEST_TIMEZONE"},
		{"unknown notify mode", map[string]string{"NOTIFY_MODE": "smoke"}, "NOTIFY_MODE"},
		{"webhook without url", map[string]string{"NOTIFY_MODE": "webhook"}, "NOTIFY_WEBHOOK_URL"},
		{"kafka without brokers", map[string]string{"NOTIFY_MODE": "kafka"}, "KAFKA_BROKERS"},
		{"notify attempts", map[string]string{"NOTIFY_MAX_ATTEMPTS": "0"}, "NOTIFY_MAX_ATTEMPTS"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
		{"unparsable int", map[string]string{"RATE_BURST": "nope"}, "config:"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); !containsErr(err, tc.want) {
				t.Fatalf("expected error containing %q, got: %v", tc.want, err)
			}
		})
	}
}

// --- helpers ---

func TestCompact_and_normalizeBasePath(t *testing.T) {
	if out := compact(nil); out != nil {
		t.Fatalf("compact(nil) should return nil")
	}
	if out := compact([]string{" ", ""}); out != nil {
		t.Fatalf("compact of blanks should return nil, got %#v", out)
	}
	want := []string{"a", "b", "c"}
	if got := compact([]string{" a", " ", "b ", "  c  "}); !reflect.DeepEqual(got, want) {
		t.Fatalf("compact mismatch: got %#v want %#v", got, want)
	}

	if normalizeBasePath("") != "/" {
		t.Fatalf("normalizeBasePath empty -> '/' failed")
	}
	if normalizeBasePath("v1") != "/v1" {
		t.Fatalf("normalizeBasePath missing leading slash failed")
	}
	if normalizeBasePath("/v1/") != "/v1" {
		t.Fatalf("normalizeBasePath trailing slash trim failed")
	}
	if normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath whitespace failed")
	}
}

func TestDigestLocation_FallsBackToUTC(t *testing.T) {
	if got := (DigestConfig{Timezone: "Nowhere/Invalid"}).Location(); got != time.UTC {
		t.Fatalf("Location() = %v, want UTC", got)
	}
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
