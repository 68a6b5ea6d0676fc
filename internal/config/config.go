package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Development-only fallbacks. Refusing to boot with these in production is
// enforced by Load.
const (
	devAccessSecret  = "dev-access-secret-change-me-not-for-prod"
	devRefreshSecret = "dev-refresh-secret-change-me-not-for-prod"
)

// HS256 requires keys no shorter than the hash output.
const minSecretBytes = 32

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	ThrottleWindow      time.Duration
	ThrottleMaxFailures int

	CookieDomain     string
	SSOSessionCookie string

	PublicPaths  []string
	APIPrefixes  []string
	LoginPath    string
	RateLimitRPM int

	AdminEmail    string
	AdminPassword string

	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Production reports whether the service runs with production hardening
// (secure cookies, strict secrets).
func (c Config) Production() bool {
	return c.Environment == "production"
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		ServiceName: getEnv("SERVICE_NAME", "lexling-auth"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		AccessTokenSecret:  getEnv("ACCESS_TOKEN_SECRET", devAccessSecret),
		RefreshTokenSecret: getEnv("REFRESH_TOKEN_SECRET", devRefreshSecret),
		AccessTokenTTL:     getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),

		ThrottleWindow:      getDuration("THROTTLE_WINDOW", 15*time.Minute),
		ThrottleMaxFailures: getInt("THROTTLE_MAX_FAILURES", 15),

		CookieDomain:     os.Getenv("COOKIE_DOMAIN"),
		SSOSessionCookie: getEnv("SSO_SESSION_COOKIE", "lexling_sso_session"),

		PublicPaths:  getList("PUBLIC_PATHS", []string{"/", "/login", "/register", "/healthz"}),
		APIPrefixes:  getList("API_PREFIXES", []string{"/api/"}),
		LoginPath:    getEnv("LOGIN_PATH", "/login"),
		RateLimitRPM: getInt("RATE_LIMIT_RPM", 600),

		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword: strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),

		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),

		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Production() {
		if cfg.AccessTokenSecret == devAccessSecret || cfg.RefreshTokenSecret == devRefreshSecret {
			return Config{}, fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must be set in production")
		}
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return Config{}, fmt.Errorf("access and refresh token secrets must differ")
	}
	if len(cfg.AccessTokenSecret) < minSecretBytes || len(cfg.RefreshTokenSecret) < minSecretBytes {
		return Config{}, fmt.Errorf("token secrets must be at least %d bytes", minSecretBytes)
	}
	if cfg.ThrottleMaxFailures < 1 {
		cfg.ThrottleMaxFailures = 15
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = 15 * time.Minute
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
