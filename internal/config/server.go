package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultHTTPAddr           = ":8080"
	defaultDatabaseURL        = "servicemarket.db"
	defaultJWTAccessTTL       = "15m"
	defaultRefreshTTL         = "168h"
	defaultJWTSecret          = "change-me-jwt-secret"
	defaultRefreshTokenPepper = "change-me-refresh-pepper"
	defaultAuthRateLimit      = "5"
	defaultAuthRateBurst      = "10"
)

// ServerConfig configures the reference backend.
type ServerConfig struct {
	AppEnv             string
	HTTPAddr           string
	DatabaseURL        string
	JWTSecret          string
	JWTAccessTTL       time.Duration
	RefreshTTL         time.Duration
	RefreshTokenPepper string
	SeedDemoData       bool
	LogLevel           string
	LogJSON            bool

	// Which participant may complete an order: either, worker or customer
	CompletionPolicy string

	// Requests per second and burst per client IP on /auth endpoints; 0 disables
	AuthRateLimit float64
	AuthRateBurst int

	// Extra browser origins allowed by CORS, comma separated in CORS_ORIGINS
	CORSOrigins []string
}

func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	appEnv := strings.TrimSpace(getEnv("APP_ENV", getEnv("ENV", "dev")))
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.RefreshTokenPepper = strings.TrimSpace(getEnv("REFRESH_TOKEN_PEPPER", defaultRefreshTokenPepper))
	cfg.SeedDemoData = parseBoolEnv("SEED_DEMO_DATA", "true")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogJSON = parseBoolEnv("LOG_JSON", "false")
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", ""))
	cfg.CompletionPolicy = strings.ToLower(strings.TrimSpace(getEnv("COMPLETION_POLICY", defaultCompletionPolicy)))

	var err error
	cfg.AuthRateLimit, err = parseFloatEnv("AUTH_RATE_LIMIT", defaultAuthRateLimit)
	if err != nil {
		return nil, err
	}
	cfg.AuthRateBurst, err = parseIntEnv("AUTH_RATE_BURST", defaultAuthRateBurst)
	if err != nil {
		return nil, err
	}
	cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", defaultJWTAccessTTL)
	if err != nil {
		return nil, err
	}
	cfg.RefreshTTL, err = parseDurationEnv("REFRESH_TTL", defaultRefreshTTL)
	if err != nil {
		return nil, err
	}

	if err := validateServerConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.RefreshTTL <= 0 {
		return fmt.Errorf("REFRESH_TTL must be > 0")
	}
	if err := validateCompletionPolicy(cfg.CompletionPolicy); err != nil {
		return err
	}
	if cfg.AuthRateLimit < 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT must be >= 0")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.RefreshTokenPepper, defaultRefreshTokenPepper) {
			return fmt.Errorf("in prod/release REFRESH_TOKEN_PEPPER must be set and not default")
		}
		if cfg.SeedDemoData {
			return fmt.Errorf("in prod/release SEED_DEMO_DATA must be false")
		}
	}
	return nil
}
