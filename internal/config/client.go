package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIBaseURL       = "http://localhost:8080/api/v1"
	defaultWSBaseURL        = ""
	defaultRequestTimeout   = "15s"
	defaultSendTimeout      = "10s"
	defaultDialTimeout      = "5s"
	defaultPollInterval     = "30s"
	defaultChatPollInterval = "5s"
	defaultMaxNotifications = "50"
	defaultRateLimit        = "20"
	defaultRateBurst        = "10"
	defaultBreakerFailures  = "5"
	defaultBreakerTimeout   = "30s"
	defaultSessionPath      = "servicemarket-session.db"
	defaultCompletionPolicy = "either"
)

// ClientConfig configures the client core: transport, conversation channel and synchronizer.
type ClientConfig struct {
	APIBaseURL string
	// WSBaseURL defaults to APIBaseURL's host with a ws/wss scheme.
	WSBaseURL string

	RequestTimeout   time.Duration
	SendTimeout      time.Duration
	DialTimeout      time.Duration
	PollInterval     time.Duration
	ChatPollInterval time.Duration
	MaxNotifications int

	// Outbound requests per second; 0 disables the limiter.
	RateLimit float64
	RateBurst int

	BreakerFailures int
	BreakerTimeout  time.Duration

	SessionPath      string
	CompletionPolicy string

	LogLevel string
	LogJSON  bool
}

func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	var err error

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("API_BASE_URL", defaultAPIBaseURL)), "/")
	cfg.WSBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("WS_BASE_URL", defaultWSBaseURL)), "/")

	if cfg.RequestTimeout, err = parseDurationEnv("REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = parseDurationEnv("SEND_TIMEOUT", defaultSendTimeout); err != nil {
		return nil, err
	}
	if cfg.DialTimeout, err = parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = parseDurationEnv("POLL_INTERVAL", defaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.ChatPollInterval, err = parseDurationEnv("CHAT_POLL_INTERVAL", defaultChatPollInterval); err != nil {
		return nil, err
	}
	if cfg.MaxNotifications, err = parseIntEnv("MAX_NOTIFICATIONS", defaultMaxNotifications); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = parseFloatEnv("RATE_LIMIT", defaultRateLimit); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = parseIntEnv("RATE_BURST", defaultRateBurst); err != nil {
		return nil, err
	}
	if cfg.BreakerFailures, err = parseIntEnv("BREAKER_FAILURES", defaultBreakerFailures); err != nil {
		return nil, err
	}
	if cfg.BreakerTimeout, err = parseDurationEnv("BREAKER_TIMEOUT", defaultBreakerTimeout); err != nil {
		return nil, err
	}

	cfg.SessionPath = strings.TrimSpace(getEnv("SESSION_PATH", defaultSessionPath))
	cfg.CompletionPolicy = strings.ToLower(strings.TrimSpace(getEnv("COMPLETION_POLICY", defaultCompletionPolicy)))
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogJSON = parseBoolEnv("LOG_JSON", "false")

	if cfg.WSBaseURL == "" {
		ws, err := DeriveWSBaseURL(cfg.APIBaseURL)
		if err != nil {
			return nil, err
		}
		cfg.WSBaseURL = ws
	}

	if err := validateClientConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DeriveWSBaseURL turns "https://host/api/v1" into "wss://host".
func DeriveWSBaseURL(apiBase string) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("invalid API_BASE_URL %q: %w", apiBase, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("API_BASE_URL must be http or https, got %q", u.Scheme)
	}
	u.Path = ""
	u.RawQuery = ""
	return strings.TrimRight(u.String(), "/"), nil
}

func validateClientConfig(cfg *ClientConfig) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL must not be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if cfg.SendTimeout <= 0 {
		return fmt.Errorf("SEND_TIMEOUT must be > 0")
	}
	if cfg.DialTimeout <= 0 {
		return fmt.Errorf("DIAL_TIMEOUT must be > 0")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if cfg.ChatPollInterval <= 0 {
		return fmt.Errorf("CHAT_POLL_INTERVAL must be > 0")
	}
	if cfg.MaxNotifications <= 0 {
		return fmt.Errorf("MAX_NOTIFICATIONS must be > 0")
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT must be >= 0")
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		return fmt.Errorf("RATE_BURST must be > 0 when RATE_LIMIT is set")
	}
	if cfg.BreakerFailures <= 0 {
		return fmt.Errorf("BREAKER_FAILURES must be > 0")
	}
	return validateCompletionPolicy(cfg.CompletionPolicy)
}
