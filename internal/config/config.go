// Package config centralises configuration parsing for CommitCollect.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values for both the API and the
// worker binaries.
type Config struct {
	HTTPAddress string

	MainTable     string
	SessionsTable string
	AuditTable    string

	KafkaBrokers  []string
	WebhookTopic  string
	ConsumerGroup string

	StravaClientID           string
	StravaClientSecret       string
	StravaRedirectURI        string
	StravaWebhookVerifyToken string
	StravaAPIBaseURL         string
	StravaOAuthBaseURL       string

	OAuthStateKey string

	CognitoAuthorizeEndpoint string
	CognitoTokenEndpoint     string
	CognitoClientID          string
	CognitoRedirectURI       string

	FrontendBaseURL string
	CookieDomain    string
	CookieSecure    bool

	SessionTTL         time.Duration
	IdempotencyTTL     time.Duration
	TokenRefreshMargin time.Duration

	RecomputePageSize   int
	RecomputeMaxInspect int

	DeleteBatchSize  int
	DeleteMaxRetries int           // Retry attempts per batch of unprocessed keys.
	DeleteBackoff    time.Duration // Base delay between unprocessed-key retries.
}

// Load reads environment variables into Config, applying sensible defaults for
// local dev.
func Load() Config {
	cfg := Config{
		HTTPAddress: getEnv("HTTP_ADDRESS", ":8080"),

		MainTable:     getEnv("MAIN_TABLE", "commitcollect-main"),
		SessionsTable: getEnv("SESSIONS_TABLE", "commitcollect-sessions"),
		AuditTable:    getEnv("AUDIT_TABLE", "commitcollect-audit"),

		WebhookTopic:  getEnv("WEBHOOK_TOPIC", "strava.webhook.events"),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "commitcollect-ingest"),

		StravaClientID:           getEnv("STRAVA_CLIENT_ID", ""),
		StravaClientSecret:       getEnv("STRAVA_CLIENT_SECRET", ""),
		StravaRedirectURI:        getEnv("STRAVA_REDIRECT_URI", "http://localhost:8080/oauth/strava/callback"),
		StravaWebhookVerifyToken: getEnv("STRAVA_WEBHOOK_VERIFY_TOKEN", "dev-verify-token"),
		StravaAPIBaseURL:         getEnv("STRAVA_API_BASE_URL", "https://www.strava.com/api/v3"),
		StravaOAuthBaseURL:       getEnv("STRAVA_OAUTH_BASE_URL", "https://www.strava.com/oauth"),

		OAuthStateKey: getEnv("OAUTH_STATE_KEY", "dev-state-key-change-me"),

		CognitoAuthorizeEndpoint: getEnv("COGNITO_AUTHORIZE_ENDPOINT", ""),
		CognitoTokenEndpoint:     getEnv("COGNITO_TOKEN_ENDPOINT", ""),
		CognitoClientID:          getEnv("COGNITO_CLIENT_ID", ""),
		CognitoRedirectURI:       getEnv("COGNITO_REDIRECT_URI", "http://localhost:8080/auth/callback"),

		FrontendBaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		CookieDomain:    getEnv("COOKIE_DOMAIN", ""),
		CookieSecure:    getBoolEnv("COOKIE_SECURE", false),

		SessionTTL:         getDurationEnv("SESSION_TTL", 30*24*time.Hour),
		IdempotencyTTL:     getDurationEnv("IDEMPOTENCY_TTL", 7*24*time.Hour),
		TokenRefreshMargin: getDurationEnv("TOKEN_REFRESH_MARGIN", 5*time.Minute),

		RecomputePageSize:   getIntEnv("RECOMPUTE_PAGE_SIZE", 200),
		RecomputeMaxInspect: getIntEnv("RECOMPUTE_MAX_INSPECT", 3000),

		DeleteBatchSize:  getIntEnv("DELETE_BATCH_SIZE", 25),
		DeleteMaxRetries: getIntEnv("DELETE_MAX_RETRIES", 3),
		DeleteBackoff:    getDurationEnv("DELETE_BACKOFF", 200*time.Millisecond),
	}

	brokers := getEnv("KAFKA_BROKERS", "kafka:9092")
	cfg.KafkaBrokers = splitAndTrim(brokers)
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
