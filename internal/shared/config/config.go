package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"conformity-backend/internal/shared/telemetry"
)

// ProviderConfig describes one LLM backend.
type ProviderConfig struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	RPM         int
}

// Config holds application configuration.
type Config struct {
	Port              string
	Env               string
	CORSAllowOrigin   []string
	DatabaseURL       string
	RedisURL          string
	ObjectStoreType   string
	LocalStoreDir     string
	AWSRegion         string
	S3Bucket          string
	S3Prefix          string
	S3KMSKeyID        string
	SQSQueueURL       string
	Primary           ProviderConfig
	Secondary         ProviderConfig
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	ForceFallback     bool
	AnalysisRateLimit int
	AnalysisRateWin   time.Duration
	PollRateLimit     int
	PollRateWin       time.Duration
	SanitizeMaxLength int
	IncrementalAt     int
	ExtractMaxBytes   int64
	IdempotencyTTL    time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		telemetry.Warn("config.missing", map[string]any{"key": "DATABASE_URL", "env": env})
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		DatabaseURL:     dbURL,
		RedisURL:        getEnv("REDIS_URL", ""),
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		S3KMSKeyID:      getEnv("S3_SSE_KMS_KEY_ID", ""),
		SQSQueueURL:     getEnv("SQS_QUEUE_URL", ""),
		Primary: ProviderConfig{
			Name:        "primary",
			APIKey:      getEnv("PRIMARY_API_KEY", ""),
			BaseURL:     getEnv("PRIMARY_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:       getEnv("PRIMARY_MODEL", "llama-3.1-8b-instant"),
			Timeout:     getDuration("PRIMARY_TIMEOUT", 60*time.Second),
			MaxAttempts: getInt("PRIMARY_MAX_ATTEMPTS", 3),
			RPM:         getInt("PRIMARY_RPM", 30),
		},
		Secondary: ProviderConfig{
			Name:        "secondary",
			APIKey:      getEnv("SECONDARY_API_KEY", ""),
			BaseURL:     getEnv("SECONDARY_BASE_URL", ""),
			Model:       getEnv("SECONDARY_MODEL", "claude-3-5-haiku-latest"),
			Timeout:     getDuration("SECONDARY_TIMEOUT", 90*time.Second),
			MaxAttempts: getInt("SECONDARY_MAX_ATTEMPTS", 2),
			RPM:         getInt("SECONDARY_RPM", 0),
		},
		RetryBaseDelay:    getDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:     getDuration("RETRY_MAX_DELAY", 8*time.Second),
		ForceFallback:     getBool("FORCE_FALLBACK", false),
		AnalysisRateLimit: getInt("ANALYSIS_RATE_LIMIT", 10),
		AnalysisRateWin:   getDuration("ANALYSIS_RATE_WINDOW", time.Minute),
		PollRateLimit:     getInt("POLL_RATE_LIMIT", 60),
		PollRateWin:       getDuration("POLL_RATE_WINDOW", time.Minute),
		SanitizeMaxLength: getInt("SANITIZE_MAX_LENGTH", 500000),
		IncrementalAt:     getInt("INCREMENTAL_THRESHOLD", 60000),
		ExtractMaxBytes:   int64(getInt("EXTRACT_MAX_BYTES", 4*1024*1024)),
		IdempotencyTTL:    getDuration("IDEMPOTENCY_TTL", time.Hour),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		telemetry.Warn("config.invalid", map[string]any{"key": key, "error": err.Error()})
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		telemetry.Warn("config.invalid", map[string]any{"key": key, "error": err.Error()})
		return def
	}
	return val
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
