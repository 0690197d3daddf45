package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// StorefrontURL is the public base URL used to build gateway callback URLs.
	StorefrontURL string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBSlowQueryMS     int

	Redis     RedisConfig
	Email     EmailConfig
	Saferpay  SaferpayConfig
	Gemini    GeminiConfig
	Admin     AdminConfig
	Queue     QueueConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
}

// TelemetryConfig drives logging, tracing and OTLP metric export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type SaferpayConfig struct {
	Provider    string
	CustomerID  string
	TerminalID  string
	APIUsername string
	APIPassword string
	TestMode    bool

	// CaptureClaimTTL is how long a processing claim blocks other callbacks.
	CaptureClaimTTL time.Duration
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AdminConfig struct {
	Username string
	Password string
}

type QueueConfig struct {
	Concurrency int
	MaxRetry    int
}

type SchedulerConfig struct {
	RunInterval time.Duration
	EnabledJobs []string
}

type RateLimitConfig struct {
	Enabled            bool
	WaitlistRate       float64
	WaitlistBurst      int
	WaitlistEmailRate  float64
	WaitlistEmailBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "storefront"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   environment,
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		StorefrontURL: strings.TrimRight(getenv("STOREFRONT_URL", "http://localhost:8080"), "/"),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "storefront"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBSlowQueryMS:     getenvInt("DATABASE_SLOW_QUERY_MS", 200),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "noreply@surfworld.eu"),
		},
		Saferpay: SaferpayConfig{
			Provider:    strings.ToLower(getenv("PAYMENT_PROVIDER", "saferpay")),
			CustomerID:  strings.TrimSpace(getenv("SAFERPAY_CUSTOMER_ID", "")),
			TerminalID:  strings.TrimSpace(getenv("SAFERPAY_TERMINAL_ID", "")),
			APIUsername: strings.TrimSpace(getenv("SAFERPAY_API_USERNAME", "")),
			APIPassword: getenv("SAFERPAY_API_PASSWORD", ""),
			TestMode:    getenvBool("SAFERPAY_TEST_MODE", true),

			CaptureClaimTTL: getenvDuration("SAFERPAY_CAPTURE_CLAIM_TTL", 2*time.Minute),
		},
		Gemini: GeminiConfig{
			APIKey:  strings.TrimSpace(getenv("GEMINI_API_KEY", "")),
			Model:   getenv("GEMINI_MODEL", "gemini-2.0-flash"),
			BaseURL: strings.TrimRight(getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"), "/"),
		},
		Admin: AdminConfig{
			Username: strings.TrimSpace(getenv("ADMIN_USERNAME", "admin")),
			Password: getenv("ADMIN_PASSWORD", ""),
		},
		Queue: QueueConfig{
			Concurrency: getenvInt("QUEUE_CONCURRENCY", 10),
			MaxRetry:    getenvInt("QUEUE_MAX_RETRY", 5),
		},
		Scheduler: SchedulerConfig{
			RunInterval: getenvDuration("STOCK_SYNC_INTERVAL", 6*time.Hour),
			EnabledJobs: parseList(getenv("SCHEDULER_ENABLED_JOBS", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:            getenvBool("RATE_LIMIT_ENABLED", false),
			WaitlistRate:       getenvFloat("RATE_LIMIT_WAITLIST_RATE", 0.2),
			WaitlistBurst:      getenvInt("RATE_LIMIT_WAITLIST_BURST", 5),
			WaitlistEmailRate:  getenvFloat("RATE_LIMIT_WAITLIST_EMAIL_RATE", 0.05),
			WaitlistEmailBurst: getenvInt("RATE_LIMIT_WAITLIST_EMAIL_BURST", 3),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
