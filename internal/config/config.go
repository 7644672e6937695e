package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Identity  IdentityConfig
	Payment   PaymentConfig
	Assistant AssistantConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
}

// IdentityConfig names the headers a trusted upstream proxy uses to
// forward the authenticated user.
type IdentityConfig struct {
	UserHeader string
	RoleHeader string
}

type PaymentConfig struct {
	Provider      string
	Currency      string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	TimeoutSecond int
}

type AssistantConfig struct {
	APIKey        string
	Model         string
	BaseURL       string
	TimeoutSecond int
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AssistantRate  float64
	AssistantBurst int
	OrderRate      float64
	OrderBurst     int
}

// SchedulerConfig drives the background reconciliation jobs. With
// DistributedLock set, each job run takes a redis lock so only one
// instance works a tick.
type SchedulerConfig struct {
	Enabled            bool
	RunIntervalSecond  int
	BatchSize          int
	PendingAfterSecond int
	EnabledJobs        []string
	DistributedLock    bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "creditledger"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "creditledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "creditledger.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		Identity: IdentityConfig{
			UserHeader: getenv("IDENTITY_USER_HEADER", "X-User-ID"),
			RoleHeader: getenv("IDENTITY_ROLE_HEADER", "X-User-Role"),
		},
		Payment: PaymentConfig{
			Provider:      strings.ToLower(getenv("PAYMENT_PROVIDER", "razorpay")),
			Currency:      strings.ToUpper(getenv("PAYMENT_CURRENCY", "INR")),
			KeyID:         strings.TrimSpace(getenv("RAZORPAY_KEY_ID", "")),
			KeySecret:     strings.TrimSpace(getenv("RAZORPAY_KEY_SECRET", "")),
			WebhookSecret: strings.TrimSpace(getenv("RAZORPAY_WEBHOOK_SECRET", "")),
			BaseURL:       strings.TrimSpace(getenv("RAZORPAY_BASE_URL", "https://api.razorpay.com")),
			TimeoutSecond: getenvInt("PAYMENT_TIMEOUT_SECONDS", 15),
		},
		Assistant: AssistantConfig{
			APIKey:        strings.TrimSpace(getenv("GEMINI_API_KEY", "")),
			Model:         getenv("GEMINI_MODEL", "gemini-flash-latest"),
			BaseURL:       strings.TrimSpace(getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
			TimeoutSecond: getenvInt("ASSISTANT_TIMEOUT_SECONDS", 60),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:      getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			RedisPassword:  getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:        getenvInt("RATE_LIMIT_REDIS_DB", 0),
			AssistantRate:  getenvFloat("RATE_LIMIT_ASSISTANT_RPS", 1),
			AssistantBurst: getenvInt("RATE_LIMIT_ASSISTANT_BURST", 5),
			OrderRate:      getenvFloat("RATE_LIMIT_ORDER_RPS", 0.5),
			OrderBurst:     getenvInt("RATE_LIMIT_ORDER_BURST", 3),
		},
		Scheduler: SchedulerConfig{
			Enabled:            getenvBool("SCHEDULER_ENABLED", true),
			RunIntervalSecond:  getenvInt("SCHEDULER_RUN_INTERVAL_SECONDS", 60),
			BatchSize:          getenvInt("SCHEDULER_BATCH_SIZE", 50),
			PendingAfterSecond: getenvInt("SCHEDULER_PENDING_AFTER_SECONDS", 900),
			EnabledJobs:        getenvList("SCHEDULER_JOBS"),
			DistributedLock:    getenvBool("SCHEDULER_DISTRIBUTED_LOCK", false),
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

func getenvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
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
