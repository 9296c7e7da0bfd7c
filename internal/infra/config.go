package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string

	// Record store backing the job store and the usage ledger.
	StoreDriver string // object | redis | postgres | memory
	DatabaseURL string
	RedisAddr   string
	RedisDB     int

	// Object storage.
	StorageDriver      string // oss | fs
	StoragePath        string
	StorageBaseURL     string
	StorageSignSecret  string
	OSSBucket          string
	OSSEndpoint        string
	OSSAccessKeyID     string
	OSSAccessKeySecret string
	SignedURLTTL       time.Duration
	DownloadURLTTL     time.Duration

	// Generation provider.
	Provider      string // gemini | mock
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	// Identity resolution.
	GeoIPDBPath string
	IPHashSalt  string

	// Quota.
	FreePackLimit int

	// Pipeline tuning.
	BatchSize      int
	WorkerCount    int
	QueueSize      int
	PipelineBudget time.Duration
	StuckTimeout   time.Duration
	SweepInterval  time.Duration

	// Payment-event webhook.
	WebhookSecret string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// The zero-configuration default runs fully local: filesystem storage, object-store
// backed records, and the deterministic mock provider.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitAndTrim(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		StoreDriver: getEnv("STORE_DRIVER", "object"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RedisDB:     getEnvInt("REDIS_DB", 0),

		StorageDriver:      getEnv("STORAGE_DRIVER", "fs"),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:8080"),
		StorageSignSecret:  getEnv("STORAGE_SIGN_SECRET", "dev-sign-secret"),
		OSSBucket:          os.Getenv("OSS_BUCKET"),
		OSSEndpoint:        os.Getenv("OSS_ENDPOINT"),
		OSSAccessKeyID:     os.Getenv("OSS_ACCESS_KEY_ID"),
		OSSAccessKeySecret: os.Getenv("OSS_ACCESS_KEY_SECRET"),
		SignedURLTTL:       time.Second * time.Duration(getEnvInt("SIGNED_URL_TTL_SECONDS", 3600)),
		DownloadURLTTL:     time.Second * time.Duration(getEnvInt("DOWNLOAD_URL_TTL_SECONDS", 300)),

		Provider:      getEnv("IMAGE_PROVIDER", ""),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),
		IPHashSalt:  getEnv("IP_HASH_SALT", "shotpack-salt"),

		FreePackLimit: getEnvInt("FREE_PACK_LIMIT", 1),

		BatchSize:      getEnvInt("GENERATION_BATCH_SIZE", 2),
		WorkerCount:    getEnvInt("PIPELINE_WORKERS", 2),
		QueueSize:      getEnvInt("PIPELINE_QUEUE_SIZE", 16),
		PipelineBudget: time.Second * time.Duration(getEnvInt("PIPELINE_BUDGET_SECONDS", 270)),
		StuckTimeout:   time.Minute * time.Duration(getEnvInt("STUCK_TIMEOUT_MINUTES", 15)),
		SweepInterval:  time.Minute * time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 5)),

		WebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
	}

	// Provider selection: explicit override, then Gemini when a key exists,
	// then the simulator.
	if cfg.Provider == "" {
		if cfg.GeminiAPIKey != "" {
			cfg.Provider = "gemini"
		} else {
			cfg.Provider = "mock"
		}
	}

	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
