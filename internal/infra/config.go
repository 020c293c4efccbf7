package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"

	RegistryDriverMemory = "memory"
	RegistryDriverRedis  = "redis"

	StorageDriverFilesystem = "filesystem"
	StorageDriverGCS        = "gcs"

	VideoProviderVeo       = "veo"
	VideoProviderSynthetic = "synthetic"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	LogLevel    string
	Port        string
	DatabaseURL string
	JWTSecret   string
	GeoIPDBPath string
	TiersFile   string

	StoreDriver    string
	RegistryDriver string
	StorageDriver  string
	VideoProvider  string

	RedisURL       string
	RedisKeyPrefix string
	MongoURI       string
	MongoDatabase  string

	StorageBasePath    string
	StorageBaseURL     string
	GCSBucket          string
	GCSCredentialsFile string
	GCSPublicBaseURL   string

	VeoAPIKey  string
	VeoBaseURL string
	VeoModel   string

	QwenAPIKey  string
	QwenBaseURL string
	QwenModel   string

	RenderAPIKey  string
	RenderBaseURL string

	PaymentWebhookSecret    string
	PaymentWebhookTolerance time.Duration

	PollInterval      time.Duration
	PollConcurrency   int
	BatchConcurrency  int
	MaxTicks          int
	SettlementTimeout time.Duration
	BatchRetention    time.Duration
	StatusCacheTTL    time.Duration
	SyntheticPolls    int
	RunScheduler      bool
	BatchLeaseTTL     time.Duration
	SettleRetries     int

	MinDurationSeconds int
	MaxDurationSeconds int
	CostPerSecond      float64

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	ProviderTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),
		TiersFile:   os.Getenv("TIERS_FILE"),

		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		RegistryDriver: strings.ToLower(getEnv("REGISTRY_DRIVER", RegistryDriverMemory)),
		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverFilesystem)),
		VideoProvider:  strings.ToLower(getEnv("VIDEO_PROVIDER", VideoProviderVeo)),

		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "scenestudio:"),
		MongoURI:       getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:  getEnv("MONGO_DATABASE", "scenestudio"),

		StorageBasePath:    getEnv("STORAGE_BASE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
		GCSPublicBaseURL:   os.Getenv("GCS_PUBLIC_BASE_URL"),

		VeoAPIKey:  os.Getenv("VEO_API_KEY"),
		VeoBaseURL: getEnv("VEO_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		VeoModel:   getEnv("VEO_MODEL", "veo-3.0-fast-generate-001"),

		QwenAPIKey:  os.Getenv("QWEN_API_KEY"),
		QwenBaseURL: os.Getenv("QWEN_BASE_URL"),
		QwenModel:   getEnv("QWEN_MODEL", "qwen-image-edit"),

		RenderAPIKey:  os.Getenv("RENDER_API_KEY"),
		RenderBaseURL: os.Getenv("RENDER_BASE_URL"),

		PaymentWebhookSecret:    os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		PaymentWebhookTolerance: getEnvDuration("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),

		PollInterval:      getEnvDuration("POLL_INTERVAL", 10*time.Second),
		PollConcurrency:   getEnvInt("POLL_CONCURRENCY", 4),
		BatchConcurrency:  getEnvInt("BATCH_CONCURRENCY", 8),
		MaxTicks:          getEnvInt("MAX_POLL_TICKS", 60),
		SettlementTimeout: getEnvDuration("SETTLEMENT_TIMEOUT", 5*time.Second),
		BatchRetention:    getEnvDuration("BATCH_RETENTION", 24*time.Hour),
		StatusCacheTTL:    getEnvDuration("STATUS_CACHE_TTL", 3*time.Second),
		SyntheticPolls:    getEnvInt("SYNTHETIC_COMPLETE_AFTER", 2),
		RunScheduler:      getEnvBool("RUN_SCHEDULER", true),
		BatchLeaseTTL:     getEnvDuration("BATCH_LEASE_TTL", 2*time.Minute),
		SettleRetries:     getEnvInt("SETTLE_RETRIES", 30),

		MinDurationSeconds: getEnvInt("MIN_DURATION_SECONDS", 4),
		MaxDurationSeconds: getEnvInt("MAX_DURATION_SECONDS", 8),
		CostPerSecond:      getEnvFloat("COST_PER_SECOND", 0.15),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		ProviderTimeout:  getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreDriverMongo, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.RegistryDriver {
	case RegistryDriverMemory, RegistryDriverRedis:
	default:
		return nil, fmt.Errorf("unknown REGISTRY_DRIVER %q", cfg.RegistryDriver)
	}

	switch cfg.StorageDriver {
	case StorageDriverFilesystem:
	case StorageDriverGCS:
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCS_BUCKET is required for gcs storage")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	switch cfg.VideoProvider {
	case VideoProviderVeo, VideoProviderSynthetic:
	default:
		return nil, fmt.Errorf("unknown VIDEO_PROVIDER %q", cfg.VideoProvider)
	}

	if cfg.MinDurationSeconds <= 0 || cfg.MaxDurationSeconds < cfg.MinDurationSeconds {
		return nil, fmt.Errorf("invalid duration bounds %d..%d", cfg.MinDurationSeconds, cfg.MaxDurationSeconds)
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

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return fallback
}
