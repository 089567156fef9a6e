package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned by Validate when the marketplace API cannot be used.
var ErrMissingCredentials = errors.New("missing marketplace API credentials")

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MarketplaceBaseURL  string
	MarketplaceToken    string
	MarketplaceCategory string
	SearchPageSize      int
	MaxPagesPerQuery    int

	EmbeddingURL   string
	EmbeddingToken string

	RequestDelayMs     int
	ImageDelayMs       int
	FamilyPauseMs      int
	RateLimitBackoffMs int
	MaxRetries         int
	RequestTimeoutSec  int

	ImageDir          string
	MaxImageBytes     int64
	MinImageDimension int
	StrictLabels      bool
	BrowserFallback   bool
	ChromeBin         string

	FamiliesFile       string
	DefaultQuota       int
	DefaultMinRequired int

	MaxConcurrency int
	Guidance       GuidanceDefaults

	LogLevel       string
	LogFormat      string
	LogDevelopment bool
}

// GuidanceDefaults are the cost and margin inputs for the max-buy formula.
type GuidanceDefaults struct {
	FeeRate          float64
	OutboundShipping float64
	FixedCosts       float64
	ShippingIn       float64
	TargetMargin     float64
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "resale"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "resale123"),
		PostgresDB:       getEnv("POSTGRES_DB", "resale_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MarketplaceBaseURL:  getEnv("MARKETPLACE_BASE_URL", ""),
		MarketplaceToken:    getEnv("MARKETPLACE_API_TOKEN", ""),
		MarketplaceCategory: getEnv("MARKETPLACE_CATEGORY", "31387"),
		SearchPageSize:      getEnvInt("SEARCH_PAGE_SIZE", 50),
		MaxPagesPerQuery:    getEnvInt("MAX_PAGES_PER_QUERY", 20),

		EmbeddingURL:   getEnv("EMBEDDING_URL", ""),
		EmbeddingToken: getEnv("EMBEDDING_API_TOKEN", ""),

		RequestDelayMs:     getEnvInt("REQUEST_DELAY_MS", 1000),
		ImageDelayMs:       getEnvInt("IMAGE_DELAY_MS", 250),
		FamilyPauseMs:      getEnvInt("FAMILY_PAUSE_MS", 3000),
		RateLimitBackoffMs: getEnvInt("RATE_LIMIT_BACKOFF_MS", 30000),
		MaxRetries:         getEnvInt("MAX_RETRIES", 3),
		RequestTimeoutSec:  getEnvInt("REQUEST_TIMEOUT_SEC", 20),

		ImageDir:          getEnv("IMAGE_DIR", "./data/reference-images"),
		MaxImageBytes:     int64(getEnvInt("MAX_IMAGE_BYTES", 15<<20)),
		MinImageDimension: getEnvInt("MIN_IMAGE_DIMENSION", 150),
		StrictLabels:      getEnvBool("STRICT_LABELS", true),
		BrowserFallback:   getEnvBool("BROWSER_FALLBACK", false),
		ChromeBin:         getEnv("CHROME_BIN", ""),

		FamiliesFile:       getEnv("FAMILIES_FILE", ""),
		DefaultQuota:       getEnvInt("DEFAULT_FAMILY_QUOTA", 40),
		DefaultMinRequired: getEnvInt("DEFAULT_MIN_REQUIRED", 15),

		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 4),
		Guidance: GuidanceDefaults{
			FeeRate:          getEnvFloat("FEE_RATE", 0.13),
			OutboundShipping: getEnvFloat("OUTBOUND_SHIPPING", 12.00),
			FixedCosts:       getEnvFloat("FIXED_COSTS", 0.30),
			ShippingIn:       getEnvFloat("SHIPPING_IN", 0),
			TargetMargin:     getEnvFloat("TARGET_MARGIN", 0.25),
		},

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		LogDevelopment: getEnvBool("LOG_DEVELOPMENT", false),
	}
}

// Validate reports configuration that makes ingestion impossible.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MarketplaceBaseURL) == "" || strings.TrimSpace(c.MarketplaceToken) == "" {
		return ErrMissingCredentials
	}
	return nil
}

// EmbeddingEnabled reports whether the embedding service is configured.
func (c *Config) EmbeddingEnabled() bool {
	return c.EmbeddingURL != "" && c.EmbeddingToken != ""
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// RequestTimeout is the per-call bound for search and download requests.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// RequestDelay is the fixed gap between successive search requests.
func (c *Config) RequestDelay() time.Duration { return ms(c.RequestDelayMs) }

// ImageDelay is the fixed gap between successive image downloads.
func (c *Config) ImageDelay() time.Duration { return ms(c.ImageDelayMs) }

// FamilyPause is the fixed pause between families in a batch run.
func (c *Config) FamilyPause() time.Duration { return ms(c.FamilyPauseMs) }

// RateLimitBackoff is the fixed wait after a 429/503 before retrying.
func (c *Config) RateLimitBackoff() time.Duration { return ms(c.RateLimitBackoffMs) }

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
