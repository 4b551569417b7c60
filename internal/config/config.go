package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	AppEnv    string
	Debug     bool
	Version   string
	SentryDSN string

	MongoDBURI      string
	MongoDBDatabase string

	// StorageRoot is the base directory for cached and resolver-provided media.
	StorageRoot string

	// ResolverServiceURL is the optional external media resolver endpoint
	// (POST {url}/resolve/{name}). Empty disables the service step.
	ResolverServiceURL string
	ResolverTimeout    time.Duration
	DownloadTimeout    time.Duration
	ScrapeUserAgent    string

	CacheTTLDays           int
	PublishedRetentionDays int
	StaleGraceMinutes      int

	PollInterval time.Duration
	WorkerCount  int

	// ListenAddr is where the intake/editorial HTTP API binds.
	ListenAddr   string
	APIAccessKey string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (useful for development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	cfg := &Config{
		AppEnv:                 getEnv("APP_ENV", "development"),
		Debug:                  debug,
		Version:                getEnv("VERSION", "dev"),
		SentryDSN:              getEnv("SENTRY_DSN", ""),
		MongoDBURI:             getEnv("MONGODB_URI", ""),
		MongoDBDatabase:        getEnv("MONGODB_DATABASE", ""),
		StorageRoot:            getEnv("MEDIA_STORAGE_ROOT", "var/media"),
		ResolverServiceURL:     getEnv("MEDIA_RESOLVER_URL", ""),
		ResolverTimeout:        getEnvSeconds("MEDIA_RESOLVER_TIMEOUT", 30),
		DownloadTimeout:        getEnvSeconds("MEDIA_DOWNLOAD_TIMEOUT", 30),
		ScrapeUserAgent:        getEnv("MEDIA_HTML_USER_AGENT", defaultUserAgent),
		CacheTTLDays:           getEnvInt("MEDIA_CACHE_TTL_DAYS", 7),
		PublishedRetentionDays: getEnvInt("PUBLISHED_POST_TTL_DAYS", 7),
		StaleGraceMinutes:      getEnvInt("STALE_SCHEDULE_GRACE_MINUTES", 180),
		PollInterval:           getEnvSeconds("PUBLISH_POLL_INTERVAL", 60),
		WorkerCount:            getEnvInt("PUBLISH_WORKER_COUNT", 4),
		ListenAddr:             getEnv("LISTEN_ADDR", ":8080"),
		APIAccessKey:           getEnv("API_ACCESS_KEY", ""),
	}

	// Basic validation for essential variables
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	if cfg.MongoDBDatabase == "" {
		return nil, fmt.Errorf("MONGODB_DATABASE is required")
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}
	if cfg.ResolverServiceURL == "" {
		log.Println("Warning: MEDIA_RESOLVER_URL is not set. Falling back to built-in resolvers and HTML scraping.")
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.APIAccessKey == "" {
		log.Println("Warning: API_ACCESS_KEY is not set. Intake API is unauthenticated.")
	}

	return cfg, nil
}

// CacheTTL returns the media cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}

// PublishedRetention returns how long published posts are kept.
func (c *Config) PublishedRetention() time.Duration {
	return time.Duration(c.PublishedRetentionDays) * 24 * time.Hour
}

// StaleGrace returns the grace window before a stuck schedule is reverted.
func (c *Config) StaleGrace() time.Duration {
	return time.Duration(c.StaleGraceMinutes) * time.Minute
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: %s must be an integer, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}
