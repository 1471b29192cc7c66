package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "tracker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// JWT
	JWTSecret string

	// Token encryption at rest
	EncryptionKey string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Ingestion
	IngestDaysBack       int
	IngestMaxResults     int64
	IngestFetchWorkers   int
	IngestQueryKeywords  []string
	ProcessedLabelName   string
	OAuthStateTTL        time.Duration
	TokenRefreshTimeout  time.Duration

	// Worker
	WorkerID          string
	LabelSyncGroup    string
	LinkFetchInterval time.Duration
	LinkFetchBatch    int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "tracker"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Encryption
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// Ingestion
		IngestDaysBack:      getEnvInt("INGEST_DAYS_BACK", 30),
		IngestMaxResults:    int64(getEnvInt("INGEST_MAX_RESULTS", 50)),
		IngestFetchWorkers:  getEnvInt("INGEST_FETCH_WORKERS", 5),
		IngestQueryKeywords: getEnvSlice("INGEST_QUERY_KEYWORDS", nil),
		ProcessedLabelName:  getEnv("PROCESSED_LABEL_NAME", "Job Tracker/Processed"),
		OAuthStateTTL:       time.Duration(getEnvInt("OAUTH_STATE_TTL_SEC", 600)) * time.Second,
		TokenRefreshTimeout: time.Duration(getEnvInt("TOKEN_REFRESH_TIMEOUT_SEC", 30)) * time.Second,

		// Worker
		WorkerID:          getEnv("WORKER_ID", generateWorkerID()),
		LabelSyncGroup:    getEnv("LABEL_SYNC_GROUP", "label-sync"),
		LinkFetchInterval: time.Duration(getEnvInt("LINK_FETCH_INTERVAL_SEC", 60)) * time.Second,
		LinkFetchBatch:    getEnvInt("LINK_FETCH_BATCH", 20),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
