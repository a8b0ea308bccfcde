package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	Database      string
	DBMaxConns    int
	MigrationsDir string
	RedisURL      string

	JWTSecret string

	// MDM
	MDMBaseURL           string
	MDMNetworkID         string
	MDMAPIKey            string
	MDMRequestsPerSecond int
	MDMTimeout           time.Duration
	LoginAppBundleID     string
	StatusSettleDelay    time.Duration

	// Scheduling
	SchoolTimezone *time.Location

	// Workers
	DeviceWorkers  int
	ScreenCacheTTL time.Duration
	BatchRateLimit int

	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		Database:             mustGetEnv("DATABASE_URL"),
		DBMaxConns:           getEnvAsIntOrDefault("DB_MAX_CONNS", 25),
		MigrationsDir:        getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		MDMBaseURL:           mustGetEnv("MDM_BASE_URL"),
		MDMNetworkID:         getEnvOrDefault("MDM_NETWORK_ID", ""),
		MDMAPIKey:            getEnvOrDefault("MDM_API_KEY", ""),
		MDMRequestsPerSecond: getEnvAsIntOrDefault("MDM_REQUESTS_PER_SECOND", 5),
		MDMTimeout:           getEnvAsDurationOrDefault("MDM_TIMEOUT", 20*time.Second),
		LoginAppBundleID:     getEnvOrDefault("MDM_LOGIN_APP_BUNDLE_ID", "com.jamfschool.studentlogin"),
		StatusSettleDelay:    getEnvAsDurationOrDefault("MDM_STATUS_SETTLE_DELAY", 3*time.Second),
		SchoolTimezone:       getEnvAsLocationOrDefault("SCHOOL_TIMEZONE", time.UTC),
		DeviceWorkers:        getEnvAsIntOrDefault("DEVICE_WORKERS", 2),
		ScreenCacheTTL:       getEnvAsDurationOrDefault("SCREEN_CACHE_TTL", 30*time.Minute),
		BatchRateLimit:       getEnvAsIntOrDefault("DEVICE_BATCH_RATE_LIMIT", 10),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvAsLocationOrDefault(key string, defaultVal *time.Location) *time.Location {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	loc, err := time.LoadLocation(val)
	if err != nil {
		return defaultVal
	}
	return loc
}
