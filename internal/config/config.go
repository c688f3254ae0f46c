package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

type Config struct {
	Environment string // ENV: production, development, etc.
	Port        string
	LogLevel    string
	LogFormat   string // text or json

	StoreDriver    string
	StoreDSN       string // sqlite file path
	StoreKeyPrefix string
	StoreLatency   time.Duration // simulated per-call delay, 0 in production

	MongoURI      string
	MongoDatabase string
	PostgresURI   string
	RedisURI      string

	SessionBackend string // redis or memory

	RateLimitRPS   float64 // ops endpoints, per client IP
	RateLimitBurst int
	TrustProxy     bool // read client IP from X-Forwarded-For

	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))

	sessionBackend := strings.ToLower(getEnv("SESSION_BACKEND", ""))
	driver := strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", DriverSQLite)))
	if sessionBackend == "" {
		// Sessions follow the store onto Redis when it is already there.
		sessionBackend = "memory"
		if driver == DriverRedis {
			sessionBackend = "redis"
		}
	}

	logFormat := "text"
	if env == "production" {
		logFormat = "json"
	}

	return &Config{
		Environment:         env,
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", logFormat),
		StoreDriver:         driver,
		StoreDSN:            getEnv("STORE_DSN", "karuna.db"),
		StoreKeyPrefix:      getEnv("STORE_KEY_PREFIX", "karuna."),
		StoreLatency:        getDuration("STORE_LATENCY", 0),
		MongoURI:            getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/karuna")),
		MongoDatabase:       getEnv("MONGODB_DATABASE", ""),
		PostgresURI:         getEnv("POSTGRES_URI", "postgres://localhost:5432/karuna?sslmode=disable"),
		RedisURI:            getEnv("REDIS_URI", "redis://localhost:6379/0"),
		SessionBackend:      sessionBackend,
		RateLimitRPS:        getFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:      getInt("RATE_LIMIT_BURST", 20),
		TrustProxy:          getBool("TRUST_PROXY", false),
		CloudinaryName:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
	}
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

// CloudinaryEnabled reports whether all three Cloudinary credentials are set.
func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go durations ("150ms") or bare milliseconds ("150").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return n
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
		return f
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return b
	}
	return defaultValue
}
