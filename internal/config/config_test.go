package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"ENV", "STORE_DRIVER", "SESSION_BACKEND", "STORE_LATENCY", "LOG_FORMAT", "MONGODB_URI", "MONGO_URI"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "karuna.db", cfg.StoreDSN)
	assert.Equal(t, "karuna.", cfg.StoreKeyPrefix)
	assert.Equal(t, "memory", cfg.SessionBackend)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Zero(t, cfg.StoreLatency)
	assert.Equal(t, "mongodb://localhost:27017/karuna", cfg.MongoURI)
	assert.False(t, cfg.CloudinaryEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", " Production ")
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("SESSION_BACKEND", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("STORE_LATENCY", "150")
	t.Setenv("RATE_LIMIT_RPS", "0.5")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("CLOUDINARY_CLOUD_NAME", "demo")
	t.Setenv("CLOUDINARY_API_KEY", "key")
	t.Setenv("CLOUDINARY_API_SECRET", "secret")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, DriverRedis, cfg.StoreDriver)
	assert.Equal(t, "redis", cfg.SessionBackend)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 150*time.Millisecond, cfg.StoreLatency)
	assert.Equal(t, 0.5, cfg.RateLimitRPS)
	assert.True(t, cfg.TrustProxy)
	assert.True(t, cfg.CloudinaryEnabled())
}

func TestGetDuration(t *testing.T) {
	t.Setenv("X_DELAY", "2s")
	assert.Equal(t, 2*time.Second, getDuration("X_DELAY", 0))
	t.Setenv("X_DELAY", "soon")
	assert.Equal(t, time.Minute, getDuration("X_DELAY", time.Minute))
}
