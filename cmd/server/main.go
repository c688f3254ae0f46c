package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/AnshRaj112/karuna-backend/internal/config"
	"github.com/AnshRaj112/karuna-backend/internal/database"
	"github.com/AnshRaj112/karuna-backend/internal/logger"
	"github.com/AnshRaj112/karuna-backend/internal/metrics"
	"github.com/AnshRaj112/karuna-backend/internal/middleware"
	"github.com/AnshRaj112/karuna-backend/internal/routes"
	"github.com/AnshRaj112/karuna-backend/internal/seed"
	"github.com/AnshRaj112/karuna-backend/internal/services"
	"github.com/AnshRaj112/karuna-backend/internal/store"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found")
	}
	// Load configuration
	cfg := config.Load()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	boot := logger.Component(log, "server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the store
	boot.WithField("driver", cfg.StoreDriver).Info("Opening store...")
	backend, redisClient, err := openStore(cfg)
	if err != nil {
		boot.WithError(err).Fatal("Failed to open store")
	}
	repo := store.NewRepository(backend,
		store.WithKeyPrefix(cfg.StoreKeyPrefix),
		store.WithLatency(cfg.StoreLatency),
		store.WithConflictHook(func(name string) {
			metrics.RecordStoreConflict(name)
			logger.Component(log, "store").WithField("collection", name).Warn("version conflict, retrying")
		}),
	)
	defer repo.Close()
	boot.Info("✅ Store ready")

	// Seed fixtures into a fresh store, then make sure every payload decodes
	seeded, err := seed.Run(ctx, repo, time.Now().UTC(), logger.Component(log, "seed"))
	if err != nil {
		boot.WithError(err).Fatal("Failed to seed store")
	}
	if len(seeded) > 0 {
		boot.WithField("collections", seeded).Info("✅ Seeded fixtures")
	}
	if err := seed.Validate(ctx, repo); err != nil {
		boot.WithError(err).Fatal("Store holds a corrupt collection")
	}

	// Sessions
	sessions, closeSessions, err := openSessions(cfg, redisClient)
	if err != nil {
		boot.WithError(err).Fatal("Failed to set up sessions")
	}
	defer closeSessions()
	boot.WithField("backend", cfg.SessionBackend).Info("✅ Sessions ready")

	// Initialize Cloudinary service
	var avatars services.AvatarUploader
	if cfg.CloudinaryEnabled() {
		cld, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			boot.WithError(err).Warn("Avatar uploads will not be available")
		} else {
			avatars = cld
			boot.Info("✅ Cloudinary service initialized")
		}
	} else {
		boot.Warn("Cloudinary credentials not found. Avatar uploads will not be available")
	}

	core := services.New(repo, services.Options{
		Sessions: sessions,
		Avatars:  avatars,
		Logger:   log,
	})
	posts, err := core.Catalog.ListPosts(ctx, services.PostFilter{})
	if err != nil {
		boot.WithError(err).Fatal("Failed to read catalog")
	}
	boot.WithField("posts", len(posts)).Info("✅ Core services ready")

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.TrustProxy)
	go limiter.Run(ctx.Done())

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: routes.NewRouter(routes.Deps{
			Store:   repo,
			Limiter: limiter,
			Log:     logger.Component(log, "http"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			boot.WithError(err).Warn("Shutdown did not complete cleanly")
		}
	}()

	boot.Infof("🚀 Karuna backend running on :%s (GET /health, /ready, /metrics)", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		boot.WithError(err).Fatal("Failed to start server")
	}
}

// openStore connects the configured backend. The Redis client is returned
// too so sessions can share it.
func openStore(cfg *config.Config) (store.Store, *redis.Client, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil, nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewGormStore(db)
		return s, nil, err

	case config.DriverPostgres:
		// ConnectPostgres also creates the collections table.
		db, err := database.ConnectPostgres(cfg.PostgresURI)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgresStore(db), nil, nil

	case config.DriverRedis:
		client, err := database.ConnectRedis(cfg.RedisURI)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client), client, nil

	case config.DriverMongo:
		dbName := cfg.MongoDatabase
		if dbName == "" {
			dbName = database.MongoDatabaseName(cfg.MongoURI)
		}
		db, err := database.ConnectMongo(cfg.MongoURI, dbName)
		if err != nil {
			return nil, nil, err
		}
		return store.NewMongoStore(db.Collection(store.CollectionsCollection)), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

// openSessions picks the session registry. The returned func releases a
// Redis client opened only for sessions.
func openSessions(cfg *config.Config, shared *redis.Client) (services.SessionRegistry, func(), error) {
	noop := func() {}
	switch cfg.SessionBackend {
	case "memory":
		return services.NewMemorySessions(nil), noop, nil
	case "redis":
		if shared != nil {
			return services.NewRedisSessions(shared), noop, nil
		}
		client, err := database.ConnectRedis(cfg.RedisURI)
		if err != nil {
			return nil, noop, err
		}
		return services.NewRedisSessions(client), func() { client.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
}
