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

	"github.com/redis/go-redis/v9"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/config"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/consumer"
	carthttp "github.com/spirithubcafe/spirithubcafe-sub004/internal/http"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/session"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/storage"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/storage/mongostore"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/storage/redisstore"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/storage/sqlstore"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()
	slots, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open cart storage",
			zap.String("backend", cfg.StorageBackend),
			zap.Error(err))
	}
	defer closeStorage()

	if cfg.StorageBreaker {
		slots = storage.WithBreaker(slots, "cart-storage-"+cfg.StorageBackend, logger)
	}

	registry := session.NewRegistry(slots, session.Options{IdleTTL: cfg.SessionIdleTTL}, logger)
	defer registry.Close()

	handler := carthttp.NewCartHandler(registry, cfg.RequestTimeout, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      carthttp.NewRouter(handler, cfg.RequestTimeout, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	var checkoutConsumer *consumer.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		checkoutConsumer = consumer.NewConsumer(registry, logger, cfg.KafkaBrokers...)
		go checkoutConsumer.Run(consumerCtx)
		logger.Info("checkout consumer started",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", consumer.Topic))
	}

	go func() {
		logger.Info("cart service listening",
			zap.String("port", cfg.HTTPPort),
			zap.String("storage", cfg.StorageBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down cart service")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	stopConsumer()
	if checkoutConsumer != nil {
		checkoutConsumer.Close()
	}

	logger.Info("cart service stopped")
}

// openStorage connects the configured cart slot backend. The returned func
// releases its connections.
func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		return redisstore.NewRedisStore(client, cfg.RedisTTL), func() { client.Close() }, nil

	case config.BackendMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		if err := store.CreateIndexes(ctx); err != nil {
			store.Close(context.Background())
			return nil, nil, fmt.Errorf("create indexes: %w", err)
		}
		logger.Info("connected to mongodb", zap.String("db", cfg.MongoDBName))
		return store, func() { store.Close(context.Background()) }, nil

	case config.BackendSQLite:
		store, err := sqlstore.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := store.RunMigrations(); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("opened sqlite database", zap.String("path", cfg.SQLitePath))
		return store, func() { store.Close() }, nil

	case config.BackendPostgres:
		store, err := sqlstore.NewPostgres(&sqlstore.Credentials{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.RunMigrations(); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("connected to postgres", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
		return store, func() { store.Close() }, nil

	default:
		logger.Warn("using in-memory cart storage; carts are lost on restart")
		return storage.NewMemory(), func() {}, nil
	}
}
