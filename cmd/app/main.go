package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/teleconsult/config"
	"github.com/Domenick1991/teleconsult/internal/bootstrap"
	"github.com/Domenick1991/teleconsult/internal/cache"
	"github.com/Domenick1991/teleconsult/internal/database"
	"github.com/Domenick1991/teleconsult/internal/kafka"
	"github.com/Domenick1991/teleconsult/internal/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.GridCacheTTL(), zl.Named("cache"))
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		zl.Warn("redis unavailable, grid cache will miss", zap.Error(err))
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, zl.Named("kafka"))
	defer producer.Close()

	services, err := bootstrap.NewServices(cfg, pool, redisCache, producer, zl)
	if err != nil {
		zl.Fatal("wire services", zap.Error(err))
	}

	router := bootstrap.NewRouter(cfg, bootstrap.Dependencies{
		Availability: services.Availability,
		Bookings:     services.Bookings,
		Checks: map[string]bootstrap.HealthCheck{
			"postgres": pool.Ping,
			"redis":    redisCache.Ping,
			"kafka":    producer.CheckConnection,
		},
		Log: zl,
	})

	if err := bootstrap.Run(ctx, cfg, router, zl); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}
