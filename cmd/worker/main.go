package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/teleconsult/config"
	"github.com/Domenick1991/teleconsult/internal/bootstrap"
	"github.com/Domenick1991/teleconsult/internal/cache"
	"github.com/Domenick1991/teleconsult/internal/database"
	"github.com/Domenick1991/teleconsult/internal/kafka"
	"github.com/Domenick1991/teleconsult/internal/logger"
	"github.com/Domenick1991/teleconsult/internal/notify"
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

	producer := kafka.NewProducer(cfg.Kafka.Brokers, zl.Named("kafka"))
	defer producer.Close()

	services, err := bootstrap.NewServices(cfg, pool, redisCache, producer, zl)
	if err != nil {
		zl.Fatal("wire services", zap.Error(err))
	}

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, zl.Named("consumer"))
	defer consumer.Close()

	sender := notify.NewSender(zl.Named("notify"))

	go func() {
		if err := consumer.Consume(ctx, consumer.EventHandler(sender.Send)); err != nil {
			zl.Error("consumer stopped", zap.Error(err))
		}
	}()

	sweep := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute)
	defer sweep.Stop()

	zl.Info("worker started",
		zap.String("topic", cfg.Kafka.NotificationsTopic),
		zap.Int("sweep_minutes", cfg.Worker.ExpirationSweepMinutes),
	)

	for {
		select {
		case <-sweep.C:
			expired, err := services.Bookings.ExpirePendingBookings(ctx)
			if err != nil {
				zl.Error("expire bookings", zap.Error(err))
			} else if len(expired) > 0 {
				zl.Info("expired pending bookings", zap.Int("count", len(expired)))
			}

			purged, err := services.Reservations.PurgeExpired(ctx, time.Now())
			if err != nil {
				zl.Error("purge reservations", zap.Error(err))
			} else if purged > 0 {
				zl.Info("purged reservations", zap.Int64("count", purged))
			}
		case <-ctx.Done():
			zl.Info("shutting down")
			return
		}
	}
}
