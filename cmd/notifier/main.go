package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mkarsono/go-order-fulfillment/internal/config"
	kafkax "github.com/mkarsono/go-order-fulfillment/internal/kafka"
	"github.com/mkarsono/go-order-fulfillment/internal/notifier"
	"github.com/mkarsono/go-order-fulfillment/internal/orders"
	"github.com/mkarsono/go-order-fulfillment/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{
		Mailer: &notifier.LogMailer{Logger: logger},
		Dedup:  &redisx.Cache{R: rdb},
		Logger: logger,
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), 4)
	topics := []string{orders.TopicOrderCreated, orders.TopicOrderCancelled, orders.TopicPaymentUpdated}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topics, workers, logger)

	go func() {
		logger.Info("notifier consumer started",
			zap.String("group", group), zap.Strings("topics", topics), zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down notifier")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return def
	}
	return i
}
