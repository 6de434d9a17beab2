package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mkarsono/go-order-fulfillment/internal/config"
	"github.com/mkarsono/go-order-fulfillment/internal/httpx"
	kafkax "github.com/mkarsono/go-order-fulfillment/internal/kafka"
	"github.com/mkarsono/go-order-fulfillment/internal/orders"
	"github.com/mkarsono/go-order-fulfillment/internal/payments"
	"github.com/mkarsono/go-order-fulfillment/internal/postgres"
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

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := &redisx.Cache{R: rdb}

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start(ctx)

	gateway := &payments.Client{
		BaseURL:        cfg.GatewayBaseURL,
		APIKey:         cfg.GatewayAPIKey,
		MinAmountCents: cfg.MinAmountCents,
		MaxAmountCents: cfg.MaxAmountCents,
		HTTP:           &http.Client{Timeout: cfg.GatewayTimeout},
		Logger:         logger,
	}

	repo := &orders.Repo{DB: db}
	orderSvc := &orders.Service{
		DB:          db,
		Repo:        repo,
		Gateway:     gateway,
		Cache:       cache,
		Producer:    prod,
		Logger:      logger,
		Currency:    cfg.Currency,
		ServiceName: cfg.ServiceName,
	}
	paymentSvc := &payments.Service{
		DB:       db,
		Repo:     repo,
		Gateway:  gateway,
		Logger:   logger,
		Currency: cfg.Currency,
	}
	reconciler := &payments.Reconciler{
		DB:          db,
		Dedup:       cache,
		Cache:       cache,
		Producer:    prod,
		Logger:      logger,
		ServiceName: cfg.ServiceName,
	}

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{Service: orderSvc}).Register(router)
	(&httpx.PaymentsHandler{
		Service:          paymentSvc,
		Reconciler:       reconciler,
		Logger:           logger,
		WebhookSecret:    cfg.WebhookSecret,
		WebhookTolerance: cfg.WebhookTolerance,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	prod.Close()
	cancel()
	prod.WaitClosed()
}
