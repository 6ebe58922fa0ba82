package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/safar/shop-checkout/internal/api"
	"github.com/safar/shop-checkout/internal/basket"
	"github.com/safar/shop-checkout/internal/checkout"
	"github.com/safar/shop-checkout/internal/config"
	"github.com/safar/shop-checkout/internal/database"
	"github.com/safar/shop-checkout/internal/identity"
	"github.com/safar/shop-checkout/internal/logging"
	"github.com/safar/shop-checkout/internal/metrics"
	"github.com/safar/shop-checkout/internal/notify"
	"github.com/safar/shop-checkout/internal/payment"
	"github.com/safar/shop-checkout/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Format.Location()
	if err != nil {
		return err
	}

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database")

	st := store.New(db)

	basketStore, closeBaskets, err := newBasketStore(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeBaskets()

	publisher := newPublisher(cfg.Kafka, logger)
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "shop"),
	)
	m := metrics.New(reg)

	relay := notify.NewRelay(st, publisher, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize, m, logger.With("component", "outbox"))
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox relay stopped", "error", err)
		}
	}()

	baskets := basket.NewService(basketStore, st)
	svc := checkout.NewService(checkout.Config{
		Orders:  st,
		Baskets: baskets,
		Gate:    payment.NewValidator(cfg.Payment.ProcessingDelay),
		Waker:   relay,
		Topic:   cfg.Kafka.Topic,
		Metrics: m,
	})
	auth := identity.NewAuthenticator(cfg.Auth.JWTSecret, st, cfg.Auth.GuestEmail, cfg.Auth.GuestName)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, every request acts as the guest buyer")
	}

	handler := api.NewHandler(svc, baskets, st, st, api.Formatter{Layout: cfg.Format.DateLayout, Location: loc})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler, auth, m, metrics.Handler(reg)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + cfg.Payment.ProcessingDelay,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		stop()
		<-relayDone
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-relayDone
	return nil
}

func newBasketStore(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (basket.Store, func(), error) {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not set, baskets are kept in process memory")
		return basket.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}

	logger.Info("basket store on redis", "addr", cfg.Addr)
	return basket.NewRedisStore(client, cfg.KeyPrefix, cfg.BasketTTL), func() { client.Close() }, nil
}

func newPublisher(cfg config.KafkaConfig, logger *slog.Logger) notify.Publisher {
	if len(cfg.Brokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, order events are only logged")
		return notify.NewLogPublisher(logger.With("component", "publisher"))
	}
	logger.Info("publishing order events to kafka", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return notify.NewKafkaPublisher(cfg.Brokers)
}
