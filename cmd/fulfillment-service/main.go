package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/clock"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/db"
	fulfillmentHttp "github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/handler/http"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/pending"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/reconcile"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Str("service", "fulfillment-service").Logger()

	log.Info().Msg("Starting fulfillment-service...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	postgres, err := db.New(startupCtx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := db.Migrate(postgres.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	locker, redisClient := newLocker(startupCtx, cfg.Redis)

	systemClock := clock.NewSystem()

	inventoryRepository := inventory.NewRepository(postgres.Pool)
	adjuster := inventory.NewAdjuster(inventoryRepository)

	orderOpts := []order.ServiceOption{order.WithClock(systemClock)}
	if cfg.Order.AtomicStock {
		orderOpts = append(orderOpts, order.WithAtomicStock(postgres))
	}
	orderRepository := order.NewRepository(postgres.Pool)
	orderSvc := order.NewService(orderRepository, adjuster, orderOpts...)

	pendingRepository := pending.NewRepository(postgres.Pool)
	pendingStore := pending.NewStore(pendingRepository, pending.WithTTL(cfg.Pending.TTL), pending.WithClock(systemClock))
	sweeper := pending.NewSweeper(pendingRepository, systemClock, cfg.Pending.SweepInterval)

	reconciler := reconcile.NewReconciler(orderSvc, pendingStore, locker)

	processorOpts := []reconcile.ProcessorOption{reconcile.WithLocker(locker)}
	if cfg.Payment.SecretKey != "" {
		processorOpts = append(processorOpts, reconcile.WithMethodLookup(
			payment.NewClient(cfg.Payment.APIURL, cfg.Payment.SecretKey, cfg.Payment.Timeout),
		))
	}
	if cfg.Order.RestockOnPaymentFailure {
		processorOpts = append(processorOpts, reconcile.WithRestockOnFailure(adjuster))
	}
	processor := reconcile.NewProcessor(reconciler, orderSvc, processorOpts...)

	webhookSecret := cfg.Payment.WebhookSecret
	if cfg.App.Env == config.EnvDevelopment {
		webhookSecret = ""
	}

	router := fulfillmentHttp.NewRouter(postgres.Pool,
		fulfillmentHttp.NewWebhookHandler(processor, fulfillmentHttp.VerifySignature(webhookSecret, cfg.Payment.SignatureTolerance, systemClock)),
		fulfillmentHttp.NewPendingHandler(pendingStore),
		fulfillmentHttp.NewOrderHandler(orderSvc),
		fulfillmentHttp.NewAdminHandler(sweeper, reconciler, !cfg.IsProduction()),
	)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(sweepCtx)
	}()

	go func() {
		log.Info().Str("port", cfg.App.Port).Str("env", cfg.App.Env).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("port", cfg.App.Port).Msg("Could not listen")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	stopSweeper()
	wg.Wait()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	postgres.Close()

	log.Info().Msg("Fulfillment-service stopped gracefully.")
}

// newLocker returns a Redis-backed locker when REDIS_URL is set, so several
// instances share in-flight markers. Otherwise the lock is process-local.
func newLocker(ctx context.Context, cfg config.RedisConfig) (reconcile.Locker, *redis.Client) {
	if cfg.URL == "" {
		log.Info().Msg("REDIS_URL not set, using in-process confirmation lock")
		return reconcile.NewMemoryLocker(), nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid REDIS_URL")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}

	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return reconcile.NewRedisLocker(client, cfg.LockTTL), client
}
