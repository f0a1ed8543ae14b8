package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bolo/internal/app"
	"bolo/internal/config"
	"bolo/internal/handler"
	"bolo/internal/metrics"
	"bolo/internal/provider/cbebirr"
	"bolo/internal/provider/ethiopost"
	"bolo/internal/provider/sms"
	"bolo/internal/provider/telebirr"
	internalRedis "bolo/internal/redis"
	"bolo/internal/repository/postgres"
	"bolo/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// New Relic first so the database and Redis clients are instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("new relic disabled", zap.Error(err))
			nrApp = nil
		} else {
			logger.Info("new relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := app.NewDatabase(connectCtx, cfg.Database, nrApp, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to postgres", zap.String("host", cfg.Database.Host))

	redisClient, err := app.NewRedisClient(connectCtx, cfg.Redis, nrApp)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	server := wireServer(db, redisClient, nrApp, cfg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if nrApp != nil {
			nrApp.Shutdown(cfg.Server.ShutdownTimeout)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config, logger *zap.Logger) *http.Server {
	m := metrics.New()

	// Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Repositories.
	paymentRepo := postgres.NewPaymentRepository(db)
	deliveryRepo := postgres.NewDeliveryRepository(db)

	// Provider clients.
	telebirrClient := telebirr.NewClient(cfg.Telebirr, m, logger)
	cbeClient := cbebirr.NewClient(cfg.CBEBirr, m, logger)
	postClient := ethiopost.NewClient(cfg.EthiopiaPost, m, logger)

	var sender service.SMSSender
	if cfg.SMS.GatewayURL != "" {
		sender = sms.NewClient(cfg.SMS, m, logger)
	} else {
		logger.Warn("SMS_GATEWAY_URL not set, confirmations are only logged")
		sender = sms.NewLogSender(logger)
	}

	// Services.
	notificationService := service.NewNotificationService(sender, m, logger)
	reconciler := service.NewReconciler(paymentRepo, notificationService, logger)
	paymentService := service.NewPaymentService(paymentRepo, telebirrClient, cbeClient, lockStore, reconciler, logger)
	webhookService := service.NewWebhookService(paymentRepo, lockStore, reconciler, m, logger)
	deliveryService := service.NewDeliveryService(postClient, deliveryRepo, cacheStore, locationStore, logger)

	router := app.NewRouter(app.RouterDeps{
		PaymentHandler:  handler.NewPaymentHandler(paymentService),
		WebhookHandler:  handler.NewWebhookHandler(webhookService, logger),
		DeliveryHandler: handler.NewDeliveryHandler(deliveryService),
		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": db,
			"redis":    handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		}),
		RedisClient: redisClient,
		NewRelicApp: nrApp,
		Metrics:     m,
		Logger:      logger,
		Config:      cfg,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
