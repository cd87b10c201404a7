package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridecoord/internal/app"
	"ridecoord/internal/config"
	"ridecoord/internal/handler"
	"ridecoord/internal/logger"
	"ridecoord/internal/middleware"
	"ridecoord/internal/psp"
	internalRedis "ridecoord/internal/redis"
	"ridecoord/internal/repository/postgres"
	"ridecoord/internal/service"
	"ridecoord/internal/sms"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "ride-api",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
	})

	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "server exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// New Relic first so the database and Redis clients are instrumented.
	nrApp := app.NewNewRelic(ctx, cfg.NewRelic, log)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info(ctx, "connected to postgres")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	log.Info(ctx, "connected to redis")

	verifier, err := app.NewTokenVerifier(ctx, cfg.Firebase)
	if err != nil {
		return err
	}

	server, err := wireServer(db, redisClient, verifier, nrApp, cfg, log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(log.WithField(context.Background(), "port", cfg.Server.Port), "starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info(context.Background(), "shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	verifier middleware.TokenVerifier,
	nrApp *newrelic.Application,
	cfg *config.Config,
	log *logger.Logger,
) (*http.Server, error) {
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	rideStore := postgres.NewRideStore(db)
	riderRepo := postgres.NewRiderRepository(db)

	gateway, err := psp.NewStripeGateway(cfg.Stripe.SecretKey)
	if err != nil {
		return nil, err
	}
	sender, err := sms.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	if err != nil {
		return nil, err
	}

	notificationService := service.NewNotificationService(sender, log)
	paymentService := service.NewPaymentService(service.NewCacheInvalidatingRideStore(rideStore, cacheStore, log), riderRepo, lockStore, gateway, service.PaymentSettings{
		Currency:           cfg.Stripe.Currency,
		MinimumChargeCents: cfg.Stripe.MinimumChargeCents,
		BufferPercent:      cfg.Stripe.BufferPercent,
	}, log)
	rideService := service.NewRideService(rideStore, cacheStore, service.RideSettings{SearchTimeout: cfg.Timeout.Search}, log)

	router := app.NewRouter(app.RouterDeps{
		SMSHandler:     handler.NewSMSHandler(notificationService),
		PaymentHandler: handler.NewPaymentHandler(paymentService),
		RideHandler:    handler.NewRideHandler(rideService),
		TokenVerifier:  verifier,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, nil
}
