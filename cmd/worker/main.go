package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ridecoord/internal/app"
	"ridecoord/internal/config"
	"ridecoord/internal/logger"
	internalRedis "ridecoord/internal/redis"
	"ridecoord/internal/repository/postgres"
	"ridecoord/internal/service"
	"ridecoord/internal/sms"
	"ridecoord/internal/trigger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "ride-worker",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
	})

	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "worker exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nrApp := app.NewNewRelic(startCtx, cfg.NewRelic, log)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
	}

	db, err := app.NewDatabase(startCtx, cfg.Database, nrApp)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := app.NewRedisClient(startCtx, cfg.Redis, nrApp)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	location, err := time.LoadLocation(cfg.Notify.TimeZone)
	if err != nil {
		return err
	}
	sender, err := sms.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	if err != nil {
		return err
	}

	cacheStore := internalRedis.NewCacheStore(redisClient)
	rideStore := postgres.NewRideStore(db)
	stream := internalRedis.NewChangeStream(redisClient, cfg.Stream.Key)

	orchestrator := service.NewOrchestrator(
		service.NewCacheInvalidatingRideStore(rideStore, cacheStore, log),
		service.NewNotificationService(sender, log),
		service.NewMessageBuilder(cfg.Notify.Brand, location, cfg.Notify.ETAMinutes),
		log,
	)
	rideService := service.NewRideService(rideStore, cacheStore, service.RideSettings{SearchTimeout: cfg.Timeout.Search}, log)

	consumerName := cfg.Stream.Consumer
	if consumerName == "" {
		consumerName, _ = os.Hostname()
	}

	relay := trigger.NewRelay(postgres.NewChangeOutbox(db), stream, cfg.Outbox.BatchSize, cfg.Outbox.PollInterval, log)
	consumer := trigger.NewConsumer(stream, orchestrator, trigger.ConsumerOptions{
		Group:        cfg.Stream.Group,
		Consumer:     consumerName,
		BatchSize:    cfg.Stream.BatchSize,
		Block:        cfg.Stream.Block,
		ClaimMinIdle: cfg.Stream.ClaimIdle,
	}, nrApp, log)
	sweeper := trigger.NewSweeper(rideService, cfg.Timeout.SweepInterval, cfg.Timeout.BatchSize, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loops := map[string]func(context.Context) error{
		"relay":    relay.Run,
		"consumer": consumer.Run,
		"sweeper":  sweeper.Run,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for name, loop := range loops {
		group.Go(func() error {
			loopCtx := log.WithField(groupCtx, "loop", name)
			log.Info(loopCtx, "worker loop started")
			if err := loop(loopCtx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	err = group.Wait()
	log.Info(context.Background(), "worker exited")
	return err
}
