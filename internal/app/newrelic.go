package app

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"

	"ridecoord/internal/config"
	"ridecoord/internal/logger"
)

// NewNewRelic starts the New Relic agent when enabled and licensed. It
// returns nil otherwise, which every instrumented component accepts.
func NewNewRelic(ctx context.Context, cfg config.NewRelicConfig, log *logger.Logger) *newrelic.Application {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return nil
	}

	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		log.Error(ctx, "failed to initialize new relic", err)
		return nil
	}

	log.Info(log.WithField(ctx, "app", cfg.AppName), "new relic enabled")
	return nrApp
}
