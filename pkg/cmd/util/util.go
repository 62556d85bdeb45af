package util

import (
	"context"
	"fmt"
	"os"
	"time"

	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/config"
)

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the logger from the resolved config and installs it as
// default logger.
func SetupLogger() (*log.Logger, error) {
	opts := []log.Option{log.WithCaller(true), log.AddCallerSkip(1)}
	if config.LogFilter != "" {
		filter, err := log.WithFilter(config.LogFilter)
		if err != nil {
			return nil, fmt.Errorf("invalid log filter: %w", err)
		}
		opts = append(opts, filter)
	}
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.InfoLevel),
			opts...)
	default:
		logger = log.DevLogger(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.DebugLevel),
			opts...)
	}
	log.ResetDefault(logger)
	return logger, nil
}

// SetupTelemetry starts exporters and runtime metrics if enabled. The
// returned value may be nil.
func SetupTelemetry(ctx context.Context) *config.Telemetry {
	if !config.EnableTelemetry {
		return nil
	}
	log.Info("Enabling telemetry", log.String("endpoint", config.TelemetryEndpoint))
	telemetry, err := config.SetupTelemetry(ctx)
	if err != nil {
		log.Warn("Could not setup telemetry", log.ErrorField(err))
		return nil
	}
	err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
	if err != nil {
		log.Warn("Could not start runtime metrics", log.ErrorField(err))
	}
	return telemetry
}

// ParseDuration parses a duration flag value. Empty or invalid values yield
// the default.
func ParseDuration(name, value string, defaultVal time.Duration) time.Duration {
	if value == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn("Invalid duration value. Using default",
			log.String("flag", name),
			log.String("value", value),
			log.Duration("default", defaultVal),
			log.ErrorField(err))
		return defaultVal
	}
	return d
}
