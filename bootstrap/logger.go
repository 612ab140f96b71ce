// Package bootstrap holds the wiring shared by the binaries under cmd/
package bootstrap

import (
	"time"

	"github.com/zllovesuki/adbill/config"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns the structured logger for component with errors forwarded to sentry.
// The returned function flushes both and should be deferred by main.
func NewLogger(environment config.Environment, component, version string) (*zap.Logger, func(), error) {
	var logger *zap.Logger
	var err error
	if environment == config.EnvProduction {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, nil, extErrors.Wrap(err, "Cannot initialize logger")
	}
	logger = logger.With(zap.String("Version", version))

	// Initialize sentry for error reporting, DSN comes from SENTRY_DSN
	if err := sentry.Init(sentry.ClientOptions{
		Environment: string(environment),
		Release:     version,
		Debug:       environment == config.EnvDevelopment,
	}); err != nil {
		return nil, nil, extErrors.Wrap(err, "Cannot initialize sentry")
	}

	// Attach sentry to zap so we can do automatic error capturing
	cfg := zapsentry.Configuration{
		Level: zapcore.ErrorLevel,
		Tags: map[string]string{
			"component": component,
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromClient(sentry.CurrentHub().Client()))
	if err != nil {
		logger.Warn("Cannot attach sentry to logger",
			zap.Error(err),
		)
	} else {
		logger = zapsentry.AttachCoreToLogger(core, logger)
	}

	return logger, func() {
		sentry.Flush(time.Second * 2)
		logger.Sync()
	}, nil
}
