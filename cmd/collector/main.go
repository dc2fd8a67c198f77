// Command collector pulls near-term option chains once, stores them and exits.
// It is meant to be started by an external scheduler; it takes no flags.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eddiefleurent/spy_options_collector/internal/collector"
	"github.com/eddiefleurent/spy_options_collector/internal/config"
	"github.com/eddiefleurent/spy_options_collector/internal/marketdata"
	"github.com/eddiefleurent/spy_options_collector/internal/notify"
	"github.com/eddiefleurent/spy_options_collector/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := newLogger()

	if err := config.LoadDotEnv(); err != nil {
		logger.WithError(err).Warn("Ignoring unreadable .env file")
	}

	configPath := config.ResolvePath()
	cfg, err := config.Load(configPath)
	if err != nil {
		// No credentials means no way to email; the log is all we have
		logger.WithError(err).WithField("path", configPath).Error("Failed to load config")
		return 1
	}
	setLevel(logger, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := marketdata.NewTradierAPIWithBaseURLAndClient(cfg.AccessToken, cfg.APIEndpoint, true, nil).
		WithLogger(logger)
	notifier := notify.NewEmailNotifier(notify.EmailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Address:  cfg.Email,
		Password: cfg.Password,
	}, logger)

	c := collector.New(cfg, api, storage.NewStorage, notifier, logger)

	start := time.Now()
	res, err := c.Run(ctx)
	fields := logrus.Fields{
		"run_id":   res.RunID,
		"state":    res.State,
		"stored":   res.Stored,
		"gaps":     len(res.Gaps),
		"duration": time.Since(start).Round(time.Millisecond),
	}
	if err != nil {
		// Already reported by email; a reported failure is a normal exit
		logger.WithFields(fields).WithError(err).Warn("Run ended with a reported failure")
		return 0
	}
	logger.WithFields(fields).Info("Run complete")
	return 0
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	logger.SetLevel(logrus.InfoLevel)
	return logger
}

func setLevel(logger *logrus.Logger, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithError(err).Warn("Unknown log level, keeping info")
		return
	}
	logger.SetLevel(lvl)
}
