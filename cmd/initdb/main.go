// Command initdb creates the options table in the configured database file.
// Running it is optional; the collector ensures the schema on every run.
package main

import (
	"context"
	"os"
	"time"

	"github.com/eddiefleurent/spy_options_collector/internal/config"
	"github.com/eddiefleurent/spy_options_collector/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})

	if err := config.LoadDotEnv(); err != nil {
		logger.WithError(err).Warn("Ignoring unreadable .env file")
	}
	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}

	if err := initSchema(context.Background(), cfg.DBFilepath, logger); err != nil {
		logger.WithError(err).Error("Failed to initialize database")
		os.Exit(1)
	}
}

func initSchema(ctx context.Context, path string, logger *logrus.Logger) error {
	st, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}()

	version, err := st.Version(ctx)
	if err != nil {
		return err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"path":           path,
		"sqlite_version": version,
	}).Info("Options table ready")
	return nil
}
