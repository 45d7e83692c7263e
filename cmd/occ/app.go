package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alfredjeanlab/occurrences/internal/config"
	"github.com/alfredjeanlab/occurrences/internal/events"
	"github.com/alfredjeanlab/occurrences/internal/store/postgres"
	"github.com/alfredjeanlab/occurrences/internal/ui"
)

// app is what every database-backed command needs, built from one explicit
// config.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *postgres.DB
	publisher events.Publisher
	styles    ui.Styles
}

// loadConfig applies the persistent flags on top of the environment. An
// explicit --config replaces OCC_CONFIG.
func loadConfig() (*config.Config, error) {
	load := config.Load
	if configPath != "" {
		load = func() (*config.Config, error) { return config.LoadFile(configPath) }
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	opts := []postgres.Option{postgres.WithLogger(logger)}
	if cfg.LogQueries {
		opts = append(opts, postgres.WithCommandLogger(logger.With("component", "sql")))
	}
	db, err := postgres.Open(ctx, cfg.Database, opts...)
	if err != nil {
		return nil, err
	}

	publisher, err := events.NewPublisher(cfg.NATSURL)
	if err != nil {
		db.Close()
		return nil, err
	}
	if cfg.NATSURL != "" {
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		logger.Debug("events disabled (OCC_NATS_URL not set)")
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		publisher: publisher,
		styles:    ui.Styles{Color: !noColor && ui.ShouldUseColor()},
	}, nil
}

func (a *app) Close() {
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("close publisher", "err", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "err", err)
	}
}

// newLogger returns a text logger writing to w at the named level.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
