// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/occurrences/internal/config"
	"github.com/alfredjeanlab/occurrences/internal/execution"
	"github.com/alfredjeanlab/occurrences/internal/idgen"
	"github.com/alfredjeanlab/occurrences/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is an open connection pool. It hands out sessions, each bound to one
// pooled connection.
type DB struct {
	db       *sql.DB
	cfg      config.Database
	strategy execution.Strategy
	logger   *slog.Logger
	commands *slog.Logger
}

// Compile-time check that DB hands out store sessions.
var _ store.Sessions = (*DB)(nil)

// Option customizes a DB.
type Option func(*DB)

// WithLogger sets the logger for session lifecycle and retry messages.
func WithLogger(l *slog.Logger) Option {
	return func(d *DB) { d.logger = l }
}

// WithCommandLogger logs every executed SQL command to l.
func WithCommandLogger(l *slog.Logger) Option {
	return func(d *DB) { d.commands = l }
}

// WithStrategy overrides the execution strategy derived from the config.
func WithStrategy(s execution.Strategy) Option {
	return func(d *DB) { d.strategy = s }
}

// Open connects to the database described by cfg, configures the connection
// pool, and runs any pending migrations.
func Open(ctx context.Context, cfg config.Database, opts ...Option) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	d := New(db, cfg, opts...)

	err = d.strategy.Execute(ctx, func(ctx context.Context) error {
		if cfg.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
			defer cancel()
		}
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return d, nil
}

// New wraps an already-open *sql.DB without pinging or migrating it.
func New(db *sql.DB, cfg config.Database, opts ...Option) *DB {
	d := &DB{db: db, cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.strategy == nil {
		d.strategy = execution.New(cfg, d.logger)
	}
	return d
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Session acquires a dedicated connection from the pool. The caller must
// Close the session to return the connection.
func (d *DB) Session(ctx context.Context) (store.Store, error) {
	id, err := idgen.NewSessionID()
	if err != nil {
		return nil, err
	}

	var conn *sql.Conn
	err = d.strategy.Execute(ctx, func(ctx context.Context) error {
		c, err := d.db.Conn(ctx)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	logger := d.logger.With("session", id)
	logger.Debug("session opened")
	return &Session{
		id:       id,
		acquire:  d.db.Conn,
		conn:     conn,
		wrap:     func(e executor) executor { return d.wrap(e, id) },
		strategy: d.strategy,
		logger:   logger,
	}, nil
}

// wrap adds command logging to e when a command logger is configured.
func (d *DB) wrap(e executor, sessionID string) executor {
	if d.commands == nil {
		return e
	}
	return &loggingExecutor{
		next:      e,
		logger:    d.commands.With("session", sessionID),
		sensitive: d.cfg.SensitiveDataLogging,
		detailed:  d.cfg.DetailedErrors,
	}
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Truncate deletes every price and occurrence. It exists for tests and
// resets against a shared database.
func (d *DB) Truncate(ctx context.Context) error {
	return d.strategy.Execute(ctx, func(ctx context.Context) error {
		_, err := d.db.ExecContext(ctx, `TRUNCATE "Price", "Occurrence" RESTART IDENTITY`)
		return err
	})
}
