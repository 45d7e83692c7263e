package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/occurrences/internal/execution"
	"github.com/alfredjeanlab/occurrences/internal/model"
	"github.com/alfredjeanlab/occurrences/internal/store"
)

// Session implements store.Store on one pooled connection. Every operation
// is a unit of work for the execution strategy. A connection that is lost
// mid-attempt is discarded and the next attempt acquires a fresh one.
type Session struct {
	id       string
	acquire  func(context.Context) (*sql.Conn, error)
	conn     *sql.Conn
	wrap     func(executor) executor
	strategy execution.Strategy
	logger   *slog.Logger
}

// Compile-time check that Session implements store.Store.
var _ store.Store = (*Session)(nil)

// ID returns the identifier attached to this session's log lines.
func (s *Session) ID() string {
	return s.id
}

// connection returns the session's connection, acquiring a new one if the
// previous attempt dropped it.
func (s *Session) connection(ctx context.Context) (*sql.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	s.logger.Debug("session reconnected")
	s.conn = conn
	return conn, nil
}

// run executes op as one unit of work under the strategy. Each attempt runs
// on the current connection.
func (s *Session) run(ctx context.Context, op func(ctx context.Context, conn *sql.Conn) error) error {
	return s.strategy.Execute(ctx, func(ctx context.Context) error {
		conn, err := s.connection(ctx)
		if err != nil {
			return err
		}
		err = op(ctx, conn)
		if execution.IsConnectionLost(err) {
			s.logger.Warn("connection lost, discarding", "err", err)
			_ = conn.Close()
			s.conn = nil
		}
		return err
	})
}

// query is run for operations that only need an executor.
func (s *Session) query(ctx context.Context, op func(ctx context.Context, db executor) error) error {
	return s.run(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return op(ctx, s.wrap(conn))
	})
}

func (s *Session) CountOccurrences(ctx context.Context) (int, error) {
	var n int
	err := s.query(ctx, func(ctx context.Context, db executor) error {
		var err error
		n, err = queryCountOccurrences(ctx, db)
		return err
	})
	return n, err
}

func (s *Session) CreateOccurrence(ctx context.Context, o *model.Occurrence) error {
	if err := model.ValidateOccurrence(o); err != nil {
		return err
	}
	return s.query(ctx, func(ctx context.Context, db executor) error {
		return queryCreateOccurrence(ctx, db, o)
	})
}

func (s *Session) GetOccurrence(ctx context.Context, id int) (*model.Occurrence, error) {
	var o *model.Occurrence
	err := s.query(ctx, func(ctx context.Context, db executor) error {
		var err error
		o, err = queryGetOccurrence(ctx, db, id)
		return err
	})
	return o, err
}

func (s *Session) UpdateOccurrence(ctx context.Context, o *model.Occurrence) error {
	if err := model.ValidateOccurrence(o); err != nil {
		return err
	}
	return s.query(ctx, func(ctx context.Context, db executor) error {
		return queryUpdateOccurrence(ctx, db, o)
	})
}

func (s *Session) AddPrice(ctx context.Context, p *model.Price) error {
	p.Currency = model.NormalizeCurrency(p.Currency)
	if err := model.ValidatePrice(p); err != nil {
		return err
	}
	return s.query(ctx, func(ctx context.Context, db executor) error {
		return queryAddPrice(ctx, db, p)
	})
}

// ListOccurrencesWithPrices materializes the whole join inside the execution
// strategy, so a retry starts over with an empty result.
func (s *Session) ListOccurrencesWithPrices(ctx context.Context) ([]*model.Occurrence, error) {
	var out []*model.Occurrence
	err := s.query(ctx, func(ctx context.Context, db executor) error {
		var err error
		out, err = queryListOccurrencesWithPrices(ctx, db)
		return err
	})
	return out, err
}

// StreamOccurrencesWithPrices opens a lazy stream over the join. When the
// strategy retries on failure the result set is buffered first so that the
// query itself can be re-run; see openStream.
func (s *Session) StreamOccurrencesWithPrices(ctx context.Context) (store.OccurrenceStream, error) {
	return openStream(ctx, s.strategy.RetriesOnFailure(), s.query)
}

// RunInTransaction runs fn in a transaction on this session's connection.
// The whole transaction is the unit the strategy retries; statements inside
// it run exactly once per attempt.
func (s *Session) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return s.run(ctx, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		txS := &txStore{tx: tx, exec: s.wrap(tx)}
		if err := fn(txS); err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// Close returns the connection to the pool. Streams opened on the session
// must be closed first.
func (s *Session) Close() error {
	s.logger.Debug("session closed")
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx   *sql.Tx
	exec executor
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CountOccurrences(ctx context.Context) (int, error) {
	return queryCountOccurrences(ctx, s.exec)
}

func (s *txStore) CreateOccurrence(ctx context.Context, o *model.Occurrence) error {
	if err := model.ValidateOccurrence(o); err != nil {
		return err
	}
	return queryCreateOccurrence(ctx, s.exec, o)
}

func (s *txStore) GetOccurrence(ctx context.Context, id int) (*model.Occurrence, error) {
	return queryGetOccurrence(ctx, s.exec, id)
}

func (s *txStore) UpdateOccurrence(ctx context.Context, o *model.Occurrence) error {
	if err := model.ValidateOccurrence(o); err != nil {
		return err
	}
	return queryUpdateOccurrence(ctx, s.exec, o)
}

func (s *txStore) AddPrice(ctx context.Context, p *model.Price) error {
	p.Currency = model.NormalizeCurrency(p.Currency)
	if err := model.ValidatePrice(p); err != nil {
		return err
	}
	return queryAddPrice(ctx, s.exec, p)
}

func (s *txStore) ListOccurrencesWithPrices(ctx context.Context) ([]*model.Occurrence, error) {
	return queryListOccurrencesWithPrices(ctx, s.exec)
}

func (s *txStore) StreamOccurrencesWithPrices(ctx context.Context) (store.OccurrenceStream, error) {
	return openStream(ctx, false, func(ctx context.Context, op func(context.Context, executor) error) error {
		return op(ctx, s.exec)
	})
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the session owns the connection.
func (s *txStore) Close() error {
	return nil
}
