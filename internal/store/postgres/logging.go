package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
)

// loggingExecutor logs every command it runs. Parameter values are logged
// only when sensitive is set; SQLSTATE details only when detailed is set.
type loggingExecutor struct {
	next      executor
	logger    *slog.Logger
	sensitive bool
	detailed  bool
}

func (l *loggingExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := l.next.ExecContext(ctx, query, args...)
	l.log(ctx, query, args, start, err)
	return res, err
}

func (l *loggingExecutor) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := l.next.QueryContext(ctx, query, args...)
	l.log(ctx, query, args, start, err)
	return rows, err
}

// QueryRowContext logs when the statement is sent. Errors surface later,
// from Scan, and are not logged here.
func (l *loggingExecutor) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := l.next.QueryRowContext(ctx, query, args...)
	l.log(ctx, query, args, start, row.Err())
	return row
}

func (l *loggingExecutor) log(ctx context.Context, query string, args []any, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("sql", compactSQL(query)),
		slog.Duration("elapsed", time.Since(start)),
	}
	if l.sensitive && len(args) > 0 {
		attrs = append(attrs, slog.Any("params", args))
	}

	if err == nil {
		l.logger.LogAttrs(ctx, slog.LevelInfo, "executed command", attrs...)
		return
	}

	attrs = append(attrs, slog.String("err", err.Error()))
	var pqErr *pq.Error
	if l.detailed && errors.As(err, &pqErr) {
		attrs = append(attrs,
			slog.String("sqlstate", string(pqErr.Code)),
			slog.String("class", pqErr.Code.Class().Name()),
		)
		if pqErr.Detail != "" {
			attrs = append(attrs, slog.String("detail", pqErr.Detail))
		}
	}
	l.logger.LogAttrs(ctx, slog.LevelError, "failed executing command", attrs...)
}

// compactSQL collapses whitespace so a statement fits on one log line.
func compactSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
