package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/alfredjeanlab/occurrences/internal/model"
	"github.com/alfredjeanlab/occurrences/internal/store"
)

// columnKind is the declared storage type of a column in
// occurrencesWithPricesSQL.
type columnKind int

const (
	columnInt columnKind = iota
	columnText
	columnDecimal
	columnVersion
)

// joinedColumns declares the schema types of the joined columns. Version
// token columns are NOT NULL in both tables.
var joinedColumns = []columnKind{
	columnInt,     // o.Id
	columnText,    // o.Title
	columnVersion, // o.Timestamp
	columnInt,     // p.OccurrenceId
	columnText,    // p.Currency
	columnDecimal, // p.Value
	columnVersion, // p.Timestamp
}

// rowSource yields joined rows one at a time.
type rowSource interface {
	next() bool
	row() (*joinedRow, error)
	err() error
	close() error
}

// cursorSource reads straight from the driver cursor.
type cursorSource struct {
	rows *sql.Rows
}

func (c *cursorSource) next() bool               { return c.rows.Next() }
func (c *cursorSource) row() (*joinedRow, error) { return scanJoinedRow(c.rows) }
func (c *cursorSource) err() error               { return c.rows.Err() }
func (c *cursorSource) close() error             { return c.rows.Close() }

// bufferedSource replays raw driver values captured by readBuffered and
// decodes each row against joinedColumns.
type bufferedSource struct {
	rows [][]any
	pos  int
}

func (b *bufferedSource) next() bool {
	if b.pos >= len(b.rows) {
		return false
	}
	b.pos++
	return true
}

func (b *bufferedSource) row() (*joinedRow, error) {
	return decodeBuffered(b.rows[b.pos-1])
}

func (b *bufferedSource) err() error { return nil }

func (b *bufferedSource) close() error {
	b.rows = nil
	return nil
}

// readBuffered runs the query to completion and keeps the raw values.
func readBuffered(ctx context.Context, db executor) ([][]any, error) {
	rows, err := db.QueryContext(ctx, occurrencesWithPricesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(joinedColumns))
		dest := make([]any, len(vals))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeBuffered converts one buffered row using the declared column types.
// Version columns go through model.RowVersion.Scan, which rejects NULL.
func decodeBuffered(vals []any) (*joinedRow, error) {
	if len(vals) != len(joinedColumns) {
		return nil, fmt.Errorf("buffered row has %d columns, want %d", len(vals), len(joinedColumns))
	}

	var (
		ints     [2]sql.NullInt64
		texts    [2]sql.NullString
		versions [2]model.RowVersion
		value    apd.NullDecimal
	)
	var ni, nt, nv int
	for i, kind := range joinedColumns {
		var err error
		switch kind {
		case columnInt:
			err = ints[ni].Scan(vals[i])
			ni++
		case columnText:
			err = texts[nt].Scan(vals[i])
			nt++
		case columnDecimal:
			err = value.Scan(vals[i])
		case columnVersion:
			err = versions[nv].Scan(vals[i])
			nv++
		}
		if err != nil {
			return nil, fmt.Errorf("decode column %d: %w", i, err)
		}
	}

	return &joinedRow{
		id:                int(ints[0].Int64),
		title:             texts[0].String,
		timestamp:         versions[0],
		priceOccurrenceID: ints[1],
		currency:          texts[1],
		value:             value,
		priceTimestamp:    versions[1],
	}, nil
}

// occurrenceStream is a pull-based stream over joined rows. Its states are
// not started, enumerating, exhausted and failed; a failure is sticky.
type occurrenceStream struct {
	src     rowSource
	builder includeBuilder
	cur     *model.Occurrence
	err     error
	done    bool
}

// Compile-time check that occurrenceStream implements store.OccurrenceStream.
var _ store.OccurrenceStream = (*occurrenceStream)(nil)

// attemptFunc runs op as one unit of work against a live executor.
type attemptFunc func(ctx context.Context, op func(ctx context.Context, db executor) error) error

// openStream opens a stream over occurrencesWithPricesSQL. A strategy that
// retries on failure cannot restart a live cursor, so when retries is set
// the result set is buffered inside attempt and decoded lazily afterwards.
func openStream(ctx context.Context, retries bool, attempt attemptFunc) (store.OccurrenceStream, error) {
	if retries {
		var buf [][]any
		err := attempt(ctx, func(ctx context.Context, db executor) error {
			var err error
			buf, err = readBuffered(ctx, db)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("stream occurrences: %w", err)
		}
		return &occurrenceStream{src: &bufferedSource{rows: buf}}, nil
	}

	var rows *sql.Rows
	err := attempt(ctx, func(ctx context.Context, db executor) error {
		var err error
		rows, err = db.QueryContext(ctx, occurrencesWithPricesSQL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stream occurrences: %w", err)
	}
	return &occurrenceStream{src: &cursorSource{rows: rows}}, nil
}

// Next advances to the next occurrence. An occurrence is complete once a row
// for a different occurrence arrives or the rows run out.
func (s *occurrenceStream) Next(ctx context.Context) bool {
	if s.err != nil || s.done || s.src == nil {
		return false
	}

	for {
		if err := ctx.Err(); err != nil {
			s.fail(err)
			return false
		}
		if !s.src.next() {
			break
		}
		r, err := s.src.row()
		if err != nil {
			s.fail(err)
			return false
		}
		if done := s.builder.add(r); done != nil {
			s.cur = done
			return true
		}
	}
	if err := s.src.err(); err != nil {
		s.fail(err)
		return false
	}

	s.done = true
	s.cur = s.builder.flush()
	s.close()
	return s.cur != nil
}

// Occurrence returns the occurrence produced by the last successful Next.
func (s *occurrenceStream) Occurrence() *model.Occurrence {
	return s.cur
}

// Err returns the error that stopped the stream, if any.
func (s *occurrenceStream) Err() error {
	return s.err
}

// Close releases the cursor. It is safe to call more than once.
func (s *occurrenceStream) Close() error {
	s.cur = nil
	return s.close()
}

func (s *occurrenceStream) fail(err error) {
	s.err = fmt.Errorf("stream occurrences: %w", err)
	s.cur = nil
	s.close()
}

func (s *occurrenceStream) close() error {
	if s.src == nil {
		return nil
	}
	err := s.src.close()
	s.src = nil
	return err
}
