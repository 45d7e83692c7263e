package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/occurrences/internal/model"
	"github.com/alfredjeanlab/occurrences/internal/store"
)

// occurrencesWithPricesSQL selects every occurrence with its prices outer
// joined. Column order must match joinedColumns.
const occurrencesWithPricesSQL = `SELECT o."Id", o."Title", o."Timestamp",
	p."OccurrenceId", p."Currency", p."Value", p."Timestamp"
	FROM "Occurrence" AS o
	LEFT JOIN "Price" AS p ON o."Id" = p."OccurrenceId"
	ORDER BY o."Id", p."Currency"`

// executor is the interface satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCountOccurrences(ctx context.Context, db executor) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM "Occurrence"`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count occurrences: %w", err)
	}
	return n, nil
}

// queryCreateOccurrence inserts o and reads back the identity and the
// storage-assigned version token.
func queryCreateOccurrence(ctx context.Context, db executor, o *model.Occurrence) error {
	row := db.QueryRowContext(ctx,
		`INSERT INTO "Occurrence" ("Title") VALUES ($1) RETURNING "Id", "Timestamp"`,
		o.Title,
	)
	if err := row.Scan(&o.ID, &o.Timestamp); err != nil {
		return fmt.Errorf("insert occurrence: %w", err)
	}
	if o.Prices == nil {
		o.Prices = []*model.Price{}
	}
	return nil
}

func queryGetOccurrence(ctx context.Context, db executor, id int) (*model.Occurrence, error) {
	rows, err := db.QueryContext(ctx, `SELECT o."Id", o."Title", o."Timestamp",
		p."OccurrenceId", p."Currency", p."Value", p."Timestamp"
		FROM "Occurrence" AS o
		LEFT JOIN "Price" AS p ON o."Id" = p."OccurrenceId"
		WHERE o."Id" = $1
		ORDER BY p."Currency"`, id)
	if err != nil {
		return nil, fmt.Errorf("get occurrence %d: %w", id, err)
	}
	defer rows.Close()

	out, err := collectOccurrences(rows)
	if err != nil {
		return nil, fmt.Errorf("get occurrence %d: %w", id, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("occurrence %d: %w", id, store.ErrNotFound)
	}
	return out[0], nil
}

// queryUpdateOccurrence writes o only if its version token still matches the
// stored one, then reads back the new token.
func queryUpdateOccurrence(ctx context.Context, db executor, o *model.Occurrence) error {
	row := db.QueryRowContext(ctx,
		`UPDATE "Occurrence" SET "Title" = $1 WHERE "Id" = $2 AND "Timestamp" = $3 RETURNING "Timestamp"`,
		o.Title, o.ID, []byte(o.Timestamp),
	)
	var token model.RowVersion
	if err := row.Scan(&token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update occurrence %d: %w", o.ID, store.ErrConcurrencyConflict)
		}
		return fmt.Errorf("update occurrence %d: %w", o.ID, err)
	}
	o.Timestamp = token
	return nil
}

func queryAddPrice(ctx context.Context, db executor, p *model.Price) error {
	row := db.QueryRowContext(ctx,
		`INSERT INTO "Price" ("OccurrenceId", "Currency", "Value") VALUES ($1, $2, $3) RETURNING "Timestamp"`,
		p.OccurrenceID, p.Currency, p.Value.String(),
	)
	if err := row.Scan(&p.Timestamp); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case "23503":
				return fmt.Errorf("add price: occurrence %d: %w", p.OccurrenceID, store.ErrNotFound)
			case "23505":
				return fmt.Errorf("add price %s for occurrence %d: %w", p.Currency, p.OccurrenceID, store.ErrAlreadyExists)
			}
		}
		return fmt.Errorf("add price: %w", err)
	}
	return nil
}

func queryListOccurrencesWithPrices(ctx context.Context, db executor) ([]*model.Occurrence, error) {
	rows, err := db.QueryContext(ctx, occurrencesWithPricesSQL)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	out, err := collectOccurrences(rows)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	return out, nil
}

// collectOccurrences groups joined rows into occurrences. Rows for one
// occurrence must be adjacent.
func collectOccurrences(rows *sql.Rows) ([]*model.Occurrence, error) {
	out := []*model.Occurrence{}
	var b includeBuilder
	for rows.Next() {
		r, err := scanJoinedRow(rows)
		if err != nil {
			return nil, err
		}
		if done := b.add(r); done != nil {
			out = append(out, done)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if last := b.flush(); last != nil {
		out = append(out, last)
	}
	return out, nil
}
