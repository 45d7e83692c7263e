package postgres

import (
	"database/sql"

	"github.com/cockroachdb/apd/v3"

	"github.com/alfredjeanlab/occurrences/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// joinedRow is one row of occurrencesWithPricesSQL. The price columns are
// NULL when the occurrence has no prices.
type joinedRow struct {
	id        int
	title     string
	timestamp model.RowVersion

	priceOccurrenceID sql.NullInt64
	currency          sql.NullString
	value             apd.NullDecimal
	priceTimestamp    []byte
}

// scanJoinedRow scans a joined row using nullable holders for the price side.
func scanJoinedRow(row scannable) (*joinedRow, error) {
	var r joinedRow
	err := row.Scan(
		&r.id,
		&r.title,
		&r.timestamp,
		&r.priceOccurrenceID,
		&r.currency,
		&r.value,
		&r.priceTimestamp,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// price returns the price half of the row, or nil when the outer join found
// no match.
func (r *joinedRow) price() *model.Price {
	if !r.priceOccurrenceID.Valid {
		return nil
	}
	p := &model.Price{
		OccurrenceID: int(r.priceOccurrenceID.Int64),
		Currency:     r.currency.String,
		Timestamp:    model.RowVersion(r.priceTimestamp),
	}
	if r.value.Valid {
		p.Value.Set(&r.value.Decimal)
	}
	return p
}

// includeBuilder folds consecutive joined rows into occurrences with their
// prices attached.
type includeBuilder struct {
	cur *model.Occurrence
}

// add consumes r and returns the previous occurrence once r starts a new one.
func (b *includeBuilder) add(r *joinedRow) *model.Occurrence {
	var done *model.Occurrence
	if b.cur == nil || b.cur.ID != r.id {
		done = b.cur
		b.cur = &model.Occurrence{
			ID:        r.id,
			Title:     r.title,
			Timestamp: r.timestamp,
			Prices:    []*model.Price{},
		}
	}
	if p := r.price(); p != nil {
		b.cur.AttachPrice(p)
	}
	return done
}

// flush returns the occurrence still being built, if any.
func (b *includeBuilder) flush() *model.Occurrence {
	done := b.cur
	b.cur = nil
	return done
}
