package model

import (
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// MaxTitleLength is the width of the Occurrence.Title column.
const MaxTitleLength = 80

// Occurrence is a titled event that owns zero or more prices.
type Occurrence struct {
	ID        int        `json:"id"`
	Title     string     `json:"title"`
	Timestamp RowVersion `json:"timestamp"`
	Prices    []*Price   `json:"prices"`
}

// AttachPrice appends p to the occurrence and points its back-reference and
// foreign key at o.
func (o *Occurrence) AttachPrice(p *Price) {
	p.OccurrenceID = o.ID
	p.Occurrence = o
	o.Prices = append(o.Prices, p)
}

// Price is the value of an occurrence in a single currency.
// The key is (OccurrenceID, Currency).
type Price struct {
	OccurrenceID int         `json:"occurrence_id"`
	Currency     string      `json:"currency"`
	Value        apd.Decimal `json:"value"`
	Timestamp    RowVersion  `json:"timestamp"`

	// Occurrence is the owning occurrence when the price was loaded through
	// it. It is a convenience back-reference and is never serialized.
	Occurrence *Occurrence `json:"-"`
}

// NormalizeCurrency trims and upper-cases a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
