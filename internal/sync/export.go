package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/occurrences/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version         string    `json:"version"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	OccurrenceCount int       `json:"occurrence_count"`
	PriceCount      int       `json:"price_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every occurrence, with its prices embedded, as JSONL to
// w. Occurrences are sorted by id.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	occs, err := s.ListOccurrencesWithPrices(ctx)
	if err != nil {
		return fmt.Errorf("list occurrences: %w", err)
	}
	sort.Slice(occs, func(i, j int) bool {
		return occs[i].ID < occs[j].ID
	})

	var prices int
	for _, o := range occs {
		prices += len(o.Prices)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:         "1",
		Type:            "header",
		Timestamp:       time.Now().UTC(),
		OccurrenceCount: len(occs),
		PriceCount:      prices,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, o := range occs {
		if err := enc.Encode(record{Type: "occurrence", Data: o}); err != nil {
			return fmt.Errorf("encode occurrence %d: %w", o.ID, err)
		}
	}
	return nil
}
