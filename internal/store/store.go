package store

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/alfredjeanlab/occurrences/internal/model"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a key is already taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConcurrencyConflict is returned when an update's version token no
	// longer matches the stored row.
	ErrConcurrencyConflict = errors.New("row was modified since it was read")
)

// Store is one database session. A Store must not be shared between steps;
// acquire a fresh one with WithSession.
type Store interface {
	// Occurrences
	CountOccurrences(ctx context.Context) (int, error)
	CreateOccurrence(ctx context.Context, o *model.Occurrence) error
	GetOccurrence(ctx context.Context, id int) (*model.Occurrence, error)
	UpdateOccurrence(ctx context.Context, o *model.Occurrence) error

	// Prices
	AddPrice(ctx context.Context, p *model.Price) error

	// Occurrences with their prices outer-joined, ordered by id.
	ListOccurrencesWithPrices(ctx context.Context) ([]*model.Occurrence, error)
	StreamOccurrencesWithPrices(ctx context.Context) (OccurrenceStream, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

// Sessions hands out database sessions.
type Sessions interface {
	Session(ctx context.Context) (Store, error)
}

// OccurrenceStream is a pull-based sequence of occurrences read lazily from
// storage. Next may block on I/O. Once Next returns false, Err reports why;
// an error is permanent and the stream never restarts.
type OccurrenceStream interface {
	Next(ctx context.Context) bool
	Occurrence() *model.Occurrence
	Err() error
	Close() error
}

// WithSession acquires a session, runs fn, and releases the session on every
// exit path.
func WithSession(ctx context.Context, src Sessions, fn func(s Store) error) (err error) {
	s, err := src.Session(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
	}()
	return fn(s)
}

// All adapts a stream for range-over-func. A stream error is yielded once,
// as the final pair, with a nil occurrence. All does not close the stream.
func All(ctx context.Context, s OccurrenceStream) iter.Seq2[*model.Occurrence, error] {
	return func(yield func(*model.Occurrence, error) bool) {
		for s.Next(ctx) {
			if !yield(s.Occurrence(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(nil, err)
		}
	}
}
