// Package repro runs the occurrence scenario: seed the table, then read every
// occurrence with its prices twice, once materialized and once as a stream.
// Each step runs in its own session.
package repro

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/alfredjeanlab/occurrences/internal/events"
	"github.com/alfredjeanlab/occurrences/internal/model"
	"github.com/alfredjeanlab/occurrences/internal/store"
	"github.com/alfredjeanlab/occurrences/internal/ui"
)

// SeedCount is the number of occurrences inserted into an empty table.
const SeedCount = 10

// Runner holds everything the scenario steps need.
type Runner struct {
	Sessions  store.Sessions
	Publisher events.Publisher
	Out       io.Writer
	Styles    ui.Styles
	Logger    *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run seeds, prints all occurrences synchronously, then prints them again
// through a lazy stream. It stops at the first failing step.
func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.Seed(ctx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if err := r.PrintAll(ctx); err != nil {
		return fmt.Errorf("read occurrences: %w", err)
	}
	if err := r.PrintStream(ctx); err != nil {
		return fmt.Errorf("stream occurrences: %w", err)
	}
	return nil
}

// Seed inserts "Test 0".."Test 9" in one transaction if there are no
// occurrences yet, and returns what it inserted. Created events are
// published after the commit.
func (r *Runner) Seed(ctx context.Context) ([]*model.Occurrence, error) {
	var created []*model.Occurrence
	err := store.WithSession(ctx, r.Sessions, func(s store.Store) error {
		return s.RunInTransaction(ctx, func(tx store.Store) error {
			created = nil
			n, err := tx.CountOccurrences(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				return nil
			}
			for i := range SeedCount {
				o := &model.Occurrence{Title: fmt.Sprintf("Test %d", i)}
				if err := tx.CreateOccurrence(ctx, o); err != nil {
					return err
				}
				created = append(created, o)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if len(created) == 0 {
		r.logger().Info("occurrences already seeded")
		return nil, nil
	}
	r.logger().Info("seeded occurrences", "count", len(created))
	r.publishCreated(ctx, created)
	return created, nil
}

func (r *Runner) publishCreated(ctx context.Context, created []*model.Occurrence) {
	if r.Publisher == nil {
		return
	}
	for _, o := range created {
		if err := r.Publisher.Publish(ctx, events.TopicOccurrenceCreated, events.OccurrenceCreated{Occurrence: o}); err != nil {
			r.logger().Warn("publish occurrence created", "id", o.ID, "err", err)
		}
	}
}

// PrintAll reads every occurrence with prices in one materialized query and
// prints one line per occurrence.
func (r *Runner) PrintAll(ctx context.Context) error {
	return store.WithSession(ctx, r.Sessions, func(s store.Store) error {
		occs, err := s.ListOccurrencesWithPrices(ctx)
		if err != nil {
			return err
		}
		for _, o := range occs {
			if err := r.printOccurrence(o); err != nil {
				return err
			}
		}
		return nil
	})
}

// PrintStream prints the same lines as PrintAll, reading occurrences one at
// a time. Lines printed before a stream failure stay printed.
func (r *Runner) PrintStream(ctx context.Context) error {
	return store.WithSession(ctx, r.Sessions, func(s store.Store) error {
		st, err := s.StreamOccurrencesWithPrices(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		for o, err := range store.All(ctx, st) {
			if err != nil {
				return err
			}
			if err := r.printOccurrence(o); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Runner) printOccurrence(o *model.Occurrence) error {
	_, err := fmt.Fprintln(r.Out, r.Styles.TitleLine(o.Title, o.Timestamp.String()))
	return err
}
