// Package sync exports occurrences as JSONL to one or more destinations,
// once or on a fixed interval.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/occurrences/internal/store"
)

// Destination is the interface for an export target (S3, file, stdout).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic exports to one or more destinations. Each export
// uses its own session.
type Scheduler struct {
	sessions     store.Sessions
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports to the given destinations at
// the specified interval.
func NewScheduler(src store.Sessions, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sessions:     src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic export. It runs an initial export immediately, then
// on each tick.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("export failed", "err", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("export failed", "err", err)
			}
		}
	}
}

// RunOnce exports once and writes the payload to every destination. A
// failing destination does not stop the others; all failures are returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var buf bytes.Buffer
	err := store.WithSession(ctx, s.sessions, func(st store.Store) error {
		return ExportJSONL(ctx, st, &buf)
	})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()

	var errs []error
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("export destination write failed", "destination", i, "err", err)
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}

	s.logger.Info("export completed", "destinations", len(s.destinations), "bytes", len(data))
	return errors.Join(errs...)
}
