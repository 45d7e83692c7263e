package sync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// mockDestination records calls to Write.
type mockDestination struct {
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	ms := seedStore(t, 2)
	dest := &mockDestination{}

	sched := NewScheduler(ms, []Destination{dest}, 50*time.Millisecond, testLogger())
	sched.Start(context.Background())

	// Wait for at least the initial export + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}
	// 1 header + 2 occurrences
	if lines := nonEmptyLines(string(data)); len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if open := ms.OpenSessions(); open != 0 {
		t.Errorf("%d sessions left open", open)
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(seedStore(t, 0), nil, time.Minute, testLogger())
	sched.Stop()
}

func TestRunOnce_MultipleDestinations(t *testing.T) {
	failing := &mockDestination{err: errors.New("bucket gone")}
	ok := &mockDestination{}

	sched := NewScheduler(seedStore(t, 1), []Destination{failing, ok}, time.Minute, testLogger())
	err := sched.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error from failing destination")
	}
	if ok.writes.Load() != 1 {
		t.Fatal("healthy destination should still be written")
	}
}

func TestFileDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "export.jsonl")
	dest := &FileDestination{Path: path}

	for _, payload := range []string{"first\n", "second\n"} {
		if err := dest.Write(context.Background(), []byte(payload)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "second\n" {
		t.Errorf("file = %q, want last payload", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the export file, found %d entries", len(entries))
	}
}
