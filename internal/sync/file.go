package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriterDestination writes each payload to w, e.g. os.Stdout.
type WriterDestination struct {
	W io.Writer
}

func (d *WriterDestination) Write(_ context.Context, data []byte) error {
	_, err := d.W.Write(data)
	return err
}

// FileDestination replaces a local file with each payload. The file is
// written next to its final path and renamed into place.
type FileDestination struct {
	Path string
}

func (d *FileDestination) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(d.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(d.Path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), d.Path); err != nil {
		return fmt.Errorf("rename to %s: %w", d.Path, err)
	}
	return nil
}
