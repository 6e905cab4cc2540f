// Package flock provides an advisory file lock guarding a graph
// directory against concurrent writers from other processes.
package flock

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lock is a held advisory lock. Release it with Release.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive advisory lock on path, creating the file
// if needed. It blocks until the lock is available.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // G304: Path is configurable
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	return &Lock{f: f}, nil
}

// Release drops the lock. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l.f == nil {
		return nil
	}

	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil

	return err
}
