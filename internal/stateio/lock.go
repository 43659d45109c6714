package stateio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock is a non-blocking advisory exclusive lock on a per-WAN/per-daemon
// lock file. Acquire failing means another daemon instance already holds
// it — the caller should log and exit, never block waiting for it.
type Lock struct {
	f *os.File
}

// Acquire opens (creating if needed) and flock(2)s path in non-blocking
// exclusive mode.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("stateio: open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("stateio: lock %s held by another process: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the underlying file descriptor.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
