// Package lockfile provides the advisory lock that keeps a queue file
// down to one consuming process. Producers append freely; only the
// poller side takes the lock.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrAlreadyLocked indicates another process is consuming the queue.
var ErrAlreadyLocked = errors.New("lock already held")

type Lock struct {
	path string
	f    *os.File
}

// ForQueue derives the lock path used to guard a queue file.
func ForQueue(queuePath string) string {
	return queuePath + ".lock"
}

// Acquire takes a non-blocking exclusive lock at path, creating the
// file if needed. It returns ErrAlreadyLocked when another process
// holds it.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	// Best-effort: record who holds the lock for troubleshooting.
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_ = f.Sync()

	return &Lock{path: path, f: f}, nil
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	// Unlock first; close always.
	unlockErr := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
