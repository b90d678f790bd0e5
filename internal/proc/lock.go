package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// Lock is an OS-level exclusive lock held for the process lifetime. Unlike a
// plain PID file, a second instance fails to acquire it even after an
// unclean shutdown of the first.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lock, writing the current PID into the locked
// file for operator visibility. It fails immediately when another process
// holds the lock.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("proc: create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("proc: open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("proc: another instance is already running (lock %s)", path)
		}
		return nil, fmt.Errorf("proc: acquire lock: %w", err)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	return &Lock{file: f, path: path}, nil
}

// Release drops the lock and removes the file, best-effort.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	_ = os.Remove(l.path)
	if err != nil {
		return fmt.Errorf("proc: unlock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("proc: close lock file: %w", closeErr)
	}
	return nil
}
