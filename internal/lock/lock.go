// Package lock prevents two copies of the same process from running at
// once. A second instance would double-process feeds and corrupt flight
// state, so failing to acquire the lock is fatal at startup.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ognpipe/ognpipe/pkg/logger"
)

// InstanceLock holds an exclusive flock on a named lock file for the
// process lifetime.
type InstanceLock struct {
	file *os.File
	path string
	log  *logger.Logger
}

// Acquire takes a non-blocking exclusive lock named after the process role
// (e.g. "ognpipe-router"). It fails immediately when another instance holds
// the lock.
func Acquire(name string, log *logger.Logger) (*InstanceLock, error) {
	path := lockPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("another instance is already running (lock file %s)", path)
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}

	// Record the holder's pid for operators; truncation failures are moot.
	file.Truncate(0)
	fmt.Fprintf(file, "%d\n", os.Getpid())
	file.Sync()

	lockLogger := log.Named("lock")
	lockLogger.Debug("Instance lock acquired", logger.String("path", path))
	return &InstanceLock{file: file, path: path, log: lockLogger}, nil
}

// Release drops the lock and removes the file.
func (l *InstanceLock) Release() {
	if l.file == nil {
		return
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
	os.Remove(l.path)
	l.log.Debug("Instance lock released", logger.String("path", l.path))
}

// lockPath places locks under XDG_RUNTIME_DIR when available, otherwise the
// system temp directory.
func lockPath(name string) string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, name+".lock")
	}
	return filepath.Join(os.TempDir(), name+".lock")
}
