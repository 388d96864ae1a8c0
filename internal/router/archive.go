package router

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ognpipe/ognpipe/pkg/logger"
)

// Archive appends raw message lines to a daily log file. On the first write
// of a new day the previous day's file is compressed to .log.zst in the
// background and removed.
type Archive struct {
	dir string
	log *logger.Logger

	mu          sync.Mutex
	file        *os.File
	currentDate string
}

// NewArchive creates the archive directory if needed.
func NewArchive(dir string, log *logger.Logger) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &Archive{dir: dir, log: log.Named("archive")}, nil
}

// Write appends one raw line. Archive failures are logged, never returned:
// losing an archive line must not drop the packet.
func (a *Archive) Write(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	date := time.Now().UTC().Format("2006-01-02")
	if a.file == nil || date != a.currentDate {
		if err := a.rotateLocked(date); err != nil {
			a.log.Warn("Archive rotation failed", logger.Error(err))
			return
		}
	}

	if _, err := a.file.WriteString(line + "\n"); err != nil {
		a.log.Warn("Archive write failed", logger.Error(err))
	}
}

func (a *Archive) rotateLocked(date string) error {
	if a.file != nil {
		a.file.Close()
		previous := filepath.Join(a.dir, a.currentDate+".log")
		go a.compress(previous)
	}

	path := filepath.Join(a.dir, date+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening archive file %s: %w", path, err)
	}
	a.file = f
	a.currentDate = date
	return nil
}

// compress writes <path>.zst and removes the original.
func (a *Archive) compress(path string) {
	in, err := os.Open(path)
	if err != nil {
		a.log.Warn("Cannot open archive file for compression", logger.Error(err))
		return
	}
	defer in.Close()

	out, err := os.Create(path + ".zst")
	if err != nil {
		a.log.Warn("Cannot create compressed archive", logger.Error(err))
		return
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out)
	if err != nil {
		a.log.Warn("Cannot create zstd writer", logger.Error(err))
		return
	}
	if _, err := enc.ReadFrom(in); err != nil {
		enc.Close()
		a.log.Warn("Archive compression failed", logger.String("file", path), logger.Error(err))
		return
	}
	if err := enc.Close(); err != nil {
		a.log.Warn("Archive compression failed", logger.String("file", path), logger.Error(err))
		return
	}

	if err := os.Remove(path); err != nil {
		a.log.Warn("Cannot remove archived file after compression", logger.Error(err))
		return
	}
	a.log.Info("Compressed archive file", logger.String("file", path+".zst"))
}

// Close flushes and closes the current day's file.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
