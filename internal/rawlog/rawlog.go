// Package rawlog provides daily-rotated, gzip-archived output files for
// BaseStation and raw frame logs.
package rawlog

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Rotator appends to a dated log file and rotates it at midnight UTC,
// compressing the previous day's file in the background.
type Rotator struct {
	dir    string
	prefix string
	logger *logrus.Logger

	mu          sync.RWMutex
	currentFile *os.File
	currentDate string

	// injectable for tests
	now func() time.Time
}

// NewRotator opens today's log file under dir. Files are named
// "<prefix>_YYYY-MM-DD.log".
func NewRotator(dir, prefix string, logger *logrus.Logger) (*Rotator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	r := &Rotator{
		dir:    dir,
		prefix: prefix,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := r.rotate(); err != nil {
		return nil, fmt.Errorf("open initial log file: %w", err)
	}
	return r, nil
}

// Run checks once a minute whether the date has changed and rotates when
// it has. It returns when ctx is cancelled.
func (r *Rotator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkRotation()
		}
	}
}

func (r *Rotator) checkRotation() {
	today := r.now().Format("2006-01-02")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentDate == today {
		return
	}
	r.logger.WithFields(logrus.Fields{
		"old_date": r.currentDate,
		"new_date": today,
	}).Info("rotating log file")

	if err := r.rotate(); err != nil {
		r.logger.WithError(err).Error("log rotation failed")
	}
}

// rotate must be called with mu held (or before the rotator is shared).
func (r *Rotator) rotate() error {
	today := r.now().Format("2006-01-02")

	if r.currentFile != nil {
		oldDate := r.currentDate
		if err := r.currentFile.Close(); err != nil {
			r.logger.WithError(err).Error("failed to close old log file")
		}
		go r.compress(oldDate)
	}

	path := r.filePath(today)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}

	r.currentFile = f
	r.currentDate = today
	r.logger.WithField("file", path).Info("opened log file")
	return nil
}

func (r *Rotator) filePath(date string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_%s.log", r.prefix, date))
}

func (r *Rotator) compress(date string) {
	src := r.filePath(date)
	dst := src + ".gz"

	in, err := os.Open(src)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.WithError(err).WithField("file", src).Error("failed to open log for compression")
		}
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		r.logger.WithError(err).WithField("file", dst).Error("failed to create gzip file")
		return
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(src)
	gz.ModTime = r.now()

	if _, err := io.Copy(gz, in); err != nil {
		r.logger.WithError(err).Error("failed to compress log file")
		return
	}
	if err := gz.Close(); err != nil {
		r.logger.WithError(err).Error("failed to flush gzip stream")
		return
	}
	_ = in.Close()

	if err := os.Remove(src); err != nil {
		r.logger.WithError(err).WithField("file", src).Error("failed to remove compressed source")
		return
	}
	r.logger.WithField("file", dst).Info("compressed log file")
}

// GetWriter returns the current day's file.
func (r *Rotator) GetWriter() (io.Writer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.currentFile == nil {
		return nil, fmt.Errorf("no open log file")
	}
	return r.currentFile, nil
}

// CurrentPath returns the path of the file currently being written.
func (r *Rotator) CurrentPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.currentDate == "" {
		return ""
	}
	return r.filePath(r.currentDate)
}

// Files lists all log files for this prefix, compressed ones included.
func (r *Rotator) Files() ([]string, error) {
	return filepath.Glob(filepath.Join(r.dir, r.prefix+"_*.log*"))
}

// CleanupOld removes files older than maxDays, skipping the active file.
func (r *Rotator) CleanupOld(maxDays int) error {
	if maxDays <= 0 {
		return fmt.Errorf("maxDays must be positive")
	}

	files, err := r.Files()
	if err != nil {
		return fmt.Errorf("list log files: %w", err)
	}

	cutoff := r.now().AddDate(0, 0, -maxDays)
	current := r.CurrentPath()

	for _, file := range files {
		if file == current {
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err != nil {
				r.logger.WithError(err).WithField("file", file).Error("failed to remove old log file")
				continue
			}
			r.logger.WithField("file", file).Info("removed old log file")
		}
	}
	return nil
}

// Close closes the current file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFile == nil {
		return nil
	}
	err := r.currentFile.Close()
	r.currentFile = nil
	return err
}
