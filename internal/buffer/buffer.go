// Package buffer spills samples the publisher could not deliver to disk so
// they survive a restart. Each spill is one timestamped JSON file; files are
// read back oldest first and removed once read.
package buffer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Guliveer/diamond-agent/internal/models"
)

const ext = ".json"

// Buffer is a directory of spilled batches.
type Buffer struct {
	dir       string
	maxSizeMB int
	logger    *zap.Logger
	mu        sync.Mutex
	seq       int
}

// New creates a buffer in dir, creating the directory if needed.
// A maxSizeMB of zero or less disables the size cap.
func New(dir string, maxSizeMB int, logger *zap.Logger) (*Buffer, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create buffer dir: %w", err)
	}
	return &Buffer{
		dir:       dir,
		maxSizeMB: maxSizeMB,
		logger:    logger.Named("buffer"),
	}, nil
}

// Spill writes samples to a new file. While the buffer is over its size
// cap the oldest files are dropped first.
func (b *Buffer) Spill(samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.maxSizeMB > 0 && b.currentSizeMB() >= b.maxSizeMB {
		if !b.dropOldest() {
			break
		}
	}

	data, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("marshal spill: %w", err)
	}

	b.seq++
	name := fmt.Sprintf("%s-%04d%s", time.Now().UTC().Format("20060102T150405.000"), b.seq, ext)
	if err := os.WriteFile(filepath.Join(b.dir, name), data, 0640); err != nil {
		return fmt.Errorf("write spill: %w", err)
	}
	b.logger.Info("Spilled unsent samples",
		zap.String("file", name),
		zap.Int("samples", len(samples)))
	return nil
}

// Restore reads every spilled file in chronological order, removes it and
// returns the samples concatenated oldest first. Corrupted files are
// removed and skipped.
func (b *Buffer) Restore() ([]models.Sample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	files, err := b.files()
	if err != nil {
		return nil, err
	}

	var restored []models.Sample
	for _, name := range files {
		path := filepath.Join(b.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("Failed to read buffer file",
				zap.String("file", path),
				zap.Error(err))
			continue
		}

		var batch []models.Sample
		if err := json.Unmarshal(data, &batch); err != nil {
			b.logger.Warn("Failed to parse buffer file, removing corrupted file",
				zap.String("file", path),
				zap.Error(err))
			os.Remove(path)
			continue
		}

		restored = append(restored, batch...)
		os.Remove(path)
	}
	return restored, nil
}

// Count returns the number of spilled files.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	files, err := b.files()
	if err != nil {
		return 0
	}
	return len(files)
}

// files lists spill files sorted by name, which sorts them by time.
// Must be called with b.mu held.
func (b *Buffer) files() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read buffer dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ext) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// currentSizeMB returns the total size of all buffer files in megabytes.
// Must be called with b.mu held.
func (b *Buffer) currentSizeMB() int {
	var total int64
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
	}
	return int(total / (1024 * 1024))
}

// dropOldest removes the oldest spill file and reports whether one was
// removed. Must be called with b.mu held.
func (b *Buffer) dropOldest() bool {
	files, err := b.files()
	if err != nil || len(files) == 0 {
		return false
	}
	path := filepath.Join(b.dir, files[0])
	b.logger.Warn("Buffer full, dropping oldest spill", zap.String("file", path))
	if err := os.Remove(path); err != nil {
		b.logger.Warn("Failed to remove oldest buffer file",
			zap.String("file", path),
			zap.Error(err))
		return false
	}
	return true
}
