package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// RotatingJSONLStore stores entries in a JSONL file with automatic rotation.
type RotatingJSONLStore struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewRotatingJSONLStore creates a store with rotation options in megabytes and days.
func NewRotatingJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &RotatingJSONLStore{logger: lj, path: path}, nil
}

// Append writes the entry and triggers rotation if needed.
func (s *RotatingJSONLStore) Append(_ context.Context, h model.ConflictResolutionHistory) error {
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.logger.Write(append(b, '\n'))
	return err
}

// Query reads the rotated backups, oldest first, then the active file.
func (s *RotatingJSONLStore) Query(_ context.Context, q Query) ([]model.ConflictResolutionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files, err := s.backups()
	if err != nil {
		return nil, err
	}
	var versions []model.ConflictResolutionHistory
	for _, f := range append(files, s.path) {
		if versions, err = readJSONL(versions, f); err != nil {
			return nil, err
		}
	}
	return Latest(versions, q), nil
}

// backups lists lumberjack backups of the active file. Their names embed a
// sortable timestamp: history-2006-01-02T15-04-05.000.jsonl.
func (s *RotatingJSONLStore) backups() ([]string, error) {
	ext := filepath.Ext(s.path)
	prefix := strings.TrimSuffix(s.path, ext) + "-"
	files, err := filepath.Glob(prefix + "*" + ext)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Close closes the underlying writer.
func (s *RotatingJSONLStore) Close() error {
	return s.logger.Close()
}
