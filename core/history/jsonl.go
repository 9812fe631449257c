package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// JSONLStore stores entries in a JSONL file, one version per line.
type JSONLStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONLStore(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if cerr := f.Close(); cerr != nil {
		return nil, cerr
	}
	return &JSONLStore{path: path}, nil
}

func (s *JSONLStore) Append(_ context.Context, h model.ConflictResolutionHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return json.NewEncoder(f).Encode(h)
}

func (s *JSONLStore) Query(_ context.Context, q Query) ([]model.ConflictResolutionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, err := readJSONL(nil, s.path)
	if err != nil {
		return nil, err
	}
	return Latest(versions, q), nil
}

func (s *JSONLStore) Close() error { return nil }

// readJSONL appends the entries of path to dst. Malformed lines are skipped
// and a missing file reads as empty.
func readJSONL(dst []model.ConflictResolutionHistory, path string) ([]model.ConflictResolutionHistory, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dst, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var h model.ConflictResolutionHistory
		if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
			continue
		}
		dst = append(dst, h)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return dst, nil
}
