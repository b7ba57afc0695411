package signature

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// FileName is the index file kept in the store's persist directory.
const FileName = "doc_hash_index.json"

var (
	// ErrCorruptIndex is returned when the index file exists but cannot be parsed.
	ErrCorruptIndex = errors.New("signature index is corrupt")

	// ErrPersist is returned when the index cannot be written.
	ErrPersist = errors.New("failed to persist signature index")
)

// Record identifies where an indexed chunk came from.
type Record struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
}

// Index is the persisted set of signatures already present in the store.
//
// The file is read on first use and cached. Callers that need
// check-then-insert atomicity must serialise around the index themselves;
// the internal lock only protects the map. Commits from several processes
// sharing one directory are merged under an advisory lock on a sibling
// ".lock" file.
type Index struct {
	path   string
	lock   *flock.Flock
	logger *zap.Logger

	mu      sync.RWMutex
	loaded  bool
	records map[string]Record
}

// NewIndex returns an index backed by FileName in dir. Nothing is read until
// the index is first used.
func NewIndex(dir string, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := filepath.Join(dir, FileName)
	return &Index{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}
}

// Path returns the index file location.
func (x *Index) Path() string {
	return x.path
}

// Load reads the index file if it has not been read yet. A missing file is an
// empty index.
func (x *Index) Load() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.loadLocked()
}

func (x *Index) loadLocked() error {
	if x.loaded {
		return nil
	}

	records, err := readRecords(x.path)
	if err != nil {
		return err
	}
	if records == nil {
		x.records = make(map[string]Record)
		x.loaded = true
		x.logger.Info("signature index not found, starting empty", zap.String("path", x.path))
		return nil
	}

	x.records = records
	x.loaded = true
	x.logger.Info("signature index loaded",
		zap.String("path", x.path),
		zap.Int("signatures", len(records)),
	)
	return nil
}

// readRecords parses the index file at path. A missing file returns nil
// records and no error.
func readRecords(path string) (map[string]Record, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read signature index: %w", err)
	}

	records := make(map[string]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptIndex, path, err)
	}
	return records, nil
}

// Contains reports whether sig is indexed.
func (x *Index) Contains(sig string) (bool, error) {
	if err := x.Load(); err != nil {
		return false, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.records[sig]
	return ok, nil
}

// Len returns the number of indexed signatures.
func (x *Index) Len() (int, error) {
	if err := x.Load(); err != nil {
		return 0, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records), nil
}

// Get returns the record for sig.
func (x *Index) Get(sig string) (Record, bool, error) {
	if err := x.Load(); err != nil {
		return Record{}, false, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	r, ok := x.records[sig]
	return r, ok, nil
}

// Commit adds records to the in-memory index and writes the file. The
// in-memory records are kept even if the write fails, since they describe
// data already present in the store.
func (x *Index) Commit(records map[string]Record) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.loadLocked(); err != nil {
		return err
	}
	for sig, r := range records {
		x.records[sig] = r
	}
	return x.saveLocked()
}

// saveLocked holds the file lock while it merges signatures written by other
// processes into memory and writes the union atomically: a temp file in the
// same directory is renamed over the target.
func (x *Index) saveLocked() error {
	dir := filepath.Dir(x.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	if err := x.lock.Lock(); err != nil {
		return fmt.Errorf("%w: lock %s: %v", ErrPersist, x.lock.Path(), err)
	}
	defer func() {
		if err := x.lock.Unlock(); err != nil {
			x.logger.Warn("failed to release signature index lock", zap.Error(err))
		}
	}()

	onDisk, err := readRecords(x.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	merged := 0
	for sig, r := range onDisk {
		if _, ok := x.records[sig]; !ok {
			x.records[sig] = r
			merged++
		}
	}
	if merged > 0 {
		x.logger.Debug("merged signatures committed elsewhere",
			zap.String("path", x.path),
			zap.Int("signatures", merged),
		)
	}

	data, err := json.MarshalIndent(x.records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := os.Rename(tmpPath, x.path); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
