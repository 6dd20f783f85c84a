package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/jmylchreest/tsb/internal/observability"
)

// FileStore keeps one file per fragment inside a sandboxed session directory.
type FileStore struct {
	sandbox    *Sandbox
	quota      *quota
	minFreePct int
	logger     *slog.Logger

	mu     sync.RWMutex
	sizes  map[string]int64
	closed bool
}

// NewFileStore creates a file store at cfg.Location. Any content left in the
// location by an earlier run is removed.
func NewFileStore(cfg Config) (*FileStore, error) {
	if cfg.Location == "" {
		return nil, fmt.Errorf("file store requires a location")
	}
	sb, err := NewSandbox(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("opening file store: %w", err)
	}
	if err := sb.Clear(); err != nil {
		return nil, fmt.Errorf("clearing file store: %w", err)
	}

	logger := observability.WithComponent(observability.OrDefault(cfg.Logger), "file_store")
	logger.Info("file store opened",
		slog.String("location", sb.BaseDir()),
		slog.Int64("max_capacity", cfg.MaxCapacity),
		slog.Int("min_free_percentage", cfg.MinFreePercentage),
	)

	return &FileStore{
		sandbox:    sb,
		quota:      newQuota(cfg.MaxCapacity),
		minFreePct: cfg.MinFreePercentage,
		logger:     logger,
		sizes:      make(map[string]int64),
	}, nil
}

// keyPath maps a fragment key onto a fan-out path below the sandbox.
func keyPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(name[:2], name+".frag")
}

// Size returns the stored length of key.
func (s *FileStore) Size(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	size, ok := s.sizes[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return size, nil
}

// Read copies the fragment stored under key into buf.
func (s *FileStore) Read(key string, buf []byte) (int, error) {
	s.mu.RLock()
	closed := s.closed
	_, ok := s.sizes[key]
	s.mu.RUnlock()
	if closed {
		return 0, ErrClosed
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	n, err := s.sandbox.ReadInto(keyPath(key), buf)
	if err != nil {
		return n, fmt.Errorf("reading %s: %w", key, err)
	}
	return n, nil
}

// Write stores data under key. It returns ErrAlreadyExists when the key is
// present and ErrNoSpace when the capacity or free space budget is exhausted.
func (s *FileStore) Write(key string, data []byte) error {
	size := int64(len(data))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.sizes[key]; ok {
		s.mu.Unlock()
		return ErrAlreadyExists
	}
	if err := s.quota.reserve(size); err != nil {
		s.mu.Unlock()
		return err
	}
	// Claim the key so a concurrent write of the same key reports a duplicate.
	s.sizes[key] = size
	s.mu.Unlock()

	err := checkFreeSpace(context.Background(), s.sandbox.BaseDir(), s.minFreePct, size)
	if err == nil {
		err = s.sandbox.AtomicWrite(keyPath(key), data)
		if errors.Is(err, syscall.ENOSPC) {
			err = fmt.Errorf("%w: %w", ErrNoSpace, err)
		}
	}
	if err != nil {
		s.mu.Lock()
		delete(s.sizes, key)
		s.mu.Unlock()
		s.quota.release(size)
		return err
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	size, ok := s.sizes[key]
	delete(s.sizes, key)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	s.quota.release(size)

	if err := s.sandbox.Remove(keyPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Flush removes every fragment and the session directory, then closes the store.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	count := len(s.sizes)
	s.sizes = make(map[string]int64)
	s.quota.reset()

	if err := s.sandbox.Destroy(); err != nil {
		return fmt.Errorf("flushing file store: %w", err)
	}
	s.logger.Info("file store flushed", slog.Int("fragments", count))
	return nil
}

// Used returns the payload bytes currently stored.
func (s *FileStore) Used() int64 {
	return s.quota.Used()
}
