// Package storage provides the durable fragment stores backing a time-shift
// buffer session. Stores are keyed by the fragment URL, bounded by a byte
// capacity and a minimum free disk percentage, and safe for concurrent access
// to distinct keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shirou/gopsutil/v4/disk"
)

// Sentinel errors returned by every Store implementation.
var (
	// ErrAlreadyExists is returned by Write when the key is already stored.
	ErrAlreadyExists = errors.New("fragment already exists")
	// ErrNoSpace is returned by Write when the capacity or free disk budget
	// would be exceeded.
	ErrNoSpace = errors.New("no space left for fragment")
	// ErrNotFound is returned when the key is not stored.
	ErrNotFound = errors.New("fragment not found")
	// ErrClosed is returned after Flush has released the store.
	ErrClosed = errors.New("store closed")
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config describes a session store.
type Config struct {
	Backend string
	// Location is the directory owned by the store. It is wiped on open.
	// An empty location with the badger backend runs badger in memory.
	Location string
	// MaxCapacity bounds the payload bytes held by the store (0 = unlimited).
	MaxCapacity int64
	// MinFreePercentage rejects writes that would leave less free space on
	// the filesystem holding Location.
	MinFreePercentage int
	Logger            *slog.Logger
}

// Store is the contract shared by all backends.
type Store interface {
	Size(key string) (int64, error)
	Read(key string, buf []byte) (int, error)
	Write(key string, data []byte) error
	Delete(key string) error
	Flush() error
}

// Open creates the store selected by cfg.Backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(cfg)
	case BackendBadger:
		return NewBadgerStore(cfg)
	case BackendMemory:
		return NewMemoryStore(cfg), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// quota tracks payload bytes against a capacity.
type quota struct {
	mu       sync.Mutex
	capacity int64
	used     int64
}

func newQuota(capacity int64) *quota {
	return &quota{capacity: capacity}
}

// reserve claims n bytes, failing with ErrNoSpace when over capacity.
func (q *quota) reserve(n int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && q.used+n > q.capacity {
		return fmt.Errorf("%w: %d of %d bytes used, %d requested", ErrNoSpace, q.used, q.capacity, n)
	}
	q.used += n
	return nil
}

func (q *quota) release(n int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.used -= n
	if q.used < 0 {
		q.used = 0
	}
}

func (q *quota) reset() {
	q.mu.Lock()
	q.used = 0
	q.mu.Unlock()
}

// Used returns the payload bytes currently accounted.
func (q *quota) Used() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// diskUsageFunc is swapped in tests.
var diskUsageFunc = disk.UsageWithContext

// checkFreeSpace fails with ErrNoSpace when writing incoming bytes under path
// would leave less than minFreePct percent of the filesystem free.
func checkFreeSpace(ctx context.Context, path string, minFreePct int, incoming int64) error {
	if minFreePct <= 0 || path == "" {
		return nil
	}
	usage, err := diskUsageFunc(ctx, path)
	if err != nil {
		// Unknown filesystem; the capacity quota still applies.
		return nil
	}
	if usage.Total == 0 {
		return nil
	}
	free := int64(usage.Free) - incoming
	if free < 0 {
		free = 0
	}
	freePct := float64(free) * 100 / float64(usage.Total)
	if freePct < float64(minFreePct) {
		return fmt.Errorf("%w: %.2f%% free, %d%% required", ErrNoSpace, freePct, minFreePct)
	}
	return nil
}
