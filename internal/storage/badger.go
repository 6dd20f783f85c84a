package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/jmylchreest/tsb/internal/observability"
)

// BadgerStore keeps fragments in a badger key/value database.
type BadgerStore struct {
	db         *badger.DB
	location   string
	quota      *quota
	minFreePct int
	logger     *slog.Logger
	closed     atomic.Bool
}

// NewBadgerStore opens a badger store at cfg.Location, or an in-memory
// database when the location is empty. Existing content is dropped.
func NewBadgerStore(cfg Config) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Location).WithLogger(nil)
	if cfg.Location == "" {
		opts = opts.WithInMemory(true)
	} else {
		if err := os.RemoveAll(cfg.Location); err != nil {
			return nil, fmt.Errorf("clearing badger store: %w", err)
		}
		if err := os.MkdirAll(cfg.Location, 0o750); err != nil {
			return nil, fmt.Errorf("creating badger store: %w", err)
		}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}

	logger := observability.WithComponent(observability.OrDefault(cfg.Logger), "badger_store")
	logger.Info("badger store opened",
		slog.String("location", cfg.Location),
		slog.Bool("in_memory", cfg.Location == ""),
		slog.Int64("max_capacity", cfg.MaxCapacity),
	)

	return &BadgerStore{
		db:         db,
		location:   cfg.Location,
		quota:      newQuota(cfg.MaxCapacity),
		minFreePct: cfg.MinFreePercentage,
		logger:     logger,
	}, nil
}

// Size returns the stored length of key.
func (s *BadgerStore) Size(key string) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var size int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		size = item.ValueSize()
		return nil
	})
	if err != nil {
		return 0, s.wrap(key, err)
	}
	return size, nil
}

// Read copies the fragment stored under key into buf.
func (s *BadgerStore) Read(key string, buf []byte) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			n = copy(buf, val)
			return nil
		})
	})
	if err != nil {
		return 0, s.wrap(key, err)
	}
	return n, nil
}

// Write stores data under key.
func (s *BadgerStore) Write(key string, data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	size := int64(len(data))
	if err := checkFreeSpace(context.Background(), s.location, s.minFreePct, size); err != nil {
		return err
	}

	reserved := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := s.quota.reserve(size); err != nil {
			return err
		}
		reserved = true
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		if reserved {
			s.quota.release(size)
		}
		if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrNoSpace) {
			return err
		}
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *BadgerStore) Delete(key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	var size int64
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		size = item.ValueSize()
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	s.quota.release(size)
	return nil
}

// Flush drops every fragment, closes the database and removes its directory.
func (s *BadgerStore) Flush() error {
	if s.closed.Swap(true) {
		return nil
	}
	var errs []error
	if err := s.db.DropAll(); err != nil {
		errs = append(errs, fmt.Errorf("dropping badger data: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing badger store: %w", err))
	}
	if s.location != "" {
		if err := os.RemoveAll(s.location); err != nil {
			errs = append(errs, fmt.Errorf("removing badger directory: %w", err))
		}
	}
	s.quota.reset()
	s.logger.Info("badger store flushed")
	return errors.Join(errs...)
}

// Used returns the payload bytes currently stored.
func (s *BadgerStore) Used() int64 {
	return s.quota.Used()
}

func (s *BadgerStore) wrap(key string, err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("badger %s: %w", key, err)
}
