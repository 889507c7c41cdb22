// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists blueprint state across two backends.
//
// The flat store (BadgerDB, this file) is the availability floor: every
// write lands here first and every read is served from here. The graph
// backend (Weaviate) receives best-effort copies for relational queries and
// is allowed to be down indefinitely without affecting correctness.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Collections in the flat store. A collection is a key prefix; Badger
// itself is a single keyspace.
const (
	CollectionSignalSnapshots    = "signal_snapshots"
	CollectionBlueprintSnapshots = "blueprint_snapshots"
	CollectionLatestPointers     = "latest_pointers"
	CollectionCalibrationState   = "calibration_state"
)

// ErrNotFound is returned by flat-store reads for absent keys.
var ErrNotFound = errors.New("key not found in flat store")

// ErrAlreadyExists is returned by write-once puts when the key is taken.
var ErrAlreadyExists = errors.New("key already exists in flat store")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// FlatConfig configures the embedded Badger store.
type FlatConfig struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory disables disk persistence. For testing.
	InMemory bool

	// SyncWrites forces synchronous writes. Default: true when persistent.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Zero disables GC; in-memory stores never GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before a GC pass
	// rewrites the value log. Default: 0.5.
	GCDiscardRatio float64

	// Logger for store operations. Default: slog.Default().
	Logger *slog.Logger
}

func (c *FlatConfig) applyDefaults() {
	if !c.InMemory {
		c.SyncWrites = true
	}
	if c.GCInterval == 0 {
		c.GCInterval = 5 * time.Minute
	}
	if c.GCDiscardRatio == 0 {
		c.GCDiscardRatio = 0.5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// badgerLogger adapts slog to Badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------
// Flat Store
// -----------------------------------------------------------------------------

// Entry is one key-value pair inside a multi-key transactional write.
type Entry struct {
	Collection string
	Key        string
	Value      []byte
}

// FlatStore is the embedded availability-floor backend.
//
// Thread Safety: safe for concurrent use. Badger provides transactional
// isolation; the snapshot store layers its own write ordering on top.
type FlatStore struct {
	db     *badger.DB
	logger *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// OpenFlat opens the Badger store, creating the directory if needed.
//
// Outputs:
//
//	*FlatStore - Ready store. Caller must Close.
//	error - Non-nil if the path is missing or Badger cannot open it.
func OpenFlat(cfg FlatConfig) (*FlatStore, error) {
	cfg.applyDefaults()

	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent flat store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create flat store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open flat store: %w", err)
	}

	fs := &FlatStore{
		db:     db,
		logger: cfg.Logger.With(slog.String("component", "flat_store")),
		gcStop: make(chan struct{}),
		gcDone: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		go fs.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	} else {
		close(fs.gcDone)
	}

	return fs, nil
}

// OpenInMemory opens a throwaway store for tests.
func OpenInMemory() (*FlatStore, error) {
	return OpenFlat(FlatConfig{InMemory: true, Logger: slog.Default()})
}

// Close stops garbage collection and closes the database. Safe to call
// more than once.
func (s *FlatStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.gcStop)
		<-s.gcDone
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func (s *FlatStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("flat store GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// flatKey builds the namespaced Badger key for a collection entry.
func flatKey(collection, key string) []byte {
	return []byte(collection + "/" + key)
}

// Put writes one value, overwriting any existing entry.
func (s *FlatStore) Put(ctx context.Context, collection, key string, value []byte) error {
	return s.PutMany(ctx, []Entry{{Collection: collection, Key: key, Value: value}})
}

// PutOnce writes one value only if the key is absent. Used for write-once
// records like signal snapshots.
func (s *FlatStore) PutOnce(ctx context.Context, collection, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		k := flatKey(collection, key)
		_, err := txn.Get(k)
		if err == nil {
			return fmt.Errorf("%w: %s/%s", ErrAlreadyExists, collection, key)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check existing key: %w", err)
		}
		return txn.Set(k, value)
	})
}

// PutMany writes all entries in one transaction. Either every entry lands
// or none does; this is what makes snapshot-plus-pointer writes atomic.
func (s *FlatStore) PutMany(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := txn.Set(flatKey(e.Collection, e.Key), e.Value); err != nil {
				return fmt.Errorf("set %s/%s: %w", e.Collection, e.Key, err)
			}
		}
		return nil
	})
}

// Get reads one value. Returns ErrNotFound for absent keys.
func (s *FlatStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(flatKey(collection, key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
			}
			return fmt.Errorf("get %s/%s: %w", collection, key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Has reports whether a key exists without reading its value.
func (s *FlatStore) Has(ctx context.Context, collection, key string) (bool, error) {
	_, err := s.Get(ctx, collection, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Delete removes a key. Deleting an absent key is a no-op.
func (s *FlatStore) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(flatKey(collection, key))
	})
}

// List returns all values in a collection whose key starts with prefix.
// Pass an empty prefix for the whole collection. Order follows the key
// bytes, which for our id schemes is creation-order-free; callers that
// need ordering sort on payload fields.
func (s *FlatStore) List(ctx context.Context, collection, prefix string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	scanPrefix := flatKey(collection, prefix)
	var out [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", it.Item().Key(), err)
			}
			out = append(out, value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
