// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage wraps a single embedded badger database shared by the
// vending loop: a durable exclusion ledger (spec §9, the "persist
// exclusions across restarts" design choice) and a short-TTL cache of
// indexer transaction lookups.
package storage

import (
	"fmt"
	"time"

	"github.com/blinklabs-io/cnftvend/internal/config"
	"github.com/blinklabs-io/cnftvend/internal/logging"

	"github.com/dgraph-io/badger/v4"
)

const (
	excludedKeyPrefix = "excluded/"
	txCacheKeyPrefix  = "txcache/"
	// txCacheTtl bounds how long a cached transaction lookup is reused,
	// so a long-running daemon doesn't serve a stale transaction if an
	// operator rewrites the underlying file (testing/devnet only; a
	// confirmed mainnet tx never changes, but the TTL costs nothing).
	txCacheTtl = 10 * time.Minute
)

// Storage is the durable store backing the vending loop's exclusion set
// and transaction-lookup cache. One instance per process; the metadata,
// locked, whitelist and consumed directories remain plain files and are
// not stored here (spec §5 "shared resources").
type Storage struct {
	db *badger.DB
}

var globalStorage = &Storage{}

// Load opens the badger database at the configured storage directory.
func (s *Storage) Load() error {
	cfg := config.GetConfig()
	badgerOpts := badger.DefaultOptions(cfg.Storage.Directory).
		WithLogger(NewBadgerLogger()).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return fmt.Errorf("storage: opening badger db: %w", err)
	}
	s.db = db
	return nil
}

// Close releases the underlying badger database.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// IsExcluded reports whether ref is in the durable exclusion set (spec
// §3 "Exclusion set"). Exclusions persist across restarts: the vending
// loop preloads them at startup, so a previously excluded UTxO is not
// re-examined after a restart.
func (s *Storage) IsExcluded(key string) (bool, error) {
	var excluded bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(excludedKeyPrefix + key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		excluded = true
		return nil
	})
	return excluded, err
}

// Exclude adds key to the durable exclusion set. Idempotent.
func (s *Storage) Exclude(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(excludedKeyPrefix+key), nil)
	})
}

// LoadExclusions returns every currently-excluded key, for populating
// the vending loop's in-memory session set at startup.
func (s *Storage) LoadExclusions() (map[string]struct{}, error) {
	out := map[string]struct{}{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(excludedKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key()[len(prefix):])
			out[key] = struct{}{}
		}
		return nil
	})
	return out, err
}

// CacheTransaction stores a JSON-encoded indexer transaction lookup
// under a short TTL, so that required_info and later reconciliation of
// the same tx_hash don't each cost a Blockfrost round trip.
func (s *Storage) CacheTransaction(txHash string, body []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(txCacheKeyPrefix+txHash), body).WithTTL(txCacheTtl)
		return txn.SetEntry(entry)
	})
}

// GetCachedTransaction returns the cached body for txHash, if present
// and unexpired.
func (s *Storage) GetCachedTransaction(txHash string) ([]byte, bool, error) {
	var body []byte
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(txCacheKeyPrefix + txHash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		body = val
		found = true
		return nil
	})
	return body, found, err
}

// GetStorage returns the process-wide Storage singleton.
func GetStorage() *Storage {
	return globalStorage
}

// BadgerLogger adapts our slog-backed logger to badger's expected
// logging interface.
type BadgerLogger struct {
	logger interface {
		Debugf(string, ...any)
		Infof(string, ...any)
		Warnf(string, ...any)
		Errorf(string, ...any)
	}
}

func NewBadgerLogger() *BadgerLogger {
	return &BadgerLogger{logger: logging.NewPrintfLogger()}
}

func (b *BadgerLogger) Errorf(msg string, args ...any)   { b.logger.Errorf(msg, args...) }
func (b *BadgerLogger) Warningf(msg string, args ...any) { b.logger.Warnf(msg, args...) }
func (b *BadgerLogger) Infof(msg string, args ...any)    { b.logger.Infof(msg, args...) }
func (b *BadgerLogger) Debugf(msg string, args ...any)   { b.logger.Debugf(msg, args...) }
