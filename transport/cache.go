// Copyright 2026 Blink Labs Software
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

package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

const (
	DefaultCacheTTL = 1 * time.Hour

	defaultCacheValueThreshold = 1 << 20
)

// CacheEntry is a stored reply with its revalidation data
type CacheEntry struct {
	ETag         string `cbor:"1,keyasint,omitempty"`
	LastModified string `cbor:"2,keyasint,omitempty"`
	ContentType  string `cbor:"3,keyasint,omitempty"`
	Body         []byte `cbor:"4,keyasint,omitempty"`
	// Expires is the end of the freshness lifetime in Unix nanoseconds,
	// zero when the reply must always be revalidated
	Expires int64 `cbor:"5,keyasint,omitempty"`
}

// Fresh reports whether the entry may be served without contacting the server
func (e *CacheEntry) Fresh(now time.Time) bool {
	return e.Expires != 0 && now.UnixNano() < e.Expires
}

// Revalidatable reports whether the entry carries a validator for a
// conditional request
func (e *CacheEntry) Revalidatable() bool {
	return e.ETag != "" || e.LastModified != ""
}

// Cache keeps replies in an in-memory badger store. Nothing is written to
// disk, so cached data never outlives the process.
type Cache struct {
	db     *badger.DB
	logger *slog.Logger
	ttl    time.Duration
}

type CacheOptionFunc func(*Cache)

// WithCacheLogger specifies the logger object to use for logging messages
func WithCacheLogger(logger *slog.Logger) CacheOptionFunc {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithCacheTTL specifies how long an entry is retained for revalidation
func WithCacheTTL(ttl time.Duration) CacheOptionFunc {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// NewCache creates an in-memory reply cache
func NewCache(opts ...CacheOptionFunc) (*Cache, error) {
	c := &Cache{
		ttl: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.ttl <= 0 {
		c.ttl = DefaultCacheTTL
	}
	badgerOpts := badger.DefaultOptions("").
		WithLogger(newBadgerLogger(c.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING).
		WithInMemory(true).
		WithValueThreshold(defaultCacheValueThreshold)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening reply cache: %w", err)
	}
	c.db = db
	return c, nil
}

// Get returns the entry stored under key, or nil if there is none
func (c *Cache) Get(key string) (*CacheEntry, error) {
	var entry *CacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var tmpEntry CacheEntry
		if err := cbor.Unmarshal(val, &tmpEntry); err != nil {
			return fmt.Errorf("decoding cache entry: %w", err)
		}
		entry = &tmpEntry
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Put stores an entry under key for the cache TTL
func (c *Cache) Put(key string, entry *CacheEntry) error {
	val, err := cbor.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(
			badger.NewEntry([]byte(key), val).WithTTL(c.ttl),
		)
	})
}

// Delete removes the entry stored under key
func (c *Cache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close releases the underlying store
func (c *Cache) Close() error {
	return c.db.Close()
}

// badgerLogger adapts slog to the badger logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{
		logger: logger.With("component", "cache"),
	}
}

func (b *badgerLogger) Errorf(msg string, args ...any) {
	b.logger.Error(fmt.Sprintf(msg, args...))
}

func (b *badgerLogger) Warningf(msg string, args ...any) {
	b.logger.Warn(fmt.Sprintf(msg, args...))
}

func (b *badgerLogger) Infof(msg string, args ...any) {
	b.logger.Info(fmt.Sprintf(msg, args...))
}

func (b *badgerLogger) Debugf(msg string, args ...any) {
	b.logger.Debug(fmt.Sprintf(msg, args...))
}
