// Package store is the transactional key-value contract settlement state is
// kept in. Values are JSON; every key carries an expiry horizon that writers
// push forward with ExtendTTL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrKeyNotFound = errors.New("store: key not found")
	ErrReadOnly    = errors.New("store: read-only transaction")
)

// Tx is one atomic unit of reads and writes. Expired keys read as absent.
type Tx interface {
	// Get decodes the value at key into dst and reports whether it was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
	// Set writes value. A new key gets the store's default TTL; an existing
	// live key keeps its expiry.
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	// ExtendTTL moves the key's expiry to max(current, now+ttl). A key
	// without expiry stays without.
	ExtendTTL(ctx context.Context, key string, ttl time.Duration) error
	// Persist clears the key's expiry; it is then never purged.
	Persist(ctx context.Context, key string) error
}

type Store interface {
	// Update runs fn in a read-write transaction. An error from fn or from
	// the commit discards every write fn made. fn may be invoked more than
	// once when the backend retries a conflicting transaction.
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	// PurgeExpired deletes expired keys and returns how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)
	Close() error
}

// Options shared by all backends.
type Options struct {
	// DefaultTTL is the lifetime of a newly written key; zero means keys
	// never expire unless ExtendTTL is called.
	DefaultTTL time.Duration
	// Now is the clock used for expiry; nil means time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// expiryFor returns the expiry of a key first written at now, or nil.
func (o Options) expiryFor(now time.Time) *time.Time {
	if o.DefaultTTL <= 0 {
		return nil
	}
	t := now.Add(o.DefaultTTL)
	return &t
}

func encode(key string, value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", key, err)
	}
	return data, nil
}

func decode(key string, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("store: decode %s: %w", key, err)
	}
	return nil
}

func extend(current *time.Time, now time.Time, ttl time.Duration) *time.Time {
	if current == nil {
		return nil
	}
	next := now.Add(ttl)
	if current.After(next) {
		return current
	}
	return &next
}

func live(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || expiresAt.After(now)
}
