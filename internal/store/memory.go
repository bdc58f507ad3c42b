package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt *time.Time
}

// Memory is an in-process Store. Writers are serialized; readers share a lock.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	opts    Options
}

var _ Store = (*Memory)(nil)

func NewMemory(opts Options) *Memory {
	return &Memory{entries: make(map[string]memEntry), opts: opts}
}

func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{m: m, now: m.opts.now(), writes: make(map[string]*memEntry)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, e := range tx.writes {
		if e == nil {
			delete(m.entries, k)
			continue
		}
		m.entries[k] = *e
	}
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{m: m, now: m.opts.now(), readOnly: true})
}

func (m *Memory) PurgeExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.now()
	var n int64
	for k, e := range m.entries {
		if !live(e.expiresAt, now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error {
	return nil
}

// Len is the number of stored keys, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// memTx overlays pending writes on the committed map; a nil entry is a delete.
type memTx struct {
	m        *Memory
	now      time.Time
	readOnly bool
	writes   map[string]*memEntry
}

func (tx *memTx) lookup(key string) (memEntry, bool) {
	if e, ok := tx.writes[key]; ok {
		if e == nil {
			return memEntry{}, false
		}
		return *e, live(e.expiresAt, tx.now)
	}
	e, ok := tx.m.entries[key]
	if !ok || !live(e.expiresAt, tx.now) {
		return memEntry{}, false
	}
	return e, true
}

func (tx *memTx) Get(_ context.Context, key string, dst any) (bool, error) {
	e, ok := tx.lookup(key)
	if !ok {
		return false, nil
	}
	return true, decode(key, e.value, dst)
}

func (tx *memTx) Has(_ context.Context, key string) (bool, error) {
	_, ok := tx.lookup(key)
	return ok, nil
}

func (tx *memTx) Set(_ context.Context, key string, value any) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	expiresAt := tx.m.opts.expiryFor(tx.now)
	if e, ok := tx.lookup(key); ok {
		expiresAt = e.expiresAt
	}
	tx.writes[key] = &memEntry{value: data, expiresAt: expiresAt}
	return nil
}

func (tx *memTx) Delete(_ context.Context, key string) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	tx.writes[key] = nil
	return nil
}

func (tx *memTx) ExtendTTL(_ context.Context, key string, ttl time.Duration) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	e, ok := tx.lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	e.expiresAt = extend(e.expiresAt, tx.now, ttl)
	tx.writes[key] = &e
	return nil
}

func (tx *memTx) Persist(_ context.Context, key string) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	e, ok := tx.lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	e.expiresAt = nil
	tx.writes[key] = &e
	return nil
}
