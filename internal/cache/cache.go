// Package cache holds the per-source pool cache and a small in-process TTL
// memo for expensive lookups such as article summaries.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type memoItem[V any] struct {
	value     V
	expiresAt time.Time
}

// Memo is an in-memory TTL map.
type Memo[V any] struct {
	mu    sync.RWMutex
	items map[string]memoItem[V]
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewMemo starts a memo that sweeps expired items every interval. A zero
// interval disables the sweeper.
func NewMemo[V any](interval time.Duration) *Memo[V] {
	m := &Memo[V]{
		items: make(map[string]memoItem[V]),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if interval > 0 {
		go m.cleanupLoop(interval)
	}
	return m
}

func (m *Memo[V]) Set(key string, value V, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = memoItem[V]{
		value:     value,
		expiresAt: m.now().Add(ttl),
	}
}

func (m *Memo[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	item, exists := m.items[key]
	m.mu.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}
	if m.now().After(item.expiresAt) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

// Len counts stored items, expired or not.
func (m *Memo[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Stop ends the sweeper.
func (m *Memo[V]) Stop() {
	m.once.Do(func() { close(m.stop) })
}

// Key hashes its parts into a fixed-size memo key.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (m *Memo[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *Memo[V]) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, item := range m.items {
		if now.After(item.expiresAt) {
			delete(m.items, key)
		}
	}
}
