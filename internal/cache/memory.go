package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCache is a process-local KeyValueCache for tests and single-node
// deployments without Redis.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     bool
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) GetBool(_ context.Context, key string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return false, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return false, false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) SetBool(_ context.Context, key string, value bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// MemoryLock is a process-local DistributedLock.
type MemoryLock struct {
	mu    sync.Mutex
	locks map[string]memoryLockEntry
}

type memoryLockEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{locks: make(map[string]memoryLockEntry)}
}

func (l *MemoryLock) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.locks[key]; ok && time.Now().Before(entry.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.locks[key] = memoryLockEntry{token: token, expiresAt: time.Now().Add(ttl)}
	return token, true, nil
}

func (l *MemoryLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.locks[key]; ok && entry.token == token {
		delete(l.locks, key)
	}
	return nil
}

// MemoryBreaker is a process-local Breaker.
type MemoryBreaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	counts    map[string]int
	resetAt   map[string]time.Time
}

func NewMemoryBreaker(threshold int, window time.Duration) *MemoryBreaker {
	return &MemoryBreaker{
		threshold: threshold,
		window:    window,
		counts:    make(map[string]int),
		resetAt:   make(map[string]time.Time),
	}
}

func (b *MemoryBreaker) Allow(_ context.Context, class string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(class)
	return b.counts[class] < b.threshold, nil
}

func (b *MemoryBreaker) RecordFailure(_ context.Context, class string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover(class)
	if b.counts[class] == 0 {
		b.resetAt[class] = time.Now().Add(b.window)
	}
	b.counts[class]++
	return nil
}

func (b *MemoryBreaker) rollover(class string) {
	if reset, ok := b.resetAt[class]; ok && time.Now().After(reset) {
		delete(b.counts, class)
		delete(b.resetAt, class)
	}
}
