// Package cache stores normalized day content between sessions.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/pavelanni/focusroom/internal/model"
)

// MaxAge is the staleness window after which cached content counts as absent.
const MaxAge = time.Hour

// Entry is a cached value with the time it was written.
type Entry struct {
	Value    []byte    `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// Cache is a key/value store for normalized content.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, value []byte, at time.Time) error
}

// Fresh reports whether e is younger than ttl at now. A zero ttl means MaxAge.
func Fresh(e Entry, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = MaxAge
	}
	return now.Sub(e.StoredAt) < ttl
}

// Key identifies the content of one day of a room for the given parameters.
func Key(roomID string, dayIndex int, params model.DomainParams) string {
	data, _ := json.Marshal(params)
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("day:%s:%d:%s", roomID, dayIndex, hex.EncodeToString(sum[:8]))
}

// Memory is an in-process cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte, at time.Time) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.mu.Lock()
	m.entries[key] = Entry{Value: v, StoredAt: at}
	m.mu.Unlock()
	return nil
}
