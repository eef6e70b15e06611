package llm

import (
	"sync"

	"go.uber.org/zap"

	"github.com/jbellis/llmap/llm/cache"
)

// memCache is an in-memory stand-in for cache.Cache used by client_test.go
// so the Client's cache-consultation logic can be exercised without an
// on-disk SQLite file.
type memCache struct {
	mu       sync.Mutex
	mode     cache.Mode
	entries  map[string]string
	setCount int
}

func newMemCache(mode cache.Mode) *memCache {
	return &memCache{mode: mode, entries: make(map[string]string)}
}

func (m *memCache) Mode() cache.Mode { return m.mode }

func (m *memCache) Get(key string) (*cache.Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != cache.ModeRead && m.mode != cache.ModeReadWrite {
		return nil, false, nil
	}
	answer, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &cache.Entry{Answer: answer}, true, nil
}

func (m *memCache) Set(key, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != cache.ModeWrite && m.mode != cache.ModeReadWrite {
		return nil
	}
	m.entries[key] = answer
	m.setCount++
	return nil
}

func (m *memCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func noopLogger() *zap.Logger { return zap.NewNop() }
