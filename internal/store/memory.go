package store

import (
	"context"
	"sync"
	"time"
)

type MemorySynonyms struct {
	mu   sync.RWMutex
	data Synonyms
}

func NewMemorySynonyms() *MemorySynonyms {
	return &MemorySynonyms{data: NewSynonyms()}
}

func (m *MemorySynonyms) Snapshot(ctx context.Context) (Synonyms, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.clone(), nil
}

func (m *MemorySynonyms) Put(ctx context.Context, entries ...SynonymEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.data, entries)
	return nil
}

type MemoryLedger struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{keys: map[string]struct{}{}}
}

func (m *MemoryLedger) Contains(ctx context.Context, fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[fingerprint]
	return ok, nil
}

func (m *MemoryLedger) Append(ctx context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[fingerprint] = struct{}{}
	return nil
}

type memorySession struct {
	blob      []byte
	expiresAt time.Time
}

type MemorySessions struct {
	mu    sync.Mutex
	items map[string]memorySession
	now   func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{items: map[string]memorySession{}, now: time.Now}
}

func (m *MemorySessions) Load(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !s.expiresAt.IsZero() && m.now().After(s.expiresAt) {
		delete(m.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), s.blob...), true, nil
}

func (m *MemorySessions) Save(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memorySession{blob: append([]byte(nil), blob...)}
	if ttl > 0 {
		s.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = s
	return nil
}

func (m *MemorySessions) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
