package statestore

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const defaultJanitorInterval = time.Minute

// MemoryStore is a thread-safe in-memory Store with TTL-on-read eviction
// and a periodic janitor for entries nobody reads again.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]memoryItem
	hits   int64
	misses int64
	ksize  int64
	vsize  int64

	stop     chan struct{}
	stopOnce sync.Once
}

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
	vsize     int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store and starts its janitor.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]memoryItem),
		stop: make(chan struct{}),
	}
	go s.janitor(defaultJanitorInterval)
	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for token, item := range s.data {
				if now.After(item.expiresAt) {
					s.removeLocked(token, item)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *MemoryStore) removeLocked(token string, item memoryItem) {
	delete(s.data, token)
	s.ksize -= int64(len(token))
	s.vsize -= item.vsize
}

func (s *MemoryStore) Set(ctx context.Context, token string, entry Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.data[token]; ok {
		s.removeLocked(token, existing)
	}
	s.data[token] = memoryItem{
		entry:     entry,
		expiresAt: time.Now().Add(ttl),
		vsize:     int64(len(encoded)),
	}
	s.ksize += int64(len(token))
	s.vsize += int64(len(encoded))
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.data[token]
	if !ok {
		s.misses++
		return nil, nil
	}
	if time.Now().After(item.expiresAt) {
		s.removeLocked(token, item)
		s.misses++
		return nil, nil
	}
	s.hits++
	entry := item.entry
	return &entry, nil
}

func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.data[token]; ok {
		s.removeLocked(token, item)
	}
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Keys:   int64(len(s.data)),
		Hits:   s.hits,
		Misses: s.misses,
		KSize:  s.ksize,
		VSize:  s.vsize,
	}, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]memoryItem)
	s.ksize = 0
	s.vsize = 0
	return nil
}

func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
