package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory. It satisfies the Store
// contract for tests and ephemeral runs; the change feed only observes
// writes from this process, so cross-process consistency is not provided.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string][]byte
	watchers map[int64]chan string
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string][]byte),
		watchers: make(map[int64]chan string),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.docs[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	s.notify(key)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.docs, key)
	s.mu.Unlock()
	s.notify(key)
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context) (<-chan string, func(), error) {
	stream := make(chan string, 16)
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = stream
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return stream, cancel, nil
}

func (s *MemoryStore) notify(key string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, stream := range s.watchers {
		select {
		case stream <- key:
		default:
		}
	}
}
