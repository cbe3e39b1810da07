package store

import (
	"sync"
	"time"
)

type LocalStore struct {
	blocks map[string]Block
	mu     sync.RWMutex
	now    func() time.Time
	stop   chan struct{}
}

func NewLocalStore() *LocalStore {
	s := &LocalStore{
		blocks: make(map[string]Block),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	go s.cleanupLoop(5 * time.Minute)
	return s
}

func (s *LocalStore) Block(key string, b Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[key] = b
	return nil
}

func (s *LocalStore) Lookup(key string) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[key]
	if !ok || b.Expired(s.now()) {
		return Block{}, false
	}
	return b, true
}

func (s *LocalStore) IsBlocked(key string) bool {
	_, ok := s.Lookup(key)
	return ok
}

func (s *LocalStore) Unblock(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, key)
	return nil
}

func (s *LocalStore) ListBlocks() (map[string]Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	res := make(map[string]Block)
	for k, v := range s.blocks {
		if !v.Expired(now) {
			res[k] = v
		}
	}
	return res, nil
}

// Close stops the background cleanup.
func (s *LocalStore) Close() {
	close(s.stop)
}

func (s *LocalStore) purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, v := range s.blocks {
		if v.Expired(now) {
			delete(s.blocks, k)
			n++
		}
	}
	return n
}

func (s *LocalStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.purge()
		case <-s.stop:
			return
		}
	}
}
