package dedup

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry struct {
	key        string
	insertedAt time.Time
}

// MemoryStore is an in-process Store. Entries are kept in insertion order so both
// expiry and capacity eviction pop from the front.
type MemoryStore struct {
	mu      sync.Mutex
	opts    Options
	order   *list.List
	entries map[string]*list.Element
}

func NewMemoryStore(opts Options) (*MemoryStore, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		opts:    opts,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}, nil
}

func (s *MemoryStore) Contains(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(s.opts.Now())
	_, ok := s.entries[key]
	return ok, nil
}

func (s *MemoryStore) Insert(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	s.expire(now)
	s.insert(key, now)
	return nil
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	s.expire(now)
	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	s.insert(key, now)
	return true, nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[key]; ok {
		s.order.Remove(el)
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(s.opts.Now())
	return len(s.entries), nil
}

// insert must be called with mu held and after expire.
func (s *MemoryStore) insert(key string, now time.Time) {
	if el, ok := s.entries[key]; ok {
		s.order.Remove(el)
		delete(s.entries, key)
	}

	for len(s.entries) >= s.opts.Capacity {
		s.evict(s.order.Front())
	}

	s.entries[key] = s.order.PushBack(&entry{key: key, insertedAt: now})
}

// expire drops entries whose age reached the TTL. Insertion order equals timestamp
// order, so it stops at the first live entry.
func (s *MemoryStore) expire(now time.Time) {
	for el := s.order.Front(); el != nil; el = s.order.Front() {
		if now.Sub(el.Value.(*entry).insertedAt) < s.opts.TTL {
			return
		}
		s.evict(el)
	}
}

func (s *MemoryStore) evict(el *list.Element) {
	s.order.Remove(el)
	delete(s.entries, el.Value.(*entry).key)
}
