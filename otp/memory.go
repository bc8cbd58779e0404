package otp

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryShardCount = 32

type memoryShard struct {
	mu      sync.Mutex
	records map[string]*Record
}

// MemoryStore keeps records in process memory. Each phone hashes to one shard
// and every operation on a shard holds its mutex, so Update is a per-key
// critical section. Suitable for tests and single-process development.
type MemoryStore struct {
	shards [memoryShardCount]memoryShard
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].records = make(map[string]*Record)
	}
	return s
}

func (s *MemoryStore) shard(phone string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(phone))
	return &s.shards[h.Sum32()%memoryShardCount]
}

func (s *MemoryStore) Get(ctx context.Context, phone string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh := s.shard(phone)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.Phone == "" {
		return ErrInvalidRecord
	}
	sh := s.shard(rec.Phone)
	sh.mu.Lock()
	sh.records[rec.Phone] = cloneRecord(rec)
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, phone string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shard(phone)
	sh.mu.Lock()
	delete(sh.records, phone)
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, phone string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shard(phone)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current := cloneRecord(sh.records[phone])
	action, err := fn(current)
	if err != nil {
		return err
	}

	switch action {
	case ActionSave:
		if current == nil {
			return nil
		}
		current.Phone = phone
		sh.records[phone] = current
	case ActionDelete:
		delete(sh.records, phone)
	}
	return nil
}

// Purge removes every record that is dead at now and returns how many were removed.
func (s *MemoryStore) Purge(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	for i := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh := &s.shards[i]
		sh.mu.Lock()
		for phone, rec := range sh.records {
			if rec.Dead(now) {
				delete(sh.records, phone)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}

var (
	_ Store  = (*MemoryStore)(nil)
	_ Purger = (*MemoryStore)(nil)
)
