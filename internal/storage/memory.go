package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/joschabach/micropsi2-sub002/internal/model"
)

// MemoryStore keeps encoded payloads so callers never share maps or slices
// with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	nets        map[string][]byte
	summaries   map[string]model.NetSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.nets = make(map[string][]byte)
	s.summaries = make(map[string]model.NetSummary)
	return nil
}

func (s *MemoryStore) SaveNet(_ context.Context, record model.NetRecord) error {
	if err := checkVersion(record.VersionedRecord); err != nil {
		return err
	}
	payload, err := EncodeNet(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.nets[record.UID] = payload
	s.summaries[record.UID] = summarize(record)
	return nil
}

func (s *MemoryStore) GetNet(_ context.Context, uid string) (model.NetRecord, bool, error) {
	s.mu.RLock()
	payload, ok := s.nets[uid]
	initialized := s.initialized
	s.mu.RUnlock()
	if !initialized {
		return model.NetRecord{}, false, ErrNotInitialized
	}
	if !ok {
		return model.NetRecord{}, false, nil
	}
	record, err := DecodeNet(payload)
	if err != nil {
		return model.NetRecord{}, false, fmt.Errorf("decode net %s: %w", uid, err)
	}
	return record, true, nil
}

func (s *MemoryStore) ListNets(_ context.Context) ([]model.NetSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	out := make([]model.NetSummary, 0, len(s.summaries))
	for _, summary := range s.summaries {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

func (s *MemoryStore) DeleteNet(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	delete(s.nets, uid)
	delete(s.summaries, uid)
	return nil
}
