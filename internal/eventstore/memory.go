package eventstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps streams in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[string][]Record
	types   map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[string][]Record),
		types:   make(map[string]string),
	}
}

func (s *MemoryStore) Append(_ context.Context, aggregateType, aggregateID string, expectedVersion int64, records []Record) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(len(s.streams[aggregateID]))
	if current != expectedVersion {
		return nil, concurrencyError(aggregateID, expectedVersion, current)
	}
	if len(records) == 0 {
		return nil, nil
	}

	stored := stamp(aggregateType, aggregateID, current, records)
	s.streams[aggregateID] = append(s.streams[aggregateID], stored...)
	s.types[aggregateID] = aggregateType
	return stored, nil
}

func (s *MemoryStore) Load(_ context.Context, aggregateID string, after int64) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	if after >= int64(len(stream)) {
		return nil, nil
	}
	if after < 0 {
		after = 0
	}
	out := make([]Record, len(stream)-int(after))
	copy(out, stream[after:])
	return out, nil
}

func (s *MemoryStore) AggregateIDs(_ context.Context, aggregateType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, t := range s.types {
		if t == aggregateType {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }

// MemorySnapshots keeps the latest snapshot per aggregate in memory.
type MemorySnapshots struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
}

var _ SnapshotStore = (*MemorySnapshots)(nil)

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{snaps: make(map[string]Snapshot)}
}

// Save keeps s unless a newer snapshot is already stored.
func (m *MemorySnapshots) Save(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.snaps[s.AggregateID]; ok && prev.Version >= s.Version {
		return nil
	}
	m.snaps[s.AggregateID] = s
	return nil
}

func (m *MemorySnapshots) Get(_ context.Context, aggregateID string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[aggregateID]
	return s, ok, nil
}
