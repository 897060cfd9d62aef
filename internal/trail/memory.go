package trail

import (
	"context"
	"sync"
)

// MemoryStore is the in-process fallback backend. Trails survive for the
// lifetime of the daemon only, which is enough for live navigation when no
// durable store is configured.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	samples map[string][]Sample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{samples: map[string][]Sample{}}
}

func (s *MemoryStore) Append(_ context.Context, sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sample.ID = s.nextID
	s.samples[sample.SessionID] = append(s.samples[sample.SessionID], sample)
}

func (s *MemoryStore) GetAll(_ context.Context, sessionID string) ([]Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sample, len(s.samples[sessionID]))
	copy(out, s.samples[sessionID])
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.samples, sessionID)
}

func (s *MemoryStore) PruneOlderThan(_ context.Context, days int) {
	cutoff := pruneCutoffMs(days)

	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID, samples := range s.samples {
		kept := samples[:0]
		for _, smp := range samples {
			if smp.TimestampMs >= cutoff {
				kept = append(kept, smp)
			}
		}
		if len(kept) == 0 {
			delete(s.samples, sessionID)
			continue
		}
		s.samples[sessionID] = kept
	}
}
