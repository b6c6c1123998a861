package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps claims in process. It backs tests and single-instance local runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	entry, ok := s.entries[id]
	if !ok || expired(entry, now) {
		entry = Entry{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl)}
		s.entries[id] = entry
		return StateNew, entry, nil
	}
	if entry.Fingerprint != fingerprint {
		return 0, Entry{}, ErrKeyReused
	}
	if entry.Done {
		return StateReplay, cloneEntry(entry), nil
	}
	return StateInFlight, entry, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Done = true
	s.entries[documentID(key)] = cloneEntry(entry)
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, documentID(key))
	return nil
}

func cloneEntry(entry Entry) Entry {
	if entry.Headers != nil {
		headers := make(map[string]string, len(entry.Headers))
		for k, v := range entry.Headers {
			headers[k] = v
		}
		entry.Headers = headers
	}
	if entry.Body != nil {
		entry.Body = append([]byte(nil), entry.Body...)
	}
	return entry
}
