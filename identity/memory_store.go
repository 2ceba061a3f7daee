package identity

import (
	"context"
	"docgate/models"
	"sync"
	"time"
)

// MemoryStore is a single-process Store for development (REDIS_URL=memory://)
// and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	subs     map[string]map[*memorySubscription]struct{}
	now      func() time.Time
}

type memoryEntry struct {
	session   models.Session
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		subs:     make(map[string]map[*memorySubscription]struct{}),
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, digest string, session *models.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[digest] = memoryEntry{session: *session, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, digest string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[digest]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.sessions, digest)
		return nil, nil
	}
	s := entry.session
	return &s, nil
}

func (m *MemoryStore) Delete(_ context.Context, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, digest)
	return nil
}

// Publish never blocks; a subscriber that is not draining loses the event.
func (m *MemoryStore) Publish(_ context.Context, digest string, event models.AuthEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sub := range m.subs[digest] {
		select {
		case sub.events <- event:
		default:
		}
	}
	return nil
}

func (m *MemoryStore) Subscribe(_ context.Context, digest string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &memorySubscription{store: m, digest: digest, events: make(chan models.AuthEvent, 4)}
	if m.subs[digest] == nil {
		m.subs[digest] = make(map[*memorySubscription]struct{})
	}
	m.subs[digest][sub] = struct{}{}
	return Once(sub), nil
}

// Subscribers reports how many live subscriptions exist for digest.
func (m *MemoryStore) Subscribers(digest string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[digest])
}

type memorySubscription struct {
	store  *MemoryStore
	digest string
	events chan models.AuthEvent
}

func (s *memorySubscription) Events() <-chan models.AuthEvent { return s.events }

func (s *memorySubscription) Unsubscribe() {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	delete(s.store.subs[s.digest], s)
	if len(s.store.subs[s.digest]) == 0 {
		delete(s.store.subs, s.digest)
	}
	close(s.events)
}
