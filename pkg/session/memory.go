package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drover-ai/drover/pkg/memory"
)

// MemoryStore keeps sessions in process memory. Suited to development
// and tests; everything is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

type memorySession struct {
	info    Session
	entries []memory.Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession)}
}

func (s *MemoryStore) Create(ctx context.Context, agent, principal string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	info := Session{
		ID:        uuid.NewString(),
		Agent:     agent,
		Principal: principal,
		Created:   now,
		Updated:   now,
	}
	s.sessions[info.ID] = &memorySession{info: info}
	return info, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess.info, nil
}

func (s *MemoryStore) List(ctx context.Context, principal string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if principal != "" && sess.info.Principal != principal {
			continue
		}
		out = append(out, sess.info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Updated.After(out[j].Updated)
	})
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) AppendEntry(ctx context.Context, id string, e memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.entries = append(sess.entries, e)
	sess.info.Updated = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Entries(ctx context.Context, id string) ([]memory.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]memory.Entry, len(sess.entries))
	copy(out, sess.entries)
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]*memorySession)
	return nil
}

var _ Store = (*MemoryStore)(nil)
