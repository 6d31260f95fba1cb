package session

import (
	"context"
	"sync"
	"time"

	"github.com/pragati-platform/identity/pkg/auth"
)

// MemoryStore keeps sessions in process memory. Used in dev mode and
// in tests; production deployments use the redis store so revocation
// is visible to every replica.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	families map[string][]string
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		families: make(map[string][]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	m.families[s.FamilyID] = append(m.families[s.FamilyID], s.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Rotate(_ context.Context, id, expected, newRefreshID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return auth.ErrSessionNotFound
	}
	if s.RefreshID != expected {
		return auth.ErrSessionConflict
	}
	s.RefreshID = newRefreshID
	s.ExpiresAt = expiresAt
	s.RotatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Revoke(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Revoked {
		return false, nil
	}
	s.Revoked = true
	return true, nil
}

func (m *MemoryStore) RevokeFamily(_ context.Context, familyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.families[familyID] {
		if s, ok := m.sessions[id]; ok {
			s.Revoked = true
		}
	}
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	for fam, ids := range m.families {
		kept := ids[:0]
		for _, id := range ids {
			if _, ok := m.sessions[id]; ok {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(m.families, fam)
		} else {
			m.families[fam] = kept
		}
	}
	return removed, nil
}
