package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Data does not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*memProject
	sessions map[string]*memSession
	seq      int64
	now      func() time.Time
}

type memProject struct {
	Project
	seq int64
}

type memSession struct {
	Session
	userID string
	seq    int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*memProject),
		sessions: make(map[string]*memSession),
		now:      time.Now,
	}
}

// next returns a strictly increasing sequence number used to break ties
// between records stamped within the same clock tick.
func (m *MemoryStore) next() int64 {
	m.seq++
	return m.seq
}

func (m *MemoryStore) ListProjects(_ context.Context, userID string) ([]Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var owned []*memProject
	for _, p := range m.projects {
		if p.UserID == userID {
			owned = append(owned, p)
		}
	}
	slices.SortFunc(owned, func(a, b *memProject) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	out := make([]Project, 0, len(owned))
	for _, p := range owned {
		out = append(out, p.Project)
	}
	return out, nil
}

func (m *MemoryStore) GetProject(_ context.Context, userID, id string) (Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return Project{}, ErrNotFound
	}
	return p.Project, nil
}

func (m *MemoryStore) CreateProject(_ context.Context, p Project) (Project, error) {
	if err := p.Validate(); err != nil {
		return Project{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	p.ID = newID()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.projects[p.ID] = &memProject{Project: p, seq: m.next()}
	return p, nil
}

func (m *MemoryStore) UpdateProject(_ context.Context, p Project) (Project, error) {
	if err := p.Validate(); err != nil {
		return Project{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.projects[p.ID]
	if !ok || existing.UserID != p.UserID {
		return Project{}, ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = m.now()
	existing.Project = p
	return p, nil
}

// DeleteProject removes the project and every session attached to it.
func (m *MemoryStore) DeleteProject(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[id]
	if !ok || p.UserID != userID {
		return ErrNotFound
	}
	delete(m.projects, id)
	for sid, s := range m.sessions {
		if s.ProjectID == id {
			delete(m.sessions, sid)
		}
	}
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context, userID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0)
	for _, s := range m.sortedSessions(userID, "") {
		out = append(out, s.copy())
	}
	return out, nil
}

func (m *MemoryStore) SessionForProject(_ context.Context, userID, projectID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := m.sortedSessions(userID, projectID)
	if len(matches) == 0 {
		return Session{}, ErrNotFound
	}
	return matches[0].copy(), nil
}

func (m *MemoryStore) SaveSession(_ context.Context, userID, projectID string, msgs []MessageInput) (Session, bool, error) {
	if err := validateMessages(msgs); err != nil {
		return Session{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[projectID]
	if !ok || p.UserID != userID {
		return Session{}, false, ErrNotFound
	}

	if matches := m.sortedSessions(userID, projectID); len(matches) > 0 {
		s := matches[0]
		m.replace(s, msgs)
		return s.copy(), false, nil
	}

	now := m.now()
	s := &memSession{
		Session: Session{
			ID:        newID(),
			ProjectID: projectID,
			CreatedAt: now,
		},
		userID: userID,
	}
	m.replace(s, msgs)
	m.sessions[s.ID] = s
	return s.copy(), true, nil
}

func (m *MemoryStore) ReplaceMessages(_ context.Context, userID, sessionID string, msgs []MessageInput) (Session, error) {
	if err := validateMessages(msgs); err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.userID != userID {
		return Session{}, ErrNotFound
	}
	m.replace(s, msgs)
	return s.copy(), nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.userID != userID {
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) DeleteProjectSessions(_ context.Context, userID, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.userID == userID && s.ProjectID == projectID {
			delete(m.sessions, id)
		}
	}
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() {}

// sortedSessions returns the user's sessions, most recently updated first,
// optionally restricted to one project. Callers hold m.mu.
func (m *MemoryStore) sortedSessions(userID, projectID string) []*memSession {
	var out []*memSession
	for _, s := range m.sessions {
		if s.userID != userID {
			continue
		}
		if projectID != "" && s.ProjectID != projectID {
			continue
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *memSession) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})
	return out
}

// replace swaps in a fresh message list and bumps the session's update time.
// Callers hold m.mu for writing.
func (m *MemoryStore) replace(s *memSession, msgs []MessageInput) {
	now := m.now()
	s.Messages = make([]Message, 0, len(msgs))
	for _, in := range msgs {
		s.Messages = append(s.Messages, Message{
			ID:        newID(),
			Role:      in.Role,
			Content:   in.Content,
			Timestamp: now,
		})
	}
	s.UpdatedAt = now
	s.seq = m.next()
}

func (s *memSession) copy() Session {
	out := s.Session
	out.Messages = slices.Clone(s.Messages)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return out
}
