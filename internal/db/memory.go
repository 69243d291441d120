package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"medtriage/internal/core"
	"medtriage/pkg"
)

// MemoryStore is an in-process core.Store used by tests and local
// development. It mirrors the Postgres repository's atomicity: Mutate works
// on a copy and commits session and messages together, or not at all.
// Production deployments use the Postgres repository so multiple server
// processes can share state.
type MemoryStore struct {
	mu     sync.Mutex
	items  map[string]*memSession
	nextID int64
}

type memSession struct {
	sess pkg.Session
	msgs []pkg.Message
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]*memSession{}}
}

var _ core.Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateSession(_ context.Context, s *pkg.Session, first pkg.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := &memSession{sess: cloneSession(*s)}
	m.appendLocked(rec, first)
	m.items[s.ID] = rec
	return nil
}

func (m *MemoryStore) Session(_ context.Context, id string) (*pkg.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.items[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := cloneSession(rec.sess)
	return &out, nil
}

func (m *MemoryStore) Messages(_ context.Context, id string) ([]pkg.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.items[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := make([]pkg.Message, len(rec.msgs))
	copy(out, rec.msgs)
	return out, nil
}

func (m *MemoryStore) Mutate(_ context.Context, id string, fn func(s *pkg.Session) ([]pkg.Message, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.items[id]
	if !ok {
		return core.ErrNotFound
	}
	work := cloneSession(rec.sess)
	msgs, err := fn(&work)
	if err != nil {
		return err
	}
	rec.sess = work
	for _, msg := range msgs {
		m.appendLocked(rec, msg)
	}
	return nil
}

func (m *MemoryStore) ListActionable(_ context.Context) ([]pkg.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pkg.Session
	for _, rec := range m.items {
		switch rec.sess.State {
		case pkg.StateWaitingForNurse, pkg.StateNurseActive, pkg.StateUrgent, pkg.StateInactive:
			out = append(out, cloneSession(rec.sess))
		}
	}
	return out, nil
}

func (m *MemoryStore) OwnerSessions(_ context.Context, owner string) ([]pkg.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pkg.Session
	for _, rec := range m.items {
		if rec.sess.Owner == owner {
			out = append(out, cloneSession(rec.sess))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) DemoteIdle(_ context.Context, cutoff time.Time, note string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.items {
		if rec.sess.State.Sweepable() && rec.sess.LastActivity.Before(cutoff) {
			rec.sess.State = pkg.StateInactive
			rec.sess.IsRead = false
			m.appendLocked(rec, systemNote(rec.sess.ID, note, at))
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ExpireDormant(_ context.Context, cutoff time.Time, note string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.items {
		if rec.sess.State == pkg.StateInactive && rec.sess.LastActivity.Before(cutoff) {
			rec.sess.State = pkg.StateClosed
			m.appendLocked(rec, systemNote(rec.sess.ID, note, at))
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) appendLocked(rec *memSession, msg pkg.Message) {
	m.nextID++
	msg.ID = m.nextID
	rec.msgs = append(rec.msgs, msg)
}

func systemNote(id, note string, at time.Time) pkg.Message {
	return pkg.Message{
		SessionID: id,
		Role:      pkg.RoleAssistant,
		Content:   note,
		Timestamp: at,
		Phase:     pkg.PhaseSystem,
	}
}

func cloneSession(s pkg.Session) pkg.Session {
	out := s
	if s.Summary != nil {
		v := *s.Summary
		out.Summary = &v
	}
	out.Intake.Answers = make(map[string]string, len(s.Intake.Answers))
	for k, v := range s.Intake.Answers {
		out.Intake.Answers[k] = v
	}
	return out
}
