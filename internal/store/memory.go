package store

import (
	"context"
	"sync"
	"time"

	"url-status-report/internal/checker"
)

type session struct {
	results   []checker.Record
	report    []byte
	updatedAt time.Time
}

type Memory struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// touch returns the session for id, creating it if needed. Callers hold mu.
func (m *Memory) touch(id string) *session {
	s, ok := m.sessions[id]
	if !ok {
		s = &session{}
		m.sessions[id] = s
	}
	s.updatedAt = m.now()
	return s
}

func (m *Memory) Results(_ context.Context, sessionID string) ([]checker.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return []checker.Record{}, nil
	}
	return append([]checker.Record{}, s.results...), nil
}

func (m *Memory) ReplaceResults(_ context.Context, sessionID string, records []checker.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touch(sessionID).results = append([]checker.Record(nil), records...)
	return nil
}

func (m *Memory) AppendResults(_ context.Context, sessionID string, records ...checker.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.touch(sessionID)
	s.results = append(s.results, records...)
	return nil
}

func (m *Memory) Report(_ context.Context, sessionID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || s.report == nil {
		return nil, ErrNotFound
	}
	return s.report, nil
}

func (m *Memory) SaveReport(_ context.Context, sessionID string, report []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touch(sessionID).report = append([]byte(nil), report...)
	return nil
}

func (m *Memory) Sweep(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.sessions {
		if s.updatedAt.Before(before) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Close() error { return nil }
