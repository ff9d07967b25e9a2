package tracker

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jharkins/wattson/internal/model"
	"github.com/jharkins/wattson/internal/store"
)

// mockStore is an in-memory store.Store for service tests.
type mockStore struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*model.Event

	appendErr error
	countErr  error
}

var _ store.Store = (*mockStore)(nil)

func newMockStore() *mockStore {
	return &mockStore{nextID: 1, events: make(map[int64]*model.Event)}
}

func (m *mockStore) AppendEvent(ctx context.Context, e *model.Event) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	m.nextID++
	e.CreatedAt = time.Now().UTC()
	e.MessageState = model.MessagePending
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *mockStore) AttachMessage(ctx context.Context, id int64, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.MessageID = messageID
	e.MessageState = model.MessageFinalized
	return nil
}

func (m *mockStore) AbandonMessage(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || e.MessageState != model.MessagePending {
		return sql.ErrNoRows
	}
	e.MessageState = model.MessageOrphaned
	return nil
}

func (m *mockStore) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (m *mockStore) ListRecent(ctx context.Context, limit int) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Event
	for id := m.nextID - 1; id > 0 && len(out) < limit; id-- {
		if e, ok := m.events[id]; ok {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) ListAll(ctx context.Context) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Event
	for id := int64(1); id < m.nextID; id++ {
		if e, ok := m.events[id]; ok {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteEvent(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return 0, nil
	}
	delete(m.events, id)
	return 1, nil
}

func (m *mockStore) CountByType(ctx context.Context, types []model.EventType, field store.TimeField, from, to time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if m.matches(e, types, field, from, to) {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) TopActors(ctx context.Context, types []model.EventType, field store.TimeField, from, to time.Time, limit int) ([]model.ActorCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range m.events {
		if m.matches(e, types, field, from, to) {
			counts[e.ActorID]++
		}
	}
	var out []model.ActorCount
	for actor, n := range counts {
		out = append(out, model.ActorCount{ActorID: actor, Count: n})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) matches(e *model.Event, types []model.EventType, field store.TimeField, from, to time.Time) bool {
	found := false
	for _, t := range types {
		if e.Type == t {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	ts := e.CreatedAt
	if field == store.BySetDate {
		if e.SetDate == nil {
			return false
		}
		ts = *e.SetDate
	}
	return !ts.Before(from) && ts.Before(to)
}

func (m *mockStore) Close() error { return nil }
