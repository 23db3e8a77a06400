package archive

import (
	"context"
	"database/sql"
	"sort"

	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/store"
)

// mockStore is a minimal in-memory store for archive tests.
type mockStore struct {
	sessions map[string]*model.SessionRecord
	listErr  error
	lists    int
}

func newMockStore() *mockStore {
	return &mockStore{sessions: make(map[string]*model.SessionRecord)}
}

func (m *mockStore) SaveSession(_ context.Context, rec *model.SessionRecord) error {
	m.sessions[rec.Tag] = rec
	return nil
}

func (m *mockStore) GetSession(_ context.Context, tag string) (*model.SessionRecord, error) {
	rec, ok := m.sessions[tag]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rec, nil
}

func (m *mockStore) ListSessions(_ context.Context, filter model.SessionFilter) ([]*model.SessionRecord, int, error) {
	m.lists++
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	all := make([]*model.SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	if filter.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, total, nil
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error { return nil }
