package store

import (
	"context"

	"github.com/alfredjeanlab/nego/internal/model"
)

// Store defines the persistence interface for finished sessions.
type Store interface {
	// SaveSession writes the session and its participants atomically. Saving
	// the same tag again replaces the earlier record.
	SaveSession(ctx context.Context, rec *model.SessionRecord) error
	GetSession(ctx context.Context, tag string) (*model.SessionRecord, error)
	ListSessions(ctx context.Context, filter model.SessionFilter) ([]*model.SessionRecord, int, error) // returns sessions, total count, error

	// RunInTransaction executes fn within a database transaction.
	// The Store passed to fn is scoped to the transaction.
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	Close() error
}
