// Package client provides a transport-agnostic interface for the negotiation
// service's read API, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"

	"github.com/alfredjeanlab/nego/internal/lobby"
	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/presence"
)

// NegoClient is the interface the negod CLI commands use to read from a
// running server.
type NegoClient interface {
	GetSession(ctx context.Context, tag string) (*model.SessionRecord, error)
	ListSessions(ctx context.Context, req *ListSessionsRequest) (*ListSessionsResponse, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// ListSessionsRequest holds parameters for listing stored sessions.
type ListSessionsRequest struct {
	Completed *bool  `json:"completed,omitempty"`
	WorkerID  string `json:"worker_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// ListSessionsResponse is the response from ListSessions.
type ListSessionsResponse struct {
	Sessions []*model.SessionRecord `json:"sessions"`
	Total    int                    `json:"total"`
}

// LiveSessionsResponse lists sessions still being driven and the lobby queue
// length.
type LiveSessionsResponse struct {
	Sessions []lobby.LiveSession `json:"sessions"`
	Waiting  int                 `json:"waiting"`
}

// RosterResponse is the live participant roster.
type RosterResponse struct {
	Participants   []presence.Entry `json:"participants"`
	Connected      int              `json:"connected"`
	Waiting        int              `json:"waiting"`
	ActiveSessions int              `json:"active_sessions"`
}
