package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/nego/internal/lobby"
	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/presence"
	"github.com/alfredjeanlab/nego/internal/proxy"
	"github.com/alfredjeanlab/nego/internal/session"
	"github.com/alfredjeanlab/nego/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Lobby is the part of the lobby the server drives.
type Lobby interface {
	Join(ctx context.Context, p session.Proxy, profile *model.Participant) error
	Waiting() int
	Active() []lobby.LiveSession
}

// NegoServer serves the read API, the event stream and participant
// websocket connections.
type NegoServer struct {
	store    store.Store
	hub      *EventHub
	Presence *presence.Tracker
	lobby    Lobby
	logger   *slog.Logger

	// ProxyOptions is the template for every participant connection.
	// OnBeat and Logger are filled in per connection.
	ProxyOptions proxy.Options

	mu    sync.Mutex
	conns map[string]*proxy.Conn // participant ID -> live connection
}

// NewNegoServer returns a server backed by the given store. A nil hub gets a
// fresh EventHub; a nil lobby makes /v1/connect answer 503.
func NewNegoServer(s store.Store, hub *EventHub, tracker *presence.Tracker, lb Lobby, logger *slog.Logger) *NegoServer {
	if hub == nil {
		hub = NewEventHub()
	}
	if tracker == nil {
		tracker = presence.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NegoServer{
		store:    s,
		hub:      hub,
		Presence: tracker,
		lobby:    lb,
		logger:   logger,
		conns:    make(map[string]*proxy.Conn),
	}
}

// SetLobby attaches the lobby after construction. The lobby's hooks usually
// point back at the server, so the two are built in two steps.
func (s *NegoServer) SetLobby(lb Lobby) {
	s.lobby = lb
}

// Hub returns the server's event hub.
func (s *NegoServer) Hub() *EventHub { return s.hub }

// SessionMatched records the pairing on the presence roster.
func (s *NegoServer) SessionMatched(tag string, participantIDs []string) {
	for _, id := range participantIDs {
		s.Presence.Record(presence.Heartbeat{ParticipantID: id, SessionTag: tag, Kind: presence.BeatMatched})
	}
}

// SessionFinished drops the finished participants from the connection table
// and the roster.
func (s *NegoServer) SessionFinished(rec *model.SessionRecord) {
	s.mu.Lock()
	for _, p := range rec.Participants {
		delete(s.conns, p.ID)
	}
	s.mu.Unlock()
	for _, p := range rec.Participants {
		s.Presence.Forget(p.ID)
	}
}

// ParticipantDropped forgets a participant released from the lobby before
// reaching a session.
func (s *NegoServer) ParticipantDropped(participantID string) {
	s.unregister(participantID)
}

// AbandonParticipant marks a silent participant's connection abandoned so the
// session it is in ends at its next tick.
func (s *NegoServer) AbandonParticipant(participantID, sessionTag string) {
	s.mu.Lock()
	c := s.conns[participantID]
	s.mu.Unlock()
	if c == nil {
		return
	}
	s.logger.Warn("participant went silent, abandoning", "participant", participantID, "session", sessionTag)
	c.MarkAbandoned()
}

func (s *NegoServer) register(c *proxy.Conn) {
	s.mu.Lock()
	s.conns[c.ID()] = c
	s.mu.Unlock()
}

func (s *NegoServer) unregister(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	s.Presence.Forget(id)
}

func (s *NegoServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// getSession loads one session record. Transport layers map sql.ErrNoRows to
// not found.
func (s *NegoServer) getSession(ctx context.Context, tag string) (*model.SessionRecord, error) {
	if tag == "" {
		return nil, inputError("tag is required")
	}
	return s.store.GetSession(ctx, tag)
}

// listSessions applies the default and maximum page size before querying.
func (s *NegoServer) listSessions(ctx context.Context, f model.SessionFilter) ([]*model.SessionRecord, int, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, 0, inputError("limit and offset must not be negative")
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.store.ListSessions(ctx, f)
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }
