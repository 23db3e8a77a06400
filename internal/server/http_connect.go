package server

import (
	"net/http"

	"github.com/alfredjeanlab/nego/internal/idgen"
	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/presence"
	"github.com/alfredjeanlab/nego/internal/proxy"
)

// handleConnect handles GET /v1/connect, the participant websocket.
//
// Query params: worker_id and assignment_id (both required). The request
// blocks through onboarding; once the participant is queued the connection
// belongs to the lobby.
func (s *NegoServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.lobby == nil {
		writeError(w, http.StatusServiceUnavailable, "lobby is not running")
		return
	}
	q := r.URL.Query()
	workerID, assignmentID := q.Get("worker_id"), q.Get("assignment_id")
	if workerID == "" {
		writeError(w, http.StatusBadRequest, "worker_id is required")
		return
	}
	if assignmentID == "" {
		writeError(w, http.StatusBadRequest, "assignment_id is required")
		return
	}

	id, err := idgen.ParticipantID()
	if err != nil {
		s.logger.Error("generate participant id failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate participant id")
		return
	}

	log := s.logger.With("participant", id, "worker_id", workerID)
	opts := s.ProxyOptions
	opts.Logger = log
	opts.OnBeat = func(kind string) {
		hb := presence.Heartbeat{ParticipantID: id, Kind: kind}
		if kind == presence.BeatConnect {
			hb.WorkerID = workerID
		}
		s.Presence.Record(hb)
	}

	// Upgrade writes its own error response.
	conn, err := proxy.Upgrade(w, r, id, opts)
	if err != nil {
		log.Warn("participant upgrade failed", "error", err)
		s.Presence.Forget(id)
		return
	}
	s.register(conn)
	log.Info("participant connected", "assignment_id", assignmentID)

	if err := s.lobby.Join(r.Context(), conn, model.NewParticipant(id, workerID, assignmentID)); err != nil {
		log.Info("participant left before matching", "error", err)
		s.unregister(id)
	}
}
