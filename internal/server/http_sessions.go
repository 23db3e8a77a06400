package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/nego/internal/lobby"
	"github.com/alfredjeanlab/nego/internal/model"
)

// handleListSessions handles GET /v1/sessions.
//
// Query params: completed (bool), worker_id, limit, offset.
func (s *NegoServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	f, err := parseSessionFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, total, err := s.listSessions(r.Context(), f)
	if err != nil {
		var ie inputError
		if errors.As(err, &ie) {
			writeError(w, http.StatusBadRequest, ie.Error())
			return
		}
		s.logger.Error("list sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if recs == nil {
		recs = []*model.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": recs, "total": total})
}

// handleGetSession handles GET /v1/sessions/{tag}.
func (s *NegoServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.getSession(r.Context(), r.PathValue("tag"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("get session failed", "tag", r.PathValue("tag"), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleLiveSessions handles GET /v1/sessions/live.
func (s *NegoServer) handleLiveSessions(w http.ResponseWriter, _ *http.Request) {
	live := []lobby.LiveSession{}
	waiting := 0
	if s.lobby != nil {
		if a := s.lobby.Active(); a != nil {
			live = a
		}
		waiting = s.lobby.Waiting()
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": live, "waiting": waiting})
}

func parseSessionFilter(r *http.Request) (model.SessionFilter, error) {
	q := r.URL.Query()
	f := model.SessionFilter{WorkerID: q.Get("worker_id")}

	if v := q.Get("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, inputError("completed must be a boolean")
		}
		f.Completed = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, inputError("limit must be an integer")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, inputError("offset must be an integer")
		}
		f.Offset = n
	}
	return f, nil
}
