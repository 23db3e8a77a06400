package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/nego/internal/presence"
)

// handleRoster handles GET /v1/roster.
// Returns the live participant roster from the presence tracker.
func (s *NegoServer) handleRoster(w http.ResponseWriter, r *http.Request) {
	// Parse optional stale_threshold_secs query param (default: 5 min).
	staleThreshold := 5 * time.Minute
	if v := r.URL.Query().Get("stale_threshold_secs"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			staleThreshold = time.Duration(secs) * time.Second
		}
	}

	entries := s.Presence.Roster(staleThreshold)
	if entries == nil {
		entries = []presence.Entry{}
	}

	waiting, active := 0, 0
	if s.lobby != nil {
		waiting = s.lobby.Waiting()
		active = len(s.lobby.Active())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"participants":    entries,
		"connected":       s.connCount(),
		"waiting":         waiting,
		"active_sessions": active,
	})
}
