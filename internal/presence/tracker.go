// Package presence keeps the live roster of connected participants.
//
// Every inbound websocket frame and pong is recorded as a heartbeat. A
// background reaper marks participants that stay silent past a threshold as
// dead and hands them to OnDead, which the server uses to flag the
// participant's proxy as abandoned.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Beat kinds recorded by the proxy and the lobby.
const (
	BeatConnect = "connect"
	BeatFrame   = "frame"
	BeatPong    = "pong"
	BeatMatched = "matched"
)

// Entry represents a single participant's presence state.
type Entry struct {
	ParticipantID string    `json:"participant_id"`
	WorkerID      string    `json:"worker_id,omitempty"`
	SessionTag    string    `json:"session_tag,omitempty"`
	LastSeen      time.Time `json:"last_seen"`
	FirstSeen     time.Time `json:"first_seen"`
	LastBeat      string    `json:"last_beat"`
	IdleSecs      float64   `json:"idle_secs"`
	BeatCount     int64     `json:"beat_count"`
	ConnectedSecs float64   `json:"connected_secs"`
	Reaped        bool      `json:"reaped,omitempty"`
	ReapedAt      time.Time `json:"reaped_at,omitempty"`
}

// Heartbeat is one sign of life from a participant.
type Heartbeat struct {
	ParticipantID string
	WorkerID      string // set on connect
	SessionTag    string // set once the participant is matched
	Kind          string
}

// ReaperConfig configures the background dead-participant reaper.
type ReaperConfig struct {
	// DeadThreshold is how long a participant may stay silent before being
	// marked dead. Default: 2 minutes.
	DeadThreshold time.Duration

	// EvictAfter is how long a reaped participant stays on the roster.
	// Default: 10 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans. Default: 15 seconds.
	SweepInterval time.Duration

	// OnDead is called outside the lock for each participant newly marked dead.
	OnDead func(participantID, sessionTag string)
}

// Tracker maintains an in-memory roster of connected participants.
type Tracker struct {
	mu           sync.RWMutex
	participants map[string]*participantState
	started      time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type participantState struct {
	workerID   string
	sessionTag string
	firstSeen  time.Time
	lastSeen   time.Time
	lastBeat   string
	beatCount  int64
	reaped     bool
	reapedAt   time.Time
}

// New creates a new presence tracker.
func New() *Tracker {
	return &Tracker{
		participants: make(map[string]*participantState),
		started:      time.Now(),
	}
}

// Record updates the presence state for a participant.
func (t *Tracker) Record(hb Heartbeat) {
	if hb.ParticipantID == "" {
		return
	}

	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.participants[hb.ParticipantID]
	if !ok {
		state = &participantState{firstSeen: now}
		t.participants[hb.ParticipantID] = state
	}

	if state.reaped {
		slog.Info("presence: participant returned", "participant", hb.ParticipantID)
		state.reaped = false
		state.reapedAt = time.Time{}
	}

	state.lastSeen = now
	state.lastBeat = hb.Kind
	state.beatCount++

	if hb.WorkerID != "" {
		state.workerID = hb.WorkerID
	}
	if hb.SessionTag != "" {
		state.sessionTag = hb.SessionTag
	}
}

// Forget drops a participant, typically after its proxy is released.
func (t *Tracker) Forget(participantID string) {
	t.mu.Lock()
	delete(t.participants, participantID)
	t.mu.Unlock()
}

// Roster returns a snapshot of tracked participants, most recently active
// first. Participants idle longer than staleThreshold are excluded; pass 0 to
// include everyone.
func (t *Tracker) Roster(staleThreshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	entries := make([]Entry, 0, len(t.participants))

	for id, state := range t.participants {
		idle := now.Sub(state.lastSeen)
		if staleThreshold > 0 && idle > staleThreshold {
			continue
		}

		firstSeen := state.firstSeen
		if firstSeen.IsZero() {
			firstSeen = t.started
		}

		entries = append(entries, Entry{
			ParticipantID: id,
			WorkerID:      state.workerID,
			SessionTag:    state.sessionTag,
			LastSeen:      state.lastSeen,
			FirstSeen:     firstSeen,
			LastBeat:      state.lastBeat,
			IdleSecs:      idle.Seconds(),
			BeatCount:     state.beatCount,
			ConnectedSecs: now.Sub(firstSeen).Seconds(),
			Reaped:        state.reaped,
			ReapedAt:      state.reapedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})

	return entries
}

// StartReaper launches a background goroutine that periodically marks
// silent participants as dead. Call Stop to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.DeadThreshold == 0 {
		cfg.DeadThreshold = 2 * time.Minute
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 10 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 15 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"dead_threshold", cfg.DeadThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := time.Now()

	type deadParticipant struct {
		id         string
		sessionTag string
	}
	var newlyDead []deadParticipant

	t.mu.Lock()
	for id, state := range t.participants {
		if state.reaped {
			if !state.reapedAt.IsZero() && now.Sub(state.reapedAt) > cfg.EvictAfter {
				delete(t.participants, id)
			}
			continue
		}
		if now.Sub(state.lastSeen) > cfg.DeadThreshold {
			state.reaped = true
			state.reapedAt = now
			newlyDead = append(newlyDead, deadParticipant{id: id, sessionTag: state.sessionTag})
		}
	}
	t.mu.Unlock()

	for _, dead := range newlyDead {
		slog.Info("presence: reaper marked participant dead",
			"participant", dead.id,
			"session", dead.sessionTag,
			"threshold", cfg.DeadThreshold)
		if cfg.OnDead != nil {
			cfg.OnDead(dead.id, dead.sessionTag)
		}
	}
}
