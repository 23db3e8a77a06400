package model

import "time"

// SessionRecord is the persisted outcome of one pairing.
type SessionRecord struct {
	Tag          string         `json:"world_tag"`
	Completed    bool           `json:"convo_is_finished"`
	Departed     []string       `json:"departed"`
	Actions      []*Action      `json:"acts"`
	TurnCount    int            `json:"turns"`
	Participants []*Participant `json:"workers"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Participant returns the participant with the given id, or nil.
func (r *SessionRecord) Participant(id string) *Participant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Completed *bool
	WorkerID  string
	Limit     int
	Offset    int
}
