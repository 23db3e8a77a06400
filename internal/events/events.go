package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/nego/internal/model"
)

// Event topic constants
const (
	TopicSessionStarted       = "nego.session.started"
	TopicSessionDealSubmitted = "nego.session.deal_submitted"
	TopicSessionFinished      = "nego.session.finished"

	TopicParticipantDeparted = "nego.participant.departed"

	// Handoff events
	TopicPaymentBonusPaid = "nego.payment.bonus_paid"
	TopicWorkerBlocked    = "nego.worker.blocked"
)

// Event types

type SessionStarted struct {
	Tag          string    `json:"tag"`
	Participants []string  `json:"participants"`
	At           time.Time `json:"at"`
}

type DealSubmitted struct {
	Tag      string      `json:"tag"`
	SenderID string      `json:"sender_id"`
	Deal     *model.Deal `json:"deal"`
}

type SessionFinished struct {
	Tag       string   `json:"tag"`
	Completed bool     `json:"completed"`
	Departed  []string `json:"departed,omitempty"`
	TurnCount int      `json:"turns"`
}

type ParticipantDeparted struct {
	Tag           string          `json:"tag"`
	ParticipantID string          `json:"participant_id"`
	Flags         model.ConnFlags `json:"flags"`
}

type BonusPaid struct {
	Tag           string  `json:"tag"`
	ParticipantID string  `json:"participant_id"`
	WorkerID      string  `json:"worker_id"`
	Amount        float64 `json:"amount"`
	Reason        string  `json:"reason,omitempty"`
	Token         string  `json:"token"`
}

type WorkerBlocked struct {
	Tag           string `json:"tag"`
	WorkerID      string `json:"worker_id"`
	Qualification string `json:"qualification"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
