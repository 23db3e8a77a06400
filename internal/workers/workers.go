// Package workers talks to the crowd platform that approves assignments,
// pays bonuses and manages worker qualifications.
package workers

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/nego/internal/model"
)

// ErrCircuitOpen is returned while the platform API is considered down.
var ErrCircuitOpen = errors.New("workers: circuit open")

// Receipt confirms a bonus payment.
type Receipt struct {
	WorkerID     string    `json:"worker_id"`
	AssignmentID string    `json:"assignment_id"`
	Amount       float64   `json:"amount"`
	Token        string    `json:"unique_request_token"`
	PaidAt       time.Time `json:"paid_at"`
}

// Directory is the set of platform operations the handoff needs.
type Directory interface {
	Approve(ctx context.Context, p *model.Participant) error
	PayBonus(ctx context.Context, p *model.Participant, amount float64, reason string) (*Receipt, error)
	GrantBlockingQualification(ctx context.Context, p *model.Participant, qualificationID string) error
}
