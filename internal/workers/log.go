package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/nego/internal/model"
)

// LogDirectory records platform operations in the log without calling any
// platform. It is used when no worker API is configured.
type LogDirectory struct {
	Logger *slog.Logger
}

func (d *LogDirectory) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *LogDirectory) Approve(_ context.Context, p *model.Participant) error {
	d.logger().Info("workers: approve", "worker", p.WorkerID, "assignment", p.AssignmentID)
	return nil
}

func (d *LogDirectory) PayBonus(_ context.Context, p *model.Participant, amount float64, reason string) (*Receipt, error) {
	r := &Receipt{
		WorkerID:     p.WorkerID,
		AssignmentID: p.AssignmentID,
		Amount:       amount,
		Token:        uuid.NewString(),
		PaidAt:       time.Now().UTC(),
	}
	d.logger().Info("workers: pay bonus", "worker", p.WorkerID, "amount", amount, "reason", reason, "token", r.Token)
	return r, nil
}

func (d *LogDirectory) GrantBlockingQualification(_ context.Context, p *model.Participant, qualificationID string) error {
	d.logger().Info("workers: grant blocking qualification", "worker", p.WorkerID, "qualification", qualificationID)
	return nil
}
