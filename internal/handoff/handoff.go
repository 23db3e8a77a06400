// Package handoff finishes a session: it releases both participants, scores
// the transcript, persists the record and settles with the worker platform.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/alfredjeanlab/nego/internal/events"
	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/scoring"
	"github.com/alfredjeanlab/nego/internal/session"
	"github.com/alfredjeanlab/nego/internal/workers"
)

// passReason accompanies every full bonus payment.
const passReason = "Thank you for completing the negotiation. This bonus reflects the deal you reached."

// Saver persists finished sessions.
type Saver interface {
	SaveSession(ctx context.Context, rec *model.SessionRecord) error
}

// Config holds the payment rules applied at shutdown.
type Config struct {
	Scoring            scoring.Params
	FallbackBonus      float64
	FallbackReason     string
	BlockQualification string // empty disables soft-blocking
	ReleaseTimeout     time.Duration
}

// Controller runs the shutdown sequence for finished sessions.
type Controller struct {
	cfg       Config
	store     Saver
	directory workers.Directory
	publisher events.Publisher
	log       *slog.Logger
}

// New creates a Controller. A nil publisher disables events and a nil
// logger uses slog.Default.
func New(cfg Config, store Saver, dir workers.Directory, pub events.Publisher, logger *slog.Logger) *Controller {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{cfg: cfg, store: store, directory: dir, publisher: pub, log: logger}
}

// Shutdown releases both participants, scores and saves the session, then
// approves, pays and soft-blocks. A failure for one participant never stops
// the other's handling; all failures are joined into the returned error.
func (c *Controller) Shutdown(ctx context.Context, s *session.Session) (*model.SessionRecord, error) {
	log := c.log.With("session", s.Tag())
	members := s.Members()
	var errs []error

	errs = append(errs, fanOut(members, func(m session.Member) error {
		return m.Proxy.Release(ctx, c.cfg.ReleaseTimeout)
	})...)

	rec := s.Record()
	params := c.cfg.Scoring
	params.Reward = s.Reward()
	scoring.Score(rec, params, log)

	if err := c.store.SaveSession(ctx, rec); err != nil {
		log.Error("failed to save session", "err", err)
		errs = append(errs, fmt.Errorf("saving session %s: %w", rec.Tag, err))
	}

	errs = append(errs, fanOut(members, func(m session.Member) error {
		p := m.Profile
		if !p.Matched || slices.Contains(rec.Departed, p.ID) {
			log.Info("skipping approval", "participant", p.ID, "matched", p.Matched)
			return nil
		}
		if err := c.directory.Approve(ctx, p); err != nil {
			return fmt.Errorf("approving: %w", err)
		}
		log.Info("approved", "participant", p.ID, "worker", p.WorkerID)
		return nil
	})...)

	if rec.Completed {
		for _, p := range rec.Participants {
			if err := c.settle(ctx, rec.Tag, p, log); err != nil {
				errs = append(errs, fmt.Errorf("participant %s: %w", p.ID, err))
			}
		}
	}

	c.publish(ctx, log, events.TopicSessionFinished, events.SessionFinished{
		Tag:       rec.Tag,
		Completed: rec.Completed,
		Departed:  rec.Departed,
		TurnCount: rec.TurnCount,
	})

	err := errors.Join(errs...)
	if err != nil {
		log.Warn("shutdown finished with errors", "err", err)
	}
	return rec, err
}

// settle pays the participant and soft-blocks them if they failed the
// quality gate. A failed payment does not prevent the block.
func (c *Controller) settle(ctx context.Context, tag string, p *model.Participant, log *slog.Logger) error {
	amount, reason := BonusFor(p, c.cfg.FallbackBonus, c.cfg.FallbackReason)

	var errs []error
	receipt, err := c.directory.PayBonus(ctx, p, amount, reason)
	if err != nil {
		log.Error("bonus payment failed", "participant", p.ID, "amount", amount, "err", err)
		errs = append(errs, fmt.Errorf("paying bonus: %w", err))
	} else {
		log.Info("bonus paid", "participant", p.ID, "amount", amount, "verdict", p.WorkQuality)
		c.publish(ctx, log, events.TopicPaymentBonusPaid, events.BonusPaid{
			Tag:           tag,
			ParticipantID: p.ID,
			WorkerID:      p.WorkerID,
			Amount:        amount,
			Reason:        reason,
			Token:         receipt.Token,
		})
	}

	if p.WorkQuality != model.VerdictPass && c.cfg.BlockQualification != "" {
		if err := c.directory.GrantBlockingQualification(ctx, p, c.cfg.BlockQualification); err != nil {
			log.Error("soft-block failed", "participant", p.ID, "err", err)
			errs = append(errs, fmt.Errorf("soft-blocking: %w", err))
		} else {
			log.Info("worker soft-blocked", "participant", p.ID, "verdict", p.WorkQuality)
			c.publish(ctx, log, events.TopicWorkerBlocked, events.WorkerBlocked{
				Tag:           tag,
				WorkerID:      p.WorkerID,
				Qualification: c.cfg.BlockQualification,
			})
		}
	}
	return errors.Join(errs...)
}

// BonusFor returns what a scored participant is paid: base pay plus the
// performance bonus, rounded to cents, when they passed the quality gate,
// and the fallback amount with its reason otherwise.
func BonusFor(p *model.Participant, fallback float64, fallbackReason string) (float64, string) {
	if p.WorkQuality != model.VerdictPass {
		return fallback, fallbackReason
	}
	return math.Round((p.FinalBasePay+p.PerformanceBonus)*100) / 100, passReason
}

func (c *Controller) publish(ctx context.Context, log *slog.Logger, topic string, event any) {
	if err := c.publisher.Publish(ctx, topic, event); err != nil {
		log.Warn("failed to publish event", "topic", topic, "err", err)
	}
}

// fanOut runs fn for every member concurrently and waits for all of them. A
// panic in one call is recovered and reported as that member's error.
func fanOut(members []session.Member, fn func(session.Member) error) []error {
	errs := make([]error, len(members))
	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("participant %s: panic: %v", m.Profile.ID, r)
				}
			}()
			if err := fn(m); err != nil {
				errs[i] = fmt.Errorf("participant %s: %w", m.Profile.ID, err)
			}
		}()
	}
	wg.Wait()
	return errs
}
