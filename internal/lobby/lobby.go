// Package lobby onboards connected participants, pairs them first come first
// served and drives each pair's session to completion.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alfredjeanlab/nego/internal/config"
	"github.com/alfredjeanlab/nego/internal/events"
	"github.com/alfredjeanlab/nego/internal/idgen"
	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/session"
)

// Onboarder prepares a participant for pairing.
type Onboarder interface {
	Run(ctx context.Context, p session.Proxy, profile *model.Participant) error
}

// Finisher tears a finished session down.
type Finisher interface {
	Shutdown(ctx context.Context, s *session.Session) (*model.SessionRecord, error)
}

// Config controls pairing and the sessions the lobby starts.
type Config struct {
	Task           config.Task
	TurnTimeout    time.Duration
	ReleaseTimeout time.Duration // for participants dropped from the queue

	// Rand shuffles each session's turn order. A nil Rand uses a randomly
	// seeded source.
	Rand      *rand.Rand
	Publisher events.Publisher
	Logger    *slog.Logger

	// NewTag overrides session tag generation.
	NewTag func() (string, error)

	OnMatched  func(tag string, participantIDs []string)
	OnFinished func(rec *model.SessionRecord)

	// OnDropped is called after a participant who never reached a session
	// has been released.
	OnDropped func(participantID string)
}

// LiveSession describes a session that is still being driven.
type LiveSession struct {
	Tag          string    `json:"tag"`
	Participants []string  `json:"participants"`
	StartedAt    time.Time `json:"started_at"`
}

// Lobby pairs participants. It is safe for concurrent use.
type Lobby struct {
	cfg      Config
	onboard  Onboarder
	finisher Finisher
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	rng    *rand.Rand
	queue  []session.Member
	active map[string]LiveSession
}

// New creates a lobby. Sessions run until Close.
func New(cfg Config, onboard Onboarder, finisher Finisher) *Lobby {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = &events.NoopPublisher{}
	}
	if cfg.NewTag == nil {
		cfg.NewTag = idgen.SessionTag
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Lobby{
		cfg:      cfg,
		onboard:  onboard,
		finisher: finisher,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		rng:      rng,
		active:   make(map[string]LiveSession),
	}
}

// Join onboards the participant and queues them for pairing. It returns once
// the participant is queued or paired; the session itself runs in the
// background. A participant who departs during onboarding is released and
// model.ErrDeparted is returned.
func (l *Lobby) Join(ctx context.Context, p session.Proxy, profile *model.Participant) error {
	if err := l.onboard.Run(ctx, p, profile); err != nil {
		l.release(p)
		return fmt.Errorf("onboard %s: %w", p.ID(), err)
	}
	return l.Enqueue(session.Member{Proxy: p, Profile: profile})
}

// Enqueue adds an already onboarded participant to the queue and starts a
// session for every complete pair.
func (l *Lobby) Enqueue(m session.Member) error {
	if err := l.ctx.Err(); err != nil {
		l.release(m.Proxy)
		return fmt.Errorf("lobby closed: %w", err)
	}

	l.mu.Lock()
	l.queue = append(l.queue, m)
	l.pruneLocked()
	var pairs [][]session.Member
	for len(l.queue) >= 2 {
		pairs = append(pairs, []session.Member{l.queue[0], l.queue[1]})
		l.queue = l.queue[2:]
	}
	l.mu.Unlock()

	var errs []error
	for _, pair := range pairs {
		if err := l.start(pair); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// pruneLocked drops and releases participants who departed while waiting.
func (l *Lobby) pruneLocked() {
	kept := l.queue[:0]
	for _, m := range l.queue {
		if m.Proxy.Flags().Departed() {
			l.logger.Info("lobby dropped departed participant", "participant", m.Proxy.ID())
			go l.release(m.Proxy)
			continue
		}
		kept = append(kept, m)
	}
	l.queue = kept
}

func (l *Lobby) start(pair []session.Member) error {
	tag, err := l.cfg.NewTag()
	if err != nil {
		l.requeue(pair)
		return fmt.Errorf("new session tag: %w", err)
	}

	l.mu.Lock()
	s, err := session.New(session.Config{
		Tag:           tag,
		Reward:        l.cfg.Task.Reward,
		Timeout:       l.cfg.TurnTimeout,
		DealThreshold: l.cfg.Task.DealThreshold,
		Rand:          l.rng,
		Publisher:     l.cfg.Publisher,
		Logger:        l.logger,
	}, pair)
	if err == nil {
		l.active[tag] = LiveSession{Tag: tag, Participants: s.Order(), StartedAt: time.Now().UTC()}
	}
	l.mu.Unlock()
	if err != nil {
		for _, m := range pair {
			go l.release(m.Proxy)
		}
		return fmt.Errorf("start session: %w", err)
	}

	l.logger.Info("lobby paired participants", "session", tag, "participants", s.Order())
	if l.cfg.OnMatched != nil {
		l.cfg.OnMatched(tag, s.Order())
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.drive(s)
	}()
	return nil
}

func (l *Lobby) requeue(pair []session.Member) {
	l.mu.Lock()
	l.queue = append(pair, l.queue...)
	l.mu.Unlock()
}

// drive ticks the session until it is done, then hands it to the finisher.
// Shutdown runs even when the lobby is closing so participants are always
// released.
func (l *Lobby) drive(s *session.Session) {
	log := l.logger.With("session", s.Tag())
	for !s.Done() {
		if err := s.Tick(l.ctx); err != nil {
			log.Error("session stopped", "err", err)
			break
		}
	}

	rec, err := l.finisher.Shutdown(context.WithoutCancel(l.ctx), s)
	if err != nil {
		log.Error("session shutdown", "err", err)
	}

	l.mu.Lock()
	delete(l.active, s.Tag())
	l.mu.Unlock()

	if rec != nil && l.cfg.OnFinished != nil {
		l.cfg.OnFinished(rec)
	}
}

func (l *Lobby) release(p session.Proxy) {
	timeout := l.cfg.ReleaseTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.Release(ctx, timeout); err != nil {
		l.logger.Warn("lobby release failed", "participant", p.ID(), "err", err)
	}
	if l.cfg.OnDropped != nil {
		l.cfg.OnDropped(p.ID())
	}
}

// Waiting returns the number of queued participants.
func (l *Lobby) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Active returns the sessions currently being driven.
func (l *Lobby) Active() []LiveSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LiveSession, 0, len(l.active))
	for _, s := range l.active {
		out = append(out, s)
	}
	return out
}

// Close stops accepting participants, cancels running sessions and waits
// for their shutdown to finish. Queued participants are released.
func (l *Lobby) Close() {
	l.cancel()

	l.mu.Lock()
	queued := l.queue
	l.queue = nil
	l.mu.Unlock()
	for _, m := range queued {
		l.release(m.Proxy)
	}

	l.wg.Wait()
}
