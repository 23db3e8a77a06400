// Package session runs the turn-by-turn negotiation between two participants.
//
// A Session is driven by repeated calls to Tick until Done reports true. Tick
// is the only mutator of session state and blocks on at most one
// participant's action at a time, so a Session needs no locking as long as a
// single goroutine drives it. Departures are recorded when Act fails or the
// transport flags the participant, and the next tick pushes both
// participants to END.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/alfredjeanlab/nego/internal/events"
	"github.com/alfredjeanlab/nego/internal/model"
)

var (
	ErrParticipantCount     = errors.New("session: exactly two participants are required")
	ErrDuplicateParticipant = errors.New("session: duplicate participant id")
	ErrInvalidState         = errors.New("session: invalid state transition")
)

// Config carries the per-session parameters.
type Config struct {
	Tag     string
	Reward  float64       // base pay for matching, paid on approval
	Timeout time.Duration // per-turn wait bound

	// DealThreshold is the message count at which each participant is told
	// that the deal controls are available.
	DealThreshold int

	// Rand shuffles the turn order when set. A nil Rand keeps the order the
	// members were passed in.
	Rand *rand.Rand

	Publisher events.Publisher
	Logger    *slog.Logger
}

// Member pairs a participant's transport with the profile built at onboarding.
type Member struct {
	Proxy   Proxy
	Profile *model.Participant
}

type seat struct {
	proxy   Proxy
	profile *model.Participant
}

func (st *seat) id() string { return st.proxy.ID() }

// Session is one pairing of two participants.
type Session struct {
	cfg       Config
	log       *slog.Logger
	publisher events.Publisher

	seats  [2]*seat // turn order
	status map[string]model.Status

	actions    []*model.Action
	msgCount   int
	turns      int
	priorityID string // participant who rejected and must act first in CHAT
	lastDeal   *model.Deal
	noticed    map[string]bool // deal-control notice already sent
	surveyed   map[string]bool
	departed   []string

	started   bool
	completed bool
	done      bool
	createdAt time.Time
}

// New validates the members and returns a session with both participants in
// CHAT.
func New(cfg Config, members []Member) (*Session, error) {
	if len(members) != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrParticipantCount, len(members))
	}
	for i, m := range members {
		if m.Proxy == nil || m.Profile == nil {
			return nil, fmt.Errorf("session: member %d is incomplete", i)
		}
		if m.Proxy.ID() != m.Profile.ID {
			return nil, fmt.Errorf("session: member %d proxy id %q does not match profile id %q", i, m.Proxy.ID(), m.Profile.ID)
		}
	}
	if members[0].Proxy.ID() == members[1].Proxy.ID() {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateParticipant, members[0].Proxy.ID())
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = &events.NoopPublisher{}
	}

	s := &Session{
		cfg:       cfg,
		log:       logger.With("session", cfg.Tag),
		publisher: pub,
		status:    make(map[string]model.Status, 2),
		noticed:   make(map[string]bool, 2),
		surveyed:  make(map[string]bool, 2),
		createdAt: time.Now().UTC(),
	}
	for i, m := range members {
		s.seats[i] = &seat{proxy: m.Proxy, profile: m.Profile}
		s.status[m.Proxy.ID()] = model.StatusChat
	}
	if cfg.Rand != nil {
		cfg.Rand.Shuffle(len(s.seats), func(i, j int) {
			s.seats[i], s.seats[j] = s.seats[j], s.seats[i]
		})
	}
	return s, nil
}

// Tag returns the session tag.
func (s *Session) Tag() string { return s.cfg.Tag }

// Done reports whether the session needs no further ticks.
func (s *Session) Done() bool { return s.done }

// Completed reports whether both participants finished the survey without a
// departure.
func (s *Session) Completed() bool { return s.completed }

// Reward returns the base pay for matching.
func (s *Session) Reward() float64 { return s.cfg.Reward }

// LastDeal returns the most recently submitted deal, or nil.
func (s *Session) LastDeal() *model.Deal { return s.lastDeal }

// Status returns the participant's current status.
func (s *Session) Status(id string) model.Status { return s.status[id] }

// MessageCount returns the number of chat messages exchanged so far.
func (s *Session) MessageCount() int { return s.msgCount }

// Order returns the participant ids in turn order.
func (s *Session) Order() []string {
	return []string{s.seats[0].id(), s.seats[1].id()}
}

// Departed returns the ids of participants recorded as departed.
func (s *Session) Departed() []string {
	return append([]string(nil), s.departed...)
}

// Members returns the session's members in turn order.
func (s *Session) Members() []Member {
	return []Member{
		{Proxy: s.seats[0].proxy, Profile: s.seats[0].profile},
		{Proxy: s.seats[1].proxy, Profile: s.seats[1].profile},
	}
}

// Record assembles the persisted view of the session. Participant profiles
// are shared with the session, so scoring the record updates them in place.
func (s *Session) Record() *model.SessionRecord {
	r := &model.SessionRecord{
		Tag:       s.cfg.Tag,
		Completed: s.completed,
		Departed:  s.Departed(),
		Actions:   append([]*model.Action(nil), s.actions...),
		TurnCount: s.turns,
		CreatedAt: s.createdAt,
	}
	for _, st := range s.seats {
		st.profile.FinalStatus = s.status[st.id()]
		r.Participants = append(r.Participants, st.profile)
	}
	return r
}

// Tick advances the session by one unit of work. It returns ErrInvalidState
// (wrapped) if the status pair becomes inconsistent, and the context's error
// if ctx is cancelled while waiting on a participant. Either way both
// participants are pushed to END with a notice and the session is done.
// Ticking a finished session is a no-op.
func (s *Session) Tick(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.turns++
	s.log.Debug("tick", "turn", s.turns)

	if !s.started {
		s.introduce(ctx)
		return nil
	}

	for _, st := range s.seats {
		if !s.hasDeparted(st.id()) && st.proxy.Flags().Departed() {
			s.recordDeparture(ctx, st)
		}
	}
	if len(s.departed) > 0 {
		s.endAll(noticePartnerLeft)
		s.done = true
		s.log.Info("session ended after departure", "departed", s.departed)
		return nil
	}

	for _, st := range s.seats {
		if err := s.step(ctx, st); err != nil {
			s.abort(err)
			return err
		}
		if s.done || len(s.departed) > 0 {
			break
		}
	}
	if len(s.departed) > 0 {
		return nil
	}
	return s.checkPair()
}

func (s *Session) introduce(ctx context.Context) {
	for i, st := range s.seats {
		text := introSecond
		if i == 0 {
			text = introFirst
		}
		n := s.msgCount
		st.proxy.Observe(model.SystemMessage(text, &model.Board{
			Status:      s.status[st.id()],
			NumMsgs:     &n,
			Items:       st.profile.Items,
			Issues:      st.profile.Issues,
			Value2Issue: st.profile.Value2Issue,
		}))
		st.profile.Matched = true
	}
	s.started = true
	s.log.Info("session started", "order", s.Order())
	s.publish(ctx, events.TopicSessionStarted, events.SessionStarted{
		Tag:          s.cfg.Tag,
		Participants: s.Order(),
		At:           s.createdAt,
	})
}

// step runs one seat's share of a tick.
func (s *Session) step(ctx context.Context, st *seat) error {
	id := st.id()
	switch s.status[id] {
	case model.StatusChat:
		return s.stepChat(ctx, st)
	case model.StatusDealWaitOther:
		return s.stepDealResponse(ctx, st)
	case model.StatusSurveyEnter:
		return s.stepSurvey(ctx, st)
	case model.StatusDealWaitSelf, model.StatusSurveyWait, model.StatusEnd:
		return nil
	default:
		return fmt.Errorf("%w: participant %s has status %q", ErrInvalidState, id, s.status[id])
	}
}

func (s *Session) stepChat(ctx context.Context, st *seat) error {
	id := st.id()
	if s.priorityID != "" && s.priorityID != id {
		s.priorityID = ""
		s.log.Debug("yielding to rejecting participant", "participant", id)
		return nil
	}

	if s.msgCount >= s.cfg.DealThreshold && !s.noticed[id] {
		n := s.msgCount
		st.proxy.Observe(model.SystemMessage(noticeDealControls, &model.Board{NumMsgs: &n}))
		s.noticed[id] = true
	}

	act, err := s.await(ctx, st)
	if err != nil || act == nil {
		return err
	}

	other := s.counterpart(st)
	switch act.Kind {
	case model.ActionMessage:
		s.record(act)
		s.msgCount++
		other.proxy.Observe(model.RelayMessage(act))

	case model.ActionSubmitDeal:
		if err := model.ValidateDeal(act.Deal, st.profile.Issues, st.profile.Items); err != nil {
			s.reject(st, act, err)
			return nil
		}
		s.record(act)
		s.lastDeal = act.Deal
		s.transition(st, model.StatusDealWaitSelf, noticeDealSubmitted, nil)
		s.transition(other, model.StatusDealWaitOther, noticeDealReceived, &model.Board{Deal: act.Deal})
		s.publish(ctx, events.TopicSessionDealSubmitted, events.DealSubmitted{
			Tag:      s.cfg.Tag,
			SenderID: id,
			Deal:     act.Deal,
		})

	case model.ActionWalkAway:
		s.record(act)
		s.transition(st, model.StatusSurveyWait, noticeWalkedAway, nil)
		s.transition(other, model.StatusSurveyEnter, noticePartnerWalkedAway, &model.Board{Issues: st.profile.Issues})

	default:
		s.ignore(st, act)
	}
	return nil
}

func (s *Session) stepDealResponse(ctx context.Context, st *seat) error {
	act, err := s.await(ctx, st)
	if err != nil || act == nil {
		return err
	}

	other := s.counterpart(st)
	switch act.Kind {
	case model.ActionRejectDeal:
		s.record(act)
		s.priorityID = st.id()
		s.transition(st, model.StatusChat, noticeRejected, nil)
		s.transition(other, model.StatusChat, noticePartnerRejected, nil)

	case model.ActionAcceptDeal:
		s.record(act)
		s.transition(st, model.StatusSurveyWait, noticeAccepted, nil)
		s.transition(other, model.StatusSurveyEnter, noticePartnerAccepted, &model.Board{Issues: st.profile.Issues})

	case model.ActionWalkAway:
		s.record(act)
		s.transition(st, model.StatusSurveyWait, noticeWalkedAway, nil)
		s.transition(other, model.StatusSurveyEnter, noticePartnerWalkedAway, &model.Board{Issues: st.profile.Issues})

	default:
		s.ignore(st, act)
	}
	return nil
}

func (s *Session) stepSurvey(ctx context.Context, st *seat) error {
	act, err := s.await(ctx, st)
	if err != nil || act == nil {
		return err
	}
	if act.Kind != model.ActionSubmitSurvey {
		s.ignore(st, act)
		return nil
	}
	if err := model.ValidateSurvey(act.Survey, st.profile.Issues); err != nil {
		s.reject(st, act, err)
		return nil
	}

	s.record(act)
	s.surveyed[st.id()] = true

	other := s.counterpart(st)
	if !s.surveyed[other.id()] {
		s.transition(st, model.StatusSurveyWait, noticeSurveyDone, nil)
		if s.status[other.id()] == model.StatusSurveyWait {
			s.transition(other, model.StatusSurveyEnter, noticePartnerSurveyDone, &model.Board{Issues: st.profile.Issues})
		}
		return nil
	}

	s.endAll(noticeFinished)
	s.completed = true
	s.done = true
	s.log.Info("session completed", "turns", s.turns, "messages", s.msgCount)
	return nil
}

// await blocks for the participant's next action. A nil action with a nil
// error means the participant departed; the departure is already recorded.
func (s *Session) await(ctx context.Context, st *seat) (*model.Action, error) {
	act, err := st.proxy.Act(ctx, s.cfg.Timeout)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil || act == nil || act.EpisodeDone {
		if err != nil && !errors.Is(err, model.ErrDeparted) {
			s.log.Warn("participant act failed", "participant", st.id(), "err", err)
		}
		s.recordDeparture(ctx, st)
		return nil, nil
	}
	act.SenderID = st.id()
	if act.At.IsZero() {
		act.At = time.Now().UTC()
	}
	if err := model.ValidateAction(act); err != nil {
		s.reject(st, act, err)
		return nil, nil
	}
	return act, nil
}

func (s *Session) recordDeparture(ctx context.Context, st *seat) {
	id := st.id()
	s.departed = append(s.departed, id)
	s.log.Warn("participant departed", "participant", id, "status", s.status[id])
	s.publish(ctx, events.TopicParticipantDeparted, events.ParticipantDeparted{
		Tag:           s.cfg.Tag,
		ParticipantID: id,
		Flags:         st.proxy.Flags(),
	})
}

func (s *Session) hasDeparted(id string) bool {
	return slices.Contains(s.departed, id)
}

func (s *Session) record(act *model.Action) {
	s.actions = append(s.actions, act)
}

// transition moves a participant to status and tells them why. board may be
// nil; its Status is always overwritten.
func (s *Session) transition(st *seat, status model.Status, text string, board *model.Board) {
	prev := s.status[st.id()]
	s.status[st.id()] = status
	if board == nil {
		board = &model.Board{}
	}
	board.Status = status
	st.proxy.Observe(model.SystemMessage(text, board))
	s.log.Info("status changed", "participant", st.id(), "from", prev, "to", status)
}

// abort ends a session that cannot continue.
func (s *Session) abort(err error) {
	if errors.Is(err, ErrInvalidState) {
		s.log.Error("session aborted", "err", err)
	} else {
		s.log.Warn("session aborted", "err", err)
	}
	s.endAll(noticeAborted)
	s.done = true
}

func (s *Session) endAll(text string) {
	for _, st := range s.seats {
		s.status[st.id()] = model.StatusEnd
		msg := model.SystemMessage(text, &model.Board{Status: model.StatusEnd})
		msg.EpisodeDone = true
		st.proxy.Observe(msg)
	}
}

// ignore drops an action that is not valid in the participant's status and
// tells the sender. Nothing is recorded and the turn passes.
func (s *Session) ignore(st *seat, act *model.Action) {
	s.log.Warn("ignoring action", "participant", st.id(), "kind", act.Kind, "status", s.status[st.id()])
	st.proxy.Observe(model.SystemMessage(noticeUnavailableAction, &model.Board{Status: s.status[st.id()]}))
}

// reject tells a participant that their input was malformed. Their status
// is left unchanged and the action is not logged.
func (s *Session) reject(st *seat, act *model.Action, err error) {
	s.log.Warn("rejecting malformed action", "participant", st.id(), "kind", act.Kind, "err", err)
	st.proxy.Observe(model.SystemMessage(noticeInvalidAction+err.Error(), &model.Board{Status: s.status[st.id()]}))
}

func (s *Session) counterpart(st *seat) *seat {
	if s.seats[0] == st {
		return s.seats[1]
	}
	return s.seats[0]
}

func (s *Session) checkPair() error {
	a, b := s.status[s.seats[0].id()], s.status[s.seats[1].id()]
	if model.PairAllowed(a, b) {
		return nil
	}
	err := fmt.Errorf("%w: %s/%s", ErrInvalidState, a, b)
	s.abort(err)
	return err
}

func (s *Session) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.log.Warn("failed to publish event", "topic", topic, "err", err)
	}
}
