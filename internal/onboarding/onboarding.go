// Package onboarding collects a participant's pre-survey code, assigns their
// private issue valuations and records their preference reasons before they
// are eligible for pairing.
package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/nego/internal/config"
	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/session"
)

const (
	promptSurveyCode  = "Welcome onboard! Please complete the survey and enter the code on the left."
	promptPrefReasons = "Please complete the requested information on the left."
	promptWait        = "Thank you for your input! Please wait while we match you with another participant..."
	promptRetry       = "We could not read that. Please complete the form on the left and submit again."
)

// Config controls onboarding.
type Config struct {
	Task    config.Task
	Timeout time.Duration // per step

	// Rand draws each participant's tier permutation. A nil Rand uses a
	// randomly seeded source.
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Onboarder runs the onboarding dialogue. It is safe for concurrent use.
type Onboarder struct {
	cfg Config

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// New creates an Onboarder.
func New(cfg Config) *Onboarder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Onboarder{cfg: cfg, rng: rng}
}

// Run onboards one participant and fills in profile. It returns
// model.ErrDeparted when the participant leaves or times out at any step, in
// which case the participant must not be paired.
func (o *Onboarder) Run(ctx context.Context, p session.Proxy, profile *model.Participant) error {
	task := o.cfg.Task
	logger := o.cfg.Logger.With("participant", p.ID())

	p.Observe(model.SystemMessage(promptSurveyCode, &model.Board{
		Status:     model.BoardOnboardSurveyCode,
		SurveyLink: task.SurveyLink,
	}))
	first, err := o.await(ctx, p, func(r *model.OnboardingResponse) bool {
		return strings.TrimSpace(r.SurveyCode) != ""
	})
	if err != nil {
		logger.Info("onboarding abandoned", "step", "survey_code", "err", err)
		return err
	}

	profile.SurveyLink = task.SurveyLink
	profile.SurveyCode = strings.TrimSpace(first.SurveyCode)
	profile.AssignValues(task.Issues, task.Items, o.permutation())

	p.Observe(model.SystemMessage(promptPrefReasons, &model.Board{
		Status:      model.BoardOnboardPrefReasons,
		Value2Issue: profile.Value2Issue,
	}))
	second, err := o.await(ctx, p, func(*model.OnboardingResponse) bool { return true })
	if err != nil {
		logger.Info("onboarding abandoned", "step", "pref_reasons", "err", err)
		return err
	}
	profile.OnboardingResponse = &model.OnboardingResponse{
		SurveyCode: profile.SurveyCode,
		Reasons:    second.Reasons,
	}

	p.Observe(model.SystemMessage(promptWait, nil))
	logger.Info("onboarding complete", "values", profile.Values)
	return nil
}

// await reads actions until one carries an acceptable onboarding response.
// Anything else gets a retry prompt. Retries share the step's timeout, so a
// participant who keeps sending bad input still times out.
func (o *Onboarder) await(ctx context.Context, p session.Proxy, ok func(*model.OnboardingResponse) bool) (*model.OnboardingResponse, error) {
	deadline := time.Now().Add(o.cfg.Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, model.ErrDeparted
		}
		a, err := p.Act(ctx, remaining)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, ctxErr
			}
			return nil, model.ErrDeparted
		}
		if a == nil || a.EpisodeDone || p.Flags().Departed() {
			return nil, model.ErrDeparted
		}
		if a.Kind == model.ActionOnboarding && a.Onboarding != nil && ok(a.Onboarding) {
			return a.Onboarding, nil
		}
		p.Observe(model.SystemMessage(promptRetry, nil))
	}
}

func (o *Onboarder) permutation() []model.Tier {
	values := append([]model.Tier(nil), model.Tiers...)
	o.mu.Lock()
	o.rng.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})
	o.mu.Unlock()
	return values
}
