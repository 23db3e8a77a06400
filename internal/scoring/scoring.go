// Package scoring turns a finished session's transcript into base pay, a
// performance bonus and a quality verdict for each participant.
package scoring

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/nego/internal/config"
	"github.com/alfredjeanlab/nego/internal/model"
)

// ErrMalformedDeal is logged when an accepted deal lacks an allocation the
// bonus needs. The affected participant gets no performance bonus.
var ErrMalformedDeal = errors.New("scoring: malformed deal record")

// Rule fails a participant whose mean message length is at most
// MaxMeanWords while at least MinDummyWrong attention checks are wrong.
type Rule struct {
	Verdict       model.Verdict
	MaxMeanWords  float64
	MinDummyWrong int
}

// Params holds the pay rules.
type Params struct {
	SessionPay float64
	Reward     float64
	Weights    map[model.Tier]float64
	Rules      []Rule // checked in order; the first match sets the verdict
}

// ParamsFromTask maps a task definition onto scoring parameters. The task's
// three quality rules become fail_R1, fail_R2 and fail_R3.
func ParamsFromTask(t config.Task) Params {
	verdicts := []model.Verdict{model.VerdictFailR1, model.VerdictFailR2, model.VerdictFailR3}
	p := Params{
		SessionPay: t.SessionPay,
		Reward:     t.Reward,
		Weights: map[model.Tier]float64{
			model.TierHigh:   t.Weights.High,
			model.TierMedium: t.Weights.Medium,
			model.TierLow:    t.Weights.Low,
		},
	}
	for i, r := range t.QualityRules {
		if i >= len(verdicts) {
			break
		}
		p.Rules = append(p.Rules, Rule{Verdict: verdicts[i], MaxMeanWords: r.MaxMeanWords, MinDummyWrong: r.MinDummyWrong})
	}
	return p
}

// Score fills in the pay and quality fields of every participant in rec.
// Sessions that did not complete, or that saw a departure, get every field
// reset to its sentinel. Score only reads the action log, so scoring the
// same record twice gives the same result.
func Score(rec *model.SessionRecord, p Params, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", rec.Tag)

	for _, part := range rec.Participants {
		part.ResetScores()
	}
	if !rec.Completed || len(rec.Departed) > 0 {
		logger.Info("session incomplete, skipping scoring", "departed", rec.Departed)
		return
	}

	bonuses := performanceBonuses(rec, p, logger)
	for _, part := range rec.Participants {
		part.FinalBasePay = p.SessionPay - p.Reward
		part.PerformanceBonus = bonuses[part.ID]
		part.MeanWords, part.DummyWrong, part.WorkQuality = Quality(rec.Actions, part, p.Rules)
		logger.Info("participant scored",
			"participant", part.ID,
			"bonus", part.PerformanceBonus,
			"mean_words", part.MeanWords,
			"dummy_wrong", part.DummyWrong,
			"verdict", part.WorkQuality)
	}
}

// performanceBonuses finds the action that ended the negotiation and prices
// it for each participant.
func performanceBonuses(rec *model.SessionRecord, p Params, logger *slog.Logger) map[string]float64 {
	out := make(map[string]float64, len(rec.Participants))

	idx := lastIndex(rec.Actions, len(rec.Actions), model.ActionAcceptDeal, model.ActionWalkAway)
	if idx < 0 {
		return out
	}
	resolution := rec.Actions[idx]

	if resolution.Kind == model.ActionWalkAway {
		for _, part := range rec.Participants {
			out[part.ID] = p.Weights[model.TierHigh]
		}
		return out
	}

	var deal *model.Deal
	if d := lastIndex(rec.Actions, idx, model.ActionSubmitDeal); d >= 0 {
		deal = rec.Actions[d].Deal
	}
	for _, part := range rec.Participants {
		// The accepter reads the "they" side, the submitter the "you" side.
		alloc := deal.Allocation(part.ID != resolution.SenderID)
		bonus, err := DealBonus(alloc, part.Value2Issue, p.Weights)
		if err != nil {
			logger.Warn("no performance bonus", "participant", part.ID, "err", err)
			continue
		}
		out[part.ID] = bonus
	}
	return out
}

// DealBonus prices an allocation for a participant: the sum over tiers of
// the tier's weight times the count of the issue holding that tier.
func DealBonus(alloc map[string]int, value2issue map[model.Tier]string, weights map[model.Tier]float64) (float64, error) {
	if alloc == nil {
		return 0, fmt.Errorf("%w: no allocation", ErrMalformedDeal)
	}
	var bonus float64
	for _, tier := range model.Tiers {
		issue, ok := value2issue[tier]
		if !ok {
			return 0, fmt.Errorf("%w: no issue holds tier %s", ErrMalformedDeal, tier)
		}
		count, ok := alloc[issue]
		if !ok {
			return 0, fmt.Errorf("%w: no count for %s", ErrMalformedDeal, issue)
		}
		bonus += weights[tier] * float64(count)
	}
	return bonus, nil
}

// Quality computes a participant's mean chat message length, the number of
// attention-check mistakes in their last survey and the resulting verdict.
// A participant without a survey gets both checks counted wrong.
func Quality(actions []*model.Action, part *model.Participant, rules []Rule) (meanWords float64, dummyWrong int, verdict model.Verdict) {
	var words, msgs int
	var last *model.SurveyResponse
	for _, a := range actions {
		if a.SenderID != part.ID {
			continue
		}
		switch a.Kind {
		case model.ActionMessage:
			words += len(strings.Fields(a.Text))
			msgs++
		case model.ActionSubmitSurvey:
			last = a.Survey
		}
	}
	if msgs > 0 {
		meanWords = float64(words) / float64(msgs)
	}

	dummyWrong = 2
	if last != nil {
		dummyWrong = 0
		if last.HighestItem != part.Value2Issue[model.TierHigh] {
			dummyWrong++
		}
		if last.LowestItem != part.Value2Issue[model.TierLow] {
			dummyWrong++
		}
	}

	verdict = model.VerdictPass
	for _, r := range rules {
		if meanWords <= r.MaxMeanWords && dummyWrong >= r.MinDummyWrong && verdict == model.VerdictPass {
			verdict = r.Verdict
		}
	}
	return meanWords, dummyWrong, verdict
}

// lastIndex returns the index of the last action before end whose kind is
// one of kinds, or -1.
func lastIndex(actions []*model.Action, end int, kinds ...model.ActionKind) int {
	for i := end - 1; i >= 0; i-- {
		for _, k := range kinds {
			if actions[i].Kind == k {
				return i
			}
		}
	}
	return -1
}
