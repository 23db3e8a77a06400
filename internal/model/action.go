package model

import (
	"errors"
	"time"
)

// ErrDeparted is returned by a participant proxy when the participant
// disconnected, abandoned, expired, returned the task or failed to act
// before the turn timeout.
var ErrDeparted = errors.New("participant departed")

// ActionKind identifies what a participant did on their turn.
type ActionKind string

const (
	ActionMessage      ActionKind = "Message"
	ActionSubmitDeal   ActionKind = "Submit-Deal"
	ActionAcceptDeal   ActionKind = "Accept-Deal"
	ActionRejectDeal   ActionKind = "Reject-Deal"
	ActionWalkAway     ActionKind = "Walk-Away"
	ActionSubmitSurvey ActionKind = "Submit-Post-Survey"
	ActionOnboarding   ActionKind = "Onboarding"
)

// String returns the string representation of the action kind.
func (k ActionKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionMessage, ActionSubmitDeal, ActionAcceptDeal, ActionRejectDeal,
		ActionWalkAway, ActionSubmitSurvey, ActionOnboarding:
		return true
	}
	return false
}

// IsControl reports whether the kind is a button press rather than free text.
func (k ActionKind) IsControl() bool {
	return k != ActionMessage
}

// Action is one entry of the session transcript.
type Action struct {
	SenderID    string              `json:"sender_id"`
	Kind        ActionKind          `json:"kind"`
	Text        string              `json:"text,omitempty"`
	Deal        *Deal               `json:"deal,omitempty"`
	Survey      *SurveyResponse     `json:"survey,omitempty"`
	Onboarding  *OnboardingResponse `json:"onboarding,omitempty"`
	EpisodeDone bool                `json:"episode_done,omitempty"`
	At          time.Time           `json:"at"`
}

// Deal is a proposed split of every issue's items. It is written from the
// submitter's point of view: the counterpart's "you" is the submitter's "they".
type Deal struct {
	YouGet  map[string]int `json:"issue2youget"`
	TheyGet map[string]int `json:"issue2theyget"`
}

// Allocation returns the counts for one side of the deal, keyed by issue.
// mine selects the submitter's side.
func (d *Deal) Allocation(mine bool) map[string]int {
	if d == nil {
		return nil
	}
	if mine {
		return d.YouGet
	}
	return d.TheyGet
}

// SurveyResponse is the post-negotiation questionnaire. HighestItem and
// LowestItem double as the attention check.
type SurveyResponse struct {
	Likeness           string `json:"likeness,omitempty"`
	Satisfaction       string `json:"satisfaction,omitempty"`
	HighestItem        string `json:"highest_item"`
	LowestItem         string `json:"lowest_item"`
	PartnerHighestItem string `json:"partner_highest_item,omitempty"`
	PartnerLowestItem  string `json:"partner_lowest_item,omitempty"`
	Feedback           string `json:"feedback,omitempty"`
}

// OnboardingResponse carries answers collected before pairing.
type OnboardingResponse struct {
	SurveyCode string            `json:"survey_code,omitempty"`
	Reasons    map[string]string `json:"reasons,omitempty"`
}
