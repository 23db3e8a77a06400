package model

// Status is a participant's position in the negotiation protocol. It doubles
// as the board status the client renders.
type Status string

const (
	StatusChat          Status = "CHAT"
	StatusDealWaitSelf  Status = "DEAL_WAIT_SELF"  // submitted a deal, waiting on the counterpart
	StatusDealWaitOther Status = "DEAL_WAIT_OTHER" // must accept, reject or walk away
	StatusSurveyWait    Status = "SURVEY_WAIT"
	StatusSurveyEnter   Status = "SURVEY_ENTER"
	StatusEnd           Status = "END"
)

// Onboarding board statuses. These never appear in a session's status map.
const (
	BoardOnboardSurveyCode  Status = "ONBOARD_FILL_SURVEY_CODE"
	BoardOnboardPrefReasons Status = "ONBOARD_FILL_PREF_REASONS"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is one of the session statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusChat, StatusDealWaitSelf, StatusDealWaitOther,
		StatusSurveyWait, StatusSurveyEnter, StatusEnd:
		return true
	}
	return false
}

// PairAllowed reports whether two participants may simultaneously hold the
// statuses a and b. The relation is symmetric.
func PairAllowed(a, b Status) bool {
	switch {
	case a == StatusChat && b == StatusChat:
		return true
	case a == StatusEnd && b == StatusEnd:
		return true
	case a == StatusDealWaitSelf && b == StatusDealWaitOther,
		a == StatusDealWaitOther && b == StatusDealWaitSelf:
		return true
	case a == StatusSurveyWait && b == StatusSurveyEnter,
		a == StatusSurveyEnter && b == StatusSurveyWait:
		return true
	}
	return false
}
