package model

// Tier is a private valuation level assigned to one issue.
type Tier string

const (
	TierHigh   Tier = "High"
	TierMedium Tier = "Medium"
	TierLow    Tier = "Low"
)

// Tiers lists every tier from most to least valuable.
var Tiers = []Tier{TierHigh, TierMedium, TierLow}

// IsValid checks whether the tier is a known value.
func (t Tier) IsValid() bool {
	switch t {
	case TierHigh, TierMedium, TierLow:
		return true
	}
	return false
}

// Verdict is the outcome of the quality gate.
type Verdict string

const (
	VerdictPass   Verdict = "pass"
	VerdictFailR1 Verdict = "fail_R1"
	VerdictFailR2 Verdict = "fail_R2"
	VerdictFailR3 Verdict = "fail_R3"
	VerdictNA     Verdict = "NA"
)

// NotApplicable marks a numeric field that was never computed, either because
// scoring has not run or because the session ended with a departure.
const NotApplicable = -1

// ConnFlags is the connection state reported by a participant's transport.
type ConnFlags struct {
	Disconnected bool `json:"disconnected"`
	Abandoned    bool `json:"abandoned"`
	Expired      bool `json:"expired"`
	Returned     bool `json:"returned"`
}

// Departed reports whether any flag ends the participant's availability.
func (f ConnFlags) Departed() bool {
	return f.Disconnected || f.Abandoned || f.Expired || f.Returned
}

// Participant holds everything the service learns about one party during a
// session. Fields are assigned at onboarding and scoring; until then numeric
// fields hold NotApplicable and WorkQuality holds VerdictNA.
type Participant struct {
	ID           string `json:"id"`
	WorkerID     string `json:"worker_id"`
	AssignmentID string `json:"assignment_id"`
	Matched      bool   `json:"matched"`

	SurveyLink         string              `json:"survey_link,omitempty"`
	SurveyCode         string              `json:"survey_code,omitempty"`
	OnboardingResponse *OnboardingResponse `json:"onboarding_response,omitempty"`

	Issues      []string        `json:"issues"`
	Items       int             `json:"items"`
	Values      []Tier          `json:"values"` // Values[i] is the tier of Issues[i]
	Value2Issue map[Tier]string `json:"value2issue"`

	MeanWords        float64 `json:"mean_words"`
	DummyWrong       int     `json:"dummy_wrong"`
	WorkQuality      Verdict `json:"work_quality"`
	FinalBasePay     float64 `json:"final_base_pay"`
	PerformanceBonus float64 `json:"performance_bonus"`
	FinalStatus      Status  `json:"final_status,omitempty"`
}

// NewParticipant returns a participant with every computed field unset.
func NewParticipant(id, workerID, assignmentID string) *Participant {
	p := &Participant{
		ID:           id,
		WorkerID:     workerID,
		AssignmentID: assignmentID,
	}
	p.ResetScores()
	return p
}

// ResetScores puts every scoring and pay field back to its sentinel.
func (p *Participant) ResetScores() {
	p.MeanWords = NotApplicable
	p.DummyWrong = NotApplicable
	p.WorkQuality = VerdictNA
	p.FinalBasePay = NotApplicable
	p.PerformanceBonus = NotApplicable
}

// AssignValues records the tier permutation and derives Value2Issue from it.
func (p *Participant) AssignValues(issues []string, items int, values []Tier) {
	p.Issues = append([]string(nil), issues...)
	p.Items = items
	p.Values = append([]Tier(nil), values...)
	p.Value2Issue = make(map[Tier]string, len(values))
	for i, v := range values {
		if i < len(issues) {
			p.Value2Issue[v] = issues[i]
		}
	}
}
