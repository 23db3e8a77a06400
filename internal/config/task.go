package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Task holds the negotiation scenario and the pay rules for every session.
type Task struct {
	SurveyLink string   `toml:"survey_link"`
	Issues     []string `toml:"issues"`
	Items      int      `toml:"items"`

	// DealThreshold is the message count at which deal entry unlocks.
	DealThreshold int `toml:"deal_threshold"`

	Reward             float64       `toml:"reward"`      // paid by the platform on approval
	SessionPay         float64       `toml:"session_pay"` // total fixed pay per completed session
	Weights            Weights       `toml:"weights"`
	FallbackBonus      float64       `toml:"fallback_bonus"`
	FallbackReason     string        `toml:"fallback_reason"`
	BlockQualification string        `toml:"block_qualification"`
	QualityRules       []QualityRule `toml:"quality_rules"`
}

// Weights is the bonus paid per item of each tier.
type Weights struct {
	High   float64 `toml:"high"`
	Medium float64 `toml:"medium"`
	Low    float64 `toml:"low"`
}

// QualityRule fails a participant whose mean message length is at most
// MaxMeanWords while getting at least MinDummyWrong attention checks wrong.
type QualityRule struct {
	MaxMeanWords  float64 `toml:"max_mean_words"`
	MinDummyWrong int     `toml:"min_dummy_wrong"`
}

// DefaultTask returns the built-in camping scenario.
func DefaultTask() Task {
	return Task{
		SurveyLink:     "https://www.google.com/",
		Issues:         []string{"Food", "Water", "Firewood"},
		Items:          3,
		DealThreshold:  10,
		Reward:         2.00,
		SessionPay:     3.00,
		Weights:        Weights{High: 0.41, Medium: 0.33, Low: 0.26},
		FallbackBonus:  0.01,
		FallbackReason: "Thank you for taking part. Your messages were too short or your answers to the final questions did not match your priorities, so only the minimum bonus was paid.",
		QualityRules: []QualityRule{
			{MaxMeanWords: 2, MinDummyWrong: 0},
			{MaxMeanWords: 4, MinDummyWrong: 1},
			{MaxMeanWords: 6, MinDummyWrong: 2},
		},
	}
}

// LoadTask reads a TOML task file on top of DefaultTask. An empty path
// returns the defaults.
func LoadTask(path string) (Task, error) {
	task := DefaultTask()
	if path == "" {
		return task, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Task{}, fmt.Errorf("read task file: %w", err)
	}
	return ParseTask(string(data))
}

// ParseTask decodes TOML task text on top of DefaultTask and validates it.
func ParseTask(text string) (Task, error) {
	task := DefaultTask()
	md, err := toml.Decode(text, &task)
	if err != nil {
		return Task{}, fmt.Errorf("decode task: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Task{}, fmt.Errorf("decode task: unknown key %q", undecoded[0].String())
	}
	if err := task.Validate(); err != nil {
		return Task{}, err
	}
	return task, nil
}

// Validate rejects task parameters the session or scorer cannot work with.
func (t Task) Validate() error {
	switch {
	case len(t.Issues) != 3:
		return fmt.Errorf("task: need exactly 3 issues, got %d", len(t.Issues))
	case t.Items <= 0:
		return fmt.Errorf("task: items must be positive, got %d", t.Items)
	case t.DealThreshold < 0:
		return fmt.Errorf("task: deal_threshold must not be negative")
	case t.Reward < 0 || t.SessionPay < t.Reward:
		return fmt.Errorf("task: session_pay (%.2f) must be at least reward (%.2f)", t.SessionPay, t.Reward)
	case t.Weights.High < 0 || t.Weights.Medium < 0 || t.Weights.Low < 0:
		return fmt.Errorf("task: weights must not be negative")
	case t.FallbackBonus < 0:
		return fmt.Errorf("task: fallback_bonus must not be negative")
	case len(t.QualityRules) != 3:
		return fmt.Errorf("task: need exactly 3 quality rules, got %d", len(t.QualityRules))
	}
	seen := make(map[string]bool, len(t.Issues))
	for _, issue := range t.Issues {
		if issue == "" || seen[issue] {
			return fmt.Errorf("task: issue names must be unique and non-empty")
		}
		seen[issue] = true
	}
	return nil
}
