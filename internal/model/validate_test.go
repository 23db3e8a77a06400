package model

import (
	"errors"
	"strings"
	"testing"
)

var testIssues = []string{"Food", "Water", "Firewood"}

func fullDeal() *Deal {
	return &Deal{
		YouGet:  map[string]int{"Food": 2, "Water": 1, "Firewood": 0},
		TheyGet: map[string]int{"Food": 1, "Water": 2, "Firewood": 3},
	}
}

func TestValidateDeal(t *testing.T) {
	for _, tc := range []struct {
		name    string
		deal    func() *Deal
		wantErr string
	}{
		{"Valid", fullDeal, ""},
		{"Nil", func() *Deal { return nil }, "deal: is required"},
		{"MissingYou", func() *Deal {
			d := fullDeal()
			delete(d.YouGet, "Water")
			return d
		}, "issue2youget.Water"},
		{"MissingThey", func() *Deal {
			d := fullDeal()
			delete(d.TheyGet, "Food")
			return d
		}, "issue2theyget.Food"},
		{"BadSum", func() *Deal {
			d := fullDeal()
			d.TheyGet["Food"] = 2
			return d
		}, "must sum to 3"},
		{"OutOfRange", func() *Deal {
			d := fullDeal()
			d.YouGet["Firewood"] = -1
			d.TheyGet["Firewood"] = 4
			return d
		}, "between 0 and 3"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDeal(tc.deal(), testIssues, 3)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateSurvey(t *testing.T) {
	if err := ValidateSurvey(&SurveyResponse{HighestItem: "Food", LowestItem: "Water"}, testIssues); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateSurvey(&SurveyResponse{HighestItem: "Gold", LowestItem: "-"}, testIssues)
	if err == nil {
		t.Fatal("expected error")
	}
	ve := err.(*ValidationError)
	if len(ve.Errors) != 2 {
		t.Errorf("expected 2 field errors, got %d: %v", len(ve.Errors), err)
	}
	if ValidateSurvey(nil, testIssues) == nil {
		t.Error("nil survey should fail")
	}
}

func TestValidateAction(t *testing.T) {
	for _, tc := range []struct {
		name    string
		action  Action
		wantErr bool
	}{
		{"Message", Action{Kind: ActionMessage, Text: "I need water for my kids"}, false},
		{"EmptyMessage", Action{Kind: ActionMessage, Text: "   "}, true},
		{"DealWithPayload", Action{Kind: ActionSubmitDeal, Deal: fullDeal()}, false},
		{"DealWithoutPayload", Action{Kind: ActionSubmitDeal}, true},
		{"Survey", Action{Kind: ActionSubmitSurvey, Survey: &SurveyResponse{}}, false},
		{"SurveyWithoutPayload", Action{Kind: ActionSubmitSurvey}, true},
		{"Accept", Action{Kind: ActionAcceptDeal}, false},
		{"UnknownKind", Action{Kind: "Dance"}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAction(&tc.action)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateAction() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
