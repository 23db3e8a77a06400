package model

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateAction checks the shape of an inbound action: a known kind and the
// payload that kind requires. It does not judge the deal's fairness.
func ValidateAction(a *Action) error {
	var ve ValidationError

	if !a.Kind.IsValid() {
		ve.add("kind", "invalid value %q", a.Kind)
	}
	switch a.Kind {
	case ActionMessage:
		if strings.TrimSpace(a.Text) == "" {
			ve.add("text", "is required")
		}
	case ActionSubmitDeal:
		if a.Deal == nil {
			ve.add("deal", "is required for %s", a.Kind)
		}
	case ActionSubmitSurvey:
		if a.Survey == nil {
			ve.add("survey", "is required for %s", a.Kind)
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateDeal checks that every issue is allocated on both sides and that
// each issue's split is within [0, items] and sums to items.
func ValidateDeal(d *Deal, issues []string, items int) error {
	var ve ValidationError
	if d == nil {
		ve.add("deal", "is required")
		return &ve
	}
	for _, issue := range issues {
		you, okYou := d.YouGet[issue]
		they, okThey := d.TheyGet[issue]
		if !okYou {
			ve.add("issue2youget."+issue, "is required")
		}
		if !okThey {
			ve.add("issue2theyget."+issue, "is required")
		}
		if !okYou || !okThey {
			continue
		}
		if you < 0 || you > items || they < 0 || they > items {
			ve.add(issue, "counts must be between 0 and %d, got %d/%d", items, you, they)
		} else if you+they != items {
			ve.add(issue, "counts must sum to %d, got %d", items, you+they)
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateSurvey checks that the attention-check answers name known issues.
func ValidateSurvey(s *SurveyResponse, issues []string) error {
	var ve ValidationError
	if s == nil {
		ve.add("survey", "is required")
		return &ve
	}
	if !slices.Contains(issues, s.HighestItem) {
		ve.add("highest_item", "unknown issue %q", s.HighestItem)
	}
	if !slices.Contains(issues, s.LowestItem) {
		ve.add("lowest_item", "unknown issue %q", s.LowestItem)
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
