package main

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/nego/internal/lobby"
	"github.com/alfredjeanlab/nego/internal/model"
	"github.com/alfredjeanlab/nego/internal/ui"
)

func TestMain(m *testing.M) {
	ui.ForceNoColor()
	os.Exit(m.Run())
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{model.NotApplicable, "-"},
		{0, "$0.00"},
		{1.15, "$1.15"},
	}
	for _, tt := range tests {
		if got := formatMoney(tt.in); got != tt.want {
			t.Errorf("formatMoney(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDeal(t *testing.T) {
	d := &model.Deal{
		YouGet:  map[string]int{"Water": 1, "Food": 2, "Firewood": 0},
		TheyGet: map[string]int{"Water": 2, "Food": 1, "Firewood": 3},
	}
	want := "you Firewood=0 Food=2 Water=1 / they Firewood=3 Food=1 Water=2"
	if got := formatDeal(d); got != want {
		t.Errorf("formatDeal = %q, want %q", got, want)
	}
	if got := formatDeal(nil); got != "" {
		t.Errorf("formatDeal(nil) = %q, want empty", got)
	}
}

func TestFormatAction(t *testing.T) {
	tests := []struct {
		name string
		a    *model.Action
		want string
	}{
		{"message", &model.Action{SenderID: "np-a", Kind: model.ActionMessage, Text: "hi"}, "np-a: hi"},
		{"deal", &model.Action{
			SenderID: "np-b",
			Kind:     model.ActionSubmitDeal,
			Deal:     &model.Deal{YouGet: map[string]int{"Food": 1}, TheyGet: map[string]int{"Food": 2}},
		}, "np-b " + string(model.ActionSubmitDeal) + " you Food=1 / they Food=2"},
		{"accept", &model.Action{SenderID: "np-a", Kind: model.ActionAcceptDeal}, "np-a " + string(model.ActionAcceptDeal)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAction(tt.a); got != tt.want {
				t.Errorf("formatAction = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintSessionListTable(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	recs := []*model.SessionRecord{
		{
			Tag:       "ns-abc",
			Completed: true,
			TurnCount: 7,
			CreatedAt: created,
			Participants: []*model.Participant{
				model.NewParticipant("np-a", "W1", "A1"),
				model.NewParticipant("np-b", "W2", "A2"),
			},
		},
	}

	var buf bytes.Buffer
	printSessionListTable(&buf, recs, 3)
	out := buf.String()

	for _, want := range []string{"TAG", "ns-abc", "completed", "W1,W2", "2026-03-01 12:30", "1 of 3 sessions"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSessionTable(t *testing.T) {
	a := model.NewParticipant("np-a", "W1", "A1")
	a.WorkQuality = model.VerdictPass
	a.MeanWords = 12.5
	a.DummyWrong = 0
	a.FinalBasePay = 1.0
	a.PerformanceBonus = 0.35
	b := model.NewParticipant("np-b", "W2", "A2")

	rec := &model.SessionRecord{
		Tag:          "ns-xyz",
		Departed:     []string{"np-b"},
		TurnCount:    3,
		Participants: []*model.Participant{a, b},
		Actions: []*model.Action{
			{SenderID: "np-a", Kind: model.ActionMessage, Text: "hello"},
		},
	}

	var buf bytes.Buffer
	printSessionTable(&buf, rec)
	out := buf.String()

	for _, want := range []string{"ns-xyz", "incomplete", "Departed:    np-b", "12.5", "$1.00", "$0.35", "Transcript:", "np-a: hello"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Created At") {
		t.Errorf("zero CreatedAt should be omitted:\n%s", out)
	}
}

func TestPrintLiveTable(t *testing.T) {
	now := time.Now()
	live := []lobby.LiveSession{
		{Tag: "ns-1", Participants: []string{"np-a", "np-b"}, StartedAt: now.Add(-90 * time.Second)},
	}

	var buf bytes.Buffer
	printLiveTable(&buf, live, 1, now)
	out := buf.String()

	for _, want := range []string{"ns-1", "np-a,np-b", "1m30s", "1 live, 1 waiting"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
