package ui

import (
	"fmt"

	"github.com/alfredjeanlab/nego/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorPass   = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 167 // red
)

var noColor bool

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderWarn returns s in the warning (amber) color.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderVerdict colors a quality verdict: pass green, a failed rule red and
// anything not yet judged muted.
func RenderVerdict(v model.Verdict) string {
	switch v {
	case model.VerdictPass:
		return paint(colorPass, string(v))
	case model.VerdictFailR1, model.VerdictFailR2, model.VerdictFailR3:
		return paint(colorFail, string(v))
	default:
		return paint(colorMuted, string(v))
	}
}

// RenderCompleted renders a session's completion state.
func RenderCompleted(completed bool) string {
	if completed {
		return paint(colorPass, "completed")
	}
	return paint(colorWarn, "incomplete")
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
