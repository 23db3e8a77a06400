package main

import (
	"bytes"
	"io"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nego/internal/ui"
)

// helpStyles rewrites Cobra's plain help text. Each replacement is a regexp
// template, so the ui renderers wrap the submatch references in color codes.
var helpStyles = []struct {
	re   *regexp.Regexp
	repl func() string
}{
	// Section headers ("Sessions:", "Flags:").
	{regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`), func() string { return ui.RenderAccent("${1}") }},
	// Command names in command lists.
	{regexp.MustCompile(`(?m)^(  )(\S+)(  )`), func() string { return "${1}" + ui.RenderCommand("${2}") + "${3}" }},
	// Flag value types ("--stale duration").
	{regexp.MustCompile(`(--?\S+\s+)(string|int|duration|bool)\b`), func() string { return "${1}" + ui.RenderMuted("${2}") }},
	// Defaults.
	{regexp.MustCompile(`\(default [^)]*\)`), func() string { return ui.RenderMuted("${0}") }},
}

func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		io.WriteString(out, colorizeHelpOutput(buf.String()))
	}
}

func colorizeHelpOutput(s string) string {
	for _, st := range helpStyles {
		s = st.re.ReplaceAllString(s, st.repl())
	}
	return s
}
