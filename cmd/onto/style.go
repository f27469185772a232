package main

import "github.com/charmbracelet/lipgloss"

// Styles mirror the teacher's cmd/bd-examples pass/warn/fail palette —
// a CLI coloring convention, not a TUI: every mutating command prints
// at most a handful of styled lines, never a full-screen layout.
var (
	okStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#86b300", Dark: "#c2d94c",
	})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f2ae49", Dark: "#ffb454",
	})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f07171", Dark: "#f07178",
	})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#828c99", Dark: "#6c7680",
	})
	boldStyle = lipgloss.NewStyle().Bold(true)
)

// renderOutcome prints a one-line, kind-colored summary of a mutating
// command's result: dry-run previews in warnStyle, real mutations in
// okStyle. Refusals (frozen, not_ready, busy) are not rendered here;
// they come back from the client as errors.
func renderOutcome(dryRun bool, line string) string {
	if dryRun {
		return warnStyle.Render("[dry-run] ") + line
	}
	return okStyle.Render("[applied] ") + line
}
