package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	mintGreen = lipgloss.Color("#A8E6CF")
	errorRed  = lipgloss.Color("203")
	mutedGray = lipgloss.Color("#6B7280")

	passStyle  = lipgloss.NewStyle().Foreground(mintGreen).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(errorRed).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedGray)
)

// RenderSummary renders the end-of-run console summary.
func RenderSummary(r *RunReport) string {
	var b strings.Builder

	names, groups := r.ByCapability()
	for _, name := range names {
		b.WriteString(lipgloss.NewStyle().Bold(true).Render(name))
		b.WriteString("\n")
		for _, o := range groups[name] {
			mark := passStyle.Render("✓")
			if !o.Succeeded() {
				mark = failStyle.Render("✗")
			}
			line := fmt.Sprintf("  %s /%s %s", mark, o.Page,
				mutedStyle.Render(o.Duration.Round(time.Millisecond).String()))
			if !o.Succeeded() && o.Reason != "" {
				line += "\n    " + mutedStyle.Render(o.Reason)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	verdict := passStyle.Render(fmt.Sprintf("PASS %d/%d pages", r.Passed, r.Total))
	border := mintGreen
	if !r.Success {
		verdict = failStyle.Render(fmt.Sprintf("FAIL %d of %d pages", r.Failed, r.Total))
		border = errorRed
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)

	b.WriteString(box.Render(verdict + "  " + mutedStyle.Render(r.Duration.Round(time.Second).String())))
	b.WriteString("\n")
	return b.String()
}

// PrintSummary writes RenderSummary to w.
func PrintSummary(w io.Writer, r *RunReport) error {
	_, err := io.WriteString(w, RenderSummary(r))
	return err
}
