package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Writer writes run reports to a directory.
type Writer struct {
	outputDir string
}

// NewWriter creates a report writer.
func NewWriter(outputDir string) *Writer {
	return &Writer{outputDir: outputDir}
}

// WriteAll writes report.json and summary.md.
func (w *Writer) WriteAll(r *RunReport) error {
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.WriteJSON(r); err != nil {
		return fmt.Errorf("failed to write report JSON: %w", err)
	}

	if err := w.WriteSummaryMarkdown(r); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}

	return nil
}

// WriteJSON writes the full report as JSON
func (w *Writer) WriteJSON(r *RunReport) error {
	path := filepath.Join(w.outputDir, "report.json")

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return fmt.Errorf("failed to write report JSON: %w", writeErr)
	}

	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary, suitable for
// a CI job summary.
func (w *Writer) WriteSummaryMarkdown(r *RunReport) error {
	path := filepath.Join(w.outputDir, "summary.md")

	var md strings.Builder

	md.WriteString("# Visual Regression Summary\n\n")
	if r.RunID != "" {
		md.WriteString(fmt.Sprintf("**Run:** %s\n\n", r.RunID))
	}
	if !r.StartedAt.IsZero() {
		md.WriteString(fmt.Sprintf("**Started:** %s\n\n", r.StartedAt.Format(time.RFC3339)))
	}
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", r.Duration.Round(time.Millisecond)))

	md.WriteString("## Result\n\n")
	if r.Success {
		md.WriteString(fmt.Sprintf("✅ **Success**: %d/%d pages passed\n\n", r.Passed, r.Total))
	} else {
		md.WriteString(fmt.Sprintf("❌ **Failed**: %d of %d pages did not pass\n\n", r.Failed, r.Total))
	}

	if len(r.FailingPages) > 0 {
		md.WriteString("## Failing Pages\n\n")
		md.WriteString("| Capability | Page | Kind | Reason |\n")
		md.WriteString("|---|---|---|---|\n")
		for _, f := range r.FailingPages {
			md.WriteString(fmt.Sprintf("| %s | `/%s` | %s | %s |\n",
				f.Capability, f.Page, f.Kind, escapeCell(f.Reason)))
		}
		md.WriteString("\n")
	}

	names, groups := r.ByCapability()
	for _, name := range names {
		md.WriteString(fmt.Sprintf("## %s\n\n", name))
		for _, o := range groups[name] {
			status := "✅"
			if !o.Succeeded() {
				status = "❌"
			}
			md.WriteString(fmt.Sprintf("- %s `/%s` (%s", status, o.Page, o.Duration.Round(time.Millisecond)))
			if o.Checkpoint != nil && o.Checkpoint.Status != "" {
				md.WriteString(fmt.Sprintf(", %s, %.2f%% diff", o.Checkpoint.Status, o.Checkpoint.DiffPercentage))
			}
			md.WriteString(")\n")
		}
		md.WriteString("\n")
	}

	if writeErr := os.WriteFile(path, []byte(md.String()), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}

	return nil
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
