// Package report renders research reports for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/deepresearch/internal/research"
	apperrors "github.com/Adithya-Monish-Kumar-K/deepresearch/pkg/errors"
)

const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// Formats lists the supported output formats.
var Formats = []string{FormatJSON, FormatMarkdown, FormatText}

// ParseFormat accepts a format name case-insensitively; "md" is an alias for
// markdown.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatText, "txt":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unknown format %q, want one of %s", s, strings.Join(Formats, ", "))
	}
}

// Render writes rep to w in the given format.
func Render(w io.Writer, rep *research.Report, format string) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		return nil
	case FormatMarkdown:
		_, err = io.WriteString(w, Markdown(rep))
	default:
		_, err = io.WriteString(w, Text(rep))
	}
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Markdown formats rep as a Markdown document.
func Markdown(rep *research.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research: %s\n\n", rep.Query)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Status | %s |\n", rep.Status)
	fmt.Fprintf(&b, "| Confidence | %.2f |\n", rep.ConfidenceScore)
	fmt.Fprintf(&b, "| Results | %d |\n", rep.TotalResults)
	fmt.Fprintf(&b, "| Files analyzed | %d |\n", rep.FilesAnalyzed)
	fmt.Fprintf(&b, "| Iterations | %d (%s) |\n", rep.IterationsRun, rep.TerminationReason)
	fmt.Fprintf(&b, "| Duration | %dms |\n", rep.DurationMS)

	if len(rep.KeyInsights) > 0 {
		b.WriteString("\n## Key insights\n\n")
		for _, text := range rep.KeyInsights {
			fmt.Fprintf(&b, "- %s\n", text)
		}
	}
	if len(rep.TopResults) > 0 {
		b.WriteString("\n## Top results\n\n")
		b.WriteString("| # | Location | Score | Strategy | Snippet |\n|---|---|---|---|---|\n")
		for i, r := range rep.TopResults {
			fmt.Fprintf(&b, "| %d | `%s:%d-%d` | %.3f | %s | %s |\n",
				i+1, r.Path, r.StartLine, r.EndLine, r.Score, r.Strategy, escapeCell(r.Snippet))
		}
	}
	if len(rep.Iterations) > 0 {
		b.WriteString("\n## Iterations\n\n")
		for _, it := range rep.Iterations {
			fmt.Fprintf(&b, "%d. %s: %d new results, %d new insights, confidence %.2f\n",
				it.Index+1, strings.Join(it.Queries, "; "), it.NewResults, it.NewInsights, it.Confidence)
		}
	}
	if len(rep.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range rep.Warnings {
			fmt.Fprintf(&b, "- **%s** `%s`: %s\n", w.Kind, w.Source, w.Message)
		}
	}
	if len(rep.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n\n")
		for _, r := range rep.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

// Text is the plain terminal rendering.
func Text(rep *research.Report) string {
	var b strings.Builder
	b.WriteString(rep.Body)
	if len(rep.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range rep.Warnings {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", w.Kind, w.Source, w.Message)
		}
	}
	if len(rep.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, r := range rep.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
