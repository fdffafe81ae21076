package report

import (
	"fmt"
	"strings"
	"time"

	"ligandscreen/domain/screening"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Markdown renders a finished run as a Markdown report
func Markdown(run *screening.ScreeningRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Screening run %s\n\n", run.ID)
	if run.Cancelled {
		b.WriteString("> **Partial run:** the deadline expired before every candidate was scored.\n\n")
	}

	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Candidates screened | %d |\n", run.TotalScreened)
	if run.TruncatedFrom > 0 {
		fmt.Fprintf(&b, "| Candidate pool (capped) | %d |\n", run.TruncatedFrom)
	}
	fmt.Fprintf(&b, "| Oracle calls attempted | %d |\n", run.Attempted)
	fmt.Fprintf(&b, "| Failed | %d |\n", run.Failed)
	fmt.Fprintf(&b, "| Passed threshold (>= %.2f) | %d |\n", run.Params.MinAffinity, run.PassedThreshold)
	fmt.Fprintf(&b, "| Top N | %d |\n", run.Params.TopN)
	fmt.Fprintf(&b, "| Concurrency | %d |\n", run.Params.Concurrency)
	fmt.Fprintf(&b, "| Processing time | %s |\n", run.ProcessingDuration.Round(time.Millisecond))
	if !run.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "| Started | %s |\n", run.CreatedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")

	b.WriteString("## Top candidates\n\n")
	if len(run.TopCandidates) == 0 {
		b.WriteString("No candidate reached the affinity threshold.\n\n")
	} else {
		b.WriteString("| Rank | SMILES | Affinity | QED | MW | logP |\n|---:|---|---:|---:|---:|---:|\n")
		for _, c := range run.TopCandidates {
			fmt.Fprintf(&b, "| %d | `%s` | %.3f | %.3f | %s | %s |\n",
				c.Rank, escapeCell(c.SMILES), c.Affinity, c.QED, optional(c.MolecularWeight, 1), optional(c.LogP, 2))
		}
		b.WriteString("\n")
	}

	if run.TopRationale != nil {
		b.WriteString("## Why the top candidate\n\n")
		b.WriteString(strings.TrimSpace(*run.TopRationale))
		b.WriteString("\n\n")
	}

	if s := run.Summary; s != nil {
		b.WriteString("## Affinity distribution\n\n")
		fmt.Fprintf(&b, "- Scored: %d\n", s.Count)
		fmt.Fprintf(&b, "- Mean %.3f, median %.3f, std dev %.3f\n", s.Mean, s.Median, s.StdDev)
		fmt.Fprintf(&b, "- Range %.3f to %.3f (P10 %.3f, P90 %.3f)\n", s.Min, s.Max, s.P10, s.P90)
		if s.QEDCorrelation != nil {
			fmt.Fprintf(&b, "- QED vs affinity correlation: %.3f\n", *s.QEDCorrelation)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// HTML renders the Markdown report as a standalone HTML page
func HTML(run *screening.ScreeningRun) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(Markdown(run)))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage | html.HrefTargetBlank | html.SkipHTML,
		Title: fmt.Sprintf("Screening run %s", run.ID),
	})
	return markdown.Render(doc, renderer)
}

func optional(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", prec, *v)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
