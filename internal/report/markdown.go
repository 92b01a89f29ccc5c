// Package report renders evaluations for terminals and files.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
)

// Options controls what an evaluation report includes.
type Options struct {
	// ShowResponses appends every generation and the diff of the most
	// divergent pair. It needs an evaluation that kept its generations.
	ShowResponses bool
}

// Evaluation renders one evaluation as markdown.
func Evaluation(eval *service.Evaluation, opts Options) string {
	var b strings.Builder
	d := eval.Decision

	fmt.Fprintf(&b, "# Stability report: %s\n\n", strings.ToUpper(string(d.Outcome())))
	fmt.Fprintf(&b, "> %s\n\n", eval.Prompt)

	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Confidence | **%.4f** |\n", d.ConfidenceScore)
	fmt.Fprintf(&b, "| Generations | %d |\n", eval.NumGenerations)
	fmt.Fprintf(&b, "| Clusters | %s |\n", clusterSizes(eval.Clusters))
	if eval.Model != "" {
		fmt.Fprintf(&b, "| Model | %s |\n", eval.Model)
	}
	if eval.Oracle != "" {
		fmt.Fprintf(&b, "| Oracle | %s |\n", eval.Oracle)
	}
	if eval.ID != "" {
		fmt.Fprintf(&b, "| Report | `%s` |\n", eval.ID)
	}
	b.WriteString("\n")

	if d.Reason != "" {
		fmt.Fprintf(&b, "**Reason:** %s\n\n", d.Reason)
	}
	fmt.Fprintf(&b, "**Recommendation:** %s\n\n", eval.Recommendation)

	writeDivergences(&b, d.Divergences)

	if len(eval.Consensus) > 0 {
		b.WriteString("## Consensus\n\n")
		b.WriteString("Lines present in every generation:\n\n```\n")
		for _, line := range eval.Consensus {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}

	if len(eval.PairDiffs) > 0 {
		b.WriteString("## Divergent pairs\n\n")
		b.WriteString("| Pair | Diff lines | Similarity |\n|---|---|---|\n")
		for _, p := range eval.PairDiffs {
			fmt.Fprintf(&b, "| #%d vs #%d | %d | %.2f |\n", p.A+1, p.B+1, p.DiffLines, p.Similarity)
		}
		b.WriteString("\n")
	}

	if len(eval.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range eval.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	if opts.ShowResponses && len(eval.Generations) > 0 {
		writeResponses(&b, eval)
	}
	return b.String()
}

func clusterSizes(clusters []core.Cluster) string {
	sizes := core.ClusterSizes(clusters)
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = fmt.Sprint(s)
	}
	if len(parts) == 0 {
		return "0"
	}
	return fmt.Sprintf("%d (%s)", len(parts), strings.Join(parts, "/"))
}

func writeDivergences(b *strings.Builder, divergences []core.DivergencePoint) {
	if len(divergences) == 0 {
		b.WriteString("No divergences detected.\n\n")
		return
	}
	b.WriteString("## Divergences\n\n")
	b.WriteString("| Severity | Category | Aspect | Variants |\n|---|---|---|---|\n")
	for _, d := range divergences {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			strings.ToUpper(d.Severity.String()), d.Category, d.Aspect, escapeCell(d.VariantSummary()))
	}
	b.WriteString("\n")
}

func writeResponses(b *strings.Builder, eval *service.Evaluation) {
	clusterOf := make(map[int]int)
	for ci, c := range eval.Clusters {
		for _, m := range c.Members {
			clusterOf[m] = ci + 1
		}
	}

	b.WriteString("## Responses\n\n")
	for _, g := range eval.Generations {
		fmt.Fprintf(b, "### %s (cluster %d)\n\n", g.Label(), clusterOf[g.Index])
		fmt.Fprintf(b, "````\n%s\n````\n\n", strings.TrimRight(g.Text, "\n"))
	}

	if len(eval.PairDiffs) == 0 {
		return
	}
	worst := eval.PairDiffs[0]
	for _, p := range eval.PairDiffs[1:] {
		if p.DiffLines > worst.DiffLines {
			worst = p
		}
	}
	byIndex := make(map[int]core.Generation, len(eval.Generations))
	for _, g := range eval.Generations {
		byIndex[g.Index] = g
	}
	a, okA := byIndex[worst.A]
	c, okB := byIndex[worst.B]
	if !okA || !okB {
		return
	}
	fmt.Fprintf(b, "### Diff %s vs %s\n\n```diff\n%s```\n\n", a.Label(), c.Label(), service.UnifiedDiff(a, c))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Batch renders a batch run with its summary.
func Batch(items []service.BatchItem, summary service.Summary) string {
	var b strings.Builder
	b.WriteString("# Batch results\n\n")
	b.WriteString("| # | Prompt | Outcome | Confidence |\n|---|---|---|---|\n")
	for i, item := range items {
		outcome, score := "FAILED", "-"
		if item.Evaluation != nil {
			outcome = strings.ToUpper(string(item.Evaluation.Decision.Outcome()))
			score = fmt.Sprintf("%.4f", item.Evaluation.Decision.ConfidenceScore)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", i+1, escapeCell(truncate(item.Prompt, 60)), outcome, score)
	}
	b.WriteString("\n")
	b.WriteString(Summary(summary))

	var failed []service.BatchItem
	for _, item := range items {
		if item.Error != "" {
			failed = append(failed, item)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, item := range failed {
			fmt.Fprintf(&b, "- %s: %s\n", truncate(item.Prompt, 60), item.Error)
		}
	}
	return b.String()
}

// Summary renders aggregate batch statistics.
func Summary(s service.Summary) string {
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Total: %d (passed %d, rejected %d, failed %d)\n", s.Total, s.Passed, s.Rejected, s.Failed)
	fmt.Fprintf(&b, "- Average confidence: %.4f\n", s.AvgConfidence)
	fmt.Fprintf(&b, "- High / medium / low confidence: %d / %d / %d\n", s.HighConfidence, s.MedConfidence, s.LowConfidence)
	if len(s.FailuresByCode) > 0 {
		codes := make([]string, 0, len(s.FailuresByCode))
		for c := range s.FailuresByCode {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		parts := make([]string, len(codes))
		for i, c := range codes {
			parts[i] = fmt.Sprintf("%s x%d", c, s.FailuresByCode[c])
		}
		fmt.Fprintf(&b, "- Failures: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "- Duration: %s\n", s.TotalDuration.Round(time.Millisecond))
	return b.String()
}

// Comparison renders a ranked model comparison.
func Comparison(prompt string, entries []service.ComparisonEntry) string {
	var b strings.Builder
	b.WriteString("# Model comparison\n\n")
	fmt.Fprintf(&b, "> %s\n\n", prompt)
	b.WriteString("| Rank | Model | Outcome | Confidence | Divergences |\n|---|---|---|---|---|\n")
	for i, e := range entries {
		if e.Evaluation == nil {
			fmt.Fprintf(&b, "| %d | %s | FAILED | - | %s |\n", i+1, e.Model, escapeCell(e.Error))
			continue
		}
		d := e.Evaluation.Decision
		fmt.Fprintf(&b, "| %d | %s | %s | %.4f | %d |\n",
			i+1, e.Model, strings.ToUpper(string(d.Outcome())), d.ConfidenceScore, len(d.Divergences))
	}
	if len(entries) > 0 && entries[0].Evaluation != nil {
		fmt.Fprintf(&b, "\n**Most stable:** %s\n", entries[0].Model)
	}
	return b.String()
}

// Record renders a stored report.
func Record(rec *core.ReportRecord) string {
	var b strings.Builder
	d := rec.Decision
	fmt.Fprintf(&b, "# Report `%s`: %s\n\n", rec.ID, strings.ToUpper(string(d.Outcome())))
	fmt.Fprintf(&b, "> %s\n\n", rec.Prompt)
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Confidence | **%.4f** |\n", d.ConfidenceScore)
	fmt.Fprintf(&b, "| Generations | %d |\n", rec.NumGenerations)
	if rec.Model != "" {
		fmt.Fprintf(&b, "| Model | %s |\n", rec.Model)
	}
	fmt.Fprintf(&b, "| Created | %s |\n\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	if d.Reason != "" {
		fmt.Fprintf(&b, "**Reason:** %s\n\n", d.Reason)
	}
	if rec.Recommendation != "" {
		fmt.Fprintf(&b, "**Recommendation:** %s\n\n", rec.Recommendation)
	}
	writeDivergences(&b, d.Divergences)
	for _, w := range rec.Warnings {
		fmt.Fprintf(&b, "- warning: %s\n", w)
	}
	return b.String()
}

// Records renders a report listing.
func Records(recs []*core.ReportRecord) string {
	if len(recs) == 0 {
		return "No reports stored.\n"
	}
	var b strings.Builder
	b.WriteString("| ID | Created | Outcome | Confidence | Prompt |\n|---|---|---|---|---|\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "| `%s` | %s | %s | %.4f | %s |\n",
			r.ID, r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			strings.ToUpper(string(r.Decision.Outcome())), r.Decision.ConfidenceScore,
			escapeCell(truncate(r.Prompt, 50)))
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
