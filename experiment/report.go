package experiment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teranos/ablation/metrics"
)

func roundReport(r *Round) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Round %d Report\n\n", r.Number)
	fmt.Fprintf(&b, "Generated: %s\n\n", r.Timestamp.Format(time.RFC3339))

	b.WriteString("## Group Assignment\n\n")
	fmt.Fprintf(&b, "- Test collections: %s\n", listOrNone(r.TestCollections))
	fmt.Fprintf(&b, "- Control collections: %s\n", listOrNone(r.ControlCollections))
	fmt.Fprintf(&b, "- Combinations tested: %d\n\n", len(r.Combinations))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Group | Measurements | Mean F1 | Median F1 |\n")
	b.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(&b, "| Test | %d | %.4f | %.4f |\n", r.Summary.TestCount, r.Summary.TestMeanF1, r.Summary.TestMedianF1)
	fmt.Fprintf(&b, "| Control | %d | %.4f | %.4f |\n\n", r.Summary.ControlCount, r.Summary.ControlMeanF1, r.Summary.ControlMedianF1)
	fmt.Fprintf(&b, "Queries tested: %d. Ablations performed: %d.\n\n", r.Summary.QueriesTested, r.Summary.AblationsPerformed)

	impacts := impactByKey(r.Results)
	if len(impacts) > 0 {
		b.WriteString("## Ablation Impact\n\n")
		b.WriteString("| Impact | Measurements | Mean Precision | Mean Recall | Mean F1 |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, key := range sortedKeys(impacts) {
			results := impacts[key]
			var p, rc, f []float64
			for _, res := range results {
				p = append(p, res.Precision)
				rc = append(rc, res.Recall)
				f = append(f, res.F1)
			}
			fmt.Fprintf(&b, "| %s | %d | %.4f | %.4f | %.4f |\n", key, len(results), Mean(p), Mean(rc), Mean(f))
		}
		b.WriteString("\n")
	}

	if anomalies := collectAnomalies(r.Results); len(anomalies) > 0 {
		b.WriteString("## Anomalies\n\n")
		for _, a := range anomalies {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *RoundManager) crossRoundReport() string {
	stats := m.StatisticalSummary()
	var b strings.Builder

	b.WriteString("# Cross-Round Analysis\n\n")
	fmt.Fprintf(&b, "Rounds completed: %d of %d\n\n", stats.RoundsCompleted, stats.TotalRounds)

	b.WriteString("## Group Assignments\n\n")
	b.WriteString("| Round | Test | Control |\n")
	b.WriteString("|---|---|---|\n")
	for n := 1; n <= m.current; n++ {
		r := m.rounds[n]
		fmt.Fprintf(&b, "| %d | %s | %s |\n", n, listOrNone(r.TestCollections), listOrNone(r.ControlCollections))
	}
	b.WriteString("\n")

	b.WriteString("## Collection Roles\n\n")
	b.WriteString("| Collection | Test rounds | Control rounds |\n")
	b.WriteString("|---|---|---|\n")
	for _, name := range m.groups.collections {
		rc := stats.Roles[name]
		fmt.Fprintf(&b, "| %s | %d | %d |\n", name, rc.Test, rc.Control)
	}
	fmt.Fprintf(&b, "\nCollections evaluated in both groups: %s\n\n", listOrNone(stats.BothRoles))

	b.WriteString("## F1 by Round\n\n")
	b.WriteString("| Round | Test mean F1 | Control mean F1 |\n")
	b.WriteString("|---|---|---|\n")
	for i := range stats.MeanTestF1 {
		fmt.Fprintf(&b, "| %d | %.4f | %.4f |\n", i+1, stats.MeanTestF1[i], stats.MeanControlF1[i])
	}
	fmt.Fprintf(&b, "\nCross-round variance of test mean F1: %.6f\n", stats.TestF1Variance)
	return b.String()
}

func experimentSummary(cfg RoundConfig, stats Statistics, rounds []*Round, elapsed time.Duration) string {
	var b strings.Builder

	b.WriteString("# Ablation Experiment Summary\n\n")
	fmt.Fprintf(&b, "- Collections: %s\n", listOrNone(NewCombination(cfg.Collections...)))
	fmt.Fprintf(&b, "- Rounds: %d of %d completed\n", stats.RoundsCompleted, stats.TotalRounds)
	fmt.Fprintf(&b, "- Control percentage: %.2f\n", cfg.ControlPercentage)
	fmt.Fprintf(&b, "- Seed: %d\n", cfg.Seed)
	fmt.Fprintf(&b, "- Duration: %s\n\n", elapsed.Round(time.Millisecond))

	b.WriteString("## Rounds\n\n")
	b.WriteString("| Round | Combinations | Queries | Test mean F1 | Control mean F1 |\n")
	b.WriteString("|---|---|---|---|---|\n")
	var testF1, controlF1 []float64
	for _, r := range rounds {
		fmt.Fprintf(&b, "| %d | %d | %d | %.4f | %.4f |\n",
			r.Number, len(r.Combinations), r.Summary.QueriesTested, r.Summary.TestMeanF1, r.Summary.ControlMeanF1)
		testF1 = append(testF1, r.Summary.TestMeanF1)
		controlF1 = append(controlF1, r.Summary.ControlMeanF1)
	}
	b.WriteString("\n## Overall\n\n")
	fmt.Fprintf(&b, "- Mean test F1: %.4f\n", Mean(testF1))
	fmt.Fprintf(&b, "- Mean control F1: %.4f\n", Mean(controlF1))
	fmt.Fprintf(&b, "- Test F1 variance across rounds: %.6f\n", stats.TestF1Variance)
	return b.String()
}

func impactByKey(results map[string]map[string]metrics.AblationResult) map[string][]metrics.AblationResult {
	out := make(map[string][]metrics.AblationResult)
	for _, byKey := range results {
		for key, res := range byKey {
			out[key] = append(out[key], res)
		}
	}
	return out
}

func collectAnomalies(results map[string]map[string]metrics.AblationResult) []string {
	var out []string
	for qid, byKey := range results {
		for key, res := range byKey {
			if res.Metadata.Anomaly != "" {
				out = append(out, fmt.Sprintf("%s %s: %s", qid, key, res.Metadata.Anomaly))
			}
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func listOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
