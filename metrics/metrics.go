// Package metrics computes precision, recall and F1 from auditable
// true/false positive and false negative counts.
package metrics

import (
	"github.com/teranos/ablation/truth"
)

// Metadata records the ablation context of one result.
type Metadata struct {
	AblatedCollection  string   `json:"ablated_collection,omitempty"`
	RelatedCollections []string `json:"related_collections,omitempty"`
	RemainingRelated   []string `json:"remaining_related,omitempty"`
	CrossCollection    bool     `json:"cross_collection,omitempty"`
	// Anomaly is set when an ablated collection returned results.
	Anomaly string `json:"anomaly,omitempty"`
}

// AblationResult is the outcome of one (query, collection, ablated
// combination) evaluation.
type AblationResult struct {
	QueryID            string   `json:"query_id"`
	Collection         string   `json:"collection"`
	AblatedCollections []string `json:"ablated_collections"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`

	ResultCount     int     `json:"result_count"`
	ExecutionTimeMS float64 `json:"execution_time_ms"`
	Query           string  `json:"query,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// Counts are the confusion counts a result is derived from.
type Counts struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
}

// Score holds the derived rates.
type Score struct {
	Precision float64
	Recall    float64
	F1        float64
}

// Count derives confusion counts. An ablated collection counts every truth
// key as a false negative, whatever results holds.
func Count(expected, results truth.KeySet, ablated bool) Counts {
	if ablated {
		return Counts{FalseNegatives: expected.Len()}
	}
	tp := expected.Intersection(results)
	return Counts{
		TruePositives:  tp,
		FalsePositives: results.Len() - tp,
		FalseNegatives: expected.Len() - tp,
	}
}

// Rates applies the boundary rules. When nothing was expected, a rate with a
// zero denominator is 1.0; otherwise it is 0.0.
func Rates(c Counts, truthEmpty bool) Score {
	var s Score

	switch {
	case c.TruePositives+c.FalsePositives > 0:
		s.Precision = float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
	case truthEmpty:
		s.Precision = 1.0
	}

	switch {
	case c.TruePositives+c.FalseNegatives > 0:
		s.Recall = float64(c.TruePositives) / float64(c.TruePositives+c.FalseNegatives)
	case truthEmpty:
		s.Recall = 1.0
	}

	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// Compute fills the counts and rates of an AblationResult.
func Compute(expected, results truth.KeySet, ablated bool) AblationResult {
	c := Count(expected, results, ablated)
	s := Rates(c, expected.Len() == 0)
	return AblationResult{
		Precision:      s.Precision,
		Recall:         s.Recall,
		F1:             s.F1,
		TruePositives:  c.TruePositives,
		FalsePositives: c.FalsePositives,
		FalseNegatives: c.FalseNegatives,
		ResultCount:    results.Len(),
	}
}
