package metrics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ablation/truth"
)

func TestCompute(t *testing.T) {
	testCases := []struct {
		name      string
		expected  truth.KeySet
		results   truth.KeySet
		ablated   bool
		precision float64
		recall    float64
		f1        float64
		tp, fp    int
		fn        int
	}{
		{
			name:      "empty truth and empty results is a perfect match",
			expected:  truth.NewKeySet(),
			results:   truth.NewKeySet(),
			precision: 1.0, recall: 1.0, f1: 1.0,
		},
		{
			name:      "results when nothing was expected",
			expected:  truth.NewKeySet(),
			results:   truth.NewKeySet("r1", "r2"),
			precision: 0.0, recall: 1.0, f1: 0.0,
			fp: 2,
		},
		{
			name:      "partial overlap",
			expected:  truth.NewKeySet("t1", "t2", "t3"),
			results:   truth.NewKeySet("t1", "o1"),
			precision: 0.5, recall: 1.0 / 3.0, f1: 0.4,
			tp: 1, fp: 1, fn: 2,
		},
		{
			name:      "ablated collection",
			expected:  truth.NewKeySet("t1", "t2"),
			results:   truth.NewKeySet(),
			ablated:   true,
			precision: 0.0, recall: 0.0, f1: 0.0,
			fn: 2,
		},
		{
			name:      "ablated ignores stray results",
			expected:  truth.NewKeySet("t1", "t2"),
			results:   truth.NewKeySet("t1"),
			ablated:   true,
			precision: 0.0, recall: 0.0, f1: 0.0,
			fn: 2,
		},
		{
			name:      "exact match",
			expected:  truth.NewKeySet("t1", "t2"),
			results:   truth.NewKeySet("t2", "t1"),
			precision: 1.0, recall: 1.0, f1: 1.0,
			tp: 2,
		},
		{
			name:      "nothing returned",
			expected:  truth.NewKeySet("t1"),
			results:   truth.NewKeySet(),
			precision: 0.0, recall: 0.0, f1: 0.0,
			fn: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := Compute(tc.expected, tc.results, tc.ablated)
			assert.InDelta(t, tc.precision, r.Precision, 1e-9)
			assert.InDelta(t, tc.recall, r.Recall, 1e-9)
			assert.InDelta(t, tc.f1, r.F1, 1e-9)
			assert.Equal(t, tc.tp, r.TruePositives)
			assert.Equal(t, tc.fp, r.FalsePositives)
			assert.Equal(t, tc.fn, r.FalseNegatives)
			assert.Equal(t, tc.results.Len(), r.ResultCount)
		})
	}
}

func TestResultJSON(t *testing.T) {
	r := Compute(truth.NewKeySet("t1"), truth.NewKeySet("t1"), false)
	r.QueryID = "q1"
	r.Collection = "MusicActivity"
	r.AblatedCollections = []string{"LocationActivity"}
	r.Metadata = Metadata{AblatedCollection: "LocationActivity", CrossCollection: true}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "q1", decoded["query_id"])
	assert.Equal(t, 1.0, decoded["f1"])
	assert.Equal(t, 1.0, decoded["true_positives"])

	meta := decoded["metadata"].(map[string]any)
	assert.Equal(t, "LocationActivity", meta["ablated_collection"])
	assert.NotContains(t, meta, "anomaly")
}
