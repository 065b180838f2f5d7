package experiment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ablation/errors"
)

func TestQueryID(t *testing.T) {
	a := QueryID("What music did I listen to?")
	assert.Equal(t, a, QueryID("What music did I listen to?"))
	assert.NotEqual(t, a, QueryID("What files did I edit?"))

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestParseSuite(t *testing.T) {
	s, err := ParseSuite([]byte(`
requires: ">= 0.1"
queries:
  - text: What music did I listen to at the Coffee Shop?
    truth:
      AblationMusicActivity: [m1, m3]
      AblationLocationActivity: [l1]
  - id: task-q
    text: Which reports did I write?
    collections: [AblationTaskActivity, AblationMusicActivity]
    truth:
      AblationTaskActivity: [synthetic_t9]
    synthetic: true
`))
	require.NoError(t, err)
	require.Len(t, s.Queries, 2)

	first := s.Queries[0]
	assert.Equal(t, QueryID(first.Text), first.ID)
	assert.Equal(t, []string{"AblationLocationActivity", "AblationMusicActivity"}, first.TargetCollections())

	second := s.Queries[1]
	assert.Equal(t, "task-q", second.ID)
	assert.True(t, second.Synthetic)
	assert.Equal(t, []string{"AblationMusicActivity", "AblationTaskActivity"}, second.TargetCollections())

	assert.Equal(t, []string{
		"AblationLocationActivity",
		"AblationMusicActivity",
		"AblationTaskActivity",
	}, s.Collections())
}

func TestParseSuiteErrors(t *testing.T) {
	tests := map[string]string{
		"empty":           `queries: []`,
		"missing text":    "queries:\n  - truth: {A: [a]}\n",
		"missing truth":   "queries:\n  - text: hello\n",
		"unknown field":   "queries:\n  - text: hello\n    truth: {A: [a]}\n    weight: 3\n",
		"duplicate id":    "queries:\n  - {id: x, text: a, truth: {A: [a]}}\n  - {id: x, text: b, truth: {A: [b]}}\n",
		"same text twice": "queries:\n  - {text: a, truth: {A: [a]}}\n  - {text: a, truth: {A: [a]}}\n",
		"two documents":   "queries:\n  - {text: a, truth: {A: [a]}}\n---\nqueries: []\n",
		"not yaml":        "queries: [",
		"bad requires":    "requires: nonsense\nqueries:\n  - {text: a, truth: {A: [a]}}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSuite([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestLoadSuite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queries:\n  - {text: a, truth: {A: [a]}}\n"), 0o644))

	s, err := LoadSuite(path)
	require.NoError(t, err)
	assert.Len(t, s.Queries, 1)

	_, err = LoadSuite(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsConfiguration(err))

	_, err = LoadSuite("")
	assert.True(t, errors.IsConfiguration(err))
}

func TestStats(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.Zero(t, Median(nil))
	assert.Zero(t, Variance([]float64{1}))

	values := []float64{4, 1, 3, 2}
	assert.InDelta(t, 2.5, Mean(values), 1e-9)
	assert.InDelta(t, 2.5, Median(values), 1e-9)
	assert.InDelta(t, 3, Median([]float64{5, 3, 1}), 1e-9)
	assert.InDelta(t, 5.0/3.0, Variance(values), 1e-9)
	assert.Equal(t, []float64{4, 1, 3, 2}, values, "inputs are not reordered")
}
