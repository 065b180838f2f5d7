package experiment

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/metrics"
)

type fakeAblations []string

func (f *fakeAblations) Ablated() []string { return *f }

func newRoundManager(t *testing.T, rounds int, ablations Ablations) *RoundManager {
	t.Helper()
	m, err := NewRoundManager(RoundConfig{
		Collections:       names(6),
		Rounds:            rounds,
		ControlPercentage: 0.34,
		Seed:              42,
		OutputDir:         filepath.Join(t.TempDir(), "results"),
	}, ablations, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return m
}

func completeRound(t *testing.T, m *RoundManager, n int, f1 float64) *Round {
	t.Helper()
	r, err := m.StartRound(n)
	require.NoError(t, err)
	r.Combinations = []string{r.TestCollections[0]}
	r.AddResults("q1", map[string]metrics.AblationResult{
		"X_impact_on_Y": {QueryID: "q1", Collection: "Y", F1: f1},
	})
	r.AddControlResult("q2", r.ControlCollections[0], metrics.AblationResult{QueryID: "q2", F1: 1})
	require.NoError(t, m.StoreResults())
	require.NoError(t, m.FinishRound())
	return r
}

func TestRoundManagerConfig(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	dir := t.TempDir()

	_, err := NewRoundManager(RoundConfig{Collections: names(3), Rounds: 0, OutputDir: dir}, nil, log)
	assert.True(t, errors.IsConfiguration(err))

	_, err = NewRoundManager(RoundConfig{Collections: names(3), Rounds: 1}, nil, log)
	assert.True(t, errors.IsConfiguration(err))

	_, err = NewRoundManager(RoundConfig{Collections: names(1), Rounds: 1, OutputDir: dir}, nil, log)
	assert.True(t, errors.IsConfiguration(err))

	_, err = NewRoundManager(RoundConfig{Collections: names(3), Rounds: 1, OutputDir: dir, RotationsPerRound: -1}, nil, log)
	assert.True(t, errors.IsConfiguration(err))
}

func TestRoundSequencing(t *testing.T) {
	m := newRoundManager(t, 2, nil)

	_, err := m.StartRound(2)
	assert.True(t, errors.IsIntegrity(err), "rounds start in order")

	assert.True(t, errors.IsIntegrity(m.StoreResults()), "nothing started")

	r, err := m.StartRound(1)
	require.NoError(t, err)
	assert.Len(t, r.ControlCollections, 2)
	assert.Len(t, r.TestCollections, 4)

	_, err = m.StartRound(2)
	assert.True(t, errors.IsIntegrity(err), "round 1 not finished")
	assert.True(t, errors.IsIntegrity(m.FinishRound()), "results not stored")

	require.NoError(t, m.StoreResults())
	require.NoError(t, m.FinishRound())
	assert.False(t, m.IsComplete())

	r2, err := m.StartRound(2)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		append(append([]string{}, r.TestCollections...), r.ControlCollections...),
		append(append([]string{}, r2.TestCollections...), r2.ControlCollections...))
	assert.NotEqual(t, r.ControlCollections, r2.ControlCollections, "groups rotate between rounds")

	require.NoError(t, m.StoreResults())
	require.NoError(t, m.FinishRound())
	assert.True(t, m.IsComplete())

	_, err = m.StartRound(3)
	assert.True(t, errors.IsIntegrity(err), "beyond configured rounds")
}

func TestStartRoundRefusesWhileAblated(t *testing.T) {
	ablated := fakeAblations{"C01"}
	m := newRoundManager(t, 1, &ablated)

	_, err := m.StartRound(1)
	require.Error(t, err)
	assert.True(t, errors.IsIntegrity(err))
	assert.Contains(t, errors.FlattenDetails(err), "C01")

	ablated = nil
	_, err = m.StartRound(1)
	assert.NoError(t, err)
}

func TestRoundFiles(t *testing.T) {
	m := newRoundManager(t, 1, nil)
	r := completeRound(t, m, 1, 0.5)

	data, err := os.ReadFile(filepath.Join(r.Dir(), "round_results.json"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{
		"round", "timestamp", "test_collections", "control_collections",
		"combinations", "results", "control_results", "summary",
	} {
		assert.Contains(t, decoded, key)
	}
	assert.EqualValues(t, 1, decoded["round"])

	results := decoded["results"].(map[string]any)["q1"].(map[string]any)
	assert.Contains(t, results, "X_impact_on_Y")

	summary := decoded["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["test_count"])
	assert.EqualValues(t, 1, summary["control_count"])
	assert.EqualValues(t, 2, summary["queries_tested"])
	assert.InDelta(t, 0.5, summary["test_mean_f1"], 1e-9)

	report, err := os.ReadFile(filepath.Join(r.Dir(), "round_1_report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "# Round 1 Report")
	assert.Contains(t, string(report), "X_impact_on_Y")
}

func TestCrossRoundReport(t *testing.T) {
	m := newRoundManager(t, 3, nil)
	completeRound(t, m, 1, 0.2)
	completeRound(t, m, 2, 0.4)
	completeRound(t, m, 3, 0.6)

	stats := m.StatisticalSummary()
	assert.Equal(t, 3, stats.RoundsCompleted)
	assert.Equal(t, []float64{0.2, 0.4, 0.6}, stats.MeanTestF1)
	assert.InDelta(t, 0.04, stats.TestF1Variance, 1e-9)

	total := 0
	for _, rc := range stats.Roles {
		assert.Equal(t, 3, rc.Test+rc.Control)
		total += rc.Control
	}
	assert.Equal(t, 6, total, "two control collections per round")
	assert.NotEmpty(t, stats.BothRoles)

	path, err := m.CrossRoundReport()
	require.NoError(t, err)
	report, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(report), "# Cross-Round Analysis")
	assert.Contains(t, string(report), "Rounds completed: 3 of 3")
	assert.Contains(t, string(report), "| C00 |")
}
