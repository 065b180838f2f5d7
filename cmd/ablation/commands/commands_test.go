package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ablation/am"
	"github.com/teranos/ablation/datastore"
	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/experiment"
)

const commandFixture = `
collections:
  AblationMusicActivity:
    - {_key: m1, artist: Taylor Swift, genre: pop}
    - {_key: m2, artist: Drake, genre: hip hop}
  AblationLocationActivity:
    - {_key: l1, location_name: Coffee Shop, location_type: leisure}
  AblationTaskActivity:
    - {_key: t1, task_type: report, application: Word}
`

const commandSuite = `
queries:
  - text: What pop music did I listen to at the Coffee Shop?
    truth:
      AblationMusicActivity: [m1]
      AblationLocationActivity: [l1]
  - text: Which reports did I write in Word?
    truth:
      AblationTaskActivity: [t1]
`

type workspace struct {
	dir     string
	config  string
	fixture string
	suite   string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:     dir,
		config:  filepath.Join(dir, "am.toml"),
		fixture: filepath.Join(dir, "fixture.yaml"),
		suite:   filepath.Join(dir, "queries.yaml"),
	}
	require.NoError(t, os.WriteFile(ws.fixture, []byte(commandFixture), 0644))
	require.NoError(t, os.WriteFile(ws.suite, []byte(commandSuite), 0644))
	require.NoError(t, os.WriteFile(ws.config, []byte(fmt.Sprintf(`
[database]
path = %q

[experiment]
collections = ["AblationMusicActivity", "AblationLocationActivity", "AblationTaskActivity"]
rounds = 1
seed = 42
output_dir = %q
suite = %q
`, filepath.Join(dir, "ablation.db"), filepath.Join(dir, "results"), ws.suite)), 0644))
	return ws
}

// execute runs args against a fresh root carrying the global flags.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := &cobra.Command{Use: "ablation", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().CountP("verbose", "v", "")
	root.PersistentFlags().Bool("json", false, "")
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(RunCmd, TruthCmd, DbCmd, AmCmd, VersionCmd)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDbAndTruthCommands(t *testing.T) {
	ws := newWorkspace(t)

	_, err := execute(t, "db", "import", ws.fixture, "--config", ws.config)
	require.NoError(t, err)

	out, err := execute(t, "db", "stats", "--json", "--config", ws.config)
	require.NoError(t, err)
	var stats []datastore.CollectionStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	counts := make(map[string]int)
	for _, cs := range stats {
		counts[cs.Name] = cs.Documents
	}
	assert.Equal(t, map[string]int{
		"AblationLocationActivity": 1,
		"AblationMusicActivity":    2,
		"AblationTaskActivity":     1,
	}, counts)

	_, err = execute(t, "truth", "load", ws.suite, "--config", ws.config)
	require.NoError(t, err)

	out, err = execute(t, "truth", "list", "--json", "--config", ws.config)
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.Len(t, ids, 2)

	qid := experiment.QueryID("What pop music did I listen to at the Coffee Shop?")
	out, err = execute(t, "truth", "show", qid, "--json", "--config", ws.config)
	require.NoError(t, err)
	var sets map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &sets))
	assert.Equal(t, map[string][]string{
		"AblationLocationActivity": {"l1"},
		"AblationMusicActivity":    {"m1"},
	}, sets)

	_, err = execute(t, "truth", "show", "no-such-query", "--config", ws.config)
	assert.True(t, errors.IsIntegrity(err))
}

func TestTruthLoadRejectsUnknownEntities(t *testing.T) {
	ws := newWorkspace(t)
	_, err := execute(t, "db", "import", ws.fixture, "--config", ws.config)
	require.NoError(t, err)

	bad := filepath.Join(ws.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("queries:\n  - {text: songs, truth: {AblationMusicActivity: [m9]}}\n"), 0644))

	_, err = execute(t, "truth", "load", bad, "--config", ws.config)
	require.Error(t, err)
	assert.True(t, errors.IsIntegrity(err))
}

func TestRunCommand(t *testing.T) {
	ws := newWorkspace(t)
	_, err := execute(t, "db", "import", ws.fixture, "--config", ws.config)
	require.NoError(t, err)

	out, err := execute(t, "run", "--json", "--config", ws.config)
	require.NoError(t, err)
	assert.NotEmpty(t, out, "progress events")

	for _, name := range []string{
		"experiment_summary.md",
		"cross_round_analysis.md",
		"round_1/round_results.json",
		"round_1/round_1_report.md",
	} {
		assert.FileExists(t, filepath.Join(ws.dir, "results", name))
	}

	out, err = execute(t, "db", "stats", "--json", "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, `"documents": 2`, "ablated collections are restored")
}

func TestRunCommandRequiresSeed(t *testing.T) {
	ws := newWorkspace(t)
	config := filepath.Join(ws.dir, "noseed.toml")
	data, err := os.ReadFile(ws.config)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(config, []byte(strings.Replace(string(data), "seed = 42\n", "", 1)), 0644))

	_, err = execute(t, "run", "--config", config)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestAmCommands(t *testing.T) {
	ws := newWorkspace(t)

	out, err := execute(t, "am", "get", "experiment.rounds", "--config", ws.config)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = execute(t, "am", "get", "experiment.nope", "--config", ws.config)
	assert.True(t, errors.IsConfiguration(err))

	out, err = execute(t, "am", "show", "--format", "json", "--config", ws.config)
	require.NoError(t, err)
	var cfg am.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 1, cfg.Experiment.Rounds)
	assert.Len(t, cfg.Experiment.Collections, 3)

	_, err = execute(t, "am", "show", "--format", "xml", "--config", ws.config)
	assert.True(t, errors.IsConfiguration(err))

	_, err = execute(t, "am", "validate", "--config", ws.config)
	assert.NoError(t, err)

	path := filepath.Join(ws.dir, "fresh", "am.toml")
	_, err = execute(t, "am", "init", path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = execute(t, "am", "init", path)
	assert.True(t, errors.IsConfiguration(err), "existing file needs --force")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "platform")
}
