package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/logger"
	"github.com/teranos/ablation/metrics"
)

// DefaultRotationsPerRound is how many collections swap groups each way
// between rounds.
const DefaultRotationsPerRound = 2

// Ablations exposes which collections are currently ablated.
type Ablations interface {
	Ablated() []string
}

// RoundConfig are the parameters of a multi-round experiment.
type RoundConfig struct {
	Collections       []string
	Rounds            int
	ControlPercentage float64
	RotationsPerRound int
	Seed              int64
	OutputDir         string
}

// RoundSummary aggregates F1 scores of one round.
type RoundSummary struct {
	TestCount          int     `json:"test_count"`
	ControlCount       int     `json:"control_count"`
	TestMeanF1         float64 `json:"test_mean_f1"`
	ControlMeanF1      float64 `json:"control_mean_f1"`
	TestMedianF1       float64 `json:"test_median_f1"`
	ControlMedianF1    float64 `json:"control_median_f1"`
	QueriesTested      int     `json:"queries_tested"`
	AblationsPerformed int     `json:"ablations_performed"`
}

// Round is one experiment round: its group assignment, the combinations it
// tested and their results.
type Round struct {
	Number             int       `json:"round"`
	Timestamp          time.Time `json:"timestamp"`
	TestCollections    []string  `json:"test_collections"`
	ControlCollections []string  `json:"control_collections"`
	Combinations       []string  `json:"combinations"`
	// Results maps query id to impact key to result.
	Results map[string]map[string]metrics.AblationResult `json:"results"`
	// ControlResults maps query id to collection to baseline result.
	ControlResults map[string]map[string]metrics.AblationResult `json:"control_results"`
	Summary        RoundSummary                                 `json:"summary"`

	dir string
}

// AddResults records impact results for a query.
func (r *Round) AddResults(queryID string, results map[string]metrics.AblationResult) {
	if r.Results[queryID] == nil {
		r.Results[queryID] = make(map[string]metrics.AblationResult, len(results))
	}
	for k, v := range results {
		r.Results[queryID][k] = v
	}
}

// AddControlResult records a baseline measurement of a control query.
func (r *Round) AddControlResult(queryID, collection string, result metrics.AblationResult) {
	if r.ControlResults[queryID] == nil {
		r.ControlResults[queryID] = make(map[string]metrics.AblationResult)
	}
	r.ControlResults[queryID][collection] = result
}

// Summarize fills Summary from the recorded results.
func (r *Round) Summarize() {
	var test, control []float64
	queries := make(map[string]bool)
	for qid, results := range r.Results {
		queries[qid] = true
		for _, res := range results {
			test = append(test, res.F1)
		}
	}
	for qid, results := range r.ControlResults {
		queries[qid] = true
		for _, res := range results {
			control = append(control, res.F1)
		}
	}
	r.Summary = RoundSummary{
		TestCount:          len(test),
		ControlCount:       len(control),
		TestMeanF1:         Mean(test),
		ControlMeanF1:      Mean(control),
		TestMedianF1:       Median(test),
		ControlMedianF1:    Median(control),
		QueriesTested:      len(queries),
		AblationsPerformed: len(test),
	}
}

// Dir is the round's output directory.
func (r *Round) Dir() string {
	return r.dir
}

type roundStatus int

const (
	roundStarted roundStatus = iota + 1
	roundStored
	roundFinished
)

// RoundManager sequences rounds, rotating groups between them and writing
// per-round and cross-round reports.
type RoundManager struct {
	cfg       RoundConfig
	groups    *GroupManager
	ablations Ablations
	logger    *zap.SugaredLogger

	current int
	rounds  map[int]*Round
	status  map[int]roundStatus
}

// NewRoundManager validates cfg and creates the output directory. ablations
// may be nil when no ablation state needs checking between rounds.
func NewRoundManager(cfg RoundConfig, ablations Ablations, log *zap.SugaredLogger) (*RoundManager, error) {
	if cfg.Rounds < 1 {
		return nil, errors.Configurationf("number of rounds must be at least 1, got %d", cfg.Rounds)
	}
	if cfg.OutputDir == "" {
		return nil, errors.Configurationf("output directory is required")
	}
	if cfg.RotationsPerRound == 0 {
		cfg.RotationsPerRound = DefaultRotationsPerRound
	}
	if cfg.RotationsPerRound < 0 {
		return nil, errors.Configurationf("rotations per round cannot be negative, got %d", cfg.RotationsPerRound)
	}

	groups, err := NewGroupManager(cfg.Collections, cfg.ControlPercentage, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", cfg.OutputDir)
	}

	log = logger.OrNop(log)
	log.Infow("Initialized round manager",
		logger.FieldCollections, groups.collections,
		"rounds", cfg.Rounds,
		logger.FieldPath, cfg.OutputDir,
	)

	return &RoundManager{
		cfg:       cfg,
		groups:    groups,
		ablations: ablations,
		logger:    log,
		rounds:    make(map[int]*Round),
		status:    make(map[int]roundStatus),
	}, nil
}

// Groups returns the group manager driving the rounds.
func (m *RoundManager) Groups() *GroupManager {
	return m.groups
}

// Current returns the number of the latest started round, 0 before the first.
func (m *RoundManager) Current() int {
	return m.current
}

// Round returns a started round.
func (m *RoundManager) Round(n int) (*Round, bool) {
	r, ok := m.rounds[n]
	return r, ok
}

// StartRound begins round n, which must be the next round after a finished
// one. Round 1 assigns groups; later rounds rotate them. No collection may
// be ablated when a round starts.
func (m *RoundManager) StartRound(n int) (*Round, error) {
	if n != m.current+1 {
		return nil, errors.Integrityf("round %d cannot start: next round is %d", n, m.current+1)
	}
	if n > m.cfg.Rounds {
		return nil, errors.Integrityf("round %d exceeds the configured %d rounds", n, m.cfg.Rounds)
	}
	if m.current > 0 && m.status[m.current] != roundFinished {
		return nil, errors.Integrityf("round %d cannot start before round %d is finished", n, m.current)
	}
	if m.ablations != nil {
		if ablated := m.ablations.Ablated(); len(ablated) > 0 {
			return nil, errors.WithDetailf(
				errors.Integrityf("round %d cannot start while collections are ablated", n),
				"ablated: %s", strings.Join(ablated, ", "))
		}
	}

	var (
		test, control []string
		err           error
	)
	if n == 1 {
		test, control, err = m.groups.Assign(0)
	} else {
		test, control, err = m.groups.Rotate(m.cfg.RotationsPerRound)
	}
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(m.cfg.OutputDir, fmt.Sprintf("round_%d", n))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create round directory %s", dir)
	}

	r := &Round{
		Number:             n,
		Timestamp:          time.Now().UTC(),
		TestCollections:    test,
		ControlCollections: control,
		Results:            make(map[string]map[string]metrics.AblationResult),
		ControlResults:     make(map[string]map[string]metrics.AblationResult),
		dir:                dir,
	}
	m.current = n
	m.rounds[n] = r
	m.status[n] = roundStarted

	m.logger.Infow("Started round",
		logger.FieldRound, n,
		"test", test,
		"control", control,
	)
	return r, nil
}

// StoreResults summarizes the current round and writes round_results.json.
func (m *RoundManager) StoreResults() error {
	r, err := m.active()
	if err != nil {
		return err
	}
	r.Summarize()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode round %d results", r.Number)
	}
	path := filepath.Join(r.dir, "round_results.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write round %d results", r.Number)
	}

	m.status[r.Number] = roundStored
	m.logger.Infow("Saved round results", logger.FieldRound, r.Number, logger.FieldPath, path)
	return nil
}

// FinishRound writes the round report. Results must have been stored.
func (m *RoundManager) FinishRound() error {
	r, err := m.active()
	if err != nil {
		return err
	}
	if m.status[r.Number] != roundStored {
		return errors.Integrityf("round %d has no stored results", r.Number)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("round_%d_report.md", r.Number))
	if err := os.WriteFile(path, []byte(roundReport(r)), 0o644); err != nil {
		return errors.Wrapf(err, "write round %d report", r.Number)
	}

	m.status[r.Number] = roundFinished
	m.logger.Infow("Finished round", logger.FieldRound, r.Number, logger.FieldPath, path)
	return nil
}

func (m *RoundManager) active() (*Round, error) {
	if m.current == 0 {
		return nil, errors.Integrityf("no round has been started")
	}
	if m.status[m.current] == roundFinished {
		return nil, errors.Integrityf("round %d is already finished", m.current)
	}
	return m.rounds[m.current], nil
}

// IsComplete reports whether every configured round has finished.
func (m *RoundManager) IsComplete() bool {
	return m.current == m.cfg.Rounds && m.status[m.current] == roundFinished
}

// RoleCounts counts, per collection, the rounds spent in each group.
type RoleCounts struct {
	Test    int `json:"test"`
	Control int `json:"control"`
}

// Statistics summarizes the experiment across rounds.
type Statistics struct {
	RoundsCompleted int                   `json:"rounds_completed"`
	TotalRounds     int                   `json:"total_rounds"`
	Roles           map[string]RoleCounts `json:"roles"`
	// BothRoles lists collections evaluated in both groups at least once.
	BothRoles      []string  `json:"both_roles"`
	MeanTestF1     []float64 `json:"mean_test_f1_by_round"`
	MeanControlF1  []float64 `json:"mean_control_f1_by_round"`
	TestF1Variance float64   `json:"test_f1_variance"`
}

// StatisticalSummary aggregates finished rounds.
func (m *RoundManager) StatisticalSummary() Statistics {
	s := Statistics{
		TotalRounds: m.cfg.Rounds,
		Roles:       make(map[string]RoleCounts),
	}
	for _, name := range m.groups.collections {
		s.Roles[name] = RoleCounts{}
	}

	for n := 1; n <= m.current; n++ {
		if m.status[n] != roundFinished {
			continue
		}
		r := m.rounds[n]
		s.RoundsCompleted++
		for _, name := range r.TestCollections {
			rc := s.Roles[name]
			rc.Test++
			s.Roles[name] = rc
		}
		for _, name := range r.ControlCollections {
			rc := s.Roles[name]
			rc.Control++
			s.Roles[name] = rc
		}
		s.MeanTestF1 = append(s.MeanTestF1, r.Summary.TestMeanF1)
		s.MeanControlF1 = append(s.MeanControlF1, r.Summary.ControlMeanF1)
	}
	s.TestF1Variance = Variance(s.MeanTestF1)

	for name, rc := range s.Roles {
		if rc.Test > 0 && rc.Control > 0 {
			s.BothRoles = append(s.BothRoles, name)
		}
	}
	sort.Strings(s.BothRoles)
	return s
}

// CrossRoundReport writes cross_round_analysis.md and returns its path.
func (m *RoundManager) CrossRoundReport() (string, error) {
	if !m.IsComplete() {
		m.logger.Warnw("Generating cross-round report before experiment completion",
			logger.FieldRound, m.current,
			"total_rounds", m.cfg.Rounds,
		)
	}

	path := filepath.Join(m.cfg.OutputDir, "cross_round_analysis.md")
	if err := os.WriteFile(path, []byte(m.crossRoundReport()), 0o644); err != nil {
		return "", errors.Wrap(err, "write cross-round report")
	}
	m.logger.Infow("Generated cross-round report", logger.FieldPath, path)
	return path, nil
}
