// Package harness runs queries against possibly-ablated collections and
// scores the results against the truth store.
//
// A Tester owns the truth store and the ablation state machine for one run.
// Close restores every collection the run left ablated.
package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/ablation/ablation"
	"github.com/teranos/ablation/datastore"
	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/logger"
	"github.com/teranos/ablation/metrics"
	"github.com/teranos/ablation/query"
	"github.com/teranos/ablation/relationship"
	"github.com/teranos/ablation/truth"
)

// Tester executes and measures ablation tests.
type Tester struct {
	docs      datastore.Datastore
	truth     *truth.Store
	machine   *ablation.Machine
	resolver  *relationship.Resolver
	extractor *query.Extractor
	logger    *zap.SugaredLogger

	// candidates for related-collection inference
	collections []string
}

// Option configures a Tester.
type Option func(*Tester)

// WithCollections sets the collections considered when inferring related
// collections from query text.
func WithCollections(names []string) Option {
	return func(t *Tester) {
		t.collections = append([]string(nil), names...)
	}
}

// WithExtractor replaces the default term extractor.
func WithExtractor(e *query.Extractor) Option {
	return func(t *Tester) {
		if e != nil {
			t.extractor = e
		}
	}
}

// New creates a Tester.
func New(docs datastore.Datastore, truthStore *truth.Store, machine *ablation.Machine, resolver *relationship.Resolver, log *zap.SugaredLogger, opts ...Option) *Tester {
	t := &Tester{
		docs:      docs,
		truth:     truthStore,
		machine:   machine,
		resolver:  resolver,
		extractor: query.NewExtractor(nil, nil),
		logger:    logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Machine returns the ablation state machine owned by the tester.
func (t *Tester) Machine() *ablation.Machine {
	return t.machine
}

// Truth returns the truth store owned by the tester.
func (t *Tester) Truth() *truth.Store {
	return t.truth
}

// Close restores every ablated collection.
func (t *Tester) Close(ctx context.Context) error {
	if err := t.machine.Cleanup(ctx); err != nil {
		return errors.Wrap(err, "restore collections on close")
	}
	return nil
}

// QueryOutcome is the result of one query execution.
type QueryOutcome struct {
	Results       []datastore.Document
	ExecutionTime time.Duration
	Description   string

	Related         []string
	CrossCollection bool
}

// ExecuteQuery runs text against collection. An ablated collection returns
// nothing without touching the datastore. A non-empty truth record yields
// exactly its documents; otherwise terms extracted from text drive either a
// single-collection filter or, when the text references other activity types
// and related collections exist, a cross-collection join. A nil related is
// inferred from text; an empty one disables the join.
func (t *Tester) ExecuteQuery(ctx context.Context, queryID, text, collection string, related []string) (QueryOutcome, error) {
	log := logger.FromContext(logger.WithQueryID(ctx, queryID), t.logger)

	if t.machine.IsAblated(collection) {
		log.Debugw("Collection ablated, returning no results", logger.FieldCollection, collection)
		return QueryOutcome{Description: fmt.Sprintf("collection %s is ablated; no query issued", collection)}, nil
	}

	exists, err := t.docs.HasCollection(ctx, collection)
	if err != nil {
		return QueryOutcome{}, err
	}
	if !exists {
		return QueryOutcome{}, errors.Integrityf("cannot query %s for %s: collection does not exist", collection, queryID)
	}

	expected, _, err := t.truth.Lookup(ctx, queryID, collection)
	if err != nil {
		return QueryOutcome{}, err
	}

	start := time.Now()
	if expected.Len() > 0 {
		q := query.TruthQuery(collection, expected.Sorted())
		docs, err := t.docs.ExecuteFilteredQuery(ctx, q)
		if err != nil {
			return QueryOutcome{}, errors.Wrapf(err, "truth query on %s for %s", collection, queryID)
		}
		return QueryOutcome{
			Results:       docs,
			ExecutionTime: time.Since(start),
			Description:   strings.TrimSpace(q.Text),
		}, nil
	}

	terms := t.extractor.Extract(text, query.TypeOf(collection))
	if terms.HasCrossReference() {
		if related == nil {
			related = relationship.InferRelated(collection, text, t.collections)
		}
		related, err = t.existing(ctx, collection, related)
		if err != nil {
			return QueryOutcome{}, err
		}
		if len(related) > 0 {
			res, err := t.resolver.Resolve(ctx, collection, related, terms)
			if err != nil {
				return QueryOutcome{}, err
			}
			return QueryOutcome{
				Results:         res.Documents,
				ExecutionTime:   time.Since(start),
				Description:     res.Description(),
				Related:         related,
				CrossCollection: true,
			}, nil
		}
	}

	q := query.FilterQuery(collection, terms.Filters)
	docs, err := t.docs.ExecuteFilteredQuery(ctx, q)
	if err != nil {
		return QueryOutcome{}, errors.Wrapf(err, "filter query on %s for %s", collection, queryID)
	}
	if len(terms.Filters) == 0 {
		log.Debugw("No search terms derived from query text", logger.FieldCollection, collection)
	}
	return QueryOutcome{
		Results:       docs,
		ExecutionTime: time.Since(start),
		Description:   strings.TrimSpace(q.Text),
	}, nil
}

// existing keeps the names, other than primary, that exist in the datastore.
func (t *Tester) existing(ctx context.Context, primary string, names []string) ([]string, error) {
	var out []string
	seen := map[string]bool{primary: true}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		ok, err := t.docs.HasCollection(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			t.logger.Warnw("Related collection does not exist", logger.FieldCollection, name)
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// CalculateMetrics scores results against the truth record for
// (queryID, collection). A missing truth record is an integrity violation.
func (t *Tester) CalculateMetrics(ctx context.Context, queryID string, results []datastore.Document, collection string) (metrics.AblationResult, error) {
	log := logger.FromContext(logger.WithQueryID(ctx, queryID), t.logger)

	expected, found, err := t.truth.Lookup(ctx, queryID, collection)
	if err != nil {
		return metrics.AblationResult{}, err
	}
	if !found {
		return metrics.AblationResult{}, errors.WithHint(
			errors.Integrityf("no truth record for query %s in %s", queryID, collection),
			"store truth for every (query, collection) pair before measuring")
	}

	ablated := t.machine.IsAblated(collection)
	returned := truth.NewKeySet(datastore.Keys(results)...)

	r := metrics.Compute(expected, returned, ablated)
	r.QueryID = queryID
	r.Collection = collection
	r.AblatedCollections = t.machine.Ablated()

	if ablated && returned.Len() > 0 {
		r.Metadata.Anomaly = fmt.Sprintf("ablated collection returned %d results", returned.Len())
		log.Warnw("Ablated collection returned results",
			logger.FieldCollection, collection,
			logger.FieldCount, returned.Len(),
		)
	}

	log.Debugw("Calculated metrics",
		logger.FieldCollection, collection,
		logger.FieldAblated, ablated,
		logger.FieldPrecision, r.Precision,
		logger.FieldRecall, r.Recall,
		logger.FieldF1, r.F1,
	)
	return r, nil
}

// TestAblation executes the query and scores it in the current ablation
// state.
func (t *Tester) TestAblation(ctx context.Context, queryID, text, collection string, related []string) (metrics.AblationResult, error) {
	outcome, err := t.ExecuteQuery(ctx, queryID, text, collection, related)
	if err != nil {
		return metrics.AblationResult{}, err
	}
	r, err := t.CalculateMetrics(ctx, queryID, outcome.Results, collection)
	if err != nil {
		return metrics.AblationResult{}, err
	}
	r.Query = outcome.Description
	r.ExecutionTimeMS = float64(outcome.ExecutionTime.Microseconds()) / 1000
	r.ResultCount = len(outcome.Results)
	r.Metadata.RelatedCollections = outcome.Related
	r.Metadata.CrossCollection = outcome.CrossCollection
	return r, nil
}
