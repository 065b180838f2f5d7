// Package relationship maps pairs of activity types to the reference fields
// that link their documents, and resolves cross-collection joins.
//
// The field table is a naming-convention heuristic. Every pair can be
// overridden from configuration, and a join that fails for any reason other
// than an unreachable datastore degrades to an empty result.
package relationship

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/ablation/datastore"
	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/logger"
	"github.com/teranos/ablation/query"
)

// FallbackField links collections whose types have no known relationship.
const FallbackField = "related_to"

// Pair is an ordered (primary, related) pair of activity types.
type Pair struct {
	Primary query.CollectionType
	Related query.CollectionType
}

func (p Pair) String() string {
	return string(p.Primary) + ":" + string(p.Related)
}

// ParsePair parses "primary:related", as used for configuration keys.
func ParsePair(s string) (Pair, error) {
	primary, related, ok := strings.Cut(s, ":")
	if !ok {
		return Pair{}, errors.Configurationf("relationship key %q must be primary:related", s)
	}
	p := Pair{Primary: query.ParseType(primary), Related: query.ParseType(related)}
	if p.Primary == query.TypeUnknown || p.Related == query.TypeUnknown {
		return Pair{}, errors.WithHintf(
			errors.Configurationf("relationship key %q names an unknown activity type", s),
			"known types: %s", knownTypeList())
	}
	return p, nil
}

func knownTypeList() string {
	names := make([]string, len(query.KnownTypes))
	for i, t := range query.KnownTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// DefaultFields lists the reference fields per pair in priority order.
var DefaultFields = map[Pair][]string{
	{query.TypeTask, query.TypeCollaboration}:     {"created_in", "has_tasks", "discussed_in", "related_to"},
	{query.TypeCollaboration, query.TypeTask}:     {"has_tasks", "created_in", "related_to", "discussed_in"},
	{query.TypeLocation, query.TypeCollaboration}: {"hosted_meetings", "located_at"},
	{query.TypeCollaboration, query.TypeLocation}: {"located_at", "hosted_meetings"},
	{query.TypeMusic, query.TypeLocation}:         {"listened_at", "music_activities"},
	{query.TypeLocation, query.TypeMusic}:         {"music_activities", "listened_at"},
	{query.TypeMusic, query.TypeTask}:             {"played_during", "background_music"},
	{query.TypeTask, query.TypeMusic}:             {"background_music", "played_during"},
	{query.TypeStorage, query.TypeTask}:           {"related_to_task", "has_files"},
	{query.TypeTask, query.TypeStorage}:           {"has_files", "related_to_task"},
	{query.TypeStorage, query.TypeCollaboration}:  {"shared_in", "has_files"},
	{query.TypeCollaboration, query.TypeStorage}:  {"has_files", "shared_in"},
	{query.TypeMedia, query.TypeTask}:             {"watched_during", "has_media"},
	{query.TypeTask, query.TypeMedia}:             {"has_media", "watched_during"},
}

// Resolver builds and runs cross-collection joins.
type Resolver struct {
	docs      datastore.Datastore
	extractor *query.Extractor
	logger    *zap.SugaredLogger
	fields    map[Pair][]string
}

// NewResolver creates a resolver over the default field table with overrides
// applied. Override keys are "primary:related" type names.
func NewResolver(docs datastore.Datastore, log *zap.SugaredLogger, overrides map[string][]string) (*Resolver, error) {
	fields := make(map[Pair][]string, len(DefaultFields)+len(overrides))
	for p, f := range DefaultFields {
		fields[p] = f
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p, err := ParsePair(k)
		if err != nil {
			return nil, err
		}
		if len(overrides[k]) == 0 {
			return nil, errors.Configurationf("relationship %s has no fields", k)
		}
		fields[p] = append([]string(nil), overrides[k]...)
	}

	return &Resolver{
		docs:      docs,
		extractor: query.NewExtractor(nil, nil),
		logger:    logger.OrNop(log),
		fields:    fields,
	}, nil
}

// WithExtractor replaces the vocabulary used to decide which filters apply
// to related collections.
func (r *Resolver) WithExtractor(e *query.Extractor) *Resolver {
	if e != nil {
		r.extractor = e
	}
	return r
}

// Fields returns the reference fields linking primary to related, falling
// back to FallbackField for unknown pairs.
func (r *Resolver) Fields(primary, related query.CollectionType) []string {
	if f, ok := r.fields[Pair{primary, related}]; ok {
		return f
	}
	r.logger.Warnw("No known relationship between types, using generic field",
		"primary_type", primary,
		"related_type", related,
		"field", FallbackField,
	)
	return []string{FallbackField}
}

// BuildJoin renders a join returning documents of primary linked to every
// related collection through the first relationship field. Primary filters
// come from terms; a related collection is additionally filtered on those
// terms whose field belongs to its own vocabulary.
func (r *Resolver) BuildJoin(primary string, related []string, terms query.Terms) (datastore.Query, error) {
	if primary == "" {
		return datastore.Query{}, errors.New("join requires a primary collection")
	}
	if len(related) == 0 {
		return datastore.Query{}, errors.Newf("join for %s requires at least one related collection", primary)
	}

	primaryType := query.TypeOf(primary)
	targets := make([]query.JoinTarget, 0, len(related))
	for _, rc := range related {
		if rc == primary {
			return datastore.Query{}, errors.Newf("collection %s cannot be joined with itself", primary)
		}
		relatedType := query.TypeOf(rc)

		var filters []query.Filter
		for _, f := range terms.Filters {
			if r.extractor.HasField(relatedType, f.Field) {
				filters = append(filters, f)
			}
		}

		targets = append(targets, query.JoinTarget{
			Collection: rc,
			Field:      r.Fields(primaryType, relatedType)[0],
			Filters:    filters,
		})
	}

	return query.JoinQuery(primary, terms.Filters, targets), nil
}

// Resolution is the outcome of a join.
type Resolution struct {
	Documents []datastore.Document
	Query     datastore.Query
	// Degraded holds the relationship failure when the join fell back to an
	// empty result.
	Degraded error
}

// Description is the executed statement, noting a degraded join.
func (res Resolution) Description() string {
	if res.Degraded != nil {
		return "degraded join: " + res.Degraded.Error()
	}
	return strings.TrimSpace(res.Query.Text)
}

// Resolve builds and executes a join. A connectivity failure is returned;
// any other failure is logged and yields an empty Resolution.
func (r *Resolver) Resolve(ctx context.Context, primary string, related []string, terms query.Terms) (Resolution, error) {
	log := logger.FromContext(ctx, r.logger)

	q, err := r.BuildJoin(primary, related, terms)
	if err != nil {
		return r.degrade(log, primary, related, q, err), nil
	}

	docs, err := r.docs.ExecuteFilteredQuery(ctx, q)
	if err != nil {
		if errors.IsConnectivity(err) {
			return Resolution{Query: q}, err
		}
		return r.degrade(log, primary, related, q, err), nil
	}

	log.Debugw("Resolved cross-collection join",
		logger.FieldCollection, primary,
		logger.FieldRelated, related,
		logger.FieldCount, len(docs),
	)
	return Resolution{Documents: docs, Query: q}, nil
}

func (r *Resolver) degrade(log *zap.SugaredLogger, primary string, related []string, q datastore.Query, cause error) Resolution {
	err := errors.Relationshipf(cause, "cross-collection join for %s", primary)
	log.Warnw("Cross-collection join failed, using empty result",
		logger.FieldCollection, primary,
		logger.FieldRelated, related,
		logger.FieldError, err,
	)
	return Resolution{Query: q, Degraded: err}
}
