package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/teranos/ablation/datastore"
)

// Builder accumulates WHERE clauses and named bind variables for a
// statement over the documents table.
type Builder struct {
	whereClauses []string
	bind         map[string]any
	seq          int
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{bind: make(map[string]any)}
}

// Param registers value under a generated name and returns its placeholder.
func (b *Builder) Param(value any) string {
	b.seq++
	return b.Named(fmt.Sprintf("p%d", b.seq), value)
}

// Named registers value under name and returns its placeholder.
func (b *Builder) Named(name string, value any) string {
	b.bind[name] = value
	return "@" + name
}

// addClause appends a WHERE clause. Clauses are joined with AND.
func (b *Builder) addClause(clause string) {
	b.whereClauses = append(b.whereClauses, clause)
}

// where returns the WHERE clauses joined with AND
func (b *Builder) where() string {
	if len(b.whereClauses) == 0 {
		return "1"
	}
	return strings.Join(b.whereClauses, " AND ")
}

// JSONField renders an expression extracting field from alias.body.
func (b *Builder) JSONField(alias, field string) string {
	return "json_extract(" + alias + ".body, " + b.Param("$."+field) + ")"
}

// fieldMatch renders a case-insensitive containment test on one JSON field.
func (b *Builder) fieldMatch(alias string, f Filter) string {
	pattern := "%" + escapeLikePattern(f.Value) + "%"
	return b.JSONField(alias, f.Field) + " LIKE " + b.Param(pattern) + " ESCAPE '\\'"
}

// anyFilter renders the filters joined with OR, or "" when there are none.
func (b *Builder) anyFilter(alias string, filters []Filter) string {
	if len(filters) == 0 {
		return ""
	}
	clauses := make([]string, len(filters))
	for i, f := range filters {
		clauses[i] = b.fieldMatch(alias, f)
	}
	return "(" + strings.Join(clauses, " OR ") + ")"
}

// referenceContains renders a test that the JSON array at
// owner.body.references.<field> contains the handle of target.
func (b *Builder) referenceContains(owner, field, target string) string {
	return "EXISTS (SELECT 1 FROM json_each(" + owner + ".body, " + b.Param("$.references."+field) + ") AS ref" +
		" WHERE ref.value = " + target + ".collection || '/' || " + target + ".key)"
}

// escapeLikePattern escapes special characters in LIKE patterns for SQL ESCAPE clause
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func (b *Builder) build(selectFrom, orderBy string) datastore.Query {
	text := selectFrom + " WHERE " + b.where()
	if orderBy != "" {
		text += " ORDER BY " + orderBy
	}
	return datastore.Query{Text: text, Bind: b.bind}
}

// TruthQuery returns exactly the documents of collection whose key is in keys.
func TruthQuery(collection string, keys []string) datastore.Query {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	encoded, _ := json.Marshal(sorted)

	b := NewBuilder()
	b.addClause("d.collection = " + b.Named("collection", collection))
	b.addClause("d.key IN (SELECT value FROM json_each(" + b.Named("truth_keys", string(encoded)) + "))")
	return b.build("SELECT "+datastore.Columns("d")+" FROM documents AS d", "d.key")
}

// FilterQuery returns documents of collection matching any of the filters.
// With no filters it matches nothing.
func FilterQuery(collection string, filters []Filter) datastore.Query {
	b := NewBuilder()
	b.addClause("d.collection = " + b.Named("collection", collection))
	if clause := b.anyFilter("d", filters); clause != "" {
		b.addClause(clause)
	} else {
		b.addClause("0")
	}
	return b.build("SELECT "+datastore.Columns("d")+" FROM documents AS d", "d.key")
}

// JoinTarget is one related collection in a cross-collection join.
type JoinTarget struct {
	Collection string
	Field      string
	Filters    []Filter
}

// JoinQuery returns primary documents that are linked to a document of every
// target collection, in either direction, through the target's reference
// field. primaryFilters restrict the primary side; with none, primary
// documents must at least carry references.
func JoinQuery(primary string, primaryFilters []Filter, targets []JoinTarget) datastore.Query {
	b := NewBuilder()
	b.addClause("p.collection = " + b.Named("primary", primary))

	if clause := b.anyFilter("p", primaryFilters); clause != "" {
		b.addClause(clause)
	} else {
		b.addClause("json_extract(p.body, '$.references') IS NOT NULL")
	}

	for i, t := range targets {
		alias := fmt.Sprintf("r%d", i+1)
		inner := []string{
			alias + ".collection = " + b.Named(fmt.Sprintf("related%d", i+1), t.Collection),
			"(" + b.referenceContains("p", t.Field, alias) + " OR " + b.referenceContains(alias, t.Field, "p") + ")",
		}
		if clause := b.anyFilter(alias, t.Filters); clause != "" {
			inner = append(inner, clause)
		}
		b.addClause("EXISTS (SELECT 1 FROM documents AS " + alias + " WHERE " + strings.Join(inner, " AND ") + ")")
	}

	return b.build("SELECT "+datastore.Columns("p")+" FROM documents AS p", "p.key")
}
