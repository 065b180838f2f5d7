package experiment

import (
	"bytes"
	"io"
	"os"
	"slices"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/version"
)

// queryNamespace scopes the name-based UUIDs derived from query text.
var queryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/teranos/ablation/queries"))

// QueryID derives a stable query id from the query text.
func QueryID(text string) string {
	return uuid.NewSHA1(queryNamespace, []byte(text)).String()
}

// SuiteQuery is one query with its truth sets.
type SuiteQuery struct {
	ID          string              `yaml:"id,omitempty"`
	Text        string              `yaml:"text"`
	Collections []string            `yaml:"collections,omitempty"`
	Truth       map[string][]string `yaml:"truth"`
	// Synthetic truth names placeholder entities and skips key validation.
	Synthetic bool `yaml:"synthetic,omitempty"`
}

// TargetCollections lists the collections the query is measured on: the
// explicit list, or every collection with truth.
func (q SuiteQuery) TargetCollections() []string {
	if len(q.Collections) > 0 {
		return NewCombination(q.Collections...)
	}
	names := make([]string, 0, len(q.Truth))
	for name := range q.Truth {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Suite is a set of queries with ground truth.
//
//	queries:
//	  - text: What music did I listen to at the Coffee Shop?
//	    truth:
//	      AblationMusicActivity: [m1, m3]
//	      AblationLocationActivity: [l1]
type Suite struct {
	// Requires is an optional version constraint on the harness, e.g. ">= 0.4".
	Requires string       `yaml:"requires,omitempty"`
	Queries  []SuiteQuery `yaml:"queries"`
}

// LoadSuite reads a YAML query suite from disk.
func LoadSuite(path string) (*Suite, error) {
	if path == "" {
		return nil, errors.Configurationf("query suite path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithSecondaryError(errors.Configurationf("cannot read query suite %s", path), err)
	}
	return ParseSuite(data)
}

// ParseSuite decodes a single-document suite, filling in derived query ids.
func ParseSuite(data []byte) (*Suite, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var s Suite
	if err := decoder.Decode(&s); err != nil {
		return nil, errors.WithDetail(errors.Configurationf("cannot parse query suite"), err.Error())
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.Configurationf("query suite must be a single YAML document")
	}
	if s.Requires != "" {
		if err := version.Require(s.Requires); err != nil {
			return nil, err
		}
	}
	if len(s.Queries) == 0 {
		return nil, errors.Configurationf("query suite has no queries")
	}

	seen := make(map[string]int, len(s.Queries))
	for i := range s.Queries {
		q := &s.Queries[i]
		if q.Text == "" {
			return nil, errors.Configurationf("query %d has no text", i)
		}
		if len(q.Truth) == 0 {
			return nil, errors.Configurationf("query %q has no truth sets", q.Text)
		}
		if q.ID == "" {
			q.ID = QueryID(q.Text)
		}
		if prev, dup := seen[q.ID]; dup {
			return nil, errors.Configurationf("queries %d and %d share id %s", prev, i, q.ID)
		}
		seen[q.ID] = i
	}
	return &s, nil
}

// Collections returns every collection the suite mentions, sorted.
func (s *Suite) Collections() []string {
	var names []string
	for _, q := range s.Queries {
		names = append(names, q.TargetCollections()...)
		for name := range q.Truth {
			names = append(names, name)
		}
	}
	return NewCombination(names...)
}
