package datastore

import (
	"context"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/teranos/ablation/errors"
)

// Fixture is a set of collections with their documents, used to seed a
// datastore for a run or a test.
//
//	collections:
//	  MusicActivity:
//	    - _key: m1
//	      artist: Taylor Swift
//	      references:
//	        listened_at: [LocationActivity/l1]
type Fixture struct {
	Collections map[string][]Document `yaml:"collections"`
}

// LoadFixture reads a YAML fixture from disk.
func LoadFixture(path string) (*Fixture, error) {
	if path == "" {
		return nil, errors.New("fixture path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixture")
	}
	return ParseFixture(data)
}

// ParseFixture decodes fixture YAML.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse fixture")
	}
	if len(f.Collections) == 0 {
		return nil, errors.New("fixture has no collections")
	}
	for name, docs := range f.Collections {
		for i, doc := range docs {
			if doc.Key() == "" {
				return nil, errors.Newf("fixture collection %s document %d missing _key", name, i)
			}
		}
	}
	return &f, nil
}

// Names returns the fixture collection names, sorted.
func (f *Fixture) Names() []string {
	names := make([]string, 0, len(f.Collections))
	for name := range f.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Seed creates every fixture collection and inserts its documents.
// Existing documents in those collections are replaced.
func (f *Fixture) Seed(ctx context.Context, store Datastore) error {
	for _, name := range f.Names() {
		if err := store.CreateCollection(ctx, name); err != nil {
			return err
		}
		if err := store.RemoveAllDocuments(ctx, name); err != nil {
			return err
		}
		if err := store.BulkInsert(ctx, name, f.Collections[name]); err != nil {
			return err
		}
	}
	return nil
}
