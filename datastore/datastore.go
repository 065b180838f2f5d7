// Package datastore defines the document-store contract consumed by the
// ablation harness and provides a SQLite implementation of it.
//
// The harness treats the datastore as an opaque set of named collections of
// JSON documents. It never indexes or ranks; it only needs create, read,
// delete, bulk insert and predicate-filtered scans.
package datastore

import (
	"context"
	"sort"
)

// Identity fields managed by the datastore. They are present on every
// document read back and stripped before re-insertion.
const (
	KeyField = "_key"
	IDField  = "_id"
	RevField = "_rev"
)

// Document is one entity in a collection.
type Document map[string]any

// Key returns the document key, or "" if absent.
func (d Document) Key() string {
	if k, ok := d[KeyField].(string); ok {
		return k
	}
	return ""
}

// StripIdentity returns a copy without the datastore-managed _id and _rev
// fields. _key is kept so restored documents retain their identity.
func (d Document) StripIdentity() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if k == IDField || k == RevField {
			continue
		}
		out[k] = v
	}
	return out
}

// body returns the document without any identity fields, as persisted.
func (d Document) body() Document {
	out := make(Document, len(d))
	for k, v := range d {
		if k == KeyField || k == IDField || k == RevField {
			continue
		}
		out[k] = v
	}
	return out
}

// Keys returns the sorted, deduplicated keys of docs.
func Keys(docs []Document) []string {
	seen := make(map[string]struct{}, len(docs))
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		k := d.Key()
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DocumentID builds the document handle stored in cross-collection
// reference fields.
func DocumentID(collection, key string) string {
	return collection + "/" + key
}

// Query is a parameterized predicate: statement text plus named bind
// variables. Text is referenced as @name placeholders.
type Query struct {
	Text string
	Bind map[string]any
}

// Datastore is the set of primitives the harness needs from a document store.
type Datastore interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string) error
	GetAllDocuments(ctx context.Context, collection string) ([]Document, error)
	RemoveAllDocuments(ctx context.Context, collection string) error
	BulkInsert(ctx context.Context, collection string, docs []Document) error
	GetDocument(ctx context.Context, collection, key string) (Document, bool, error)
	ExecuteFilteredQuery(ctx context.Context, q Query) ([]Document, error)
}
