// Package truth persists the ground-truth entity sets that every ablation
// metric is computed against.
//
// A record is keyed by (query id, collection). Absence means truth is not yet
// established; an empty set means truth is known to be nothing. Records are
// immutable except by identical overwrite, with one reconciliation: an empty
// set and a non-empty set for the same key resolve to the non-empty one.
package truth

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/ablation/datastore"
	"github.com/teranos/ablation/db"
	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/logger"
)

// Query constants
const (
	truthSelectQuery = `
		SELECT entity_keys FROM truth_records
		WHERE query_id = ? AND collection = ?`

	truthSelectUnifiedQuery = `
		SELECT collection, entity_keys FROM truth_records
		WHERE query_id = ?
		ORDER BY collection`

	truthInsertQuery = `
		INSERT INTO truth_records (query_id, collection, entity_keys)
		VALUES (?, ?, ?)`

	truthReplaceQuery = `
		UPDATE truth_records
		SET entity_keys = ?, updated_at = CURRENT_TIMESTAMP
		WHERE query_id = ? AND collection = ?`

	truthQueryIDsQuery = `
		SELECT DISTINCT query_id FROM truth_records ORDER BY query_id`
)

// Key prefixes of placeholder entities that never exist in a live collection.
var syntheticPrefixes = []string{"synthetic_", "control_synthetic_"}

// Store is the truth store. It keeps records in SQLite and checks
// collections and entity keys against the live datastore.
type Store struct {
	db     *sql.DB
	docs   datastore.Datastore
	logger *zap.SugaredLogger

	skipValidation bool
}

// NewStore creates a truth store over a migrated database.
func NewStore(database *sql.DB, docs datastore.Datastore, log *zap.SugaredLogger) *Store {
	return &Store{
		db:     database,
		docs:   docs,
		logger: logger.OrNop(log),
	}
}

// WithEntityValidation sets the store-wide default for per-key existence
// checks. Validation is on unless disabled here or per call.
func (s *Store) WithEntityValidation(enabled bool) *Store {
	s.skipValidation = !enabled
	return s
}

type storeOptions struct {
	skipValidation bool
}

// StoreOption adjusts a single Store or StoreUnified call.
type StoreOption func(*storeOptions)

// SkipEntityValidation stores keys without checking they exist in the live
// collection. Meant for placeholder and cross-collection data where zero
// matching entities is legitimate.
func SkipEntityValidation() StoreOption {
	return func(o *storeOptions) {
		o.skipValidation = true
	}
}

func (s *Store) options(opts []StoreOption) storeOptions {
	o := storeOptions{skipValidation: s.skipValidation}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store records the truth set for (queryID, collection).
func (s *Store) Store(ctx context.Context, queryID, collection string, keys []string, opts ...StoreOption) error {
	return s.StoreUnified(ctx, queryID, map[string][]string{collection: keys}, opts...)
}

// StoreUnified records truth sets for several collections of one query in a
// single transaction. A violation in any collection stores nothing.
func (s *Store) StoreUnified(ctx context.Context, queryID string, sets map[string][]string, opts ...StoreOption) error {
	if strings.TrimSpace(queryID) == "" {
		return errors.Integrityf("truth record requires a query id")
	}
	if len(sets) == 0 {
		return errors.Integrityf("no truth sets given for query %s", queryID)
	}
	o := s.options(opts)

	collections := make([]string, 0, len(sets))
	normalized := make(map[string]KeySet, len(sets))
	for collection, keys := range sets {
		set, err := s.validate(ctx, queryID, collection, keys, o)
		if err != nil {
			return err
		}
		collections = append(collections, collection)
		normalized[collection] = set
	}
	sort.Strings(collections)

	// Validation reads through the datastore, so it must finish before the
	// transaction takes the connection.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return db.Classify(err, "begin truth transaction for query %s", queryID)
	}
	defer tx.Rollback()

	for _, collection := range collections {
		if err := s.storeOne(ctx, tx, queryID, collection, normalized[collection]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return db.Classify(err, "commit truth for query %s", queryID)
	}
	return nil
}

// validate checks the collection and, unless skipped, every non-synthetic key.
func (s *Store) validate(ctx context.Context, queryID, collection string, keys []string, o storeOptions) (KeySet, error) {
	if strings.TrimSpace(collection) == "" {
		return nil, errors.Integrityf("truth record for query %s has no collection", queryID)
	}
	for _, k := range keys {
		if k == "" {
			return nil, errors.Integrityf("truth record %s/%s contains an empty key", queryID, collection)
		}
	}

	exists, err := s.docs.HasCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Integrityf("cannot store truth for query %s: collection %s does not exist", queryID, collection)
	}

	set := NewKeySet(keys...)
	if o.skipValidation {
		return set, nil
	}

	var missing []string
	for _, k := range set.Sorted() {
		if isSynthetic(k) {
			continue
		}
		_, found, err := s.docs.GetDocument(ctx, collection, k)
		if err != nil {
			return nil, err
		}
		if !found {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, errors.WithDetailf(
			errors.Integrityf("truth for query %s names %d entities missing from %s", queryID, len(missing), collection),
			"missing keys: %s", strings.Join(missing, ", "))
	}
	return set, nil
}

func isSynthetic(key string) bool {
	for _, prefix := range syntheticPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// storeOne applies the conflict rule for one record inside tx.
func (s *Store) storeOne(ctx context.Context, tx *sql.Tx, queryID, collection string, set KeySet) error {
	encoded, err := json.Marshal(set)
	if err != nil {
		return errors.Wrapf(err, "encode truth %s/%s", queryID, collection)
	}

	var raw string
	err = tx.QueryRowContext(ctx, truthSelectQuery, queryID, collection).Scan(&raw)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx, truthInsertQuery, queryID, collection, string(encoded)); err != nil {
			return db.Classify(err, "insert truth %s/%s", queryID, collection)
		}
		s.logger.Debugw("Stored truth",
			logger.FieldQueryID, queryID,
			logger.FieldCollection, collection,
			logger.FieldCount, set.Len(),
		)
		return nil
	}
	if err != nil {
		return db.Classify(err, "read truth %s/%s", queryID, collection)
	}

	var existing KeySet
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return errors.Wrapf(err, "decode truth %s/%s", queryID, collection)
	}

	switch {
	case existing.Equal(set):
		return nil
	case set.Len() == 0:
		s.logger.Debugw("Keeping non-empty truth over empty overwrite",
			logger.FieldQueryID, queryID,
			logger.FieldCollection, collection,
		)
		return nil
	case existing.Len() == 0:
		if _, err := tx.ExecContext(ctx, truthReplaceQuery, string(encoded), queryID, collection); err != nil {
			return db.Classify(err, "replace truth %s/%s", queryID, collection)
		}
		s.logger.Debugw("Replaced empty truth",
			logger.FieldQueryID, queryID,
			logger.FieldCollection, collection,
			logger.FieldCount, set.Len(),
		)
		return nil
	default:
		return errors.WithDetailf(
			errors.Integrityf("conflicting truth for query %s in collection %s", queryID, collection),
			"existing keys: %s; offered keys: %s",
			strings.Join(existing.Sorted(), ", "), strings.Join(set.Sorted(), ", "))
	}
}

// Lookup returns the truth set for (queryID, collection) and whether a record
// exists at all.
func (s *Store) Lookup(ctx context.Context, queryID, collection string) (KeySet, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, truthSelectQuery, queryID, collection).Scan(&raw)
	if err == sql.ErrNoRows {
		return KeySet{}, false, nil
	}
	if err != nil {
		return nil, false, db.Classify(err, "read truth %s/%s", queryID, collection)
	}

	var set KeySet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, false, errors.Wrapf(err, "decode truth %s/%s", queryID, collection)
	}
	return set, true, nil
}

// Get returns the truth set, empty when no record exists.
func (s *Store) Get(ctx context.Context, queryID, collection string) (KeySet, error) {
	set, _, err := s.Lookup(ctx, queryID, collection)
	return set, err
}

// GetUnified returns every collection's truth set for queryID.
func (s *Store) GetUnified(ctx context.Context, queryID string) (map[string]KeySet, bool, error) {
	rows, err := s.db.QueryContext(ctx, truthSelectUnifiedQuery, queryID)
	if err != nil {
		return nil, false, db.Classify(err, "read truth for query %s", queryID)
	}
	defer rows.Close()

	sets := make(map[string]KeySet)
	for rows.Next() {
		var collection, raw string
		if err := rows.Scan(&collection, &raw); err != nil {
			return nil, false, db.Classify(err, "scan truth for query %s", queryID)
		}
		var set KeySet
		if err := json.Unmarshal([]byte(raw), &set); err != nil {
			return nil, false, errors.Wrapf(err, "decode truth %s/%s", queryID, collection)
		}
		sets[collection] = set
	}
	if err := rows.Err(); err != nil {
		return nil, false, db.Classify(err, "read truth for query %s", queryID)
	}
	if len(sets) == 0 {
		return nil, false, nil
	}
	return sets, true, nil
}

// QueryIDs lists every query with at least one truth record.
func (s *Store) QueryIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, truthQueryIDsQuery)
	if err != nil {
		return nil, db.Classify(err, "list truth queries")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, db.Classify(err, "scan truth query id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
