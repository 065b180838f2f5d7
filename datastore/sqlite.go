package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/ablation/db"
	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/logger"
)

// Query constants
const (
	collectionExistsQuery = `
		SELECT EXISTS(SELECT 1 FROM collections WHERE name = ?)`

	collectionCreateQuery = `
		INSERT OR IGNORE INTO collections (name) VALUES (?)`

	collectionListQuery = `
		SELECT c.name, COUNT(d.key)
		FROM collections c
		LEFT JOIN documents d ON d.collection = c.name
		GROUP BY c.name
		ORDER BY c.name`

	documentSelectAllQuery = `
		SELECT collection, key, rev, body FROM documents
		WHERE collection = ?
		ORDER BY key`

	documentSelectQuery = `
		SELECT collection, key, rev, body FROM documents
		WHERE collection = ? AND key = ?`

	documentDeleteAllQuery = `
		DELETE FROM documents WHERE collection = ?`

	documentInsertQuery = `
		INSERT INTO documents (collection, key, rev, body)
		VALUES (?, ?, 1, ?)`
)

// Columns returns the column list ExecuteFilteredQuery expects a statement to
// select, qualified by the given table alias.
func Columns(alias string) string {
	return alias + ".collection, " + alias + ".key, " + alias + ".rev, " + alias + ".body"
}

// CollectionStats is a collection name with its document count.
type CollectionStats struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
}

var _ Datastore = (*SQLiteStore)(nil)

// SQLiteStore stores collections as JSON documents in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewSQLiteStore creates a datastore over a migrated database.
func NewSQLiteStore(database *sql.DB, log *zap.SugaredLogger) *SQLiteStore {
	return &SQLiteStore{
		db:     database,
		logger: logger.OrNop(log),
	}
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Connectivityf(err, "ping datastore")
	}
	return nil
}

func (s *SQLiteStore) HasCollection(ctx context.Context, name string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, collectionExistsQuery, name).Scan(&exists); err != nil {
		return false, db.Classify(err, "check collection %s", name)
	}
	return exists, nil
}

func (s *SQLiteStore) CreateCollection(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("collection name cannot be empty")
	}
	if _, err := s.db.ExecContext(ctx, collectionCreateQuery, name); err != nil {
		return db.Classify(err, "create collection %s", name)
	}
	return nil
}

// Collections lists every collection with its document count.
func (s *SQLiteStore) Collections(ctx context.Context) ([]CollectionStats, error) {
	rows, err := s.db.QueryContext(ctx, collectionListQuery)
	if err != nil {
		return nil, db.Classify(err, "list collections")
	}
	defer rows.Close()

	var stats []CollectionStats
	for rows.Next() {
		var cs CollectionStats
		if err := rows.Scan(&cs.Name, &cs.Documents); err != nil {
			return nil, db.Classify(err, "scan collection row")
		}
		stats = append(stats, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err, "list collections")
	}
	return stats, nil
}

func (s *SQLiteStore) GetAllDocuments(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, documentSelectAllQuery, collection)
	if err != nil {
		return nil, db.Classify(err, "read collection %s", collection)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, db.Classify(err, "read collection %s", collection)
	}
	return docs, nil
}

func (s *SQLiteStore) RemoveAllDocuments(ctx context.Context, collection string) error {
	res, err := s.db.ExecContext(ctx, documentDeleteAllQuery, collection)
	if err != nil {
		return db.Classify(err, "truncate collection %s", collection)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Debugw("Removed documents", logger.FieldCollection, collection, logger.FieldCount, n)
	}
	return nil
}

// BulkInsert inserts docs in one transaction. Documents without a key get a
// generated one. A duplicate key fails the whole batch.
func (s *SQLiteStore) BulkInsert(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return db.Classify(err, "begin bulk insert into %s", collection)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, documentInsertQuery)
	if err != nil {
		return db.Classify(err, "prepare bulk insert into %s", collection)
	}
	defer stmt.Close()

	for _, doc := range docs {
		key := doc.Key()
		if key == "" {
			key = uuid.NewString()
		}
		body, err := json.Marshal(doc.body())
		if err != nil {
			return errors.Wrapf(err, "marshal document %s/%s", collection, key)
		}
		if _, err := stmt.ExecContext(ctx, collection, key, string(body)); err != nil {
			return db.Classify(err, "insert document %s/%s", collection, key)
		}
	}

	if err := tx.Commit(); err != nil {
		return db.Classify(err, "commit bulk insert into %s", collection)
	}
	return nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, collection, key string) (Document, bool, error) {
	rows, err := s.db.QueryContext(ctx, documentSelectQuery, collection, key)
	if err != nil {
		return nil, false, db.Classify(err, "get document %s/%s", collection, key)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, false, db.Classify(err, "get document %s/%s", collection, key)
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}

// ExecuteFilteredQuery runs a statement that selects Columns(alias) and
// returns the matching documents.
func (s *SQLiteStore) ExecuteFilteredQuery(ctx context.Context, q Query) ([]Document, error) {
	args := make([]any, 0, len(q.Bind))
	for name, value := range q.Bind {
		args = append(args, sql.Named(name, value))
	}

	rows, err := s.db.QueryContext(ctx, q.Text, args...)
	if err != nil {
		return nil, db.Classify(err, "execute filtered query")
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, db.Classify(err, "scan filtered query")
	}
	return docs, nil
}

// scanDocuments consumes and closes rows of (collection, key, rev, body).
func scanDocuments(rows *sql.Rows) ([]Document, error) {
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			collection, key, body string
			rev                   int64
		)
		if err := rows.Scan(&collection, &key, &rev, &body); err != nil {
			return nil, err
		}

		doc, err := decodeBody(body)
		if err != nil {
			return nil, errors.Wrapf(err, "decode document %s/%s", collection, key)
		}
		doc[KeyField] = key
		doc[IDField] = DocumentID(collection, key)
		doc[RevField] = strconv.FormatInt(rev, 10)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// decodeBody keeps numbers as json.Number so that integers beyond 2^53
// survive a read and re-insert unchanged.
func decodeBody(body string) (Document, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	doc := Document{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}
