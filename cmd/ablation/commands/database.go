package commands

import (
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/ablation/ablation"
	"github.com/teranos/ablation/am"
	"github.com/teranos/ablation/datastore"
	"github.com/teranos/ablation/db"
	"github.com/teranos/ablation/harness"
	"github.com/teranos/ablation/logger"
	"github.com/teranos/ablation/relationship"
	"github.com/teranos/ablation/truth"
)

// loadConfig reads --config when given, otherwise the am.toml cascade.
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return am.LoadFromFile(path)
	}
	return am.Load()
}

// openDatabase opens the configured database and applies pending migrations.
// An unreachable database is a connectivity failure.
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	dbPath := cfg.GetDatabasePath()

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, db.Classify(err, "failed to open database at %s", dbPath)
	}

	if _, err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, db.Classify(err, "failed to run migrations on %s", dbPath)
	}
	return database, nil
}

// newTester wires the harness components for one run.
func newTester(cfg *am.Config, database *sql.DB, log *zap.SugaredLogger) (*harness.Tester, error) {
	docs := datastore.NewSQLiteStore(database, log)

	extractor := cfg.Terms.Extractor()
	resolver, err := relationship.NewResolver(docs, log, cfg.Relationships)
	if err != nil {
		return nil, err
	}
	resolver.WithExtractor(extractor)

	truthStore := truth.NewStore(database, docs, log).
		WithEntityValidation(!cfg.Truth.SkipEntityValidation)

	machine := ablation.NewMachine(docs, log,
		ablation.WithBatchSize(cfg.Restore.BatchSize),
		ablation.WithBatchRate(cfg.Restore.BatchesPerSecond),
	)

	return harness.New(docs, truthStore, machine, resolver, log,
		harness.WithCollections(cfg.Experiment.Collections),
		harness.WithExtractor(extractor)), nil
}
