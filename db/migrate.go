package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/ablation/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migration is one embedded schema file.
type Migration struct {
	Version string
	File    string
}

// Migrations lists the embedded migrations in application order.
func Migrations() ([]Migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var list []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		list = append(list, Migration{
			Version: strings.SplitN(entry.Name(), "_", 2)[0],
			File:    entry.Name(),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].File < list[j].File })
	return list, nil
}

// Migrate runs all pending migrations and returns the versions it applied.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) ([]string, error) {
	list, err := Migrations()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range list {
		done, err := isApplied(db, m)
		if err != nil {
			return applied, err
		}
		if done {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)", "migration", m.File)
			}
			continue
		}

		body, err := migrations.ReadFile(path.Join(migrationsDir, m.File))
		if err != nil {
			return applied, errors.Wrapf(err, "read %s", m.File)
		}

		if logger != nil {
			logger.Infow("Applying migration", "migration", m.File, "version", m.Version)
		}

		if err := apply(db, m, string(body)); err != nil {
			return applied, err
		}
		applied = append(applied, m.Version)
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"total_migrations", len(list),
			"applied", len(applied),
		)
	}

	return applied, nil
}

// isApplied checks schema_migrations. The table is created by 000, so a
// failing lookup is only acceptable for that first migration.
func isApplied(db *sql.DB, m Migration) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", m.Version).Scan(&exists)
	if err != nil {
		if IsUnreachable(err) {
			return false, errors.Wrapf(err, "check %s", m.File)
		}
		if m.Version != "000" {
			return false, errors.Newf("schema_migrations table missing, but migration is not 000: %s", m.File)
		}
		return false, nil
	}
	return exists, nil
}

func apply(db *sql.DB, m Migration, body string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.File)
	}

	if _, err := tx.Exec(body); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "execute %s", m.File)
	}

	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s", m.File)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", m.File)
	}
	return nil
}
