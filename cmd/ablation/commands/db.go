package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/ablation/datastore"
	"github.com/teranos/ablation/db"
	"github.com/teranos/ablation/display"
	"github.com/teranos/ablation/logger"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the ablation database",
	Long: `db - Manage the ablation database

The database holds the activity collections under test and the ground truth
store. Migrations are applied automatically by every command that opens it.

Examples:
  ablation db migrate                 # Apply pending migrations
  ablation db import fixture.yaml     # Load collections from a YAML fixture
  ablation db stats                   # Show document counts per collection`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

var dbImportCmd = &cobra.Command{
	Use:   "import <fixture.yaml>",
	Short: "Load collections from a YAML fixture",
	Long: `Load collections from a YAML fixture of the form

  collections:
    AblationMusicActivity:
      - {_key: m1, artist: Taylor Swift}

Each listed collection is created if missing and its documents are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: runDbImport,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show document counts per collection",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbImportCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dbPath := cfg.GetDatabasePath()

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return db.Classify(err, "failed to open database at %s", dbPath)
	}
	defer database.Close()

	applied, err := db.Migrate(database, logger.Logger)
	if err != nil {
		return db.Classify(err, "failed to run migrations on %s", dbPath)
	}

	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(cmd.OutOrStdout(), map[string]interface{}{
			"database": dbPath,
			"applied":  applied,
		})
	}
	if len(applied) == 0 {
		pterm.Info.Printf("%s is up to date\n", dbPath)
		return nil
	}
	for _, version := range applied {
		pterm.Success.Printf("Applied migration %s\n", version)
	}
	return nil
}

func runDbImport(cmd *cobra.Command, args []string) error {
	fixture, err := datastore.LoadFixture(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store := datastore.NewSQLiteStore(database, logger.Logger.Named("db"))
	if err := fixture.Seed(cmd.Context(), store); err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(cmd.OutOrStdout(), map[string]interface{}{"collections": fixture.Names()})
	}
	pterm.Success.Printf("Imported %d collections from %s\n", len(fixture.Names()), args[0])
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := datastore.NewSQLiteStore(database, logger.Logger.Named("db")).Collections(cmd.Context())
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(cmd.OutOrStdout(), stats)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n\n", cfg.GetDatabasePath())
	data := pterm.TableData{{"Collection", "Documents"}}
	total := 0
	for _, cs := range stats {
		data = append(data, []string{cs.Name, fmt.Sprintf("%d", cs.Documents)})
		total += cs.Documents
	}
	data = append(data, []string{"total", fmt.Sprintf("%d", total)})
	return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render()
}
