package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/ablation/datastore"
	"github.com/teranos/ablation/display"
	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/experiment"
	"github.com/teranos/ablation/logger"
	"github.com/teranos/ablation/truth"
)

// TruthCmd manages ground truth records
var TruthCmd = &cobra.Command{
	Use:   "truth",
	Short: "Load and inspect ground truth",
	Long: `Load and inspect the ground truth stored per (query, collection).

Truth records are immutable: storing the same set again is a no-op, while a
different non-empty set for the same query and collection is rejected.

Examples:
  ablation truth load queries.yaml    # Store truth for every suite query
  ablation truth list                 # List query ids with truth
  ablation truth show <query-id>      # Show truth sets of one query`,
}

var truthLoadCmd = &cobra.Command{
	Use:   "load <suite.yaml>",
	Short: "Store ground truth from a query suite",
	Args:  cobra.ExactArgs(1),
	RunE:  runTruthLoad,
}

var truthListCmd = &cobra.Command{
	Use:   "list",
	Short: "List query ids with stored truth",
	RunE:  runTruthList,
}

var truthShowCmd = &cobra.Command{
	Use:   "show <query-id>",
	Short: "Show the truth sets of a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runTruthShow,
}

func init() {
	TruthCmd.AddCommand(truthLoadCmd)
	TruthCmd.AddCommand(truthListCmd)
	TruthCmd.AddCommand(truthShowCmd)
}

func openTruthStore(cmd *cobra.Command) (*truth.Store, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	log := logger.Logger.Named("truth")
	store := truth.NewStore(database, datastore.NewSQLiteStore(database, log), log).
		WithEntityValidation(!cfg.Truth.SkipEntityValidation)
	return store, func() { database.Close() }, nil
}

func runTruthLoad(cmd *cobra.Command, args []string) error {
	suite, err := experiment.LoadSuite(args[0])
	if err != nil {
		return err
	}
	store, closeDB, err := openTruthStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx := cmd.Context()
	for _, q := range suite.Queries {
		var opts []truth.StoreOption
		if q.Synthetic {
			opts = append(opts, truth.SkipEntityValidation())
		}
		if err := store.StoreUnified(ctx, q.ID, q.Truth, opts...); err != nil {
			return errors.Wrapf(err, "store truth for query %q", q.Text)
		}
	}

	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(cmd.OutOrStdout(), map[string]interface{}{"stored": len(suite.Queries)})
	}
	pterm.Success.Printf("Stored truth for %d queries\n", len(suite.Queries))
	return nil
}

func runTruthList(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openTruthStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	ids, err := store.QueryIDs(cmd.Context())
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(cmd.OutOrStdout(), ids)
	}
	if len(ids) == 0 {
		pterm.Info.Println("No truth records")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runTruthShow(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openTruthStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	sets, found, err := store.GetUnified(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !found {
		return errors.WithHint(
			errors.Integrityf("no truth stored for query %s", args[0]),
			"list stored queries with: ablation truth list")
	}

	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(cmd.OutOrStdout(), sets)
	}

	collections := make([]string, 0, len(sets))
	for c := range sets {
		collections = append(collections, c)
	}
	sort.Strings(collections)

	data := pterm.TableData{{"Collection", "Keys", "Entities"}}
	for _, c := range collections {
		keys := sets[c].Sorted()
		data = append(data, []string{c, fmt.Sprintf("%d", len(keys)), strings.Join(keys, ", ")})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render()
}
