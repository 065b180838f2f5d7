package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/teranos/ablation/am"
	"github.com/teranos/ablation/display"
	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/logger"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage ablation configuration",
	Long: `am - Manage ablation configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (ABLATION_* prefix)
3. Project config (./am.toml, searched up directories)
4. User config (~/.ablation/am.toml)
5. System config (/etc/ablation/am.toml)
6. Default values

Passing --config reads exactly that file instead of the cascade.

Examples:
  ablation am init                      # Write ./am.toml with defaults
  ablation am show                      # Show current configuration
  ablation am show --format json        # Show configuration as JSON
  ablation am show --sources            # Show where each setting came from
  ablation am get experiment.rounds     # Get specific config value
  ablation am validate --watch          # Revalidate whenever am.toml changes`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., experiment.rounds, restore.batch_size)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default am.toml",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmInit,
}

var (
	configFormat string
	showSources  bool
	watchConfig  bool
	forceInit    bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&showSources, "sources", false, "Show the source of every setting")
	amValidateCmd.Flags().BoolVar(&watchConfig, "watch", false, "Keep watching the config file and revalidate on change")
	amInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file (previous versions are kept as .back1-3)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amInitCmd)
}

// configViper returns the viper behind --config, or the cascade's.
func configViper(cmd *cobra.Command) (*viper.Viper, map[string]am.SourceInfo, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return am.ReadFile(path)
	}
	if _, err := am.Load(); err != nil {
		return nil, nil, err
	}
	return am.GetViper(), am.ConfigSources, nil
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if showSources {
		return showConfigSources(cmd)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	format := configFormat
	if display.ShouldOutputJSON(cmd) {
		format = "json"
	}

	switch format {
	case "json":
		return display.WriteJSON(cmd.OutOrStdout(), cfg)

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# ablation configuration\n%s", data)

	case "toml":
		data, err := am.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# ablation configuration\n%s", data)

	default:
		return errors.WithHint(
			errors.Configurationf("unsupported format: %s", format),
			"supported formats: toml, json, yaml")
	}
	return nil
}

func showConfigSources(cmd *cobra.Command) error {
	v, sources, err := configViper(cmd)
	if err != nil {
		return err
	}
	intro := am.Introspect(v, sources)

	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(cmd.OutOrStdout(), intro)
	}

	data := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range intro.Settings {
		value := fmt.Sprintf("%v", s.Value)
		if len(value) > 50 {
			value = value[:47] + "..."
		}
		data = append(data, []string{s.Key, value, string(s.Source), s.SourcePath})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render(); err != nil {
		return err
	}

	counts := intro.CountBySource()
	for _, source := range []am.ConfigSource{
		am.SourceDefault, am.SourceSystem, am.SourceUser,
		am.SourceProject, am.SourceFile, am.SourceEnvironment,
	} {
		if n := counts[source]; n > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d settings\n", source, n)
		}
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v, _, err := configViper(cmd)
	if err != nil {
		return err
	}
	if !v.IsSet(key) {
		return errors.WithHint(
			errors.Configurationf("configuration key %q not found", key),
			"list every key with: ablation am show --sources")
	}

	if display.ShouldOutputJSON(cmd) {
		return display.WriteJSON(cmd.OutOrStdout(), map[string]interface{}{key: v.Get(key)})
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	pterm.Success.Println("Configuration is valid")

	if !watchConfig {
		return nil
	}
	return watchAndValidate(cmd)
}

func watchAndValidate(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = am.ProjectConfigName
	}

	log := logger.Logger.Named("am")
	watcher, err := am.NewConfigWatcher(path, log)
	if err != nil {
		return err
	}
	watcher.OnReload(func(_ *am.Config, err error) {
		if err != nil {
			pterm.Error.Printf("%s: %v\n", path, err)
			if hint := errors.FlattenHints(err); hint != "" {
				pterm.Info.Println(hint)
			}
			return
		}
		pterm.Success.Printf("%s is valid\n", path)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pterm.Info.Printf("Watching %s (Ctrl-C to stop)\n", path)
	return watcher.Run(ctx)
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := am.ProjectConfigName
	if len(args) == 1 {
		path = args[0]
	}
	if err := am.WriteDefault(path, forceInit); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", path)
	return nil
}
