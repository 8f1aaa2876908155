package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage cytofkit configuration",
	Long: `am - Manage cytofkit configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags and --params files
2. Environment variables (CYTOFKIT_* prefix, e.g. CYTOFKIT_CLUSTER_ALGORITHM)
3. Project config (./cytofkit.toml, searched upwards)
4. User config (~/.cytofkit/config.toml)
5. System config (/etc/cytofkit/config.toml)
6. Default values

Examples:
  cytofkit am show                    # Show current configuration
  cytofkit am show --format yaml      # Show configuration as YAML
  cytofkit am init                    # Write defaults to ~/.cytofkit/config.toml
  cytofkit am where                   # Show which files are read`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	Args:  cobra.NoArgs,
	RunE:  runAmInit,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Args:  cobra.NoArgs,
	RunE:  runAmWhere,
}

func init() {
	amShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().String("path", filepath.Join(am.Dir(), "config.toml"), "Where to write the configuration")
	amInitCmd.Flags().Bool("force", false, "Overwrite an existing file (a backup is kept)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.WrapInput(err, "failed to load config")
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Printf("# cytofkit configuration\n%s", data)
	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Printf("# cytofkit configuration\n%s", data)
	default:
		return errors.InputErrorf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return errors.WithHint(errors.InputErrorf("%s already exists", path), "pass --force to overwrite it")
	}
	if err := am.WriteFile(path, am.Defaults()); err != nil {
		return errors.WrapIO(err, "failed to write %s", path)
	}
	pterm.Success.Printf("Wrote default configuration to %s\n", path)
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	if explicit, _ := cmd.Flags().GetString("config"); explicit != "" {
		pterm.Printf("%s (--config)\n", explicit)
		return nil
	}
	for _, path := range am.ConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			pterm.Printf("%s %s\n", pterm.Green("✓"), path)
		} else {
			pterm.Printf("%s %s\n", pterm.Gray("-"), path)
		}
	}
	pterm.Printf("environment: %s_*\n", am.EnvPrefix)
	return nil
}
