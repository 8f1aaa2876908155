package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/cmd/cytofkit/commands"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
)

var rootCmd = &cobra.Command{
	Use:   "cytofkit",
	Short: "cytofkit - mass cytometry analysis pipeline",
	Long: `cytofkit - fuse, cluster, embed and annotate mass cytometry tables.

Every command takes a directory of delimited files sharing one column set.
Results go into timestamped directories next to the input, and every run is
recorded in the ledger (see 'cytofkit runs').

Available commands:
  check    - Check that the files of a directory share one schema
  fuse     - Load and fuse a directory, report what was found
  cluster  - Cluster cells and export labels, marker means and a heatmap
  embed    - Compute a 2D embedding (t-SNE or UMAP) and a scatter plot
  compose  - Cell type composition per sample
  split    - Extract rows and columns from a file or a folder
  map      - Replace cluster labels with cell types
  watch    - Re-fuse and re-cluster whenever the input changes
  runs     - Inspect past runs
  am       - Manage configuration ("I am")

Examples:
  cytofkit cluster ./samples --algorithm phenograph --k 20
  cytofkit embed ./samples --algorithm umap --seed 7
  cytofkit map ./samples/results/cluster_results/260314_0926 --mapping cells.csv
  cytofkit runs ls --kind cluster`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if jsonOutput {
			pterm.DisableStyling()
		}
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			am.SetConfigFile(path)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "Machine-readable output: JSON results on stdout, JSON logs and progress on stderr")
	rootCmd.PersistentFlags().String("config", "", "Read configuration from this file only")

	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.FuseCmd)
	rootCmd.AddCommand(commands.ClusterCmd)
	rootCmd.AddCommand(commands.EmbedCmd)
	rootCmd.AddCommand(commands.ComposeCmd)
	rootCmd.AddCommand(commands.SplitCmd)
	rootCmd.AddCommand(commands.MapCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		commands.PrintError(err)
		os.Exit(errors.KindOf(err).ExitCode())
	}
}
