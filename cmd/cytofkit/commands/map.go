package commands

import (
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/pipeline"
)

// MapCmd turns cluster labels into cell types
var MapCmd = &cobra.Command{
	Use:   "map <dir>",
	Short: "Replace cluster labels with cell types",
	Long: `Rewrite every file of a clustered folder with its cluster_label column
replaced, in place, by a cell_type column looked up in a mapping file
(cluster_label,cell_type). Labels without a mapping are kept as they are.

Results go to <dir>/anno_result/<yymmdd_HHMM>/.`,
	Args: cobra.ExactArgs(1),
	RunE: runMap,
}

func init() {
	MapCmd.Flags().StringP("mapping", "m", "", "Mapping file with cluster_label and cell_type columns")
	_ = MapCmd.MarkFlagRequired("mapping")
}

func runMap(cmd *cobra.Command, args []string) error {
	mapping, _ := cmd.Flags().GetString("mapping")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()
	rep, err := s.pipeline.Do(ctx, pipeline.MapRequest{Dir: args[0], Mapping: mapping})
	if err != nil {
		return err
	}
	return printReport(s, rep)
}
