package commands

import (
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/pipeline"
)

// ClusterCmd clusters the cells of a directory
var ClusterCmd = &cobra.Command{
	Use:   "cluster <dir>",
	Short: "Cluster cells and export labels, marker means and a heatmap",
	Long: `Fuse a directory, standardize its feature columns and cluster every row.

Variants:
  kmeans      centroid partition (--n-clusters, --seed)
  phenograph  shared-neighbour graph communities (--k, --resolution, --seed)
  flowsom     self-organizing grid + metaclustering (--n-clusters, --xdim, --ydim, --seed)

Results go to <dir>/results/cluster_results/<yymmdd_HHMM>/.

Examples:
  cytofkit cluster ./samples
  cytofkit cluster ./samples --algorithm flowsom --n-clusters 15
  cytofkit cluster ./samples --params phenograph.toml`,
	Args: cobra.ExactArgs(1),
	RunE: runCluster,
}

func init() {
	f := ClusterCmd.Flags()
	f.StringP("algorithm", "a", "", "Clustering variant: kmeans, phenograph, flowsom")
	f.Int("n-clusters", 0, "Clusters (kmeans) or metaclusters (flowsom)")
	f.Int("k", 0, "Neighbours per cell (phenograph)")
	f.Float64("resolution", 0, "Modularity resolution (phenograph)")
	f.Int("xdim", 0, "Grid width (flowsom)")
	f.Int("ydim", 0, "Grid height (flowsom)")
	f.Int64("seed", 0, "Random seed for the selected variant")
	f.String("params", "", "TOML file overriding [cluster] parameters")
}

func runCluster(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyClusterFlags(cmd, &cfg.Cluster)

	s, err := newSession(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext(cmd)
	defer cancel()
	rep, err := s.pipeline.Do(ctx, pipeline.ClusterRequest{Dir: args[0]})
	if err != nil {
		return err
	}
	return printReport(s, rep)
}

// applyClusterFlags copies explicitly set flags over the configuration
func applyClusterFlags(cmd *cobra.Command, c *am.ClusterConfig) {
	f := cmd.Flags()
	if f.Changed("algorithm") {
		c.Algorithm, _ = f.GetString("algorithm")
	}
	if f.Changed("n-clusters") {
		n, _ := f.GetInt("n-clusters")
		c.KMeans.NClusters = n
		c.FlowSOM.NClusters = n
	}
	if f.Changed("k") {
		c.Phenograph.K, _ = f.GetInt("k")
	}
	if f.Changed("resolution") {
		c.Phenograph.Resolution, _ = f.GetFloat64("resolution")
	}
	if f.Changed("xdim") {
		c.FlowSOM.XDim, _ = f.GetInt("xdim")
	}
	if f.Changed("ydim") {
		c.FlowSOM.YDim, _ = f.GetInt("ydim")
	}
	if f.Changed("seed") {
		seed, _ := f.GetInt64("seed")
		switch c.Algorithm {
		case "kmeans":
			c.KMeans.Seed = &seed
		case "phenograph":
			c.Phenograph.Seed = &seed
		case "flowsom":
			c.FlowSOM.Seed = &seed
		}
	}
}
