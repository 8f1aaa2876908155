package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytofkit/cytofkit/am"
)

// freshCmd gives each case its own flag set so Changed state does not leak
func freshCmd(register func(*cobra.Command)) *cobra.Command {
	cmd := &cobra.Command{Use: "t"}
	register(cmd)
	return cmd
}

func clusterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("algorithm", "a", "", "")
	f.Int("n-clusters", 0, "")
	f.Int("k", 0, "")
	f.Float64("resolution", 0, "")
	f.Int("xdim", 0, "")
	f.Int("ydim", 0, "")
	f.Int64("seed", 0, "")
}

func embedFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("algorithm", "a", "", "")
	f.Int("components", 0, "")
	f.Float64("perplexity", 0, "")
	f.Int("n-neighbors", 0, "")
	f.Float64("min-dist", 0, "")
	f.Int64("seed", 0, "")
}

func TestApplyClusterFlags(t *testing.T) {
	t.Run("unset flags keep configuration", func(t *testing.T) {
		cfg := am.Defaults().Cluster
		before := cfg
		cmd := freshCmd(clusterFlags)
		require.NoError(t, cmd.Flags().Parse(nil))

		applyClusterFlags(cmd, &cfg)
		assert.Equal(t, before, cfg)
	})

	t.Run("seed follows the selected variant", func(t *testing.T) {
		cfg := am.Defaults().Cluster
		cmd := freshCmd(clusterFlags)
		require.NoError(t, cmd.Flags().Parse([]string{"-a", "phenograph", "--k", "15", "--seed", "7"}))

		applyClusterFlags(cmd, &cfg)
		assert.Equal(t, "phenograph", cfg.Algorithm)
		assert.Equal(t, 15, cfg.Phenograph.K)
		require.NotNil(t, cfg.Phenograph.Seed)
		assert.Equal(t, int64(7), *cfg.Phenograph.Seed)
	})

	t.Run("n-clusters sets kmeans and flowsom", func(t *testing.T) {
		cfg := am.Defaults().Cluster
		cmd := freshCmd(clusterFlags)
		require.NoError(t, cmd.Flags().Parse([]string{"--n-clusters", "12", "--xdim", "5", "--ydim", "6"}))

		applyClusterFlags(cmd, &cfg)
		assert.Equal(t, 12, cfg.KMeans.NClusters)
		assert.Equal(t, 12, cfg.FlowSOM.NClusters)
		assert.Equal(t, 5, cfg.FlowSOM.XDim)
		assert.Equal(t, 6, cfg.FlowSOM.YDim)
	})
}

func TestApplyEmbedFlags(t *testing.T) {
	cfg := am.Defaults().Embed
	cmd := freshCmd(embedFlags)
	require.NoError(t, cmd.Flags().Parse([]string{"-a", "umap", "--components", "3", "--n-neighbors", "30", "--min-dist", "0.3", "--seed", "9"}))

	applyEmbedFlags(cmd, &cfg)
	assert.Equal(t, "umap", cfg.Algorithm)
	assert.Equal(t, 3, cfg.NComponents)
	assert.Equal(t, 30, cfg.UMAP.NNeighbors)
	assert.Equal(t, 0.3, cfg.UMAP.MinDist)
	require.NotNil(t, cfg.UMAP.Seed)
	assert.Equal(t, int64(9), *cfg.UMAP.Seed)
}
