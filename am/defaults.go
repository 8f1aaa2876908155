package am

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Input discovery
	v.SetDefault("data.pattern", "*.csv")
	v.SetDefault("data.delimiter", "auto")
	v.SetDefault("data.memory_warn_ratio", 0.8)

	// Clustering
	v.SetDefault("cluster.algorithm", "kmeans")
	v.SetDefault("cluster.kmeans.n_clusters", 10)
	v.SetDefault("cluster.kmeans.max_iter", 300)
	v.SetDefault("cluster.kmeans.n_init", 10)
	v.SetDefault("cluster.kmeans.seed", 42)
	v.SetDefault("cluster.phenograph.k", 30)
	v.SetDefault("cluster.phenograph.resolution", 1.0)
	v.SetDefault("cluster.flowsom.n_clusters", 10)
	v.SetDefault("cluster.flowsom.xdim", 10)
	v.SetDefault("cluster.flowsom.ydim", 10)
	v.SetDefault("cluster.flowsom.rlen", 10)

	// Embedding
	v.SetDefault("embed.algorithm", "tsne")
	v.SetDefault("embed.n_components", 2)
	v.SetDefault("embed.tsne.method", "barnes_hut")
	v.SetDefault("embed.tsne.angle", 0.5)
	v.SetDefault("embed.tsne.max_exact_rows", 5000)
	v.SetDefault("embed.tsne.perplexity", 30.0)
	v.SetDefault("embed.tsne.learning_rate", 200.0)
	v.SetDefault("embed.tsne.n_iter", 1000)
	v.SetDefault("embed.tsne.init", "pca")
	v.SetDefault("embed.tsne.seed", 42)
	v.SetDefault("embed.umap.n_neighbors", 15)
	v.SetDefault("embed.umap.min_dist", 0.1)
	v.SetDefault("embed.umap.n_epochs", 0)
	v.SetDefault("embed.umap.seed", 42)

	// Output
	v.SetDefault("output.plots", true)
	v.SetDefault("output.plot_width_in", 8.0)
	v.SetDefault("output.plot_height_in", 6.0)
	v.SetDefault("output.timestamp_format", "060102_1504")

	// Ledger
	v.SetDefault("database.path", defaultDatabasePath())
}

// Dir returns the per-user cytofkit directory (~/.cytofkit).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cytofkit"
	}
	return filepath.Join(home, ".cytofkit")
}

func defaultDatabasePath() string {
	return filepath.Join(Dir(), "ledger.db")
}

func newDefaultViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}
