package am

import (
	"slices"
	"time"

	"github.com/cytofkit/cytofkit/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Data.Pattern == "" {
		return errors.New("data.pattern cannot be empty")
	}
	switch c.Data.Delimiter {
	case "auto", ",", "\t", ";", "|", "tab":
	default:
		return errors.Newf("data.delimiter must be auto, \",\", \"\\t\", \";\" or \"|\", got %q", c.Data.Delimiter)
	}
	if c.Data.MemoryWarnRatio < 0 {
		return errors.Newf("data.memory_warn_ratio must be >= 0, got %f", c.Data.MemoryWarnRatio)
	}

	if !slices.Contains(ClusterAlgorithms, c.Cluster.Algorithm) {
		return errors.Newf("cluster.algorithm must be one of %v, got %q", ClusterAlgorithms, c.Cluster.Algorithm)
	}
	if c.Cluster.KMeans.NClusters < 1 {
		return errors.Newf("cluster.kmeans.n_clusters must be > 0, got %d", c.Cluster.KMeans.NClusters)
	}
	if c.Cluster.KMeans.MaxIter < 1 {
		return errors.Newf("cluster.kmeans.max_iter must be > 0, got %d", c.Cluster.KMeans.MaxIter)
	}
	if c.Cluster.KMeans.NInit < 1 {
		return errors.Newf("cluster.kmeans.n_init must be > 0, got %d", c.Cluster.KMeans.NInit)
	}
	if c.Cluster.Phenograph.K < 1 {
		return errors.Newf("cluster.phenograph.k must be > 0, got %d", c.Cluster.Phenograph.K)
	}
	if c.Cluster.Phenograph.Resolution <= 0 {
		return errors.Newf("cluster.phenograph.resolution must be > 0, got %f", c.Cluster.Phenograph.Resolution)
	}
	fs := c.Cluster.FlowSOM
	if fs.XDim < 1 || fs.YDim < 1 {
		return errors.Newf("cluster.flowsom grid must be at least 1x1, got %dx%d", fs.XDim, fs.YDim)
	}
	if fs.RLen < 1 {
		return errors.Newf("cluster.flowsom.rlen must be > 0, got %d", fs.RLen)
	}
	if fs.NClusters < 1 {
		return errors.Newf("cluster.flowsom.n_clusters must be > 0, got %d", fs.NClusters)
	}
	if fs.NClusters > fs.XDim*fs.YDim {
		return errors.WithHint(
			errors.Newf("cluster.flowsom.n_clusters (%d) exceeds grid nodes (%dx%d)", fs.NClusters, fs.XDim, fs.YDim),
			"increase xdim/ydim or lower n_clusters")
	}

	if !slices.Contains(EmbedAlgorithms, c.Embed.Algorithm) {
		return errors.Newf("embed.algorithm must be one of %v, got %q", EmbedAlgorithms, c.Embed.Algorithm)
	}
	if c.Embed.NComponents < 2 {
		return errors.Newf("embed.n_components must be >= 2, got %d", c.Embed.NComponents)
	}
	if c.Embed.TSNE.Perplexity <= 0 {
		return errors.Newf("embed.tsne.perplexity must be > 0, got %f", c.Embed.TSNE.Perplexity)
	}
	if c.Embed.TSNE.LearningRate < 0 {
		return errors.Newf("embed.tsne.learning_rate must be >= 0 (0 = auto), got %f", c.Embed.TSNE.LearningRate)
	}
	if c.Embed.TSNE.Method != "barnes_hut" && c.Embed.TSNE.Method != "exact" {
		return errors.Newf("embed.tsne.method must be barnes_hut or exact, got %q", c.Embed.TSNE.Method)
	}
	if c.Embed.TSNE.Angle <= 0 || c.Embed.TSNE.Angle > 1 {
		return errors.Newf("embed.tsne.angle must be in (0, 1], got %f", c.Embed.TSNE.Angle)
	}
	if c.Embed.TSNE.MaxExactRows < 0 {
		return errors.Newf("embed.tsne.max_exact_rows must be >= 0, got %d", c.Embed.TSNE.MaxExactRows)
	}
	if c.Embed.TSNE.NIter < 250 {
		return errors.Newf("embed.tsne.n_iter must be >= 250, got %d", c.Embed.TSNE.NIter)
	}
	if c.Embed.TSNE.Init != "pca" && c.Embed.TSNE.Init != "random" {
		return errors.Newf("embed.tsne.init must be pca or random, got %q", c.Embed.TSNE.Init)
	}
	if c.Embed.UMAP.NNeighbors < 2 {
		return errors.Newf("embed.umap.n_neighbors must be >= 2, got %d", c.Embed.UMAP.NNeighbors)
	}
	if c.Embed.UMAP.MinDist <= 0 || c.Embed.UMAP.MinDist > 1 {
		return errors.Newf("embed.umap.min_dist must be in (0, 1], got %f", c.Embed.UMAP.MinDist)
	}
	if c.Embed.UMAP.NEpochs < 0 {
		return errors.Newf("embed.umap.n_epochs must be >= 0, got %d", c.Embed.UMAP.NEpochs)
	}

	if c.Output.Plots && (c.Output.PlotWidthIn <= 0 || c.Output.PlotHeightIn <= 0) {
		return errors.Newf("output plot size must be positive, got %.1fx%.1f in", c.Output.PlotWidthIn, c.Output.PlotHeightIn)
	}
	if c.Output.TimestampFormat == "" {
		return errors.New("output.timestamp_format cannot be empty")
	}
	if formatted := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(c.Output.TimestampFormat); formatted == c.Output.TimestampFormat {
		return errors.Newf("output.timestamp_format %q contains no time fields", c.Output.TimestampFormat)
	}

	return nil
}

// DelimiterRune returns the configured delimiter, or 0 for auto-detection.
func (d DataConfig) DelimiterRune() rune {
	switch d.Delimiter {
	case ",":
		return ','
	case "\t", "tab":
		return '\t'
	case ";":
		return ';'
	case "|":
		return '|'
	default:
		return 0
	}
}
