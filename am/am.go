// Package am loads and persists cytofkit configuration ("I am").
package am

// Config represents the cytofkit configuration
type Config struct {
	Data     DataConfig     `mapstructure:"data" toml:"data" json:"data" yaml:"data"`
	Cluster  ClusterConfig  `mapstructure:"cluster" toml:"cluster" json:"cluster" yaml:"cluster"`
	Embed    EmbedConfig    `mapstructure:"embed" toml:"embed" json:"embed" yaml:"embed"`
	Output   OutputConfig   `mapstructure:"output" toml:"output" json:"output" yaml:"output"`
	Database DatabaseConfig `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
}

// DataConfig configures input discovery
type DataConfig struct {
	Pattern         string  `mapstructure:"pattern" toml:"pattern" json:"pattern" yaml:"pattern"`                                     // glob matched against file names, extension compared case-insensitively
	Delimiter       string  `mapstructure:"delimiter" toml:"delimiter" json:"delimiter" yaml:"delimiter"`                             // "auto" sniffs the header line
	MemoryWarnRatio float64 `mapstructure:"memory_warn_ratio" toml:"memory_warn_ratio" json:"memory_warn_ratio" yaml:"memory_warn_ratio"` // warn when estimated footprint exceeds this share of available memory
}

// ClusterConfig selects a clustering variant and holds per-variant parameters
type ClusterConfig struct {
	Algorithm  string           `mapstructure:"algorithm" toml:"algorithm" json:"algorithm" yaml:"algorithm"`
	KMeans     KMeansConfig     `mapstructure:"kmeans" toml:"kmeans" json:"kmeans" yaml:"kmeans"`
	Phenograph PhenographConfig `mapstructure:"phenograph" toml:"phenograph" json:"phenograph" yaml:"phenograph"`
	FlowSOM    FlowSOMConfig    `mapstructure:"flowsom" toml:"flowsom" json:"flowsom" yaml:"flowsom"`
}

// KMeansConfig configures the centroid-partition variant
type KMeansConfig struct {
	NClusters int    `mapstructure:"n_clusters" toml:"n_clusters" json:"n_clusters" yaml:"n_clusters"`
	MaxIter   int    `mapstructure:"max_iter" toml:"max_iter" json:"max_iter" yaml:"max_iter"`
	NInit     int    `mapstructure:"n_init" toml:"n_init" json:"n_init" yaml:"n_init"`
	Seed      *int64 `mapstructure:"seed" toml:"seed,omitempty" json:"seed,omitempty" yaml:"seed,omitempty"` // nil = unseeded
}

// PhenographConfig configures the graph-community variant
type PhenographConfig struct {
	K          int     `mapstructure:"k" toml:"k" json:"k" yaml:"k"`
	Resolution float64 `mapstructure:"resolution" toml:"resolution" json:"resolution" yaml:"resolution"`
	Seed       *int64  `mapstructure:"seed" toml:"seed,omitempty" json:"seed,omitempty" yaml:"seed,omitempty"`
}

// FlowSOMConfig configures the self-organizing-grid variant
type FlowSOMConfig struct {
	NClusters int    `mapstructure:"n_clusters" toml:"n_clusters" json:"n_clusters" yaml:"n_clusters"`
	XDim      int    `mapstructure:"xdim" toml:"xdim" json:"xdim" yaml:"xdim"`
	YDim      int    `mapstructure:"ydim" toml:"ydim" json:"ydim" yaml:"ydim"`
	RLen      int    `mapstructure:"rlen" toml:"rlen" json:"rlen" yaml:"rlen"`
	Seed      *int64 `mapstructure:"seed" toml:"seed,omitempty" json:"seed,omitempty" yaml:"seed,omitempty"`
}

// EmbedConfig selects an embedding variant and holds per-variant parameters
type EmbedConfig struct {
	Algorithm   string     `mapstructure:"algorithm" toml:"algorithm" json:"algorithm" yaml:"algorithm"`
	NComponents int        `mapstructure:"n_components" toml:"n_components" json:"n_components" yaml:"n_components"`
	TSNE        TSNEConfig `mapstructure:"tsne" toml:"tsne" json:"tsne" yaml:"tsne"`
	UMAP        UMAPConfig `mapstructure:"umap" toml:"umap" json:"umap" yaml:"umap"`
}

// TSNEConfig configures the neighbor-graph gradient embedding
type TSNEConfig struct {
	Method       string  `mapstructure:"method" toml:"method" json:"method" yaml:"method"` // "barnes_hut" or "exact"
	Angle        float64 `mapstructure:"angle" toml:"angle" json:"angle" yaml:"angle"`
	MaxExactRows int     `mapstructure:"max_exact_rows" toml:"max_exact_rows" json:"max_exact_rows" yaml:"max_exact_rows"` // 0 = no limit
	Perplexity   float64 `mapstructure:"perplexity" toml:"perplexity" json:"perplexity" yaml:"perplexity"`
	LearningRate float64 `mapstructure:"learning_rate" toml:"learning_rate" json:"learning_rate" yaml:"learning_rate"` // 0 = chosen from row count
	NIter        int     `mapstructure:"n_iter" toml:"n_iter" json:"n_iter" yaml:"n_iter"`
	Init         string  `mapstructure:"init" toml:"init" json:"init" yaml:"init"` // "pca" or "random"
	Seed         *int64  `mapstructure:"seed" toml:"seed,omitempty" json:"seed,omitempty" yaml:"seed,omitempty"`
}

// UMAPConfig configures the manifold-approximation embedding
type UMAPConfig struct {
	NNeighbors int     `mapstructure:"n_neighbors" toml:"n_neighbors" json:"n_neighbors" yaml:"n_neighbors"`
	MinDist    float64 `mapstructure:"min_dist" toml:"min_dist" json:"min_dist" yaml:"min_dist"`
	NEpochs    int     `mapstructure:"n_epochs" toml:"n_epochs" json:"n_epochs" yaml:"n_epochs"` // 0 = chosen from row count
	Seed       *int64  `mapstructure:"seed" toml:"seed,omitempty" json:"seed,omitempty" yaml:"seed,omitempty"`
}

// OutputConfig configures artifact generation
type OutputConfig struct {
	Plots           bool    `mapstructure:"plots" toml:"plots" json:"plots" yaml:"plots"`
	PlotWidthIn     float64 `mapstructure:"plot_width_in" toml:"plot_width_in" json:"plot_width_in" yaml:"plot_width_in"`
	PlotHeightIn    float64 `mapstructure:"plot_height_in" toml:"plot_height_in" json:"plot_height_in" yaml:"plot_height_in"`
	TimestampFormat string  `mapstructure:"timestamp_format" toml:"timestamp_format" json:"timestamp_format" yaml:"timestamp_format"` // Go time layout
}

// DatabaseConfig configures the run ledger
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"` // empty disables the ledger
}

// Known variant names
var (
	ClusterAlgorithms = []string{"kmeans", "phenograph", "flowsom"}
	EmbedAlgorithms   = []string{"tsne", "umap"}
)

// File and directory permissions
const (
	DefaultDirPermissions  = 0750
	DefaultFilePermissions = 0644
)
