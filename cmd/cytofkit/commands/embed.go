package commands

import (
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/pipeline"
)

// EmbedCmd computes a low-dimensional embedding
var EmbedCmd = &cobra.Command{
	Use:   "embed [dir]",
	Short: "Compute an embedding (t-SNE or UMAP) and a scatter plot",
	Long: `Embed the standardized feature matrix of a fused directory, or of a single
custom file given with --custom.

Fused results go to <dir>/results/vis_results/<yymmdd_HHMM>/, custom results
to <file dir>/vis_results/<yymmdd_HHMM>/. Points are coloured by cell_type
when present, else by the clusters of a previous run in the same session.

Examples:
  cytofkit embed ./samples
  cytofkit embed ./samples --algorithm umap --components 3
  cytofkit embed --custom annotated.csv --algorithm tsne --perplexity 50`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEmbed,
}

func init() {
	f := EmbedCmd.Flags()
	f.StringP("algorithm", "a", "", "Embedding variant: tsne, umap")
	f.String("custom", "", "Embed this file instead of a fused directory")
	f.Int("components", 0, "Output dimensions (at least 2)")
	f.Float64("perplexity", 0, "Effective neighbour count (tsne)")
	f.Int("n-neighbors", 0, "Neighbourhood size (umap)")
	f.Float64("min-dist", 0, "Minimum distance between embedded points (umap)")
	f.Int64("seed", 0, "Random seed for the selected variant")
	f.String("params", "", "TOML file overriding [embed] parameters")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	custom, _ := cmd.Flags().GetString("custom")
	if (len(args) == 0) == (custom == "") {
		return errors.WithHint(
			errors.InputErrorf("embed needs either a directory or --custom, not both"),
			"cytofkit embed ./samples  or  cytofkit embed --custom file.csv")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyEmbedFlags(cmd, &cfg.Embed)

	s, err := newSession(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	req := pipeline.EmbedRequest{Custom: custom}
	if len(args) == 1 {
		req.Dir = args[0]
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()
	rep, err := s.pipeline.Do(ctx, req)
	if err != nil {
		return err
	}
	return printReport(s, rep)
}

func applyEmbedFlags(cmd *cobra.Command, e *am.EmbedConfig) {
	f := cmd.Flags()
	if f.Changed("algorithm") {
		e.Algorithm, _ = f.GetString("algorithm")
	}
	if f.Changed("components") {
		e.NComponents, _ = f.GetInt("components")
	}
	if f.Changed("perplexity") {
		e.TSNE.Perplexity, _ = f.GetFloat64("perplexity")
	}
	if f.Changed("n-neighbors") {
		e.UMAP.NNeighbors, _ = f.GetInt("n-neighbors")
	}
	if f.Changed("min-dist") {
		e.UMAP.MinDist, _ = f.GetFloat64("min-dist")
	}
	if f.Changed("seed") {
		seed, _ := f.GetInt64("seed")
		switch e.Algorithm {
		case "tsne":
			e.TSNE.Seed = &seed
		case "umap":
			e.UMAP.Seed = &seed
		}
	}
}
