package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/pipeline"
)

// FuseCmd loads a directory and reports the fused dataset
var FuseCmd = &cobra.Command{
	Use:   "fuse <dir>",
	Short: "Load and fuse a directory",
	Long: `Discover the matching files of a directory, check their schema and fuse
them into one dataset. Reports per-file row counts and the feature columns;
writes nothing besides the ledger entry.`,
	Args: cobra.ExactArgs(1),
	RunE: runFuse,
}

func runFuse(cmd *cobra.Command, args []string) error {
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
	rep, err := s.pipeline.Do(ctx, pipeline.FuseRequest{Dir: args[0]})
	if err != nil {
		return err
	}
	if s.json {
		return printReport(s, rep)
	}

	d, err := s.pipeline.Fuser().Dataset()
	if err != nil {
		return err
	}
	data := pterm.TableData{{"File", "Rows", "First row"}}
	for _, f := range d.Files() {
		data = append(data, []string{f.ID, fmt.Sprint(f.Rows), fmt.Sprint(f.Start)})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Printf("%s %d rows, %d features: %v\n", pterm.LightCyan("fused:"), rep.Rows, rep.Features, d.FeatureColumns())
	return printReport(s, rep)
}
