package commands

import (
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/composition"
	"github.com/cytofkit/cytofkit/pipeline"
	"github.com/cytofkit/cytofkit/table"
)

// ComposeCmd computes cell type percentages per sample
var ComposeCmd = &cobra.Command{
	Use:   "compose <dir>",
	Short: "Cell type composition per sample",
	Long: `Count the cell_type values of every file (one file per sample) and report
them as percentages. Missing values are counted as "Unknown".

Results go to "<dir>/Difference Analysis/Percentage Stacked Bar Chart/<yymmdd_HHMM>/".`,
	Args: cobra.ExactArgs(1),
	RunE: runCompose,
}

func runCompose(cmd *cobra.Command, args []string) error {
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
	rep, err := s.pipeline.Do(ctx, pipeline.ComposeRequest{Dir: args[0]})
	if err != nil {
		return err
	}
	if s.json {
		return printReport(s, rep)
	}

	t, err := table.Read(filepath.Join(rep.OutputDir, composition.OutputFile), table.ReadOptions{Delimiter: ','})
	if err != nil {
		return err
	}
	data := append(pterm.TableData{t.Header}, t.Rows...)
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	return printReport(s, rep)
}
