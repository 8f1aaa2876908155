package commands

import (
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/pipeline"
)

// SplitCmd extracts rows and columns
var SplitCmd = &cobra.Command{
	Use:   "split",
	Short: "Extract rows and columns from a file or a folder",
	Long: `Write a projection of one file (--file, optional --rows) or of every file
in a folder (--folder, optional --categories selecting rows by cluster_label,
or cell_type when there is no cluster_label).

Output goes to <out>/csv_proc/<yymmdd_HHMM>/split_<name>.csv, where <out>
defaults to the directory of the input.

Examples:
  cytofkit split --file s1.csv --rows 0,1,2 --columns CD3,CD19
  cytofkit split --folder ./clustered --categories 3,7 --columns CD3,cluster_label`,
	Args: cobra.NoArgs,
	RunE: runSplit,
}

func init() {
	f := SplitCmd.Flags()
	f.String("file", "", "Split this file")
	f.IntSlice("rows", nil, "0-based row indices to keep (file mode; default all)")
	f.String("folder", "", "Split every file of this folder")
	f.StringSlice("categories", nil, "Category values to keep (folder mode; default all)")
	f.StringSlice("columns", nil, "Columns to keep, in output order (default all)")
	f.String("out", "", "Output base directory")
}

func runSplit(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	req := pipeline.SplitRequest{}
	req.File, _ = f.GetString("file")
	req.Folder, _ = f.GetString("folder")
	req.OutDir, _ = f.GetString("out")
	if f.Changed("rows") {
		req.Rows, _ = f.GetIntSlice("rows")
	}
	if f.Changed("categories") {
		req.Categories, _ = f.GetStringSlice("categories")
	}
	if f.Changed("columns") {
		req.Columns, _ = f.GetStringSlice("columns")
	}
	if (req.File == "") == (req.Folder == "") {
		return errors.WithHint(errors.InputErrorf("split needs exactly one of --file or --folder"),
			"cytofkit split --file s1.csv --columns CD3,CD19")
	}

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
	rep, err := s.pipeline.Do(ctx, req)
	if err != nil {
		return err
	}
	return printReport(s, rep)
}
