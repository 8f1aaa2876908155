package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/pipeline"
	"github.com/cytofkit/cytofkit/schema"
)

// CheckCmd verifies that a directory's files share one column set
var CheckCmd = &cobra.Command{
	Use:   "check <dir>",
	Short: "Check that the files of a directory share one schema",
	Long: `Check that every matching file in a directory has the same set of
columns as the first one (column order may differ). Nothing is loaded or
written.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p := pipeline.New(pipeline.Options{Config: cfg}, nil)
	res, files, err := p.Check(args[0])
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		if err := printJSON(map[string]interface{}{
			"consistent": res.Consistent,
			"files":      files,
			"columns":    res.Columns,
			"offending":  res.Offending,
			"message":    res.Message,
		}); err != nil {
			return err
		}
		return res.Err
	}

	if !res.Consistent {
		return res.Err
	}
	roles := schema.Resolve(res.Columns)
	pterm.Success.Printf("%d files share %d columns\n", len(files), len(res.Columns))
	data := pterm.TableData{{"Column", "Role"}}
	for i, c := range res.Columns {
		role := "feature"
		switch i {
		case roles.CategoryIndex:
			role = "cluster label"
		case roles.AnnotationIndex:
			role = "cell type"
		}
		data = append(data, []string{c, role})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
