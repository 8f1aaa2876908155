package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/ledger"
)

// RunsCmd inspects the run ledger
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past runs",
	Long: `List and inspect the units of work recorded in the run ledger.

Examples:
  cytofkit runs ls                 # Latest 50 runs
  cytofkit runs ls --kind cluster  # Only clustering runs
  cytofkit runs show CR_7K2M9QX4ZB1D`,
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsLs,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsLsCmd.Flags().String("kind", "", "Only this kind: fuse, cluster, embed, compose, split, map")
	runsLsCmd.Flags().Int("limit", 50, "Maximum number of runs")

	RunsCmd.AddCommand(runsLsCmd)
	RunsCmd.AddCommand(runsShowCmd)
}

func ledgerStore(cmd *cobra.Command) (*ledger.Store, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Path == "" {
		return nil, nil, errors.WithHint(errors.DataStateErrorf("the run ledger is disabled"),
			"set database.path in the configuration")
	}
	conn, store := openLedger(cfg)
	if store == nil {
		return nil, nil, errors.WrapIO(errors.New("ledger unavailable"), "failed to open %s", cfg.Database.Path)
	}
	return store, func() { conn.Close() }, nil
}

func runRunsLs(cmd *cobra.Command, args []string) error {
	store, closeFn, err := ledgerStore(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(cmd.Context(), ledger.ListFilter{Kind: ledger.Kind(kind), Limit: limit})
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		pterm.Info.Println("No runs recorded")
		return nil
	}
	data := pterm.TableData{{"ID", "Kind", "Algorithm", "Status", "Rows", "Clusters", "Started", "Duration"}}
	for _, r := range runs {
		data = append(data, []string{
			r.ID,
			string(r.Kind),
			r.Algorithm,
			statusText(r.Status),
			fmt.Sprint(r.NRows),
			fmt.Sprint(r.NClusters),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, closeFn, err := ledgerStore(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	run, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	artifacts, err := store.Artifacts(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(map[string]interface{}{"run": run, "artifacts": artifacts})
	}

	pterm.DefaultSection.Println(run.ID)
	pterm.Printf("kind:       %s\n", run.Kind)
	if run.Algorithm != "" {
		pterm.Printf("algorithm:  %s\n", run.Algorithm)
	}
	pterm.Printf("status:     %s\n", statusText(run.Status))
	pterm.Printf("input:      %s\n", run.InputPath)
	if run.OutputDir != "" {
		pterm.Printf("output:     %s\n", run.OutputDir)
	}
	pterm.Printf("params:     %s\n", run.Params)
	pterm.Printf("rows:       %d\n", run.NRows)
	if run.NClusters > 0 {
		pterm.Printf("clusters:   %d\n", run.NClusters)
	}
	if run.Error != "" {
		pterm.Printf("error:      %s (%s)\n", run.Error, run.ErrorKind)
	}
	for _, a := range artifacts {
		pterm.Printf("  %-32s %-8s %d bytes\n", a.Name, a.Kind, a.SizeBytes)
	}
	return nil
}

func statusText(s ledger.Status) string {
	switch s {
	case ledger.StatusCompleted:
		return pterm.Green(string(s))
	case ledger.StatusFailed:
		return pterm.Red(string(s))
	case ledger.StatusCancelled:
		return pterm.Yellow(string(s))
	default:
		return string(s)
	}
}
