package commands

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/pipeline"
	"github.com/cytofkit/cytofkit/watch"
)

// WatchCmd keeps a directory's clustering current
var WatchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Re-fuse and re-cluster whenever the input changes",
	Long: `Fuse and cluster a directory, then do it again every time one of its input
files is created, changed or removed. A change arriving while a run is in
progress cancels that run. With --config, edits to the config file take
effect on the next run. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	WatchCmd.Flags().Duration("debounce", 500*time.Millisecond, "Quiet period before re-running")
	WatchCmd.Flags().Duration("min-interval", 0, "Minimum time between runs")
	WatchCmd.Flags().String("params", "", "TOML file overriding [cluster] parameters")
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := newSession(cmd, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var clusterCfg atomic.Pointer[am.ClusterConfig]
	current := cfg.Cluster
	clusterCfg.Store(&current)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cw, err := am.NewConfigWatcher(path)
		if err != nil {
			return err
		}
		cw.OnReload(func(next *am.Config) error {
			c := next.Cluster
			clusterCfg.Store(&c)
			logger.Infow("Cluster configuration reloaded", logger.FieldAlgorithm, c.Algorithm)
			return nil
		})
		cw.Start()
		am.SetGlobalWatcher(cw)
		defer cw.Stop()
	}

	trigger := func(ctx context.Context) error {
		if _, err := s.pipeline.Do(ctx, pipeline.FuseRequest{Dir: dir}); err != nil {
			return err
		}
		rep, err := s.pipeline.Do(ctx, pipeline.ClusterRequest{Dir: dir, Config: clusterCfg.Load()})
		if err != nil {
			return err
		}
		return printReport(s, rep)
	}

	debounce, _ := cmd.Flags().GetDuration("debounce")
	minInterval, _ := cmd.Flags().GetDuration("min-interval")
	w, err := watch.New(dir, watch.Options{
		Pattern:     cfg.Data.Pattern,
		Debounce:    debounce,
		MinInterval: minInterval,
		Initial:     true,
	}, trigger, logger.ComponentLogger("watch"))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	if !s.json {
		pterm.Info.Printf("Watching %s (Ctrl+C to stop)\n", dir)
	}
	return w.Run(ctx)
}
