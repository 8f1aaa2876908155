// Package commands implements the cytofkit CLI subcommands.
package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/db"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/ledger"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/pipeline"
	"github.com/cytofkit/cytofkit/pulse"
)

// session is everything a pipeline command needs, closed in one call
type session struct {
	cfg      *am.Config
	pipeline *pipeline.Pipeline
	db       *sql.DB
	json     bool
}

func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.pipeline.Shutdown(ctx); err != nil {
		logger.Warnw("Pipeline did not stop cleanly", logger.FieldError, err)
	}
	if s.db != nil {
		s.db.Close()
	}
}

// loadConfig reads the configuration and overlays --params when given
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	loaded, err := am.Load()
	if err != nil {
		return nil, errors.WrapInput(err, "failed to load configuration")
	}
	// am.Load caches; never mutate the shared copy
	cfg := *loaded
	if f := cmd.Flags().Lookup("params"); f != nil && f.Value.String() != "" {
		if err := am.ApplyParamsFile(&cfg, f.Value.String()); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// openLedger opens the run ledger, or returns nil when it is disabled
func openLedger(cfg *am.Config) (*sql.DB, *ledger.Store) {
	if cfg.Database.Path == "" {
		return nil, nil
	}
	conn, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger.Named("db"))
	if err != nil {
		// a broken ledger must not block analysis
		logger.Warnw("Run ledger unavailable", logger.FieldError, err, "path", cfg.Database.Path)
		return nil, nil
	}
	return conn, ledger.NewStore(conn, logger.ComponentLogger("ledger"))
}

func newSession(cmd *cobra.Command, cfg *am.Config) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	verbosity, _ := cmd.Flags().GetCount("verbose")

	var emitter pulse.ProgressEmitter = pulse.NewCLIEmitter(verbosity)
	if jsonOutput {
		emitter = pulse.NewJSONEmitter(os.Stderr)
	}
	conn, store := openLedger(cfg)
	p := pipeline.New(pipeline.Options{
		Config:  cfg,
		Ledger:  store,
		Emitter: emitter,
	}, logger.ComponentLogger("pipeline"))
	return &session{cfg: cfg, pipeline: p, db: conn, json: jsonOutput}, nil
}

// signalContext is cancelled on Ctrl+C so a running unit is abandoned
// cleanly instead of killing the process mid-write
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// printJSON writes v to stdout
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	fmt.Println(string(data))
	return nil
}

// reportJSON is the --json form of a pipeline report
type reportJSON struct {
	RunID      string   `json:"run_id"`
	Kind       string   `json:"kind"`
	Algorithm  string   `json:"algorithm,omitempty"`
	Input      string   `json:"input"`
	OutputDir  string   `json:"output_dir,omitempty"`
	Rows       int      `json:"n_rows,omitempty"`
	Files      int      `json:"n_files,omitempty"`
	Features   int      `json:"n_features,omitempty"`
	Clusters   int      `json:"n_clusters,omitempty"`
	Artifacts  []string `json:"artifacts,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

func printReport(s *session, rep *pipeline.Report) error {
	if s.json {
		out := reportJSON{
			RunID: rep.RunID, Kind: string(rep.Kind), Algorithm: rep.Algorithm, Input: rep.Input,
			OutputDir: rep.OutputDir, Rows: rep.Rows, Files: rep.Files, Features: rep.Features,
			Clusters: rep.Clusters, DurationMS: rep.Duration.Milliseconds(),
		}
		for _, a := range rep.Artifacts {
			out.Artifacts = append(out.Artifacts, a.Name)
		}
		return printJSON(out)
	}

	pterm.Printf("%s %s\n", pterm.LightCyan("run:"), rep.RunID)
	if rep.OutputDir != "" {
		pterm.Printf("%s %s\n", pterm.LightCyan("output:"), rep.OutputDir)
		for _, a := range rep.Artifacts {
			pterm.Printf("  %s (%d bytes)\n", a.Name, a.SizeBytes)
		}
	}
	return nil
}

// PrintError shows err with its remediation hints
func PrintError(err error) {
	if logger.JSONOutput {
		_ = json.NewEncoder(os.Stderr).Encode(map[string]interface{}{
			"error":      err.Error(),
			"error_kind": string(errors.KindOf(err)),
			"hints":      errors.GetAllHints(err),
		})
		return
	}
	pterm.Error.Println(err.Error())
	for _, hint := range errors.GetAllHints(err) {
		pterm.Info.Println(hint)
	}
}
