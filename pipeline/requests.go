package pipeline

import (
	"time"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/ledger"
	"github.com/cytofkit/cytofkit/output"
)

// Request is one unit of work handed to the pipeline
type Request interface {
	Kind() ledger.Kind
}

// FuseRequest loads a directory into the fuser
type FuseRequest struct {
	Dir string
}

// ClusterRequest clusters a directory's fused dataset. Dir is loaded first
// unless it is already the current dataset.
type ClusterRequest struct {
	Dir string
	// Reload forces a fresh fusion even when Dir is current
	Reload bool
	// Config overrides the pipeline's cluster config when non-nil
	Config *am.ClusterConfig
}

// EmbedRequest embeds either a fused directory or a single custom file
type EmbedRequest struct {
	Dir    string
	Custom string // path; when set Dir is ignored
	Reload bool
	Config *am.EmbedConfig
}

// ComposeRequest computes per-sample category composition for a directory
type ComposeRequest struct {
	Dir string
}

// SplitRequest projects rows and columns out of one file, or groups a
// folder's rows by category.
type SplitRequest struct {
	// File mode
	File string
	Rows []int

	// Folder mode
	Folder     string
	Categories []string

	Columns []string
	// OutDir defaults to the file's directory or the folder
	OutDir string
}

// MapRequest replaces cluster labels with cell types in every file of Dir
type MapRequest struct {
	Dir     string
	Mapping string
}

func (FuseRequest) Kind() ledger.Kind    { return ledger.KindFuse }
func (ClusterRequest) Kind() ledger.Kind { return ledger.KindCluster }
func (EmbedRequest) Kind() ledger.Kind   { return ledger.KindEmbed }
func (ComposeRequest) Kind() ledger.Kind { return ledger.KindCompose }
func (SplitRequest) Kind() ledger.Kind   { return ledger.KindSplit }
func (MapRequest) Kind() ledger.Kind     { return ledger.KindMap }

// Report summarises a finished unit of work
type Report struct {
	RunID     string
	Kind      ledger.Kind
	Algorithm string
	Input     string
	OutputDir string // empty for units that write nothing
	Rows      int
	Files     int
	Features  int
	Clusters  int
	Artifacts []output.Artifact
	Duration  time.Duration
}
