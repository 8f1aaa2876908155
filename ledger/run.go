// Package ledger records every pipeline unit of work in sqlite so that past
// runs, their parameters and their artifacts can be listed and inspected.
package ledger

import (
	"time"
)

// Kind is the type of unit of work
type Kind string

const (
	KindFuse    Kind = "fuse"
	KindCluster Kind = "cluster"
	KindEmbed   Kind = "embed"
	KindCompose Kind = "compose"
	KindSplit   Kind = "split"
	KindMap     Kind = "map"
)

// idPrefix gives each kind a recognisable run ID prefix (CR_ for cluster runs, ...)
var idPrefix = map[Kind]string{
	KindFuse:    "FU_",
	KindCluster: "CR_",
	KindEmbed:   "EM_",
	KindCompose: "CP_",
	KindSplit:   "SP_",
	KindMap:     "MP_",
}

// Status is the lifecycle state of a run
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Run is one recorded unit of work
type Run struct {
	ID          string     `json:"id" yaml:"id"`
	Kind        Kind       `json:"kind" yaml:"kind"`
	Algorithm   string     `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	Params      string     `json:"params,omitempty" yaml:"params,omitempty"` // JSON
	InputPath   string     `json:"input_path" yaml:"input_path"`
	OutputDir   string     `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	NRows       int        `json:"n_rows" yaml:"n_rows"`
	NClusters   int        `json:"n_clusters,omitempty" yaml:"n_clusters,omitempty"`
	Status      Status     `json:"status" yaml:"status"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms" yaml:"duration_ms"`
}

// Artifact is a file produced by a run, named relative to the run's output directory
type Artifact struct {
	Name      string `json:"name" yaml:"name"`
	Kind      string `json:"kind" yaml:"kind"` // "table", "image", "manifest"
	SizeBytes int64  `json:"size_bytes" yaml:"size_bytes"`
}

// Outcome carries what a finished run produced
type Outcome struct {
	OutputDir string
	NRows     int
	NClusters int
	Artifacts []Artifact
}
