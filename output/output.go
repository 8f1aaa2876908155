// Package output owns result directories: timestamped names, staging under
// a partial name until every artifact is written, and the manifest that
// describes what a directory holds.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
)

// ManifestFile is written last into every committed directory
const ManifestFile = "manifest.yaml"

const partialMarker = ".partial-"

// Layout subdirectories relative to an input directory
var (
	ClusterResults = filepath.Join("results", "cluster_results")
	VisResults     = filepath.Join("results", "vis_results")
	CustomVis      = "vis_results"
	Composition    = filepath.Join("Difference Analysis", "Percentage Stacked Bar Chart")
	CsvProc        = "csv_proc"
	Annotation     = "anno_result"
)

// Timestamped joins base, sub and now formatted with layout
func Timestamped(base, sub string, now time.Time, layout string) string {
	return filepath.Join(base, sub, now.Format(layout))
}

// Artifact is one file in a result directory
type Artifact struct {
	Name      string `yaml:"name"`
	SizeBytes int64  `yaml:"size_bytes"`
}

// Manifest describes a committed result directory
type Manifest struct {
	RunID     string         `yaml:"run_id"`
	Kind      string         `yaml:"kind"`
	Algorithm string         `yaml:"algorithm,omitempty"`
	Input     string         `yaml:"input"`
	Params    any            `yaml:"params,omitempty"`
	Rows      int            `yaml:"n_rows,omitempty"`
	Clusters  int            `yaml:"n_clusters,omitempty"`
	Version   string         `yaml:"version,omitempty"`
	CreatedAt time.Time      `yaml:"created_at"`
	Artifacts []Artifact     `yaml:"artifacts"`
}

// Stage is a result directory under construction. Artifacts are written
// into Dir; nothing appears at the final path until Commit.
type Stage struct {
	target  string
	partial string
	logger  *zap.SugaredLogger
	done    bool
}

// Begin creates the staging directory for target
func Begin(target, id string, log *zap.SugaredLogger) (*Stage, error) {
	partial := target + partialMarker + id
	if err := os.MkdirAll(partial, am.DefaultDirPermissions); err != nil {
		return nil, errors.WrapIO(err, "failed to create staging directory %s", partial)
	}
	return &Stage{target: target, partial: partial, logger: logger.OrComponent(log, "output")}, nil
}

// Dir is where artifacts are written before commit
func (s *Stage) Dir() string { return s.partial }

// Path returns name inside the staging directory
func (s *Stage) Path(name string) string { return filepath.Join(s.partial, name) }

// Commit writes the manifest and moves the directory into place. An
// existing directory at the target gets a numeric suffix instead of being
// replaced. It returns the final path and the artifacts recorded.
func (s *Stage) Commit(m *Manifest) (string, []Artifact, error) {
	if s.done {
		return "", nil, errors.DataStateErrorf("stage %s already finished", s.partial)
	}
	artifacts, err := listArtifacts(s.partial)
	if err != nil {
		return "", nil, err
	}
	m.Artifacts = artifacts
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to encode manifest")
	}
	if err := os.WriteFile(s.Path(ManifestFile), data, am.DefaultFilePermissions); err != nil {
		return "", nil, errors.WrapIO(err, "failed to write manifest in %s", s.partial)
	}

	final, err := freeName(s.target)
	if err != nil {
		return "", nil, err
	}
	if err := os.Rename(s.partial, final); err != nil {
		return "", nil, errors.WrapIO(err, "failed to move %s into place", final)
	}
	s.done = true
	s.logger.Debugw("Result directory committed", logger.FieldOutputDir, final, "artifacts", len(artifacts))
	return final, artifacts, nil
}

// Abort removes the staging directory. Safe to call after Commit.
func (s *Stage) Abort() {
	if s.done {
		return
	}
	s.done = true
	if err := os.RemoveAll(s.partial); err != nil {
		s.logger.Warnw("Failed to remove staging directory", logger.FieldDirectory, s.partial, logger.FieldError, err)
	}
}

// freeName returns target, or target_2, target_3, ... whichever is unused
func freeName(target string) (string, error) {
	candidate := target
	for n := 2; n < 10000; n++ {
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", errors.WrapIO(err, "failed to inspect %s", candidate)
		}
		candidate = fmt.Sprintf("%s_%d", target, n)
	}
	return "", errors.Newf("no free directory name for %s", target)
}

func listArtifacts(dir string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapIO(err, "failed to list %s", dir)
	}
	var out []Artifact
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name() == ManifestFile || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, errors.WrapIO(err, "failed to stat %s", e.Name())
		}
		out = append(out, Artifact{Name: e.Name(), SizeBytes: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReadManifest loads the manifest of a committed directory
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, errors.WrapInput(err, "failed to read manifest in %s", dir)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapInput(err, "failed to decode manifest in %s", dir)
	}
	return &m, nil
}

// IsPartial reports whether path is a staging directory
func IsPartial(path string) bool {
	return strings.Contains(filepath.Base(path), partialMarker)
}
