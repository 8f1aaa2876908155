package cluster

import (
	"path/filepath"
	"strconv"

	"github.com/cytofkit/cytofkit/schema"
	"github.com/cytofkit/cytofkit/table"
)

// Export file names
const (
	CombinedFile    = "combined_results.csv"
	MarkerMeansFile = "cluster_marker_means.csv"
	perFileSuffix   = "_clustered.csv"
)

// PerFileName is the export name for one source file
func PerFileName(fileID string) string { return fileID + perFileSuffix }

// Save writes the combined export and one export per source file into dir
// and returns the file names written. cluster_label goes first and replaces
// any existing cluster_label column; provenance columns are never written.
func (r *Result) Save(dir string) ([]string, error) {
	d := r.Dataset
	header, keep := withLabelColumn(d.Columns())
	rows := make([][]string, d.NumRows())
	for i := range rows {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(r.Labels[i]))
		for _, c := range keep {
			row = append(row, d.Cell(i, c))
		}
		rows[i] = row
	}
	if err := table.Write(filepath.Join(dir, CombinedFile), header, rows); err != nil {
		return nil, err
	}
	written := []string{CombinedFile}

	for fi, f := range d.Files() {
		fileHeader, fileRows, start := d.FileRows(fi)
		header, keep := withLabelColumn(fileHeader)
		out := make([][]string, len(fileRows))
		for i, src := range fileRows {
			row := make([]string, 0, len(header))
			row = append(row, strconv.Itoa(r.Labels[start+i]))
			for _, c := range keep {
				row = append(row, src[c])
			}
			out[i] = row
		}
		name := PerFileName(f.ID)
		if err := table.Write(filepath.Join(dir, name), header, out); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}

// Save writes the means table, one row per label
func (m *MarkerMeans) Save(dir string) (string, error) {
	header := append([]string{schema.ClusterLabel}, m.Features...)
	rows := make([][]string, len(m.Labels))
	for i, l := range m.Labels {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(l))
		for j := range m.Features {
			row = append(row, table.FormatFloat(m.Means.At(i, j)))
		}
		rows[i] = row
	}
	return MarkerMeansFile, table.Write(filepath.Join(dir, MarkerMeansFile), header, rows)
}

// SaveResults writes the last run's exports into dir
func (e *Engine) SaveResults(dir string) ([]string, error) {
	res, err := e.Result()
	if err != nil {
		return nil, err
	}
	return res.Save(dir)
}

// SaveMarkerMeans writes the last run's marker means into dir
func (e *Engine) SaveMarkerMeans(dir string) (string, error) {
	m, err := e.MarkerMeans()
	if err != nil {
		return "", err
	}
	return m.Save(dir)
}

// withLabelColumn returns an output header with cluster_label first and
// the positions of the source columns that follow it.
func withLabelColumn(columns []string) ([]string, []int) {
	header := []string{schema.ClusterLabel}
	var keep []int
	for i, c := range columns {
		if table.Canonical(c) == schema.ClusterLabel {
			continue
		}
		header = append(header, c)
		keep = append(keep, i)
	}
	return header, keep
}
