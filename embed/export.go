package embed

import (
	"path/filepath"

	"github.com/cytofkit/cytofkit/table"
)

// CoordinatesFile is the export name for an algorithm's coordinates
func CoordinatesFile(algorithm string) string { return algorithm + "_coordinates.csv" }

// Save writes the source columns followed by the coordinate columns
func (r *Result) Save(dir string) (string, error) {
	var header []string
	var source func(i int) []string
	switch {
	case r.Custom != nil:
		header = append([]string(nil), r.Custom.Table.Header...)
		source = func(i int) []string { return r.Custom.Table.Rows[i] }
	default:
		d := r.Dataset
		header = d.Columns()
		width := len(header)
		source = func(i int) []string {
			row := make([]string, width)
			for j := range row {
				row[j] = d.Cell(i, j)
			}
			return row
		}
	}
	header = append(header, r.Columns...)

	n, c := r.Coords.Dims()
	rows := make([][]string, n)
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(header))
		row = append(row, source(i)...)
		for j := 0; j < c; j++ {
			row = append(row, table.FormatFloat(r.Coords.At(i, j)))
		}
		rows[i] = row
	}

	name := CoordinatesFile(r.Algorithm)
	return name, table.Write(filepath.Join(dir, name), header, rows)
}

// Groups returns the value every row is coloured by in a scatter plot:
// the annotation column when present (nulls as UnknownLabel), else nil.
func (r *Result) Groups() []string {
	if r.Custom != nil {
		return r.Custom.Labels()
	}
	roles := r.Dataset.Roles()
	if !roles.HasAnnotation() {
		return nil
	}
	out := make([]string, r.Dataset.NumRows())
	for i := range out {
		out[i] = groupLabel(r.Dataset.Cell(i, roles.AnnotationIndex))
	}
	return out
}

// SaveCoordinates writes the last run's coordinates into dir
func (e *Engine) SaveCoordinates(dir string) (string, error) {
	res, err := e.Result()
	if err != nil {
		return "", err
	}
	return res.Save(dir)
}
