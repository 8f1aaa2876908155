// Package dataset fuses a directory of per-sample tables into one dataset
// while remembering, for every row, which file it came from and where.
package dataset

import (
	"strconv"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/matrix"
	"github.com/cytofkit/cytofkit/schema"
	"github.com/cytofkit/cytofkit/table"
)

// SourceFile is one input file of a fused dataset
type SourceFile struct {
	ID      string   // file stem
	Path    string   // absolute path
	Columns []string // header in the file's own order
	Rows    int      // data rows contributed
	Start   int      // first fused row index
}

// Fused is the concatenation of every input file in discovery order.
// It is immutable after Load returns it.
type Fused struct {
	dir     string
	files   []SourceFile
	columns []string
	roles   schema.Roles
	rows    [][]string
	fileOf  []int // fused row -> index into files
	origIdx []int // fused row -> row index within its file

	featOnce sync.Once
	features *matrix.Features
	featErr  error
}

// Dir returns the directory the dataset was loaded from
func (d *Fused) Dir() string { return d.dir }

// Files returns the source files in fusion order
func (d *Fused) Files() []SourceFile { return append([]SourceFile(nil), d.files...) }

// FileIDs returns the file identifiers in fusion order
func (d *Fused) FileIDs() []string {
	ids := make([]string, len(d.files))
	for i, f := range d.files {
		ids[i] = f.ID
	}
	return ids
}

// Columns returns the canonical column order, taken from the first file
func (d *Fused) Columns() []string { return append([]string(nil), d.columns...) }

// Roles returns the resolved column roles of the canonical header
func (d *Fused) Roles() schema.Roles { return d.roles }

// FeatureColumns returns the non-reserved columns in canonical order
func (d *Fused) FeatureColumns() []string { return append([]string(nil), d.roles.Features...) }

// NumRows returns the fused row count, the sum over every file
func (d *Fused) NumRows() int { return len(d.rows) }

// Cell returns one cell of the fused data in canonical column order
func (d *Fused) Cell(row, col int) string { return d.rows[row][col] }

// FileID returns the provenance file of a fused row
func (d *Fused) FileID(row int) string { return d.files[d.fileOf[row]].ID }

// OriginalIndex returns a fused row's index within its source file
func (d *Fused) OriginalIndex(row int) int { return d.origIdx[row] }

// Merged returns a copy of the fused data with the provenance columns appended
func (d *Fused) Merged() *table.Table {
	header := append(d.Columns(), schema.FileIDColumn, schema.OriginalIndexColumn)
	rows := make([][]string, len(d.rows))
	for i, r := range d.rows {
		row := make([]string, 0, len(header))
		row = append(row, r...)
		row = append(row, d.FileID(i), strconv.Itoa(d.origIdx[i]))
		rows[i] = row
	}
	return &table.Table{Header: header, Rows: rows}
}

// FileRows returns the rows contributed by one file, cells rearranged into
// that file's own column order, plus the fused row range they occupy.
func (d *Fused) FileRows(fileIndex int) (header []string, rows [][]string, start int) {
	f := d.files[fileIndex]
	perm := make([]int, len(f.Columns))
	for i, c := range f.Columns {
		perm[i] = indexExact(d.columns, c)
	}
	rows = make([][]string, f.Rows)
	for i := 0; i < f.Rows; i++ {
		src := d.rows[f.Start+i]
		row := make([]string, len(perm))
		for j, p := range perm {
			row[j] = src[p]
		}
		rows[i] = row
	}
	return append([]string(nil), f.Columns...), rows, f.Start
}

// FeatureMatrix parses the feature columns into a numeric matrix. The
// result is computed once and shared; callers must not modify it. A missing
// or non-numeric feature value is an input error naming file, row and column.
func (d *Fused) FeatureMatrix() (*matrix.Features, error) {
	d.featOnce.Do(func() {
		d.features, d.featErr = d.buildFeatures()
	})
	return d.features, d.featErr
}

func (d *Fused) buildFeatures() (*matrix.Features, error) {
	feats := d.roles.Features
	if len(feats) == 0 {
		return nil, errors.DataStateErrorf("dataset from %s has no feature columns", d.dir)
	}
	data := mat.NewDense(len(d.rows), len(feats), nil)
	for i, row := range d.rows {
		for j, col := range d.roles.FeatureIndex {
			v, ok := table.ParseFloat(row[col])
			if !ok {
				f := d.files[d.fileOf[i]]
				return nil, errors.InputErrorf("%s row %d column %q: %q is not numeric",
					f.Path, d.origIdx[i]+1, feats[j], row[col])
			}
			data.Set(i, j, v)
		}
	}
	return matrix.NewFeatures(feats, data)
}

func indexExact(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
