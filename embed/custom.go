package embed

import (
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/matrix"
	"github.com/cytofkit/cytofkit/schema"
	"github.com/cytofkit/cytofkit/table"
)

// UnknownLabel colours rows whose label cell is null
const UnknownLabel = "Unknown"

// Label columns looked up in a custom file, in order of preference
var customLabelColumns = []string{"cell_type", "cluster", "cluster_label", "label"}

// Custom is a single externally supplied file to embed
type Custom struct {
	Path  string
	Table *table.Table

	// Label column used to colour the embedding, empty when none
	LabelColumn string
	LabelIndex  int

	features *matrix.Features
}

// LoadCustom reads path and takes every fully numeric column other than the
// label column and the fusion provenance columns as a feature. A file with no numeric column is an input error.
func LoadCustom(path string, delimiter rune) (*Custom, error) {
	t, err := table.Read(path, table.ReadOptions{Delimiter: delimiter})
	if err != nil {
		return nil, err
	}
	if t.NumRows() == 0 {
		return nil, errors.InputErrorf("%s has a header but no data rows", path)
	}

	c := &Custom{Path: path, Table: t, LabelIndex: -1}
	for _, name := range customLabelColumns {
		if i := t.Index(name); i >= 0 {
			c.LabelColumn, c.LabelIndex = t.Header[i], i
			break
		}
	}

	var names []string
	var cols []int
	for j, h := range t.Header {
		if j == c.LabelIndex || isProvenance(h) || !numericColumn(t, j) {
			continue
		}
		names = append(names, h)
		cols = append(cols, j)
	}
	if len(cols) == 0 {
		return nil, errors.InputErrorf("%s has no numeric columns to embed", path)
	}

	data := mat.NewDense(t.NumRows(), len(cols), nil)
	for i, row := range t.Rows {
		for k, j := range cols {
			v, _ := table.ParseFloat(row[j])
			data.Set(i, k, v)
		}
	}
	if c.features, err = matrix.NewFeatures(names, data); err != nil {
		return nil, err
	}
	return c, nil
}

// Features returns the numeric columns as a matrix
func (c *Custom) Features() *matrix.Features { return c.features }

// Labels returns the label column's values with nulls as UnknownLabel,
// or nil without a label column
func (c *Custom) Labels() []string {
	if c.LabelIndex < 0 {
		return nil
	}
	out := c.Table.Column(c.LabelIndex)
	for i, v := range out {
		out[i] = groupLabel(v)
	}
	return out
}

func groupLabel(cell string) string {
	if table.IsNull(cell) {
		return UnknownLabel
	}
	return cell
}

// isProvenance reports the row bookkeeping columns an older combined
// export may still carry
func isProvenance(name string) bool {
	return name == schema.FileIDColumn || name == schema.OriginalIndexColumn
}

func numericColumn(t *table.Table, j int) bool {
	for _, row := range t.Rows {
		if _, ok := table.ParseFloat(row[j]); !ok {
			return false
		}
	}
	return true
}
