// Package schema resolves column roles and checks that a set of files
// shares one column schema.
package schema

import (
	"github.com/cytofkit/cytofkit/table"
)

// Reserved column names, matched after trimming and lower-casing
const (
	ClusterLabel = "cluster_label"
	CellType     = "cell_type"
)

// Provenance columns added by fusion and stripped from every export
const (
	FileIDColumn        = "_file_id"
	OriginalIndexColumn = "_original_index"
)

// Roles is the typed resolution of a header: which actual column plays the
// category (cluster_label) and annotation (cell_type) role, and which
// columns are features. Downstream code consumes Roles instead of
// comparing names again.
type Roles struct {
	Header []string

	// Actual column names, empty when absent
	Category   string
	Annotation string

	// Positions in Header, -1 when absent
	CategoryIndex   int
	AnnotationIndex int

	// Non-reserved columns, in header order
	Features     []string
	FeatureIndex []int
}

// Resolve derives Roles from a header
func Resolve(header []string) Roles {
	r := Roles{
		Header:          append([]string(nil), header...),
		CategoryIndex:   -1,
		AnnotationIndex: -1,
	}
	for i, h := range header {
		switch table.Canonical(h) {
		case ClusterLabel:
			if r.CategoryIndex < 0 {
				r.Category, r.CategoryIndex = h, i
			}
		case CellType:
			if r.AnnotationIndex < 0 {
				r.Annotation, r.AnnotationIndex = h, i
			}
		default:
			r.Features = append(r.Features, h)
			r.FeatureIndex = append(r.FeatureIndex, i)
		}
	}
	return r
}

// IsReserved reports whether name is a reserved column
func IsReserved(name string) bool {
	c := table.Canonical(name)
	return c == ClusterLabel || c == CellType
}

// HasCategory reports whether a cluster_label column is present
func (r Roles) HasCategory() bool { return r.CategoryIndex >= 0 }

// HasAnnotation reports whether a cell_type column is present
func (r Roles) HasAnnotation() bool { return r.AnnotationIndex >= 0 }

// GroupingColumn returns the column that groups rows into categories:
// cluster_label when present, else cell_type. ok is false when neither exists.
func (r Roles) GroupingColumn() (name string, index int, ok bool) {
	switch {
	case r.HasCategory():
		return r.Category, r.CategoryIndex, true
	case r.HasAnnotation():
		return r.Annotation, r.AnnotationIndex, true
	default:
		return "", -1, false
	}
}
