// Package csvproc projects rows and columns out of annotated files and
// relabels cluster ids with cell types.
package csvproc

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/schema"
	"github.com/cytofkit/cytofkit/table"
)

// PreviewRows is how many rows LoadFolder keeps for display
const PreviewRows = 100

// Options configures the splitter and mapper
type Options struct {
	Pattern   string
	Delimiter rune
}

func (o Options) withDefaults() Options {
	if o.Pattern == "" {
		o.Pattern = table.DefaultPattern
	}
	return o
}

// Splitter writes row and column projections of files
type Splitter struct {
	opts   Options
	logger *zap.SugaredLogger
}

// NewSplitter creates a splitter. A nil logger uses the "csvproc" component logger.
func NewSplitter(opts Options, log *zap.SugaredLogger) *Splitter {
	return &Splitter{opts: opts.withDefaults(), logger: logger.OrComponent(log, "csvproc")}
}

// SplitName is the output name for a source file
func SplitName(path string) string { return "split_" + table.Stem(path) + ".csv" }

// SplitFile writes the chosen rows and columns of path into outDir. Nil
// rows selects every row; indices outside the file are dropped. Unknown
// columns are ignored but at least one must exist.
func (s *Splitter) SplitFile(path string, rows []int, columns []string, outDir string) (string, error) {
	t, err := table.Read(path, table.ReadOptions{Delimiter: s.opts.Delimiter})
	if err != nil {
		return "", err
	}
	keep, err := project(t.Header, columns, path)
	if err != nil {
		return "", err
	}

	var picked [][]string
	if rows == nil {
		picked = t.Rows
	} else {
		for _, i := range rows {
			if i >= 0 && i < t.NumRows() {
				picked = append(picked, t.Rows[i])
			}
		}
	}
	return s.write(path, t.Header, keep, picked, outDir)
}

// Folder describes a consistency-checked folder offered for splitting
type Folder struct {
	Dir     string
	Files   []string
	Columns []string

	// Grouping column (cluster_label preferred over cell_type), empty when absent
	Category string
	// Sorted distinct values of Category over every file, nulls as ""
	CategoryValues []string

	Preview *table.Table
}

// LoadFolder checks that every file in dir shares one schema and gathers
// what a caller needs to choose a projection.
func (s *Splitter) LoadFolder(ctx context.Context, dir string) (*Folder, error) {
	files, err := table.Discover(dir, s.opts.Pattern)
	if err != nil {
		return nil, err
	}
	check := schema.Check(files, s.opts.Delimiter)
	if !check.Consistent {
		return nil, check.Err
	}

	f := &Folder{Dir: dir, Files: files, Columns: check.Columns}
	category, _, ok := schema.Resolve(check.Columns).GroupingColumn()
	if ok {
		f.Category = category
	}

	values := make(map[string]struct{})
	for i, path := range files {
		// without a category only the preview needs reading
		if !ok && i > 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := table.Read(path, table.ReadOptions{Delimiter: s.opts.Delimiter})
		if err != nil {
			return nil, err
		}
		if i == 0 {
			f.Preview = &table.Table{Header: t.Header, Rows: t.Rows[:min(PreviewRows, t.NumRows())]}
		}
		if !ok {
			continue
		}
		col := t.Index(category)
		for _, row := range t.Rows {
			values[categoryValue(row[col])] = struct{}{}
		}
	}
	for v := range values {
		f.CategoryValues = append(f.CategoryValues, v)
	}
	sort.Strings(f.CategoryValues)
	return f, nil
}

// SplitFolder applies one column projection to every file of f, keeping
// rows whose category is among categories (every row when categories is
// nil). Each file keeps its own row order.
func (s *Splitter) SplitFolder(ctx context.Context, f *Folder, categories []string, columns []string, outDir string) ([]string, error) {
	if categories != nil && f.Category == "" {
		return nil, errors.InputErrorf("%s has no %s or %s column to select rows by", f.Dir, schema.ClusterLabel, schema.CellType)
	}
	want := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		want[c] = struct{}{}
	}

	names := make([]string, len(f.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range f.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := table.Read(path, table.ReadOptions{Delimiter: s.opts.Delimiter})
			if err != nil {
				return err
			}
			keep, err := project(t.Header, columns, path)
			if err != nil {
				return err
			}
			picked := t.Rows
			if categories != nil {
				col := t.Index(f.Category)
				picked = nil
				for _, row := range t.Rows {
					if _, ok := want[categoryValue(row[col])]; ok {
						picked = append(picked, row)
					}
				}
			}
			name, err := s.write(path, t.Header, keep, picked, outDir)
			names[i] = name
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, s.logger).Infow("Folder split",
		logger.FieldDirectory, f.Dir, logger.FieldFiles, len(names), logger.FieldOutputDir, outDir)
	return names, nil
}

func (s *Splitter) write(path string, header []string, keep []int, rows [][]string, outDir string) (string, error) {
	outHeader := make([]string, len(keep))
	for i, c := range keep {
		outHeader[i] = header[c]
	}
	out := make([][]string, len(rows))
	for r, row := range rows {
		o := make([]string, len(keep))
		for i, c := range keep {
			o[i] = row[c]
		}
		out[r] = o
	}
	name := SplitName(path)
	if err := table.Write(filepath.Join(outDir, name), outHeader, out); err != nil {
		return "", err
	}
	s.logger.Debugw("Split written", logger.FieldFile, name, logger.FieldRows, len(out))
	return name, nil
}

// project resolves requested columns against header, in request order
// without repeats. Nil columns keeps every column.
func project(header, columns []string, path string) ([]int, error) {
	if columns == nil {
		keep := make([]int, len(header))
		for i := range keep {
			keep[i] = i
		}
		return keep, nil
	}
	seen := make(map[int]bool)
	var keep []int
	for _, c := range columns {
		if i := table.IndexOf(header, c); i >= 0 && !seen[i] {
			seen[i] = true
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, errors.WithHintf(
			errors.InputErrorf("none of the requested columns %v exist in %s", columns, filepath.Base(path)),
			"columns are: %v", header)
	}
	return keep, nil
}

func categoryValue(cell string) string {
	if table.IsNull(cell) {
		return ""
	}
	return cell
}
