package csvproc

import (
	"context"
	"math"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/schema"
	"github.com/cytofkit/cytofkit/table"
)

// Mapping sends a cluster label to a cell type
type Mapping map[string]string

// Lookup returns the cell type for a label, or the label unchanged
func (m Mapping) Lookup(label string) string {
	if v, ok := m[mappingKey(label)]; ok {
		return v
	}
	return label
}

// LoadMapping reads a two-column mapping file. Columns named cluster_label
// and cell_type are used when both exist; otherwise the first two columns.
func LoadMapping(path string, delimiter rune) (Mapping, error) {
	t, err := table.Read(path, table.ReadOptions{Delimiter: delimiter})
	if err != nil {
		return nil, err
	}
	if len(t.Header) < 2 {
		return nil, errors.InputErrorf("mapping file %s needs at least two columns, has %d", filepath.Base(path), len(t.Header))
	}
	key, val := t.Index(schema.ClusterLabel), t.Index(schema.CellType)
	if key < 0 || val < 0 {
		key, val = 0, 1
	}

	m := make(Mapping, t.NumRows())
	for _, row := range t.Rows {
		k := mappingKey(row[key])
		if k == "" {
			continue
		}
		m[k] = strings.TrimSpace(row[val])
	}
	return m, nil
}

// mappingKey canonicalises a label so "3", " 3" and "3.0" match
func mappingKey(s string) string {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return s
}

// Mapper replaces cluster_label with cell_type in annotated files
type Mapper struct {
	opts   Options
	logger *zap.SugaredLogger
}

// NewMapper creates a mapper. A nil logger uses the "csvproc" component logger.
func NewMapper(opts Options, log *zap.SugaredLogger) *Mapper {
	return &Mapper{opts: opts.withDefaults(), logger: logger.OrComponent(log, "csvproc")}
}

// Apply relabels one table. Any existing cell_type column is dropped and
// cluster_label becomes cell_type in the same position; labels without a
// mapping pass through. The row count never changes.
func (m *Mapper) Apply(t *table.Table, mapping Mapping, name string) (*table.Table, error) {
	var header []string
	var keep []int
	for i, h := range t.Header {
		if table.Canonical(h) == schema.CellType {
			continue
		}
		header = append(header, h)
		keep = append(keep, i)
	}
	pos := table.IndexOf(header, schema.ClusterLabel)
	if pos < 0 {
		return nil, errors.InputErrorf("Missing %s in %s", schema.ClusterLabel, name)
	}
	header[pos] = schema.CellType

	out := &table.Table{Header: header, Rows: make([][]string, len(t.Rows))}
	for r, row := range t.Rows {
		o := make([]string, len(keep))
		for i, c := range keep {
			o[i] = row[c]
		}
		o[pos] = mapping.Lookup(o[pos])
		out.Rows[r] = o
	}
	return out, nil
}

// MapFile relabels path and writes it under its own name into outDir
func (m *Mapper) MapFile(path string, mapping Mapping, outDir string) (string, error) {
	t, err := table.Read(path, table.ReadOptions{Delimiter: m.opts.Delimiter})
	if err != nil {
		return "", err
	}
	mapped, err := m.Apply(t, mapping, filepath.Base(path))
	if err != nil {
		return "", err
	}
	name := filepath.Base(path)
	if err := table.WriteTable(filepath.Join(outDir, name), mapped); err != nil {
		return "", err
	}
	return name, nil
}

// MapFolder relabels every matching file of dir except the mapping file
// itself and writes the results into outDir. Files are mapped independently;
// their column sets may differ as long as each has a cluster_label.
func (m *Mapper) MapFolder(ctx context.Context, dir, mappingPath string, outDir string) ([]string, error) {
	mapping, err := LoadMapping(mappingPath, m.opts.Delimiter)
	if err != nil {
		return nil, err
	}
	all, err := table.Discover(dir, m.opts.Pattern)
	if err != nil {
		return nil, err
	}
	skip, err := filepath.Abs(mappingPath)
	if err != nil {
		return nil, errors.WrapInput(err, "invalid mapping path %s", mappingPath)
	}
	var files []string
	for _, f := range all {
		if abs, err := filepath.Abs(f); err == nil && abs == skip {
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, errors.InputErrorf("%s has no files to map besides the mapping file", dir)
	}
	names := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name, err := m.MapFile(path, mapping, outDir)
			names[i] = name
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, m.logger).Infow("Folder mapped",
		logger.FieldDirectory, dir,
		logger.FieldFiles, len(names),
		"n_mappings", len(mapping),
		logger.FieldOutputDir, outDir)
	return names, nil
}
