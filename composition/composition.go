// Package composition computes, for every sample in a folder of annotated
// files, the percentage of its rows in each cell type.
package composition

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/schema"
	"github.com/cytofkit/cytofkit/table"
)

// Unknown buckets rows whose category is missing
const Unknown = "Unknown"

// OutputFile is the name of the saved table
const OutputFile = "composition.csv"

// SampleColumn heads the sample identifier column of the saved table
const SampleColumn = "sample"

// Table holds one row per sample and one column per category; every row
// sums to 100.
type Table struct {
	Samples    []string
	Categories []string
	Percent    *mat.Dense
}

// Options configures an Analyzer
type Options struct {
	Pattern   string
	Delimiter rune
}

// Analyzer computes composition tables
type Analyzer struct {
	opts   Options
	logger *zap.SugaredLogger
}

// NewAnalyzer creates an analyzer. A nil logger uses the "compose" component logger.
func NewAnalyzer(opts Options, log *zap.SugaredLogger) *Analyzer {
	if opts.Pattern == "" {
		opts.Pattern = table.DefaultPattern
	}
	return &Analyzer{opts: opts, logger: logger.OrComponent(log, "compose")}
}

type sampleCounts struct {
	id     string
	counts map[string]int
	total  int
}

// Compute reads every matching file in dir. A file without a cell_type
// column, or without rows, is an input error naming it.
func (a *Analyzer) Compute(ctx context.Context, dir string) (*Table, error) {
	start := time.Now()
	files, err := table.Discover(dir, a.opts.Pattern)
	if err != nil {
		return nil, err
	}

	samples := make([]sampleCounts, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := a.count(path)
			if err != nil {
				return err
			}
			samples[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, s := range samples {
		for c := range s.counts {
			seen[c] = struct{}{}
		}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	t := &Table{
		Samples:    make([]string, len(samples)),
		Categories: categories,
		Percent:    mat.NewDense(len(samples), len(categories), nil),
	}
	for i, s := range samples {
		t.Samples[i] = s.id
		for j, c := range categories {
			t.Percent.Set(i, j, 100*float64(s.counts[c])/float64(s.total))
		}
	}

	logger.FromContext(ctx, a.logger).Infow("Composition computed",
		logger.FieldDirectory, dir,
		logger.FieldFiles, len(files),
		"n_categories", len(categories),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return t, nil
}

func (a *Analyzer) count(path string) (sampleCounts, error) {
	t, err := table.Read(path, table.ReadOptions{Delimiter: a.opts.Delimiter})
	if err != nil {
		return sampleCounts{}, err
	}
	col := t.Index(schema.CellType)
	if col < 0 {
		return sampleCounts{}, errors.WithHintf(
			errors.InputErrorf("%s has no %s column", filepath.Base(path), schema.CellType),
			"columns are: %v", t.Header)
	}
	if t.NumRows() == 0 {
		return sampleCounts{}, errors.InputErrorf("%s has no rows to compose", filepath.Base(path))
	}

	counts := make(map[string]int)
	for _, row := range t.Rows {
		v := row[col]
		if table.IsNull(v) {
			v = Unknown
		}
		counts[v]++
	}
	return sampleCounts{id: table.Stem(path), counts: counts, total: t.NumRows()}, nil
}

// Save writes the table as composition.csv in dir
func (t *Table) Save(dir string) (string, error) {
	header := append([]string{SampleColumn}, t.Categories...)
	rows := make([][]string, len(t.Samples))
	for i, s := range t.Samples {
		row := make([]string, 0, len(header))
		row = append(row, s)
		for j := range t.Categories {
			row = append(row, table.FormatFloat(t.Percent.At(i, j)))
		}
		rows[i] = row
	}
	return OutputFile, table.Write(filepath.Join(dir, OutputFile), header, rows)
}
