package dataset

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/matrix"
	"github.com/cytofkit/cytofkit/schema"
	"github.com/cytofkit/cytofkit/table"
)

// Options configures a Fuser
type Options struct {
	Pattern   string // glob matched against file names, default *.csv
	Delimiter rune   // 0 sniffs per file
	// Parallel file reads. 0 uses GOMAXPROCS.
	Workers int
	// Warn when the estimated footprint exceeds this share of available
	// memory. 0 uses 0.8.
	MemoryWarnRatio float64
}

// Fuser discovers, validates and concatenates input files. It holds at most
// one dataset; a successful Load replaces it and a failed Load clears it.
type Fuser struct {
	opts    Options
	logger  *zap.SugaredLogger
	busy    sync.Mutex
	current atomic.Pointer[Fused]
}

// NewFuser creates a fuser. A nil logger uses the "dataset" component logger.
func NewFuser(opts Options, log *zap.SugaredLogger) *Fuser {
	if opts.Pattern == "" {
		opts.Pattern = table.DefaultPattern
	}
	if opts.MemoryWarnRatio <= 0 {
		opts.MemoryWarnRatio = 0.8
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Fuser{opts: opts, logger: logger.OrComponent(log, "dataset")}
}

// Load discovers the tables in dir, checks they share one column set and
// concatenates them in discovery order. A mismatch fails with a consistency
// error and leaves no dataset behind.
func (f *Fuser) Load(ctx context.Context, dir string) (*Fused, error) {
	if !f.busy.TryLock() {
		return nil, errors.EngineBusy()
	}
	defer f.busy.Unlock()

	f.current.Store(nil)
	d, err := f.load(ctx, dir)
	if err != nil {
		return nil, err
	}
	f.current.Store(d)
	return d, nil
}

// Dataset returns the loaded dataset or a data state error
func (f *Fuser) Dataset() (*Fused, error) {
	d := f.current.Load()
	if d == nil {
		return nil, errors.DataStateErrorf("no dataset loaded")
	}
	return d, nil
}

// FeatureMatrix returns the feature matrix of the loaded dataset
func (f *Fuser) FeatureMatrix() (*matrix.Features, error) {
	d, err := f.Dataset()
	if err != nil {
		return nil, err
	}
	return d.FeatureMatrix()
}

// Merged returns the merged view of the loaded dataset
func (f *Fuser) Merged() (*table.Table, error) {
	d, err := f.Dataset()
	if err != nil {
		return nil, err
	}
	return d.Merged(), nil
}

func (f *Fuser) load(ctx context.Context, dir string) (*Fused, error) {
	start := time.Now()
	log := logger.FromContext(ctx, f.logger)

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WrapInput(err, "invalid input directory %s", dir)
	}
	files, err := table.Discover(abs, f.opts.Pattern)
	if err != nil {
		return nil, err
	}

	check := schema.Check(files, f.opts.Delimiter)
	if !check.Consistent {
		log.Warnw("Schema mismatch", logger.FieldFile, check.Offending, logger.FieldError, check.Message)
		return nil, check.Err
	}
	f.warnOnMemory(log, files)

	tables := make([]*table.Table, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := table.Read(path, table.ReadOptions{Delimiter: f.opts.Delimiter})
			if err != nil {
				return err
			}
			if t.NumRows() == 0 {
				return errors.InputErrorf("%s has a header but no data rows", path)
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d := fuse(abs, files, check.Columns, tables)
	log.Infow("Fused dataset",
		logger.FieldDirectory, abs,
		logger.FieldFiles, len(files),
		logger.FieldRows, d.NumRows(),
		logger.FieldFeatures, len(d.roles.Features),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return d, nil
}

func (f *Fuser) warnOnMemory(log *zap.SugaredLogger, files []string) {
	need := estimateFootprint(files)
	avail, err := availableMemory()
	if err != nil {
		log.Debugw("Could not read available memory", logger.FieldError, err)
		return
	}
	if float64(need) > f.opts.MemoryWarnRatio*float64(avail) {
		log.Warnw("Input may not fit in memory",
			"estimated_bytes", need,
			"available_bytes", avail,
			logger.FieldFiles, len(files))
	}
}

// fuse concatenates tables whose headers are permutations of columns,
// rearranging every row into the canonical order.
func fuse(dir string, paths, columns []string, tables []*table.Table) *Fused {
	total := 0
	for _, t := range tables {
		total += t.NumRows()
	}
	d := &Fused{
		dir:     dir,
		files:   make([]SourceFile, len(tables)),
		columns: append([]string(nil), columns...),
		roles:   schema.Resolve(columns),
		rows:    make([][]string, 0, total),
		fileOf:  make([]int, 0, total),
		origIdx: make([]int, 0, total),
	}

	for fi, t := range tables {
		perm := make([]int, len(columns))
		for j, c := range columns {
			perm[j] = indexExact(t.Header, c)
		}
		d.files[fi] = SourceFile{
			ID:      table.Stem(paths[fi]),
			Path:    paths[fi],
			Columns: append([]string(nil), t.Header...),
			Rows:    t.NumRows(),
			Start:   len(d.rows),
		}
		for ri, src := range t.Rows {
			row := make([]string, len(perm))
			for j, p := range perm {
				row[j] = src[p]
			}
			d.rows = append(d.rows, row)
			d.fileOf = append(d.fileOf, fi)
			d.origIdx = append(d.origIdx, ri)
		}
	}
	return d
}
