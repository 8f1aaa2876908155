// Package watch re-runs work when the input files of a directory change.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/table"
)

// Trigger is called after the directory settles. Its context is cancelled
// when a newer change arrives or the watcher stops.
type Trigger func(ctx context.Context) error

// Options configures a Watcher
type Options struct {
	Pattern  string        // input file pattern, default *.csv
	Debounce time.Duration // quiet period before triggering, default 500ms
	// MinInterval spaces consecutive triggers; 0 means no spacing
	MinInterval time.Duration
	// Initial fires once at start without waiting for a change
	Initial bool
}

// Watcher watches one input directory
type Watcher struct {
	dir      string
	opts     Options
	onChange Trigger
	fsw      *fsnotify.Watcher
	limiter  *rate.Limiter
	logger   *zap.SugaredLogger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts watching dir. Call Run to process events.
func New(dir string, opts Options, onChange Trigger, log *zap.SugaredLogger) (*Watcher, error) {
	if opts.Pattern == "" {
		opts.Pattern = table.DefaultPattern
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WrapInput(err, "invalid directory %s", dir)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fsw.Add(abs); err != nil {
		fsw.Close()
		return nil, errors.WrapInput(err, "failed to watch %s", abs)
	}

	return &Watcher{
		dir:      abs,
		opts:     opts,
		onChange: onChange,
		fsw:      fsw,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.OrComponent(log, "watch"),
	}, nil
}

// Run processes events until ctx ends, then waits for the last trigger to
// return and releases the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()
	defer w.fsw.Close()
	defer w.stopTrigger()

	log := w.logger.With(logger.FieldDirectory, w.dir)
	log.Infow("Watching for input changes", "pattern", w.opts.Pattern)

	if w.opts.Initial {
		w.fire(ctx)
	}

	debounce := time.NewTimer(w.opts.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			log.Debugw("Input changed", logger.FieldFile, event.Name, "op", event.Op.String())
			debounce.Reset(w.opts.Debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warnw("Watcher error", logger.FieldError, err)

		case <-debounce.C:
			w.fire(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if filepath.Dir(filepath.Clean(event.Name)) != w.dir {
		return false
	}
	return table.Matches(event.Name, w.opts.Pattern)
}

// fire cancels the running trigger, waits for it, then starts a new one
func (w *Watcher) fire(ctx context.Context) {
	w.stopTrigger()

	tctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel, w.done = cancel, done

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(done)
		defer cancel()

		if err := w.limiter.Wait(tctx); err != nil {
			return
		}
		start := time.Now()
		err := w.onChange(tctx)
		switch kind := errors.KindOf(err); kind {
		case errors.KindNone:
			w.logger.Infow("Re-run finished", logger.FieldDurationMS, time.Since(start).Milliseconds())
		case errors.KindCancelled:
			w.logger.Debugw("Re-run superseded")
		default:
			w.logger.Warnw("Re-run failed", logger.FieldError, err, logger.FieldErrorKind, string(kind))
		}
	}()
}

func (w *Watcher) stopTrigger() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel, w.done = nil, nil
}
