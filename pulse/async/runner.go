package async

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/pulse"
)

// ErrRunnerClosed is returned for jobs submitted after Shutdown
var ErrRunnerClosed = errors.Mark(errors.New("runner is shut down"), errors.ErrDataState)

// Outcome is the single terminal report for a submitted job
type Outcome struct {
	Job    *Job
	Result interface{}
	Err    error
}

type laneState struct {
	job    *Job
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner executes jobs through registered handlers. Each lane runs at most
// one job; a new submission cancels the lane's current job and starts once
// that job has returned, so the lane's last writer is always the newest
// request.
type Runner struct {
	registry *HandlerRegistry
	emitter  pulse.ProgressEmitter
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	lanes  map[string]*laneState
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a runner. emitter and log may be nil.
func NewRunner(registry *HandlerRegistry, emitter pulse.ProgressEmitter, log *zap.SugaredLogger) *Runner {
	if emitter == nil {
		emitter = pulse.NopEmitter{}
	}
	return &Runner{
		registry: registry,
		emitter:  emitter,
		logger:   logger.OrComponent(log, "runner"),
		lanes:    make(map[string]*laneState),
	}
}

// Submit starts job in its lane and returns a channel that receives exactly
// one Outcome. The channel is buffered; callers may ignore it.
func (r *Runner) Submit(ctx context.Context, job *Job) <-chan Outcome {
	out := make(chan Outcome, 1)

	handler, err := r.registry.Get(job.HandlerName)
	if err != nil {
		job.Fail(err)
		out <- Outcome{Job: job, Err: err}
		return out
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		job.Fail(ErrRunnerClosed)
		out <- Outcome{Job: job, Err: ErrRunnerClosed}
		return out
	}
	jobCtx, cancel := context.WithCancel(ctx)
	cur := &laneState{job: job, cancel: cancel, done: make(chan struct{})}
	prev := r.lanes[job.Lane]
	r.lanes[job.Lane] = cur
	r.wg.Add(1)
	r.mu.Unlock()

	if prev != nil {
		r.logger.Infow("Superseding running job",
			logger.FieldLane, job.Lane,
			"superseded_job_id", prev.job.ID,
			logger.FieldJobID, job.ID,
		)
		prev.cancel()
	}

	go r.run(jobCtx, cur, prev, handler, out)
	return out
}

func (r *Runner) run(ctx context.Context, cur, prev *laneState, handler JobHandler, out chan<- Outcome) {
	defer r.wg.Done()
	defer close(cur.done)
	defer cur.cancel()
	defer r.release(cur)

	if prev != nil {
		<-prev.done
	}

	job := cur.job
	log := r.logger.With(logger.FieldJobID, job.ID, logger.FieldLane, job.Lane)

	var result interface{}
	err := ctx.Err()
	if err == nil {
		job.Start()
		log.Debugw("Job started", "handler", job.HandlerName)
		result, err = r.execute(ctx, handler, job, log)
	}

	switch {
	case err == nil:
		job.Complete()
		log.Infow("Job completed", logger.FieldDurationMS, job.Duration().Milliseconds())
	case errors.KindOf(err) == errors.KindCancelled:
		job.Cancel(err.Error())
		log.Infow("Job cancelled", logger.FieldError, err)
	default:
		job.Fail(err)
		ec := ClassifyError(job.HandlerName, err)
		log.Warnw("Job failed",
			logger.FieldError, err,
			logger.FieldErrorKind, string(ec.Kind),
			"retryable", ec.Retryable,
		)
	}
	out <- Outcome{Job: job, Result: result, Err: err}
}

// execute runs the handler, turning a panic into an execution error
func (r *Runner) execute(ctx context.Context, handler JobHandler, job *Job, log *zap.SugaredLogger) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.ExecutionErrorf("handler %s panicked: %v", handler.Name(), p)
			result = nil
		}
	}()
	return handler.Execute(ctx, job, NewJobProgressEmitter(job, r.emitter, log))
}

func (r *Runner) release(cur *laneState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lanes[cur.job.Lane] == cur {
		delete(r.lanes, cur.job.Lane)
	}
}

// Cancel cancels the job currently occupying lane. Reports whether there was one.
func (r *Runner) Cancel(lane string) bool {
	r.mu.Lock()
	cur, ok := r.lanes[lane]
	r.mu.Unlock()
	if ok {
		cur.cancel()
	}
	return ok
}

// Active returns the lanes that currently hold a job, sorted
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	lanes := make([]string, 0, len(r.lanes))
	for lane := range r.lanes {
		lanes = append(lanes, lane)
	}
	sort.Strings(lanes)
	return lanes
}

// Wait blocks until every submitted job has delivered its outcome
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown refuses new jobs, cancels running ones and waits for them to
// return or for ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, cur := range r.lanes {
		cur.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	start := time.Now()
	select {
	case <-done:
		r.logger.Debugw("Runner stopped", logger.FieldDurationMS, time.Since(start).Milliseconds())
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "runner shutdown")
	}
}
