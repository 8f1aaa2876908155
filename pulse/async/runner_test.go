package async

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/pulse"
)

// ============================================================================
// Relay Race Test Universe
// ============================================================================
//
// Characters:
//   - Runners: handlers carrying a baton down a lane
//   - Starter: submits runners to lanes
//
// Theme: only one runner holds a lane at a time. A fresh runner entering a
// lane taps the current one out, and waits for them to leave the track.
// ============================================================================

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sprinter blocks until released or cancelled
func sprinter(name string, started chan<- string, release <-chan struct{}) JobHandler {
	return NewHandlerFunc(name, func(ctx context.Context, job *Job, emit pulse.ProgressEmitter) (interface{}, error) {
		if started != nil {
			started <- job.ID
		}
		select {
		case <-release:
			emit.EmitProgress(1, map[string]interface{}{"total": 1})
			return "baton:" + job.ID, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func newTrack(t *testing.T, handlers ...JobHandler) *Runner {
	reg := NewHandlerRegistry()
	for _, h := range handlers {
		reg.Register(h)
	}
	return NewRunner(reg, nil, zaptest.NewLogger(t).Sugar())
}

func TestRunner_Completes(t *testing.T) {
	release := make(chan struct{})
	close(release)
	r := newTrack(t, sprinter("cluster", nil, release))

	job, _ := NewJob("", "cluster", nil)
	out := <-r.Submit(context.Background(), job)

	require.NoError(t, out.Err)
	assert.Equal(t, "baton:"+job.ID, out.Result)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.Progress.Current)
	assert.Equal(t, 1, job.Progress.Total)
	r.Wait()
	assert.Empty(t, r.Active())
}

func TestRunner_SupersedesBusyLane(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})
	r := newTrack(t, sprinter("cluster", started, release))

	first, _ := NewJob("cluster", "cluster", nil)
	firstOut := r.Submit(context.Background(), first)
	<-started

	second, _ := NewJob("cluster", "cluster", nil)
	secondOut := r.Submit(context.Background(), second)

	// the first runner is tapped out before the second one starts
	o1 := <-firstOut
	assert.Equal(t, JobStatusCancelled, o1.Job.Status)
	assert.Equal(t, errors.KindCancelled, errors.KindOf(o1.Err))

	assert.Equal(t, second.ID, <-started)
	close(release)
	o2 := <-secondOut
	require.NoError(t, o2.Err)
	assert.Equal(t, JobStatusCompleted, second.Status)

	r.Wait()
}

func TestRunner_LanesAreIndependent(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})
	r := newTrack(t, sprinter("cluster", started, release), sprinter("embed", started, release))

	c, _ := NewJob("", "cluster", nil)
	e, _ := NewJob("", "embed", nil)
	cOut := r.Submit(context.Background(), c)
	eOut := r.Submit(context.Background(), e)
	<-started
	<-started
	assert.Equal(t, []string{"cluster", "embed"}, r.Active())

	close(release)
	require.NoError(t, (<-cOut).Err)
	require.NoError(t, (<-eOut).Err)
	r.Wait()
}

func TestRunner_CancelLane(t *testing.T) {
	started := make(chan string, 1)
	r := newTrack(t, sprinter("embed", started, make(chan struct{})))

	job, _ := NewJob("", "embed", nil)
	out := r.Submit(context.Background(), job)
	<-started

	assert.True(t, r.Cancel("embed"))
	o := <-out
	assert.Equal(t, JobStatusCancelled, o.Job.Status)
	assert.False(t, r.Cancel("embed"))
	r.Wait()
}

func TestRunner_FailureAndPanic(t *testing.T) {
	var calls atomic.Int32
	r := newTrack(t,
		NewHandlerFunc("fall", func(ctx context.Context, job *Job, emit pulse.ProgressEmitter) (interface{}, error) {
			calls.Add(1)
			return nil, errors.InputErrorf("tripped on lane %s", job.Lane)
		}),
		NewHandlerFunc("trip", func(ctx context.Context, job *Job, emit pulse.ProgressEmitter) (interface{}, error) {
			panic("shoelace")
		}),
	)

	fall, _ := NewJob("", "fall", nil)
	o := <-r.Submit(context.Background(), fall)
	assert.Equal(t, JobStatusFailed, fall.Status)
	assert.Equal(t, errors.KindInput, fall.ErrorKind)
	assert.Error(t, o.Err)

	trip, _ := NewJob("", "trip", nil)
	o = <-r.Submit(context.Background(), trip)
	assert.Equal(t, JobStatusFailed, trip.Status)
	assert.Equal(t, errors.KindAlgorithmExecution, errors.KindOf(o.Err))
	assert.Contains(t, o.Err.Error(), "shoelace")
	assert.EqualValues(t, 1, calls.Load())
	r.Wait()
}

func TestRunner_UnknownHandler(t *testing.T) {
	r := newTrack(t)
	job, _ := NewJob("", "relay", nil)
	o := <-r.Submit(context.Background(), job)
	assert.Equal(t, errors.KindAlgorithmUnavailable, errors.KindOf(o.Err))
	assert.Equal(t, JobStatusFailed, job.Status)
}

func TestRunner_Shutdown(t *testing.T) {
	started := make(chan string, 1)
	r := newTrack(t, sprinter("cluster", started, make(chan struct{})))

	job, _ := NewJob("", "cluster", nil)
	out := r.Submit(context.Background(), job)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	assert.Equal(t, JobStatusCancelled, (<-out).Job.Status)

	late, _ := NewJob("", "cluster", nil)
	o := <-r.Submit(context.Background(), late)
	assert.ErrorIs(t, o.Err, ErrRunnerClosed)
}
