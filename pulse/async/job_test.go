package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytofkit/cytofkit/errors"
)

// ============================================================================
// TAS Bot Job Lifecycle Test Universe
// ============================================================================
//
// Characters:
//   - TAS Bot: Frame-perfect coordinator creating speedrun missions
//
// Theme: Jobs represent speedrun missions. Each mission runs in a lane and
// ends exactly one way: completed, failed or cancelled.
// ============================================================================

func TestNewJob(t *testing.T) {
	t.Run("mission lane defaults to handler", func(t *testing.T) {
		job, err := NewJob("", "cluster", map[string]int{"n_clusters": 8})
		require.NoError(t, err)
		assert.Equal(t, "cluster", job.Lane)
		assert.Equal(t, JobStatusQueued, job.Status)
		assert.Len(t, job.ID, 36)
	})

	t.Run("mission IDs never repeat", func(t *testing.T) {
		a, err := NewJob("x", "cluster", nil)
		require.NoError(t, err)
		b, err := NewJob("x", "cluster", nil)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("mission without a handler is refused", func(t *testing.T) {
		_, err := NewJob("lane", "", nil)
		require.Error(t, err)
		assert.Equal(t, errors.KindInput, errors.KindOf(err))
	})
}

func TestJobLifecycle(t *testing.T) {
	t.Run("TAS Bot finishes the run", func(t *testing.T) {
		job, _ := NewJob("", "embed", nil)
		job.Start()
		require.NotNil(t, job.StartedAt)
		assert.Equal(t, JobStatusRunning, job.Status)
		assert.False(t, job.Status.Terminal())

		time.Sleep(time.Millisecond)
		job.Complete()
		assert.Equal(t, JobStatusCompleted, job.Status)
		assert.True(t, job.Status.Terminal())
		assert.Positive(t, job.Duration())
	})

	t.Run("TAS Bot desyncs", func(t *testing.T) {
		job, _ := NewJob("", "cluster", nil)
		job.Start()
		job.Fail(errors.InputErrorf("n_clusters=%d exceeds %d rows", 9, 4))
		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Equal(t, errors.KindInput, job.ErrorKind)
		assert.Contains(t, job.Error, "exceeds 4 rows")
	})

	t.Run("TAS Bot resets", func(t *testing.T) {
		job, _ := NewJob("", "cluster", nil)
		job.Cancel("superseded")
		assert.Equal(t, JobStatusCancelled, job.Status)
		assert.Equal(t, errors.KindCancelled, job.ErrorKind)
		assert.Zero(t, job.Duration())
	})

	t.Run("splits track progress", func(t *testing.T) {
		p := Progress{Current: 25, Total: 100}
		assert.InDelta(t, 25.0, p.Percentage(), 1e-9)
		assert.Zero(t, Progress{}.Percentage())
	})
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []string{"queued", "running", "completed", "failed", "cancelled"} {
		assert.True(t, IsValidStatus(s), s)
	}
	assert.False(t, IsValidStatus("paused"))
}

func TestClassifyError(t *testing.T) {
	busy := ClassifyError("cluster", errors.Wrap(errors.EngineBusy(), "run"))
	assert.Equal(t, errors.KindDataState, busy.Kind)
	assert.True(t, busy.Retryable)

	missing := ClassifyError("cluster", errors.DataStateErrorf("no dataset loaded"))
	assert.False(t, missing.Retryable)

	hinted := ClassifyError("fuse", errors.WithHint(errors.InputErrorf("no files"), "check the pattern"))
	assert.Equal(t, []string{"check the pattern"}, hinted.Hints)
	assert.False(t, hinted.Retryable)
}
