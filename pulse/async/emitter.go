package async

import (
	"go.uber.org/zap"

	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/pulse"
)

// JobProgressEmitter forwards progress to an outer emitter while keeping
// the job's Progress current and logging stage transitions.
type JobProgressEmitter struct {
	job   *Job
	inner pulse.ProgressEmitter
	log   *zap.SugaredLogger
}

// NewJobProgressEmitter creates an emitter for job. inner may be nil.
func NewJobProgressEmitter(job *Job, inner pulse.ProgressEmitter, baseLogger *zap.SugaredLogger) *JobProgressEmitter {
	if inner == nil {
		inner = pulse.NopEmitter{}
	}
	return &JobProgressEmitter{
		job:   job,
		inner: inner,
		log:   baseLogger.With(logger.FieldJobID, job.ID, logger.FieldLane, job.Lane),
	}
}

func (e *JobProgressEmitter) EmitStage(stage, message string) {
	e.log.Debugw("Stage", "stage", stage, "message", message)
	e.inner.EmitStage(stage, message)
}

func (e *JobProgressEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	if total, ok := metadata["total"].(int); ok {
		e.job.Progress.Total = total
	}
	e.job.UpdateProgress(count)
	e.inner.EmitProgress(count, metadata)
}

func (e *JobProgressEmitter) EmitComplete(summary map[string]interface{}) {
	e.inner.EmitComplete(summary)
}

func (e *JobProgressEmitter) EmitError(stage string, err error) {
	e.log.Warnw("Stage failed", "stage", stage, logger.FieldError, err)
	e.inner.EmitError(stage, err)
}

func (e *JobProgressEmitter) EmitInfo(message string) {
	e.inner.EmitInfo(message)
}
