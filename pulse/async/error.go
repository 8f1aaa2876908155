package async

import (
	"github.com/cytofkit/cytofkit/errors"
)

// ErrorContext provides structured error information for job failures
type ErrorContext struct {
	Stage     string      // Where the error occurred
	Kind      errors.Kind // Taxonomy classification
	Message   string      // Human-readable message
	Hints     []string    // Remediation hints attached along the error chain
	Retryable bool        // Would resubmitting the same job plausibly succeed?
}

// ClassifyError categorizes a job error by its taxonomy kind
func ClassifyError(stage string, err error) ErrorContext {
	if err == nil {
		return ErrorContext{Stage: stage, Kind: errors.KindUnknown, Message: "unknown error"}
	}

	kind := errors.KindOf(err)
	ctx := ErrorContext{
		Stage:   stage,
		Kind:    kind,
		Message: err.Error(),
		Hints:   errors.GetAllHints(err),
	}

	switch kind {
	case errors.KindIO, errors.KindCancelled, errors.KindUnknown:
		ctx.Retryable = true
	case errors.KindDataState:
		// a busy engine clears up by itself; a missing dataset does not
		ctx.Retryable = errors.Is(err, errors.ErrEngineBusy)
	}
	return ctx
}
