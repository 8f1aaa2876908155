package errors

import "context"

// Kind is the taxonomy classification of an error, as recorded in the run
// ledger and mapped to CLI exit codes.
type Kind string

const (
	KindNone                 Kind = ""
	KindInput                Kind = "input"
	KindConsistency          Kind = "consistency"
	KindDataState            Kind = "data_state"
	KindAlgorithmUnavailable Kind = "algorithm_unavailable"
	KindAlgorithmExecution   Kind = "algorithm_execution"
	KindIO                   Kind = "io"
	KindCancelled            Kind = "cancelled"
	KindUnknown              Kind = "unknown"
)

// KindOf classifies err. Cancellation wins over any other mark so that an
// abandoned unit is never reported as an algorithm failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case Is(err, context.Canceled), Is(err, context.DeadlineExceeded):
		return KindCancelled
	case Is(err, ErrInput):
		return KindInput
	case Is(err, ErrConsistency):
		return KindConsistency
	case Is(err, ErrDataState):
		return KindDataState
	case Is(err, ErrAlgorithmUnavailable):
		return KindAlgorithmUnavailable
	case Is(err, ErrAlgorithmExecution):
		return KindAlgorithmExecution
	case Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}

// ExitCode maps a Kind to the process exit code used by the CLI.
func (k Kind) ExitCode() int {
	switch k {
	case KindNone:
		return 0
	case KindInput, KindConsistency:
		return 2
	case KindDataState:
		return 3
	case KindAlgorithmUnavailable, KindAlgorithmExecution:
		return 4
	case KindIO:
		return 5
	case KindCancelled:
		return 130
	default:
		return 1
	}
}
