package errors

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "wrapped: %d", 42)

	assert.Contains(t, wrapped.Error(), "wrapped: 42")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestTaxonomyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
	}{
		{"input", InputErrorf("directory %q does not exist", "/nope"), ErrInput, KindInput},
		{"consistency", ConsistencyErrorf("columns of %s differ", "b.csv"), ErrConsistency, KindConsistency},
		{"data state", DataStateErrorf("no dataset loaded"), ErrDataState, KindDataState},
		{"unavailable", UnavailableErrorf("variant %q not available", "flowsom"), ErrAlgorithmUnavailable, KindAlgorithmUnavailable},
		{"execution", ExecutionErrorf("metaclustering returned %d labels", 3), ErrAlgorithmExecution, KindAlgorithmExecution},
		{"io", WrapIO(os.ErrPermission, "write %s", "out.csv"), ErrIO, KindIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.True(t, Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.NotContains(t, tt.err.Error(), tt.sentinel.Error(), "mark must not leak into the message")
		})
	}
}

func TestMarkSurvivesWrapping(t *testing.T) {
	err := InputErrorf("missing 'cell_type' column in %s", "a.csv")
	err = Wrap(err, "compute percentages")
	err = WithHint(err, "annotate the files first")

	assert.True(t, Is(err, ErrInput))
	assert.False(t, Is(err, ErrConsistency))
	assert.Contains(t, err.Error(), "a.csv")
	assert.Contains(t, GetAllHints(err), "annotate the files first")
}

func TestKindOfCancellation(t *testing.T) {
	err := Wrap(context.Canceled, "cluster run")
	assert.Equal(t, KindCancelled, KindOf(err))

	// a cancelled unit that also carries a taxonomy mark is still cancelled
	marked := Mark(Wrap(context.DeadlineExceeded, "embed"), ErrAlgorithmExecution)
	assert.Equal(t, KindCancelled, KindOf(marked))
}

func TestKindOfUnknownAndNil(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(New("plain")))
}

func TestEngineBusyIsDataState(t *testing.T) {
	err := Wrap(EngineBusy(), "cluster engine")
	assert.True(t, Is(err, ErrEngineBusy))
	assert.Equal(t, KindDataState, KindOf(err))
}

func TestDataStateIsNotEngineBusy(t *testing.T) {
	err := DataStateErrorf("no dataset loaded")
	assert.False(t, Is(err, ErrEngineBusy))
	assert.False(t, Is(Wrap(err, "cluster engine"), ErrEngineBusy))
	assert.True(t, Is(EngineBusy(), ErrDataState))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, KindNone.ExitCode())
	assert.Equal(t, 2, KindInput.ExitCode())
	assert.Equal(t, 2, KindConsistency.ExitCode())
	assert.Equal(t, 3, KindDataState.ExitCode())
	assert.Equal(t, 4, KindAlgorithmUnavailable.ExitCode())
	assert.Equal(t, 5, KindIO.ExitCode())
	assert.Equal(t, 130, KindCancelled.ExitCode())
	assert.Equal(t, 1, KindUnknown.ExitCode())
}

func TestWrapHelpersNil(t *testing.T) {
	assert.Nil(t, WrapIO(nil, "write"))
	assert.Nil(t, WrapInput(nil, "read"))
	assert.Nil(t, Wrap(nil, "context"))
}

func TestStackTrace(t *testing.T) {
	err := InputErrorf("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func ExampleInputErrorf() {
	err := InputErrorf("no files matching %q in %s", "*.csv", "/data")
	fmt.Println(err)
	fmt.Println(KindOf(err))
	// Output:
	// no files matching "*.csv" in /data
	// input
}
