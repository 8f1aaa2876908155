package schema

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/table"
)

// Result is the outcome of a consistency check
type Result struct {
	Consistent bool
	Message    string
	// Columns of the first file, in its order. Nil unless Consistent.
	Columns []string
	// Path of the first file that failed to read or did not match
	Offending string
	// Typed error (input or consistency) when not Consistent
	Err error
}

// Check compares the column set of the first file against every other file,
// order-independently, and stops at the first file that cannot be read or
// does not match.
func Check(files []string, delimiter rune) Result {
	if len(files) == 0 {
		err := errors.InputErrorf("no files to check")
		return Result{Message: err.Error(), Err: err}
	}

	first, err := table.ReadHeader(files[0], delimiter)
	if err != nil {
		return failed(files[0], err)
	}
	want := toSet(first)

	for _, path := range files[1:] {
		header, err := table.ReadHeader(path, delimiter)
		if err != nil {
			return failed(path, err)
		}
		missing, extra := diff(want, toSet(header))
		if len(missing) == 0 && len(extra) == 0 {
			continue
		}

		var parts []string
		if len(missing) > 0 {
			parts = append(parts, fmt.Sprintf("missing %v", missing))
		}
		if len(extra) > 0 {
			parts = append(parts, fmt.Sprintf("unexpected %v", extra))
		}
		err = errors.ConsistencyErrorf("columns of %s differ from %s: %s",
			filepath.Base(path), filepath.Base(files[0]), strings.Join(parts, ", "))
		err = errors.WithDetailf(err, "expected columns: %s", strings.Join(first, ", "))
		return failed(path, err)
	}

	return Result{
		Consistent: true,
		Message:    fmt.Sprintf("%d files share %d columns", len(files), len(first)),
		Columns:    first,
	}
}

func failed(path string, err error) Result {
	return Result{Message: err.Error(), Offending: path, Err: err}
}

func toSet(cols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[c] = struct{}{}
	}
	return set
}

func diff(want, got map[string]struct{}) (missing, extra []string) {
	for c := range want {
		if _, ok := got[c]; !ok {
			missing = append(missing, c)
		}
	}
	for c := range got {
		if _, ok := want[c]; !ok {
			extra = append(extra, c)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}
