package table

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cytofkit/cytofkit/errors"
)

// DefaultPattern matches comma-separated files
const DefaultPattern = "*.csv"

// Discover lists the regular files in dir whose names match pattern,
// compared case-insensitively, sorted by name. A missing directory or an
// empty match is an input error.
func Discover(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, errors.WrapInput(err, "invalid file pattern %q", pattern)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.WrapInput(err, "input directory %s is not accessible", dir)
	}
	if !info.IsDir() {
		return nil, errors.InputErrorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapInput(err, "failed to list %s", dir)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && Matches(e.Name(), pattern) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, errors.WithHint(
			errors.InputErrorf("no files matching %q in %s", pattern, dir),
			"set data.pattern to match your files, e.g. \"*.txt\"")
	}

	sort.Strings(files)
	return files, nil
}

// Matches reports whether a file name is an input under pattern. Hidden
// files never match.
func Matches(name, pattern string) bool {
	name = filepath.Base(name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	ok, _ := filepath.Match(strings.ToLower(pattern), strings.ToLower(name))
	return ok
}
