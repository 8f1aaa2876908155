package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytofkit/cytofkit/errors"
)

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "A.CSV", "notes.txt", ".hidden.csv"} {
		writeFile(t, dir, name, "x\n1\n")
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0755))

	files, err := Discover(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "A.CSV"), filepath.Join(dir, "b.csv")}, files)

	files, err = Discover(dir, "*.txt")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestDiscoverErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Discover(filepath.Join(dir, "missing"), "")
	assert.True(t, errors.Is(err, errors.ErrInput))

	_, err = Discover(dir, "*.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInput))
	assert.Contains(t, err.Error(), dir)

	file := writeFile(t, dir, "f.csv", "x\n")
	_, err = Discover(file, "")
	assert.True(t, errors.Is(err, errors.ErrInput))

	_, err = Discover(dir, "[")
	assert.True(t, errors.Is(err, errors.ErrInput))
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("/data/Sample1.CSV", "*.csv"))
	assert.True(t, Matches("a.csv", ""))
	assert.False(t, Matches(".a.csv", "*.csv"))
	assert.False(t, Matches("a.csv.tmp", "*.csv"))
	assert.True(t, Matches("a.txt", "*.txt"))
}
