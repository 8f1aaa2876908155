package output

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTimestamped(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	got := Timestamped("/data", ClusterResults, now, "060102_1504")
	assert.Equal(t, filepath.Join("/data", "results", "cluster_results", "240309_1405"), got)
}

func TestStageCommit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "results", "240309_1405")
	s, err := Begin(target, "CR_abc", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.True(t, IsPartial(s.Dir()))

	require.NoError(t, os.WriteFile(s.Path("b.csv"), []byte("x\n1\n"), 0644))
	require.NoError(t, os.WriteFile(s.Path("a.csv"), []byte("y\n"), 0644))

	// nothing is visible at the target before commit
	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))

	final, artifacts, err := s.Commit(&Manifest{RunID: "CR_abc", Kind: "cluster", Algorithm: "kmeans", Rows: 3})
	require.NoError(t, err)
	assert.Equal(t, target, final)
	assert.Equal(t, []Artifact{{Name: "a.csv", SizeBytes: 2}, {Name: "b.csv", SizeBytes: 4}}, artifacts)

	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))

	m, err := ReadManifest(final)
	require.NoError(t, err)
	assert.Equal(t, "kmeans", m.Algorithm)
	assert.Equal(t, 3, m.Rows)
	assert.Len(t, m.Artifacts, 2)

	// abort after commit leaves the result alone
	s.Abort()
	_, err = os.Stat(final)
	assert.NoError(t, err)
}

func TestStageCollisionSuffix(t *testing.T) {
	target := filepath.Join(t.TempDir(), "240309_1405")
	log := zaptest.NewLogger(t).Sugar()

	var finals []string
	for _, id := range []string{"a", "b", "c"} {
		s, err := Begin(target, id, log)
		require.NoError(t, err)
		final, _, err := s.Commit(&Manifest{RunID: id})
		require.NoError(t, err)
		finals = append(finals, final)
	}
	assert.Equal(t, []string{target, target + "_2", target + "_3"}, finals)
}

func TestStageAbort(t *testing.T) {
	target := filepath.Join(t.TempDir(), "240309_1405")
	s, err := Begin(target, "x", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path("half.csv"), []byte("a"), 0644))

	s.Abort()
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err))

	_, _, err = s.Commit(&Manifest{})
	assert.Error(t, err)
}
