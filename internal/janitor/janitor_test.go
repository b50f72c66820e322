package janitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/trackfetch/api-go/internal/blob"
)

func TestSweepRemovesExpiredArtifacts(t *testing.T) {
	fsys := blob.LocalFS{Root: t.TempDir()}
	now := time.Now()

	dir, err := fsys.JobDir("job-1")
	require.NoError(t, err)
	old := filepath.Join(dir, "old.mp3")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(old, now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	fresh := filepath.Join(dir, "fresh.mp3")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	j := New(fsys, time.Hour, nil)
	j.now = func() time.Time { return now }

	removed, err := j.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, fsys.Exists(old))
	assert.True(t, fsys.Exists(fresh))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	j := New(blob.LocalFS{Root: t.TempDir()}, time.Hour, nil)
	assert.Error(t, j.Start("not a schedule"))
}

func TestStartAndStop(t *testing.T) {
	j := New(blob.LocalFS{Root: t.TempDir()}, time.Hour, nil)
	require.NoError(t, j.Start("@every 1h"))
	select {
	case <-j.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
