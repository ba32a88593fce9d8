package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestArtifactWatcherSeesCrashArtifacts(t *testing.T) {
	dir := t.TempDir()
	w, err := newArtifactWatcher(dir, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run(ctx)
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "crash-deadbeef"), []byte("input"), 0o644))
	require.Eventually(t, func() bool {
		return w.Stats().ArtifactsSeen == 1
	}, 2*time.Second, 10*time.Millisecond, "crash artifact was not observed")

	// Unrelated files in the artifact directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "timeout-cafe"), []byte("y"), 0o644))
	require.Eventually(t, func() bool {
		return w.Stats().ArtifactsSeen == 2
	}, 2*time.Second, 10*time.Millisecond, "timeout artifact was not observed")
	require.Equal(t, filepath.Join(dir, "timeout-cafe"), w.Stats().LastPath)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestArtifactWatcherRejectsMissingDir(t *testing.T) {
	_, err := newArtifactWatcher(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	require.Error(t, err)
}

func TestIsArtifact(t *testing.T) {
	for name, want := range map[string]bool{
		"crash-0123":      true,
		"oom-ffff":        true,
		"timeout-1":       true,
		"slow-unit-2":     true,
		"leak-3":          true,
		"seed-abc":        false,
		"README":          false,
		"crashcourse.txt": false,
	} {
		if got := isArtifact(name); got != want {
			t.Errorf("isArtifact(%q) = %v, want %v", name, got, want)
		}
	}
}
