package executor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// artifactPrefixes are the file name prefixes the engine uses for inputs it
// writes under -artifact_prefix when a run trips over something.
var artifactPrefixes = []string{"crash-", "oom-", "timeout-", "slow-unit-", "leak-"}

// artifactWatcher observes the artifact directory for the duration of a run
// and logs every crash artifact the engine writes, so operators see findings
// as they land rather than only in the final report.
type artifactWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	log     *zap.Logger

	mu    sync.Mutex
	stats ArtifactStats
}

// ArtifactStats tracks watcher activity for tests and debugging.
type ArtifactStats struct {
	ArtifactsSeen int
	LastPath      string
}

func newArtifactWatcher(dir string, log *zap.Logger) (*artifactWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &artifactWatcher{watcher: watcher, dir: dir, log: log}, nil
}

// run processes events until ctx is canceled. It never fails the run; the
// watcher is purely observational.
func (w *artifactWatcher) run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !isArtifact(name) {
				continue
			}
			w.mu.Lock()
			seen := w.stats.LastPath == event.Name
			if !seen {
				w.stats.ArtifactsSeen++
				w.stats.LastPath = event.Name
			}
			w.mu.Unlock()
			if !seen {
				w.log.Warn("engine wrote crash artifact", zap.String("path", event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Debug("artifact watcher error", zap.Error(err))
		}
	}
}

// Stats returns a snapshot of watcher activity.
func (w *artifactWatcher) Stats() ArtifactStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func isArtifact(name string) bool {
	for _, prefix := range artifactPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
