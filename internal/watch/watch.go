// Package watch submits photos dropped into a capture folder for analysis.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/wecanfarm/wecanfarm/internal/app"
	"github.com/wecanfarm/wecanfarm/internal/imaging"
)

// DefaultSettle is how long a file must go without writes before it is
// analyzed, so half-copied photos are not uploaded.
const DefaultSettle = 500 * time.Millisecond

// Analyzer is the part of app.App the watcher needs.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, path string) (app.Outcome, error)
}

// Result is reported once per analyzed file.
type Result struct {
	Path    string
	Outcome app.Outcome
	Err     error
}

// Watcher feeds new image files under Dir to an Analyzer, one at a time.
type Watcher struct {
	Dir      string
	Analyzer Analyzer
	OnResult func(Result)
	Settle   time.Duration
	Log      zerolog.Logger
}

// Run watches Dir and its subdirectories until ctx is cancelled. Files are
// analyzed sequentially in the order they settle; a file is analyzed again
// only if its modification time changes.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := filepath.WalkDir(w.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		return err
	}

	settle := w.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	pending := make(map[string]time.Time) // path -> last event
	done := make(map[string]time.Time)    // path -> mtime when analyzed

	w.Log.Info().Str("dir", w.Dir).Msg("watching for captures")
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
					continue
				}
			}
			if imaging.IsCandidate(event.Name) {
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn().Err(err).Msg("watcher error")

		case now := <-ticker.C:
			for _, path := range settled(pending, now, settle) {
				delete(pending, path)
				info, err := os.Stat(path)
				if err != nil || info.IsDir() {
					continue
				}
				if t, ok := done[path]; ok && t.Equal(info.ModTime()) {
					continue
				}
				done[path] = info.ModTime()
				w.analyze(ctx, path)
				if ctx.Err() != nil {
					return nil
				}
			}
		}
	}
}

func (w *Watcher) analyze(ctx context.Context, path string) {
	w.Log.Debug().Str("path", path).Msg("analyzing capture")
	out, err := w.Analyzer.AnalyzeFile(ctx, path)
	if err != nil {
		w.Log.Warn().Err(err).Str("path", path).Msg("capture analysis failed")
	}
	if w.OnResult != nil {
		w.OnResult(Result{Path: path, Outcome: out, Err: err})
	}
}

// settled returns the pending paths quiet for at least settle, oldest first.
func settled(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	var ready []string
	for path, last := range pending {
		if now.Sub(last) >= settle {
			ready = append(ready, path)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		return pending[ready[i]].Before(pending[ready[j]])
	})
	return ready
}
