// Package stopfile implements cooperative run cancellation through a marker
// file. Creating .mender/signals/stop in the project tells an active run to
// abort at the next step boundary, so an operator can stop a run without
// killing the process.
package stopfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// SignalDir is the directory watched for stop markers, relative to the
// project root.
const SignalDir = ".mender/signals"

// MarkerName is the stop marker's file name inside SignalDir.
const MarkerName = "stop"

// Watcher observes the project's signal directory and reports whether a stop
// has been requested. It satisfies the loop's stop check.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	stopped atomic.Bool
	done    chan struct{}
}

// Watch creates the signal directory if needed and starts watching it. A
// marker already on disk counts as a stop request.
func Watch(projectRoot string) (*Watcher, error) {
	dir := filepath.Join(projectRoot, SignalDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create signal dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:    filepath.Join(dir, MarkerName),
		watcher: fw,
		done:    make(chan struct{}),
	}
	if _, err := os.Stat(w.path); err == nil {
		w.stopped.Store(true)
	}
	go w.run()
	return w, nil
}

// ShouldStop reports whether the stop marker has been observed. It stays
// true once set even if the marker is later removed; clearing is ClearMarker
// before the next run.
func (w *Watcher) ShouldStop() bool {
	return w.stopped.Load()
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
		return w.watcher.Close()
	}
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.stopped.Store(true)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Fall back to polling the marker directly; a missed event
			// must not wedge the run in an unstoppable state.
			if _, err := os.Stat(w.path); err == nil {
				w.stopped.Store(true)
			}
		}
	}
}

// RequestStop writes the stop marker for the given project.
func RequestStop(projectRoot string) error {
	dir := filepath.Join(projectRoot, SignalDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create signal dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MarkerName), []byte("stop\n"), 0o644); err != nil {
		return fmt.Errorf("write stop marker: %w", err)
	}
	return nil
}

// ClearMarker removes a leftover stop marker so a new run can start clean.
func ClearMarker(projectRoot string) error {
	err := os.Remove(filepath.Join(projectRoot, SignalDir, MarkerName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear stop marker: %w", err)
	}
	return nil
}
