// Package watch recompares two inputs whenever they change on disk.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"imgdiff/internal/fsutil"
	"imgdiff/internal/pipeline"
)

// Watcher monitors either two files or two directories. File mode watches
// the parents and recompares the pair on any change to one of them.
// Directory mode pairs files by basename across the two trees and
// recompares a pair when either side changes.
type Watcher struct {
	left    string
	right   string
	dirMode bool

	debounce time.Duration
	pipe     *pipeline.Pipeline
	request  pipeline.Request
	log      *slog.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New builds a watcher for two files or two directories. Mixed arguments
// are rejected; resolve a file-against-directory pair before calling.
func New(left, right string, debounce time.Duration, pipe *pipeline.Pipeline, req pipeline.Request, logger *slog.Logger) (*Watcher, error) {
	left, err := filepath.Abs(left)
	if err != nil {
		return nil, err
	}
	right, err = filepath.Abs(right)
	if err != nil {
		return nil, err
	}

	leftDir, err := isDir(left)
	if err != nil {
		return nil, err
	}
	rightDir, err := isDir(right)
	if err != nil {
		return nil, err
	}
	if leftDir != rightDir {
		return nil, fmt.Errorf("watch needs two files or two directories, got %s and %s", left, right)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		left:     left,
		right:    right,
		dirMode:  leftDir,
		debounce: debounce,
		pipe:     pipe,
		request:  req,
		log:      logger,
		fsw:      fsw,
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Start adds the watch points and begins dispatching. In directory mode it
// first queues a comparison for every basename present on both sides.
func (w *Watcher) Start() error {
	for _, dir := range w.watchDirs() {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.log.Info("watching directory", "dir", dir)
	}

	if w.dirMode {
		w.initialSweep()
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop halts event processing and cancels pending debounce timers. Stop the
// watcher before stopping the pipeline it submits to.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) watchDirs() []string {
	if w.dirMode {
		if w.left == w.right {
			return []string{w.left}
		}
		return []string{w.left, w.right}
	}
	ld, rd := filepath.Dir(w.left), filepath.Dir(w.right)
	if ld == rd {
		return []string{ld}
	}
	return []string{ld, rd}
}

func (w *Watcher) initialSweep() {
	files, err := fsutil.ListImages(w.left)
	if err != nil {
		w.log.Error("initial scan failed", "dir", w.left, "error", err)
		return
	}
	queued := 0
	for _, f := range files {
		base := filepath.Base(f)
		if fsutil.FileExists(filepath.Join(w.right, base)) {
			w.fire(base)
			queued++
		}
	}
	w.log.Info("initial scan complete", "images", len(files), "pairs", queued)
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.handle(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("filesystem watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(name string) {
	name = filepath.Clean(name)
	if w.dirMode {
		if !fsutil.IsImageFile(name) {
			return
		}
		w.schedule(filepath.Base(name))
		return
	}
	if name == w.left || name == w.right {
		w.schedule("")
	}
}

// schedule (re)arms the debounce timer for one pair so rapid write bursts
// collapse into a single comparison.
func (w *Watcher) schedule(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[key]; ok {
		t.Stop()
	}
	w.timers[key] = time.AfterFunc(w.debounce, func() { w.fire(key) })
}

func (w *Watcher) fire(key string) {
	select {
	case <-w.done:
		return
	default:
	}

	left, right := w.left, w.right
	if w.dirMode {
		left = filepath.Join(w.left, key)
		right = filepath.Join(w.right, key)
	}
	if !fsutil.FileExists(left) || !fsutil.FileExists(right) {
		w.log.Warn("skipping recompare, input missing", "left", left, "right", right)
		return
	}

	job := pipeline.Job{
		ID:      pipeline.NewID("watch"),
		Left:    left,
		Right:   right,
		Request: w.request,
	}
	if err := w.pipe.Submit(job); err != nil {
		w.log.Warn("recompare not queued", "error", err)
		return
	}
	w.log.Info("change detected, comparison queued", "id", job.ID, "left", left, "right", right)
}

func isDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
