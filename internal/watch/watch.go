// Package watch reports changes to the files a theme was built from.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Loop waits for more changes before
// rebuilding.
const DefaultDebounce = 200 * time.Millisecond

// Change is a write to a tracked file.
type Change struct {
	// File is the absolute path that changed.
	File string
	Op   fsnotify.Op
	// Themes lists the themes built from File.
	Themes []string
}

// Watcher watches the source files of themes.
//
// Directories are watched rather than files, so that editors replacing a
// file through a rename keep triggering events.
type Watcher struct {
	mu sync.RWMutex

	fsWatcher *fsnotify.Watcher

	// files maps a source file to the themes built from it.
	files map[string]map[string]bool
	// themeFiles is the reverse of files.
	themeFiles map[string][]string
	// dirs counts the tracked files per watched directory.
	dirs map[string]int

	// Changes receives one value per write to a tracked file.
	Changes chan Change
	// Errors receives watcher errors.
	Errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Watcher.
func New() (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	w := &Watcher{
		fsWatcher:  fsWatcher,
		files:      make(map[string]map[string]bool),
		themeFiles: make(map[string][]string),
		dirs:       make(map[string]int),
		Changes:    make(chan Change, 100),
		Errors:     make(chan error, 10),
		done:       make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Track replaces the set of files theme is built from.
func (w *Watcher) Track(theme string, files []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.untrackLocked(theme)

	var tracked []string
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("getting absolute path: %w", err)
		}
		if slices.Contains(tracked, abs) {
			continue
		}
		dir := filepath.Dir(abs)
		if w.dirs[dir] == 0 {
			if err := w.fsWatcher.Add(dir); err != nil {
				return fmt.Errorf("watching %s: %w", dir, err)
			}
		}
		w.dirs[dir]++
		if w.files[abs] == nil {
			w.files[abs] = make(map[string]bool)
		}
		w.files[abs][theme] = true
		tracked = append(tracked, abs)
	}
	w.themeFiles[theme] = tracked
	return nil
}

// Untrack stops watching the files of theme.
func (w *Watcher) Untrack(theme string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.untrackLocked(theme)
}

func (w *Watcher) untrackLocked(theme string) {
	for _, f := range w.themeFiles[theme] {
		delete(w.files[f], theme)
		if len(w.files[f]) == 0 {
			delete(w.files, f)
		}
		dir := filepath.Dir(f)
		w.dirs[dir]--
		if w.dirs[dir] <= 0 {
			delete(w.dirs, dir)
			_ = w.fsWatcher.Remove(dir)
		}
	}
	delete(w.themeFiles, theme)
}

// Affected returns the themes built from file, sorted.
func (w *Watcher) Affected(file string) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	abs, _ := filepath.Abs(file)
	var themes []string
	for theme := range w.files[abs] {
		themes = append(themes, theme)
	}
	slices.Sort(themes)
	return themes
}

// WatchedFiles returns every tracked file, sorted.
func (w *Watcher) WatchedFiles() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	slices.Sort(files)
	return files
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if themes := w.Affected(event.Name); len(themes) > 0 {
				select {
				case w.Changes <- Change{File: event.Name, Op: event.Op, Themes: themes}:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
			}
		}
	}
}

// Loop calls rebuild with the affected themes after each burst of changes,
// until ctx is done. Changes arriving within debounce of each other are
// batched into one call.
func Loop(ctx context.Context, w *Watcher, debounce time.Duration, rebuild func(ctx context.Context, themes []string), onError func(error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case c := <-w.Changes:
			for _, theme := range c.Themes {
				pending[theme] = true
			}
			timer.Reset(debounce)

		case <-timer.C:
			themes := make([]string, 0, len(pending))
			for theme := range pending {
				themes = append(themes, theme)
			}
			clear(pending)
			slices.Sort(themes)
			if len(themes) > 0 {
				rebuild(ctx, themes)
			}

		case err := <-w.Errors:
			if onError != nil {
				onError(err)
			}
		}
	}
}
