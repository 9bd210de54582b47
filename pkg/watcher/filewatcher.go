// Package watcher collects the paths of files that changed under a set of
// watched roots.
package watcher

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultIgnore skips dotfiles, dot directories and editor backups.
var DefaultIgnore = []string{"**/.*", "**/.*/**", "**/*~", "**/*.swp"}

// Root is one watched path.
type Root struct {
	Path      string
	Recursive bool
}

// PathError reports a root that is not an absolute path.
type PathError struct {
	Path string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("reload path %q must be an absolute path", e.Path)
}

// Options tune which events mark a path dirty.
type Options struct {
	// IncludeRemove also marks deleted files dirty.
	IncludeRemove bool
	// Ignore lists doublestar patterns matched against the path relative
	// to its root. Nil means DefaultIgnore.
	Ignore []string
	// Debounce delays marking a path until it has been quiet this long.
	Debounce time.Duration
}

// FileWatcher accumulates changed file paths until they are drained.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	roots   []Root
	opts    Options

	mu    sync.Mutex
	dirty map[string]struct{}

	dirsMu sync.Mutex
	dirs   map[string]bool

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	stopChan chan struct{}
	done     chan struct{}
}

// NewFileWatcher subscribes to every root and starts delivering events.
// Every root must be absolute.
func NewFileWatcher(roots []Root, opts Options) (*FileWatcher, error) {
	for _, r := range roots {
		if !filepath.IsAbs(r.Path) {
			return nil, &PathError{Path: r.Path}
		}
	}
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnore
	}
	for _, pat := range opts.Ignore {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pat)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:        watcher,
		roots:          slices.Clone(roots),
		opts:           opts,
		dirty:          make(map[string]struct{}),
		dirs:           make(map[string]bool),
		debounceTimers: make(map[string]*time.Timer),
		stopChan:       make(chan struct{}),
		done:           make(chan struct{}),
	}

	for _, r := range fw.roots {
		path := filepath.Clean(r.Path)
		if r.Recursive {
			err = fw.addRecursive(path)
		} else {
			err = fw.add(path, false)
		}
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	go fw.watchLoop()
	log.Printf("File watcher started on %d root(s)", len(fw.roots))
	return fw, nil
}

// Drain returns the paths marked dirty since the previous call and starts a
// new, empty set.
func (fw *FileWatcher) Drain() []string {
	fw.mu.Lock()
	dirty := fw.dirty
	fw.dirty = make(map[string]struct{})
	fw.mu.Unlock()

	paths := make([]string, 0, len(dirty))
	for p := range dirty {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Close stops the watcher.
func (fw *FileWatcher) Close() error {
	select {
	case <-fw.stopChan:
		return nil
	default:
	}
	close(fw.stopChan)
	err := fw.watcher.Close()
	<-fw.done

	fw.debounceMu.Lock()
	for path, timer := range fw.debounceTimers {
		timer.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()

	log.Println("File watcher stopped")
	return err
}

func (fw *FileWatcher) watchLoop() {
	defer close(fw.done)
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("File watcher error: %v", err)

		case <-fw.stopChan:
			return
		}
	}
}

func (fw *FileWatcher) wanted(op fsnotify.Op) bool {
	mask := fsnotify.Create | fsnotify.Write | fsnotify.Rename
	if fw.opts.IncludeRemove {
		mask |= fsnotify.Remove
	}
	return op&mask != 0
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if !fw.wanted(event.Op) {
		return
	}
	path := filepath.Clean(event.Name)
	if fw.ignored(path) {
		return
	}

	if fw.isWatchedDir(path) {
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			fw.dirsMu.Lock()
			delete(fw.dirs, path)
			fw.dirsMu.Unlock()
		}
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if fw.parentRecursive(path) {
				if err := fw.addRecursive(path); err != nil {
					log.Printf("Warning: could not watch %s: %v", path, err)
				}
			}
			return
		}
	}

	if fw.opts.Debounce <= 0 {
		fw.mark(path)
		return
	}

	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, exists := fw.debounceTimers[path]; exists {
		timer.Stop()
	}
	fw.debounceTimers[path] = time.AfterFunc(fw.opts.Debounce, func() {
		fw.mark(path)
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()
	})
}

func (fw *FileWatcher) mark(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.dirty[path] = struct{}{}
}

// ignored matches path, relative to the root containing it, against the
// ignore patterns.
func (fw *FileWatcher) ignored(path string) bool {
	for _, r := range fw.roots {
		rel, err := filepath.Rel(filepath.Clean(r.Path), path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		normalized := filepath.ToSlash(rel)
		for _, pat := range fw.opts.Ignore {
			if matched, matchErr := doublestar.Match(pat, normalized); matchErr == nil && matched {
				return true
			}
		}
		return false
	}
	return false
}

func (fw *FileWatcher) isWatchedDir(path string) bool {
	fw.dirsMu.Lock()
	defer fw.dirsMu.Unlock()
	_, ok := fw.dirs[path]
	return ok
}

func (fw *FileWatcher) parentRecursive(path string) bool {
	fw.dirsMu.Lock()
	defer fw.dirsMu.Unlock()
	return fw.dirs[filepath.Dir(path)]
}

func (fw *FileWatcher) add(path string, recursive bool) error {
	if err := fw.watcher.Add(path); err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		fw.dirsMu.Lock()
		fw.dirs[path] = recursive
		fw.dirsMu.Unlock()
	}
	return nil
}

func (fw *FileWatcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && fw.ignored(path) {
			return filepath.SkipDir
		}
		if addErr := fw.add(path, true); addErr != nil {
			if path == root {
				return addErr
			}
			log.Printf("Warning: could not watch %s: %v", path, addErr)
		}
		return nil
	})
}
