// Package watch keeps the documents of a directory tree in sync with the
// ingest pipeline: supported files are uploaded, re-ingested when their
// content changes and deleted when they disappear.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/ragctx/internal/logger"
)

// DefaultDebounce is how long a path must stay quiet before its change is emitted.
const DefaultDebounce = 300 * time.Millisecond

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("watcher closed")

// supportedExtensions are the plain-text formats ingested from disk.
var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// ChangeType is the kind of change observed for a file.
type ChangeType int

// Change kinds.
const (
	// ChangeUpserted means the file was created or written.
	ChangeUpserted ChangeType = iota + 1
	// ChangeDeleted means the file was removed or renamed away.
	ChangeDeleted
)

// String returns the change kind name.
func (t ChangeType) String() string {
	switch t {
	case ChangeUpserted:
		return "upserted"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is a debounced file change.
type Change struct {
	Type ChangeType
	Path string
}

// Supported reports whether path has an extension ragctx ingests.
func Supported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// Scan returns the supported files under root, skipping hidden directories.
func Scan(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return files, nil
}

// Watcher emits debounced changes of supported files under a root directory.
type Watcher struct {
	root     string
	debounce time.Duration

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
}

// New creates a watcher for root. A non-positive debounce selects DefaultDebounce.
func New(root string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: root, debounce: debounce}
}

// Watch starts watching and returns the change channel. The channel is
// closed when ctx is cancelled or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) (<-chan Change, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}

	info, err := os.Stat(w.root)
	if err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path error: %s is not a directory", w.root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := addTree(fw, w.root); err != nil {
		fw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	out := make(chan Change)
	go w.loop(ctx, fw, out)
	return out, nil
}

// Close stops the watcher. It is idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, out chan<- Change) {
	defer close(out)
	defer fw.Close()

	type pendingChange struct {
		typ  ChangeType
		seen time.Time
	}
	pending := make(map[string]pendingChange)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			for path, typ := range w.classify(fw, ev) {
				pending[path] = pendingChange{typ: typ, seen: time.Now()}
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logger.Warn("watch %s: %v", w.root, err)

		case now := <-ticker.C:
			for path, p := range pending {
				if now.Sub(p.seen) < w.debounce {
					continue
				}
				select {
				case out <- Change{Type: p.typ, Path: path}:
				case <-ctx.Done():
					return
				}
				delete(pending, path)
			}
		}
	}
}

// classify turns one fsnotify event into per-file changes. A created
// directory is added to the watch and its existing files are reported.
func (w *Watcher) classify(fw *fsnotify.Watcher, ev fsnotify.Event) map[string]ChangeType {
	changes := make(map[string]ChangeType)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") {
				return changes
			}
			if err := addTree(fw, ev.Name); err != nil {
				logger.Warn("watch %s: %v", ev.Name, err)
			}
			files, err := Scan(ev.Name)
			if err != nil {
				logger.Warn("watch %s: %v", ev.Name, err)
			}
			for _, f := range files {
				changes[f] = ChangeUpserted
			}
			return changes
		}
	}

	if !Supported(ev.Name) {
		return changes
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		changes[ev.Name] = ChangeDeleted
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		changes[ev.Name] = ChangeUpserted
	}
	return changes
}

// addTree adds root and every non-hidden subdirectory to fw.
func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
