package coordinator

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"codescope/internal/hashing"
	"codescope/internal/logging"
	"codescope/internal/parser"
)

// Watcher observes a repository root and marks the repository stale
// when indexed content changes on disk. Events are debounced so a
// burst of writes (editor save, git checkout) collapses into one
// staleness check per file.
type Watcher struct {
	coord    *Coordinator
	repoID   string
	root     string
	debounce time.Duration
	logger   *logging.Logger

	fsw  *fsnotify.Watcher
	mu   sync.Mutex
	dirs map[string]struct{}

	pendingMu sync.Mutex
	pending   map[string]struct{}
	timer     *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher starts watching the repository rooted at root.
func NewWatcher(coord *Coordinator, repoID, root string, debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w := &Watcher{
		coord:    coord,
		repoID:   repoID,
		root:     root,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
		dirs:     make(map[string]struct{}),
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return err
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Races with deletions are expected
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir {
			if _, skip := skippedDirs[name]; skip {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if _, ok := w.dirs[path]; ok {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return nil
		}
		w.dirs[path] = struct{}{}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", map[string]interface{}{
				"repository": w.repoID,
				"error":      err.Error(),
			})
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if _, ok := parser.LanguageFromExtension(filepath.Ext(event.Name)); !ok {
		return
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	w.enqueue(filepath.ToSlash(rel))
}

func (w *Watcher) enqueue(rel string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.pending[rel] = struct{}{}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	} else {
		w.timer.Reset(w.debounce)
	}
}

// flush re-hashes each debounced path and reports real content changes.
// A deleted file hashes as changed; a rewrite with identical bytes does
// not mark the repository stale.
func (w *Watcher) flush() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	w.pendingMu.Unlock()

	for _, rel := range paths {
		content, err := os.ReadFile(filepath.Join(w.root, filepath.FromSlash(rel)))
		if err != nil {
			w.coord.MarkFileChanged(w.repoID, rel, "")
			continue
		}
		w.coord.MarkFileChanged(w.repoID, rel, hashing.ContentHash(content))
	}
}
