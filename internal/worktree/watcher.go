package worktree

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/windschord/claude-work/internal/common/logger"
)

// StatusFunc receives the git status of a watched worktree after a burst of
// file changes has settled.
type StatusFunc func(sessionName string, status *GitStatus)

const defaultWatchDebounce = 300 * time.Millisecond

// Watcher pushes git status updates for worktrees that someone is looking at.
// Each watched worktree gets its own fsnotify watcher on the root and the
// top-level directories (.git excluded).
type Watcher struct {
	svc      *Service
	debounce time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	fs     *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a Watcher. A non-positive debounce uses 300ms.
func NewWatcher(svc *Service, debounce time.Duration, log *logger.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	return &Watcher{
		svc:      svc,
		debounce: debounce,
		logger:   log.WithFields(zap.String("component", "worktree-watcher")),
		watches:  make(map[string]*watch),
	}
}

// Watch starts watching the worktree of sessionName. Watching an already
// watched session is a no-op.
func (w *Watcher) Watch(sessionName string, onStatus StatusFunc) error {
	root, err := w.svc.existingWorktree(sessionName)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watches[sessionName]; ok {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addTopLevel(fsw, root); err != nil {
		_ = fsw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	wa := &watch{fs: fsw, cancel: cancel, done: make(chan struct{})}
	w.watches[sessionName] = wa

	go w.loop(ctx, wa, sessionName, root, onStatus)

	w.logger.Debug("watching worktree", zap.String("session", sessionName), zap.String("path", root))
	return nil
}

// Unwatch stops watching sessionName and waits for its loop to exit.
func (w *Watcher) Unwatch(sessionName string) {
	w.mu.Lock()
	wa, ok := w.watches[sessionName]
	delete(w.watches, sessionName)
	w.mu.Unlock()
	if !ok {
		return
	}
	wa.stop()
}

// Close stops every watch.
func (w *Watcher) Close() {
	w.mu.Lock()
	all := w.watches
	w.watches = make(map[string]*watch)
	w.mu.Unlock()
	for _, wa := range all {
		wa.stop()
	}
}

// Watching reports whether sessionName is currently watched.
func (w *Watcher) Watching(sessionName string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watches[sessionName]
	return ok
}

func (wa *watch) stop() {
	wa.cancel()
	_ = wa.fs.Close()
	<-wa.done
}

func (w *Watcher) loop(ctx context.Context, wa *watch, sessionName, root string, onStatus StatusFunc) {
	defer close(wa.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-wa.fs.Events:
			if !ok {
				return
			}
			// Permission changes do not alter content and git touches them a lot.
			if event.Op == fsnotify.Chmod || isGitPath(root, event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == root {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := wa.fs.Add(event.Name); err != nil {
						w.logger.Debug("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			status, err := w.statusFor(ctx, root)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Debug("git status after change failed", zap.String("session", sessionName), zap.Error(err))
				}
				continue
			}
			onStatus(sessionName, status)

		case err, ok := <-wa.fs.Errors:
			if !ok {
				return
			}
			w.logger.Debug("filesystem watcher error", zap.String("session", sessionName), zap.Error(err))
		}
	}
}

func (w *Watcher) statusFor(ctx context.Context, root string) (*GitStatus, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	return w.svc.statusAt(ctx, root)
}

func addTopLevel(fsw *fsnotify.Watcher, root string) error {
	if err := fsw.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == ".git" {
			continue
		}
		if err := fsw.Add(filepath.Join(root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func isGitPath(root, name string) bool {
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return false
	}
	return rel == ".git" || filepath.Dir(rel) == ".git"
}
