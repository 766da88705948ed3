package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/windschord/claude-work/internal/worktree"
	ws "github.com/windschord/claude-work/pkg/websocket"
)

type watchRef struct {
	watcher *worktree.Watcher
	name    string
}

// WatchSession pushes the current git status of the session worktree to the
// session sockets, then keeps pushing it whenever the worktree changes.
// It does nothing when watching is disabled.
func (o *Orchestrator) WatchSession(ctx context.Context, sessionID string) error {
	if !o.opts.WatchEnabled {
		return nil
	}
	svc, sess, err := o.Worktree(ctx, sessionID)
	if err != nil {
		return err
	}

	if status, err := svc.GetGitStatus(ctx, sess.Name); err == nil {
		o.broadcastGitStatus(sessionID, status)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.watched[sessionID]; ok {
		return nil
	}
	w, ok := o.watchers[svc.RepoPath()]
	if !ok {
		w = worktree.NewWatcher(svc, o.opts.WatchDebounce, o.logger)
		o.watchers[svc.RepoPath()] = w
	}
	err = w.Watch(sess.Name, func(_ string, status *worktree.GitStatus) {
		o.broadcastGitStatus(sessionID, status)
	})
	if err != nil {
		return err
	}
	o.watched[sessionID] = watchRef{watcher: w, name: sess.Name}
	return nil
}

// UnwatchSession stops the git status pushes of a session.
func (o *Orchestrator) UnwatchSession(sessionID string) {
	o.mu.Lock()
	ref, ok := o.watched[sessionID]
	delete(o.watched, sessionID)
	o.mu.Unlock()
	if ok {
		ref.watcher.Unwatch(ref.name)
		o.logger.WithSessionID(sessionID).Debug("git status watch stopped")
	}
}

// refreshGitStatus pushes the git status of a watched session now.
func (o *Orchestrator) refreshGitStatus(sessionID string) {
	o.mu.Lock()
	_, ok := o.watched[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}
	ctx := context.Background()
	svc, sess, err := o.Worktree(ctx, sessionID)
	if err != nil {
		return
	}
	status, err := svc.GetGitStatus(ctx, sess.Name)
	if err != nil {
		o.logger.WithSessionID(sessionID).Debug("git status refresh failed", zap.Error(err))
		return
	}
	o.broadcastGitStatus(sessionID, status)
}

func (o *Orchestrator) broadcastGitStatus(sessionID string, status *worktree.GitStatus) {
	n := o.sessions.Broadcast(sessionID, ws.NewGitStatus(status.HasUncommittedChanges, status.ChangedFilesCount))
	o.logger.WithSessionID(sessionID).Debug("git status pushed",
		zap.Bool("dirty", status.HasUncommittedChanges),
		zap.Int("delivered", n))
}
