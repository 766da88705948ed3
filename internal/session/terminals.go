package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/windschord/claude-work/internal/terminal"
	ws "github.com/windschord/claude-work/pkg/websocket"
)

// AttachTerminal returns the live terminal of a session, starting a shell in
// the session worktree when there is none or the previous one exited. Every
// successful attach must be paired with one ReleaseTerminal.
func (o *Orchestrator) AttachTerminal(ctx context.Context, sessionID string) (*terminal.Supervisor, error) {
	svc, sess, err := o.Worktree(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	o.termMu.Lock()
	defer o.termMu.Unlock()

	if sh, ok := o.shells.Get(sessionID); ok {
		if sh.IsAlive() {
			o.attached[sessionID]++
			return sh, nil
		}
		o.shells.RemoveIf(sessionID, sh)
	}

	workDir := svc.WorktreePath(sess.Name)
	if sess.WorktreePath != nil {
		workDir = *sess.WorktreePath
	}
	sh := terminal.NewSupervisor(workDir, o.pool, o.opts.Terminal, o.logger.WithSessionID(sessionID))
	if err := sh.Start(ctx); err != nil {
		return nil, err
	}
	o.shells.Insert(sessionID, sh)
	o.attached[sessionID]++

	o.wg.Add(1)
	go o.pumpTerminal(sessionID, sh)
	return sh, nil
}

// ReleaseTerminal drops one attachment. The terminal is stopped when the
// last one is released.
func (o *Orchestrator) ReleaseTerminal(ctx context.Context, sessionID string) {
	o.termMu.Lock()
	if n := o.attached[sessionID]; n > 1 {
		o.attached[sessionID] = n - 1
		o.termMu.Unlock()
		return
	}
	delete(o.attached, sessionID)
	sh, ok := o.shells.Remove(sessionID)
	o.termMu.Unlock()
	if !ok {
		return
	}
	if err := sh.Stop(ctx, 0); err != nil {
		o.logger.WithSessionID(sessionID).Warn("failed to stop terminal", zap.Error(err))
	}
	o.logger.WithSessionID(sessionID).Info("terminal released")
}

func (o *Orchestrator) stopTerminal(ctx context.Context, sessionID string) {
	o.termMu.Lock()
	delete(o.attached, sessionID)
	sh, ok := o.shells.Remove(sessionID)
	o.termMu.Unlock()
	if ok {
		_ = sh.Stop(ctx, 0)
	}
}

// pumpTerminal forwards shell output to the terminal sockets and announces
// the exit code once the shell is gone.
func (o *Orchestrator) pumpTerminal(sessionID string, sh *terminal.Supervisor) {
	defer o.wg.Done()
	for chunk := range sh.Output() {
		o.terminals.Broadcast(sessionID, ws.NewOutput(chunk))
	}
	<-sh.Done()
	o.terminals.Broadcast(sessionID, ws.NewExit(sh.ExitCode()))
}
