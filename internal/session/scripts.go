package session

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/scripts"
	ws "github.com/windschord/claude-work/pkg/websocket"
)

// RunScript runs one of the project's run scripts in the session worktree
// and waits for it. Output lines are also streamed to the session sockets as
// assistant output of type "script_output". A session runs one script at a
// time.
func (o *Orchestrator) RunScript(ctx context.Context, sessionID string, scriptID int64) (*scripts.Result, error) {
	sess, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.WorktreePath == nil {
		return nil, apperrors.BadRequest("session has no worktree")
	}
	script, err := o.repo.GetRunScript(ctx, sess.ProjectID, scriptID)
	if err != nil {
		return nil, err
	}

	runner := o.runnerFor(sessionID)
	log := o.logger.WithSessionID(sessionID)
	log.Info("running script", zap.String("script", script.Name))

	onLine := func(line string) {
		o.sessions.Broadcast(sessionID, scriptOutput(script.Name, line))
	}
	res, err := runner.Run(ctx, *sess.WorktreePath, script.Command, 0, onLine)
	if err != nil {
		return nil, err
	}
	log.Info("script finished",
		zap.String("script", script.Name),
		zap.Int("exit_code", res.ExitCode),
		zap.Float64("seconds", res.ExecutionTime))
	return res, nil
}

func (o *Orchestrator) runnerFor(sessionID string) *scripts.Runner {
	if r, ok := o.runners.Get(sessionID); ok {
		return r
	}
	r, _ := o.runners.GetOrInsert(sessionID, scripts.NewRunner(o.opts.ScriptTimeout, o.opts.ScriptKillGrace, o.logger))
	return r
}

func scriptOutput(script, line string) *ws.Message {
	return ws.NewAssistantOutput(map[string]any{
		"type":    "script_output",
		"script":  script,
		"content": line,
	})
}
