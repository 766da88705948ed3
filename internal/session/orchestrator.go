// Package session ties a session record to its worktree, its agent process,
// its terminal and the sockets watching it.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/windschord/claude-work/internal/agent/process"
	"github.com/windschord/claude-work/internal/common/config"
	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
	"github.com/windschord/claude-work/internal/events"
	"github.com/windschord/claude-work/internal/events/bus"
	"github.com/windschord/claude-work/internal/scripts"
	"github.com/windschord/claude-work/internal/store"
	"github.com/windschord/claude-work/internal/terminal"
	"github.com/windschord/claude-work/internal/worktree"
	ws "github.com/windschord/claude-work/pkg/websocket"
)

const defaultAgentStopTimeout = 5 * time.Second

// Repository is the persistence the orchestrator works against.
type Repository interface {
	GetProject(ctx context.Context, id string) (*store.Project, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	ListSessions(ctx context.Context, projectID string) ([]*store.Session, error)
	CreateSession(ctx context.Context, sess *store.Session) error
	UpdateSessionStatus(ctx context.Context, id string, status store.SessionStatus) error
	UpdateSessionWorktreePath(ctx context.Context, id, path string) error
	DeleteSession(ctx context.Context, id string) error
	GetRunScript(ctx context.Context, projectID string, id int64) (*store.RunScript, error)
}

// Broadcaster fans messages out to the sockets of a session.
type Broadcaster interface {
	Broadcast(sessionID string, msg *ws.Message) int
}

// Options configures the orchestrator.
type Options struct {
	Agent            process.Options
	DefaultModel     string
	ExtraArgs        []string
	AgentStopTimeout time.Duration // grace before the agent is killed, default 5s

	Worktree worktree.Options

	Terminal        terminal.Options
	TerminalWorkers int

	ScriptTimeout   time.Duration
	ScriptKillGrace time.Duration

	WatchEnabled  bool
	WatchDebounce time.Duration
}

// OptionsFromConfig maps the server configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Agent: process.Options{
			Binary:      cfg.Agent.Binary,
			EventBuffer: cfg.Agent.EventBuffer,
		},
		DefaultModel: cfg.Agent.DefaultModel,
		ExtraArgs:    cfg.Agent.ExtraArgs,
		Worktree: worktree.Options{
			WorktreeDir:   cfg.Git.WorktreeDir,
			DefaultBranch: cfg.Git.DefaultBranch,
			BranchPrefix:  cfg.Git.BranchPrefix,
			Timeout:       cfg.Git.TimeoutDuration(),
		},
		Terminal: terminal.Options{
			Shell:     cfg.Terminal.Shell,
			Cols:      cfg.Terminal.Cols,
			Rows:      cfg.Terminal.Rows,
			StopGrace: cfg.Terminal.StopGraceDuration(),
		},
		TerminalWorkers: cfg.Terminal.Workers,
		ScriptTimeout:   cfg.Scripts.TimeoutDuration(),
		ScriptKillGrace: cfg.Scripts.KillGraceDuration(),
		WatchEnabled:    cfg.Watcher.Enabled,
		WatchDebounce:   cfg.Watcher.Debounce(),
	}
}

// Orchestrator drives the session lifecycle. Live agents, terminals and
// script runners are kept in registries keyed by session id.
type Orchestrator struct {
	repo      Repository
	sessions  Broadcaster
	terminals Broadcaster
	eventBus  bus.EventBus
	opts      Options
	logger    *logger.Logger
	pool      *terminal.Pool

	mu        sync.Mutex
	worktrees map[string]*worktree.Service // by repository path
	watchers  map[string]*worktree.Watcher // by repository path
	watched   map[string]watchRef          // by session id

	agents  *Registry[*process.Supervisor]
	shells  *Registry[*terminal.Supervisor]
	runners *Registry[*scripts.Runner]

	// termMu serializes attach and release so a terminal is never started
	// twice or stopped while a socket still holds it.
	termMu   sync.Mutex
	attached map[string]int // live attachments by session id, under termMu

	wg sync.WaitGroup
}

// New creates an orchestrator. sessionsHub receives agent traffic and git
// status, terminalsHub terminal output. eventBus may be nil.
func New(repo Repository, sessionsHub, terminalsHub Broadcaster, eventBus bus.EventBus, opts Options, log *logger.Logger) *Orchestrator {
	if opts.AgentStopTimeout <= 0 {
		opts.AgentStopTimeout = defaultAgentStopTimeout
	}
	return &Orchestrator{
		repo:      repo,
		sessions:  sessionsHub,
		terminals: terminalsHub,
		eventBus:  eventBus,
		opts:      opts,
		logger:    log.WithFields(zap.String("component", "session-orchestrator")),
		pool:      terminal.NewPool(opts.TerminalWorkers),
		worktrees: make(map[string]*worktree.Service),
		watchers:  make(map[string]*worktree.Watcher),
		watched:   make(map[string]watchRef),
		attached:  make(map[string]int),
		agents:    NewRegistry[*process.Supervisor](),
		shells:    NewRegistry[*terminal.Supervisor](),
		runners:   NewRegistry[*scripts.Runner](),
	}
}

// CreateRequest describes a new session.
type CreateRequest struct {
	ProjectID string
	Name      string
	Prompt    string
	Model     string // empty uses the project default
}

// Create persists a session, creates its worktree and starts the agent with
// the prompt. On any failure after the record exists the session is marked
// error and the worktree, if created, is kept for inspection.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*store.Session, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.BadRequest("session name is required")
	}
	project, err := o.repo.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	model := firstNonEmpty(req.Model, project.DefaultModel, o.opts.DefaultModel)
	sess := &store.Session{
		ProjectID: project.ID,
		Name:      name,
		Status:    store.StatusInitializing,
	}
	if model != "" {
		sess.Model = &model
	}
	if err := o.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	log := o.logger.WithSessionID(sess.ID).WithProjectID(project.ID)
	log.Info("creating session", zap.String("name", name), zap.String("model", model))

	svc := o.worktreeService(project.Path)
	path, err := svc.CreateWorktree(ctx, name, svc.BranchName(name))
	if err != nil {
		return nil, o.fail(ctx, sess.ID, err)
	}
	if err := o.repo.UpdateSessionWorktreePath(ctx, sess.ID, path); err != nil {
		return nil, o.fail(ctx, sess.ID, err)
	}
	sess.WorktreePath = &path

	o.setStatus(ctx, sess.ID, store.StatusRunning)
	sess.Status = store.StatusRunning
	if err := o.startAgent(ctx, sess.ID, path, req.Prompt, model); err != nil {
		return nil, o.fail(ctx, sess.ID, err)
	}
	return sess, nil
}

// Get returns the session record.
func (o *Orchestrator) Get(ctx context.Context, sessionID string) (*store.Session, error) {
	return o.repo.GetSession(ctx, sessionID)
}

// List returns the sessions of a project. The project must exist.
func (o *Orchestrator) List(ctx context.Context, projectID string) ([]*store.Session, error) {
	if _, err := o.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return o.repo.ListSessions(ctx, projectID)
}

// Stop stops the agent if one is live and marks the session completed.
// Stopping twice is harmless.
func (o *Orchestrator) Stop(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	o.stopAgent(ctx, sessionID)
	o.setStatus(ctx, sessionID, store.StatusCompleted)
	sess.Status = store.StatusCompleted
	return sess, nil
}

// Delete stops everything the session runs, removes its worktree and branch
// when one was recorded, and deletes the record.
func (o *Orchestrator) Delete(ctx context.Context, sessionID string) error {
	sess, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	log := o.logger.WithSessionID(sessionID)

	o.stopAgent(ctx, sessionID)
	o.stopTerminal(ctx, sessionID)
	o.UnwatchSession(sessionID)
	if r, ok := o.runners.Remove(sessionID); ok {
		_ = r.Stop(ctx)
	}

	if sess.WorktreePath != nil {
		project, err := o.repo.GetProject(ctx, sess.ProjectID)
		if err != nil {
			return err
		}
		svc := o.worktreeService(project.Path)
		if err := svc.DeleteWorktree(ctx, sess.Name, svc.BranchName(sess.Name)); err != nil {
			if !apperrors.IsNotFound(err) {
				return err
			}
			log.Warn("worktree already gone", zap.String("path", *sess.WorktreePath))
		}
	}

	if err := o.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	log.Info("session deleted")
	return nil
}

// EnsureSession reports NotFound for unknown sessions.
func (o *Orchestrator) EnsureSession(ctx context.Context, sessionID string) error {
	_, err := o.repo.GetSession(ctx, sessionID)
	return err
}

// SendUserInput forwards content to the live agent. Sessions without one
// are NotRunning.
func (o *Orchestrator) SendUserInput(_ context.Context, sessionID, content string) error {
	sup, ok := o.agents.Get(sessionID)
	if !ok || !sup.IsRunning() {
		return apperrors.NotRunning("agent process")
	}
	return sup.SendInput(content)
}

// RespondPermission answers a permission request of the live agent.
func (o *Orchestrator) RespondPermission(ctx context.Context, sessionID, permissionID string, approved bool) error {
	sup, ok := o.agents.Get(sessionID)
	if !ok || !sup.IsRunning() {
		return apperrors.NotRunning("agent process")
	}
	answer := "no"
	if approved {
		answer = "yes"
	}
	o.logger.WithSessionID(sessionID).Debug("permission answered",
		zap.String("permission_id", permissionID),
		zap.Bool("approved", approved))
	return sup.SendInput(answer)
}

// Worktree returns the worktree service of the session's project along with
// the session record.
func (o *Orchestrator) Worktree(ctx context.Context, sessionID string) (*worktree.Service, *store.Session, error) {
	sess, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	project, err := o.repo.GetProject(ctx, sess.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return o.worktreeService(project.Path), sess, nil
}

// DefaultModel is the model new projects start with.
func (o *Orchestrator) DefaultModel() string { return o.opts.DefaultModel }

// ValidateRepository rejects paths that are not inside a git repository.
func (o *Orchestrator) ValidateRepository(ctx context.Context, path string) error {
	if !worktree.NewService(path, o.opts.Worktree, o.logger).IsRepository(ctx) {
		return apperrors.BadRequest("The specified path is not a valid Git repository")
	}
	return nil
}

// Shutdown stops every agent, terminal, script and watcher and waits for the
// background goroutines.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for id, sup := range o.agents.Drain() {
		o.stopSupervisor(ctx, id, sup)
	}
	for _, sh := range o.shells.Drain() {
		_ = sh.Stop(ctx, 0)
	}
	for _, r := range o.runners.Drain() {
		_ = r.Stop(ctx)
	}

	o.mu.Lock()
	watchers := o.watchers
	o.watchers = make(map[string]*worktree.Watcher)
	o.watched = make(map[string]watchRef)
	o.mu.Unlock()
	for _, w := range watchers {
		w.Close()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Warn("shutdown timed out waiting for session goroutines")
	}
}

func (o *Orchestrator) worktreeService(repoPath string) *worktree.Service {
	o.mu.Lock()
	defer o.mu.Unlock()
	svc, ok := o.worktrees[repoPath]
	if !ok {
		svc = worktree.NewService(repoPath, o.opts.Worktree, o.logger)
		o.worktrees[repoPath] = svc
	}
	return svc
}

func (o *Orchestrator) startAgent(ctx context.Context, sessionID, workDir, prompt, model string) error {
	sup := process.NewSupervisor(o.opts.Agent, o.logger.WithSessionID(sessionID))
	if !o.agents.Insert(sessionID, sup) {
		return apperrors.AlreadyRunning("agent process")
	}
	opts := process.StartOptions{Model: model, ExtraArgs: o.opts.ExtraArgs}
	if err := sup.Start(ctx, workDir, prompt, opts); err != nil {
		o.agents.RemoveIf(sessionID, sup)
		return err
	}
	o.wg.Add(1)
	go o.drainAgent(sessionID, sup)
	return nil
}

// drainAgent forwards one agent's events to the session sockets in order and
// records the final status when the agent exits on its own.
func (o *Orchestrator) drainAgent(sessionID string, sup *process.Supervisor) {
	defer o.wg.Done()

	exitCode, exited := -1, false
	for ev := range sup.Events() {
		switch ev.Type {
		case process.EventOutput:
			o.sessions.Broadcast(sessionID, ws.NewAssistantOutput(ev.Data))
		case process.EventPermission:
			id, _ := ev.Data["permission_id"].(string)
			desc, _ := ev.Data["description"].(string)
			o.sessions.Broadcast(sessionID, ws.NewPermissionRequest(id, desc))
		case process.EventExit:
			exitCode, exited = ev.ExitCode, true
		}
	}

	// Commits land under .git, which the watcher ignores.
	o.refreshGitStatus(sessionID)

	// Stop and Delete remove the entry themselves and own the status from
	// then on.
	if !o.agents.RemoveIf(sessionID, sup) {
		return
	}
	if !exited {
		exitCode = sup.ExitCode()
	}
	status := store.StatusCompleted
	if exitCode != 0 {
		status = store.StatusError
	}
	o.logger.WithSessionID(sessionID).Info("agent exited",
		zap.Int("exit_code", exitCode),
		zap.String("status", string(status)))
	o.setStatus(context.Background(), sessionID, status)
}

func (o *Orchestrator) stopAgent(ctx context.Context, sessionID string) {
	if sup, ok := o.agents.Remove(sessionID); ok {
		o.stopSupervisor(ctx, sessionID, sup)
	}
}

func (o *Orchestrator) stopSupervisor(ctx context.Context, sessionID string, sup *process.Supervisor) {
	stopCtx, cancel := context.WithTimeout(ctx, o.opts.AgentStopTimeout)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil {
		o.logger.WithSessionID(sessionID).Warn("failed to stop agent", zap.Error(err))
	}
}

// fail marks the session error and returns cause.
func (o *Orchestrator) fail(ctx context.Context, sessionID string, cause error) error {
	o.logger.WithSessionID(sessionID).Error("session failed", zap.Error(cause))
	o.setStatus(ctx, sessionID, store.StatusError)
	return cause
}

// setStatus persists status and publishes it on the event bus.
func (o *Orchestrator) setStatus(ctx context.Context, sessionID string, status store.SessionStatus) {
	if err := o.repo.UpdateSessionStatus(ctx, sessionID, status); err != nil {
		o.logger.WithSessionID(sessionID).Warn("failed to persist session status",
			zap.String("status", string(status)),
			zap.Error(err))
		if apperrors.IsNotFound(err) {
			return
		}
	}
	o.publishStatus(ctx, sessionID, status)
}

func (o *Orchestrator) publishStatus(ctx context.Context, sessionID string, status store.SessionStatus) {
	if o.eventBus == nil {
		return
	}
	event := bus.NewEvent(events.SessionStatusChanged, "session-orchestrator", map[string]interface{}{
		"session_id": sessionID,
		"status":     string(status),
	})
	if err := o.eventBus.Publish(ctx, events.SessionStatusSubject(sessionID), event); err != nil {
		o.logger.WithSessionID(sessionID).Error("failed to publish session status",
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
