// Package worktree manages one git worktree and branch per session inside a
// project repository, and runs the git operations sessions expose.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
	"github.com/windschord/claude-work/internal/common/logger"
	"github.com/windschord/claude-work/internal/tracing"
)

// Options configures a Service. Zero values fall back to the defaults.
type Options struct {
	WorktreeDir   string        // relative to the repository, default ".worktrees"
	DefaultBranch string        // default "main"
	BranchPrefix  string        // default "session/"
	Timeout       time.Duration // per git command, default 30s
}

const (
	defaultWorktreeDir    = ".worktrees"
	defaultBranch         = "main"
	defaultBranchPrefix   = "session/"
	defaultCommandTimeout = 30 * time.Second
)

// Service runs worktree and git operations against one repository root.
type Service struct {
	repoPath      string
	worktreeDir   string
	defaultBranch string
	branchPrefix  string
	timeout       time.Duration

	logger *logger.Logger
	tracer trace.Tracer

	// mu serializes operations that mutate the main checkout or the worktree
	// list (create, delete, squash merge).
	mu sync.Mutex
}

// NewService creates a Service bound to repoPath.
func NewService(repoPath string, opts Options, log *logger.Logger) *Service {
	if opts.WorktreeDir == "" {
		opts.WorktreeDir = defaultWorktreeDir
	}
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = defaultBranch
	}
	if opts.BranchPrefix == "" {
		opts.BranchPrefix = defaultBranchPrefix
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCommandTimeout
	}
	if abs, err := filepath.Abs(repoPath); err == nil {
		repoPath = abs
	}

	return &Service{
		repoPath:      repoPath,
		worktreeDir:   opts.WorktreeDir,
		defaultBranch: opts.DefaultBranch,
		branchPrefix:  opts.BranchPrefix,
		timeout:       opts.Timeout,
		logger: log.WithFields(
			zap.String("component", "worktree-service"),
			zap.String("repo", repoPath)),
		tracer: tracing.Tracer("claude-work/worktree"),
	}
}

// RepoPath returns the absolute repository root.
func (s *Service) RepoPath() string { return s.repoPath }

// IsRepository reports whether the repository root is inside a git
// repository.
func (s *Service) IsRepository(ctx context.Context) bool {
	if info, err := os.Stat(s.repoPath); err != nil || !info.IsDir() {
		return false
	}
	res, err := s.execGit(ctx, s.repoPath, "rev-parse", "--git-dir")
	return err == nil && res.ExitCode == 0
}

// WorktreePath returns <repo>/<worktreeDir>/<sessionName>.
func (s *Service) WorktreePath(sessionName string) string {
	return filepath.Join(s.repoPath, s.worktreeDir, sessionName)
}

// BranchName returns the branch used for sessionName.
func (s *Service) BranchName(sessionName string) string {
	return s.branchPrefix + sessionName
}

// CreateWorktree adds a worktree for sessionName on a new branch and returns
// its absolute path. It fails if the directory or the branch already exists.
// A failed git call leaves neither a directory nor a branch behind.
func (s *Service) CreateWorktree(ctx context.Context, sessionName, branchName string) (string, error) {
	if err := validateSessionName(sessionName); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.WorktreePath(sessionName)
	if _, err := os.Stat(path); err == nil {
		return "", apperrors.AlreadyExists("worktree", path)
	}

	exists, err := s.branchExists(ctx, branchName)
	if err != nil {
		return "", err
	}
	if exists {
		return "", apperrors.AlreadyExists("branch", branchName)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create worktree parent: %w", err)
	}

	if _, err := s.runGit(ctx, s.repoPath, "worktree", "add", "-b", branchName, path); err != nil {
		s.cleanupFailedCreate(path, branchName)
		return "", err
	}

	s.logger.Info("worktree created",
		zap.String("session", sessionName),
		zap.String("branch", branchName),
		zap.String("path", path))
	return path, nil
}

// cleanupFailedCreate removes whatever half of the worktree/branch pair a
// failed `git worktree add` left behind. It runs on a fresh context so that
// cleanup still happens when the caller's context is the reason for failure.
func (s *Service) cleanupFailedCreate(path, branchName string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := os.Stat(path); err == nil {
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to remove partial worktree", zap.String("path", path), zap.Error(err))
		}
	}
	if _, err := s.runGit(ctx, s.repoPath, "worktree", "prune"); err != nil {
		s.logger.Warn("failed to prune worktrees", zap.Error(err))
	}
	if exists, _ := s.branchExists(ctx, branchName); exists {
		if _, err := s.runGit(ctx, s.repoPath, "branch", "-D", branchName); err != nil {
			s.logger.Warn("failed to delete partial branch", zap.String("branch", branchName), zap.Error(err))
		}
	}
}

// DeleteWorktree removes the worktree directory for sessionName and then
// force-deletes branchName. A branch that is already gone is not an error.
func (s *Service) DeleteWorktree(ctx context.Context, sessionName, branchName string) error {
	if err := validateSessionName(sessionName); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.WorktreePath(sessionName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return apperrors.NotFound("worktree", path)
	}

	if _, err := s.runGit(ctx, s.repoPath, "worktree", "remove", "--force", path); err != nil {
		s.logger.Warn("git worktree remove failed, removing directory", zap.String("path", path), zap.Error(err))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("failed to remove worktree directory: %w", rmErr)
		}
		if _, pruneErr := s.runGit(ctx, s.repoPath, "worktree", "prune"); pruneErr != nil {
			s.logger.Warn("failed to prune worktrees", zap.Error(pruneErr))
		}
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("worktree directory still present after removal: %s", path)
	}

	exists, err := s.branchExists(ctx, branchName)
	if err != nil {
		return err
	}
	if !exists {
		s.logger.Warn("branch already deleted", zap.String("branch", branchName))
		return nil
	}
	if _, err := s.runGit(ctx, s.repoPath, "branch", "-D", branchName); err != nil {
		return err
	}

	s.logger.Info("worktree deleted",
		zap.String("session", sessionName),
		zap.String("branch", branchName))
	return nil
}

// existingWorktree returns the worktree path for sessionName, or NotFound.
func (s *Service) existingWorktree(sessionName string) (string, error) {
	if err := validateSessionName(sessionName); err != nil {
		return "", err
	}
	path := s.WorktreePath(sessionName)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", apperrors.NotFound("worktree", path)
	}
	return path, nil
}

func (s *Service) branchExists(ctx context.Context, branchName string) (bool, error) {
	res, err := s.execGit(ctx, s.repoPath, "rev-parse", "--verify", "--quiet", "refs/heads/"+branchName)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

func validateSessionName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, "-") {
		return apperrors.BadRequest(fmt.Sprintf("invalid session name %q", name))
	}
	return nil
}
