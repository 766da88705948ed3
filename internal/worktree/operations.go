package worktree

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// DiffResult is a worktree's changes relative to the default branch.
type DiffResult struct {
	AddedFiles    []string `json:"added_files"`
	ModifiedFiles []string `json:"modified_files"`
	DeletedFiles  []string `json:"deleted_files"`
	DiffContent   string   `json:"diff_content"`
}

// RebaseResult is the outcome of RebaseFromMain. Conflicts are a normal
// result: Success is false and Conflicts lists the unmerged paths.
type RebaseResult struct {
	Success   bool     `json:"success"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// GetDiff classifies files changed on the session branch since it forked
// from the default branch and returns the full diff text.
func (s *Service) GetDiff(ctx context.Context, sessionName string) (*DiffResult, error) {
	path, err := s.existingWorktree(sessionName)
	if err != nil {
		return nil, err
	}

	rangeSpec := s.defaultBranch + "...HEAD"
	nameStatus, err := s.runGit(ctx, path, "diff", "--no-renames", "--name-status", rangeSpec)
	if err != nil {
		return nil, err
	}

	result := &DiffResult{
		AddedFiles:    []string{},
		ModifiedFiles: []string{},
		DeletedFiles:  []string{},
	}
	for _, line := range nonEmptyLines(nameStatus) {
		status, file, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		switch status {
		case "A":
			result.AddedFiles = append(result.AddedFiles, file)
		case "M":
			result.ModifiedFiles = append(result.ModifiedFiles, file)
		case "D":
			result.DeletedFiles = append(result.DeletedFiles, file)
		}
	}

	result.DiffContent, err = s.runGit(ctx, path, "diff", "--no-renames", rangeSpec)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RebaseFromMain rebases the session branch onto the default branch. On
// failure it records the conflicting files and always aborts the rebase so
// the worktree is back in its pre-rebase state.
func (s *Service) RebaseFromMain(ctx context.Context, sessionName string) (*RebaseResult, error) {
	path, err := s.existingWorktree(sessionName)
	if err != nil {
		return nil, err
	}

	res, err := s.execGit(ctx, path, "rebase", s.defaultBranch)
	if err != nil {
		s.abortRebase(path)
		return nil, err
	}
	if res.ExitCode == 0 {
		return &RebaseResult{Success: true}, nil
	}

	conflicts := []string{}
	unmerged, listErr := s.execGit(ctx, path, "diff", "--name-only", "--diff-filter=U")
	if listErr == nil {
		conflicts = append(conflicts, nonEmptyLines(unmerged.Stdout)...)
	}
	s.abortRebase(path)

	s.logger.Info("rebase produced conflicts",
		zap.String("session", sessionName),
		zap.Strings("conflicts", conflicts))
	return &RebaseResult{Success: false, Conflicts: conflicts}, nil
}

// abortRebase runs `git rebase --abort` on a fresh context; it is a no-op
// when no rebase is in progress.
func (s *Service) abortRebase(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.execGit(ctx, path, "rebase", "--abort"); err != nil {
		s.logger.Warn("rebase abort failed", zap.String("path", path), zap.Error(err))
	}
}

// SquashMerge checks out the default branch in the repository root, squash
// merges branchName into it and commits with message. Every step must
// succeed.
func (s *Service) SquashMerge(ctx context.Context, branchName, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.runGit(ctx, s.repoPath, "checkout", s.defaultBranch); err != nil {
		return err
	}
	if _, err := s.runGit(ctx, s.repoPath, "merge", "--squash", branchName); err != nil {
		return err
	}
	if _, err := s.runGit(ctx, s.repoPath, "commit", "-m", message); err != nil {
		return err
	}

	s.logger.Info("squash merged branch", zap.String("branch", branchName))
	return nil
}
