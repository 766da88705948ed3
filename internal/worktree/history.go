package worktree

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
)

// Commit is one entry of a worktree's history.
type Commit struct {
	Hash        string `json:"hash"`
	Message     string `json:"message"`
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
	Date        string `json:"date"`
}

// GitStatus summarises uncommitted changes in a worktree.
type GitStatus struct {
	HasUncommittedChanges bool `json:"has_uncommitted_changes"`
	ChangedFilesCount     int  `json:"changed_files_count"`
}

// DefaultHistoryLimit is used when GetCommitHistory is called with limit <= 0.
const DefaultHistoryLimit = 20

const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

var commitHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{4,64}$`)

// GetCommitHistory returns up to limit commits reachable from the worktree's
// HEAD, newest first.
func (s *Service) GetCommitHistory(ctx context.Context, sessionName string, limit int) ([]Commit, error) {
	path, err := s.existingWorktree(sessionName)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	format := strings.Join([]string{"%H", "%s", "%an", "%ae", "%aI"}, fieldSep) + recordSep
	out, err := s.runGit(ctx, path, "log", "-n", strconv.Itoa(limit), "--format="+format)
	if err != nil {
		return nil, err
	}

	commits := []Commit{}
	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		fields := strings.Split(record, fieldSep)
		if len(fields) != 5 {
			s.logger.Warn("unparseable git log record", zap.String("record", record))
			continue
		}
		commits = append(commits, Commit{
			Hash:        fields[0],
			Message:     fields[1],
			AuthorName:  fields[2],
			AuthorEmail: fields[3],
			Date:        fields[4],
		})
	}
	return commits, nil
}

// GetCommitDiff returns the patch introduced by one commit.
func (s *Service) GetCommitDiff(ctx context.Context, sessionName, hash string) (string, error) {
	path, err := s.existingWorktree(sessionName)
	if err != nil {
		return "", err
	}
	if !commitHashPattern.MatchString(hash) {
		return "", apperrors.BadRequest(fmt.Sprintf("invalid commit hash %q", hash))
	}
	return s.runGit(ctx, path, "show", "--patch", "--format=medium", hash)
}

// ResetToCommit hard-resets the worktree to hash, discarding later commits
// and all uncommitted changes.
func (s *Service) ResetToCommit(ctx context.Context, sessionName, hash string) error {
	path, err := s.existingWorktree(sessionName)
	if err != nil {
		return err
	}
	if !commitHashPattern.MatchString(hash) {
		return apperrors.BadRequest(fmt.Sprintf("invalid commit hash %q", hash))
	}
	if _, err := s.runGit(ctx, path, "reset", "--hard", hash); err != nil {
		return err
	}
	s.logger.Info("worktree reset", zap.String("session", sessionName), zap.String("commit", hash))
	return nil
}

// GetGitStatus reports staged, unstaged and untracked changes from
// `git status --porcelain`. Empty output means clean.
func (s *Service) GetGitStatus(ctx context.Context, sessionName string) (*GitStatus, error) {
	path, err := s.existingWorktree(sessionName)
	if err != nil {
		return nil, err
	}
	return s.statusAt(ctx, path)
}

func (s *Service) statusAt(ctx context.Context, path string) (*GitStatus, error) {
	out, err := s.runGit(ctx, path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	n := len(nonEmptyLines(out))
	return &GitStatus{HasUncommittedChanges: n > 0, ChangedFilesCount: n}, nil
}
