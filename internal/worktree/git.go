package worktree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	apperrors "github.com/windschord/claude-work/internal/common/errors"
)

// gitResult is the captured outcome of one git invocation.
type gitResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// runGit runs git in dir and fails on a non-zero exit.
func (s *Service) runGit(ctx context.Context, dir string, args ...string) (string, error) {
	res, err := s.execGit(ctx, dir, args...)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		output := strings.TrimSpace(res.Stderr)
		if output == "" {
			output = strings.TrimSpace(res.Stdout)
		}
		return "", apperrors.CommandFailed(gitCommandLine(args), output, fmt.Errorf("exit status %d", res.ExitCode))
	}
	return res.Stdout, nil
}

// execGit runs git in dir bounded by the service timeout. A non-zero exit is
// reported through ExitCode, not as an error. A timeout kills the process
// and returns CommandTimeout.
func (s *Service) execGit(ctx context.Context, dir string, args ...string) (*gitResult, error) {
	ctx, span := s.tracer.Start(ctx, "git."+firstArg(args))
	defer span.End()
	span.SetAttributes(
		attribute.String("git.command", gitCommandLine(args)),
		attribute.String("git.dir", dir),
	)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_EDITOR=true",
		"LC_ALL=C",
	)
	// Children holding the pipes open must not stall Wait after a kill.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		s.logger.Warn("git command timed out",
			zap.String("command", gitCommandLine(args)),
			zap.String("dir", dir),
			zap.Duration("timeout", s.timeout))
		span.SetStatus(codes.Error, "timeout")
		return nil, apperrors.CommandTimeout(gitCommandLine(args), s.timeout)
	}
	if ctx.Err() != nil {
		span.SetStatus(codes.Error, ctx.Err().Error())
		return nil, fmt.Errorf("git %s: %w", firstArg(args), ctx.Err())
	}

	res := &gitResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			span.SetStatus(codes.Error, err.Error())
			return nil, apperrors.CommandFailed(gitCommandLine(args), "", err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	span.SetAttributes(attribute.Int("git.exit_code", res.ExitCode))
	s.logger.Debug("git command finished",
		zap.String("command", gitCommandLine(args)),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func gitCommandLine(args []string) string {
	return "git " + strings.Join(args, " ")
}

// nonEmptyLines splits output into trimmed, non-empty lines.
func nonEmptyLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
