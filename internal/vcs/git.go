package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/changeset"
)

// ErrNothingToCommit is returned for an empty changeset.
var ErrNothingToCommit = errors.New("nothing to commit")

// Git commits changesets to the repository containing root.
type Git struct {
	root   string
	logger *zap.Logger
}

// NewGit creates a committer for the repository at root. A nil logger
// disables logging.
func NewGit(root string, logger *zap.Logger) *Git {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Git{root: root, logger: logger}
}

// FindRoot returns the top level of the git work tree containing dir.
func FindRoot(ctx context.Context, dir string) (string, error) {
	out, err := run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Commit stages exactly the files of cs and commits them with message. The
// files must already be written. Unrelated changes in the index or work
// tree are left out of the commit. When the commit fails the paths are
// unstaged again.
func (g *Git) Commit(ctx context.Context, cs *changeset.ChangeSet, message string) (string, error) {
	if cs.IsEmpty() {
		return "", ErrNothingToCommit
	}
	if strings.TrimSpace(message) == "" {
		message = "Apply edits"
	}

	paths := cs.Paths()
	if _, err := run(ctx, g.root, append([]string{"add", "--"}, paths...)...); err != nil {
		return "", fmt.Errorf("git add failed: %w", err)
	}

	args := append([]string{"commit", "--quiet", "--no-verify", "-m", message, "--"}, paths...)
	if _, err := run(ctx, g.root, args...); err != nil {
		g.unstage(paths)
		return "", fmt.Errorf("git commit failed: %w", err)
	}

	out, err := run(ctx, g.root, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("could not read commit id: %w", err)
	}
	id := strings.TrimSpace(out)
	g.logger.Info("git commit", zap.String("commit", id), zap.Strings("paths", paths))
	return id, nil
}

func (g *Git) unstage(paths []string) {
	// The commit context may already be done; unstaging must still happen.
	if _, err := run(context.Background(), g.root, append([]string{"reset", "--quiet", "--"}, paths...)...); err != nil {
		g.logger.Warn("could not unstage paths", zap.Strings("paths", paths), zap.Error(err))
	}
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
