package apply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/changeset"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/fs"
	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

// ErrStaleChangeSet is returned when a file changed on disk after the
// changeset was built from it.
var ErrStaleChangeSet = errors.New("file changed since the edits were computed")

// Mode selects how a changeset reaches the working tree.
type Mode int

const (
	// ModeDirect writes the files to disk.
	ModeDirect Mode = iota
	// ModeCommit writes the files and commits them.
	ModeCommit
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeCommit:
		return "commit"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Committer stages exactly the files of a changeset and commits them.
type Committer interface {
	Commit(ctx context.Context, cs *changeset.ChangeSet, message string) (string, error)
}

// ApplyIOError reports a failed write or commit together with the paths
// that were already written.
type ApplyIOError struct {
	Written []string
	Failed  string
	Err     error
}

func (e *ApplyIOError) Error() string {
	var b strings.Builder
	b.WriteString(model.ErrApplicationIO.Error())
	if e.Failed != "" {
		fmt.Fprintf(&b, " at %s", e.Failed)
	}
	if len(e.Written) > 0 {
		fmt.Fprintf(&b, " (written: %s)", strings.Join(e.Written, ", "))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ApplyIOError) Unwrap() []error {
	return []error{model.ErrApplicationIO, e.Err}
}

// Options configures an Engine.
type Options struct {
	// Writer persists files; defaults to fs.AtomicWriter.
	Writer fs.Writer
	// Committer is required for ModeCommit.
	Committer Committer
	Logger    *zap.Logger
}

// Engine is the only component that mutates the working tree.
type Engine struct {
	resolver  *fs.PathResolver
	writer    fs.Writer
	committer Committer
	logger    *zap.Logger
}

// New creates an Engine rooted at root.
func New(root string, opts Options) (*Engine, error) {
	resolver, err := fs.NewPathResolver(root)
	if err != nil {
		return nil, err
	}
	if opts.Writer == nil {
		opts.Writer = fs.AtomicWriter{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		resolver:  resolver,
		writer:    opts.Writer,
		committer: opts.Committer,
		logger:    opts.Logger,
	}, nil
}

// Apply writes cs to the working tree. The diff report is computed before
// anything is written and is returned even when the write fails. An empty
// changeset is a no-op. In commit mode message becomes the commit message.
func (e *Engine) Apply(ctx context.Context, cs *changeset.ChangeSet, mode Mode, message string) (model.DiffReport, *model.CommitRecord, error) {
	if cs.IsEmpty() {
		return model.DiffReport{}, nil, nil
	}

	report := BuildReport(cs)

	if mode == ModeCommit && e.committer == nil {
		return report, nil, &ApplyIOError{Err: errors.New("autocommit requested without a version control backend")}
	}
	if err := e.verify(cs); err != nil {
		return report, nil, err
	}
	if err := e.writeAll(cs); err != nil {
		return report, nil, err
	}
	e.logger.Info("wrote changeset",
		zap.Stringer("mode", mode),
		zap.Strings("paths", report.FilePathsChanged))

	if mode != ModeCommit {
		return report, nil, nil
	}

	id, err := e.committer.Commit(ctx, cs, message)
	if err != nil {
		return report, nil, &ApplyIOError{Written: cs.Paths(), Err: err}
	}
	e.logger.Info("committed changeset", zap.String("commit", id))
	return report, &model.CommitRecord{ID: id, Message: message}, nil
}

// verify checks that every file is still in the state the changeset was
// computed from, so nothing is written when one of them moved on.
func (e *Engine) verify(cs *changeset.ChangeSet) error {
	for _, fc := range cs.Files() {
		abs, err := e.resolver.Resolve(fc.Path)
		if err != nil {
			return &ApplyIOError{Failed: fc.Path, Err: err}
		}
		content, exists, err := fs.ReadFile(abs)
		if err != nil {
			return &ApplyIOError{Failed: fc.Path, Err: err}
		}
		if exists == fc.Created || content != fc.Original {
			return &ApplyIOError{Failed: fc.Path, Err: ErrStaleChangeSet}
		}
	}
	return nil
}

// writeAll writes files in changeset order and stops at the first failure.
func (e *Engine) writeAll(cs *changeset.ChangeSet) error {
	written := make([]string, 0, cs.Len())
	for _, fc := range cs.Files() {
		abs, err := e.resolver.Resolve(fc.Path)
		if err == nil {
			err = e.writer.WriteFile(abs, fc.Updated)
		}
		if err != nil {
			e.logger.Error("write failed",
				zap.String("path", fc.Path),
				zap.Strings("written", written),
				zap.Error(err))
			return &ApplyIOError{Written: written, Failed: fc.Path, Err: err}
		}
		written = append(written, fc.Path)
	}
	return nil
}
