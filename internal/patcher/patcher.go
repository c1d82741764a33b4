package patcher

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/changeset"
	"github.com/DuckyOnQuack-999/Melty-Beta/internal/fs"
	"github.com/DuckyOnQuack-999/Melty-Beta/model"
)

var (
	// ErrFileNotFound is returned when an edit targets a missing file with a
	// non-empty search text.
	ErrFileNotFound = errors.New("file not found")
	// ErrEmptySearch is returned when an empty search text targets a file
	// that already has content.
	ErrEmptySearch = errors.New("empty search text for a non-empty file")
)

// InstructionError attributes a rejected instruction to its position in the batch.
type InstructionError struct {
	Index       int
	Instruction model.EditInstruction
	Err         error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (%s): %v", e.Index, e.Instruction.FilePath, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

// Applicator folds search/replace instructions into a ChangeSet. It reads
// from disk but never writes.
type Applicator struct {
	logger *zap.Logger
}

// New creates an Applicator. A nil logger disables logging.
func New(logger *zap.Logger) *Applicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applicator{logger: logger}
}

// Apply resolves every instruction against rootDir in order. Edits to a file
// that was already touched in this batch apply to its in-memory content, so
// several edits to one file compose. The first instruction that cannot be
// applied aborts the batch and no ChangeSet is returned.
func (a *Applicator) Apply(instructions []model.EditInstruction, rootDir string) (*changeset.ChangeSet, error) {
	if len(instructions) == 0 {
		return changeset.Empty(), nil
	}

	resolver, err := fs.NewPathResolver(rootDir)
	if err != nil {
		return nil, err
	}

	b := changeset.NewBuilder()
	for i, instr := range instructions {
		if err := a.applyOne(b, resolver, instr); err != nil {
			a.logger.Warn("rejected edit instruction",
				zap.Int("index", i),
				zap.String("path", instr.FilePath),
				zap.Error(err))
			return nil, &InstructionError{Index: i, Instruction: instr, Err: err}
		}
	}

	cs := b.Build()
	a.logger.Debug("built changeset",
		zap.Int("instructions", len(instructions)),
		zap.Strings("paths", cs.Paths()))
	return cs, nil
}

func (a *Applicator) applyOne(b *changeset.Builder, resolver *fs.PathResolver, instr model.EditInstruction) error {
	if instr.FilePath == "" {
		return fmt.Errorf("%w: empty file path", model.ErrMalformedBlock)
	}

	// Every spelling of a file shares one changeset entry.
	path, err := resolver.Relative(instr.FilePath)
	if err != nil {
		return err
	}

	current, touched := b.Current(path)
	if !touched {
		abs, err := resolver.Resolve(path)
		if err != nil {
			return err
		}
		content, exists, err := fs.ReadFile(abs)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if !exists && !instr.IsCreate() {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		b.Touch(path, content, !exists)
		current = content
	}

	updated, err := Replace(current, instr.SearchText, instr.ReplaceText)
	if err != nil {
		return err
	}
	b.Set(path, updated)
	return nil
}

// Replace substitutes the first occurrence of search in content. An empty
// search only applies to empty content, where it yields replace.
func Replace(content, search, replace string) (string, error) {
	if search == "" {
		if content != "" {
			return "", ErrEmptySearch
		}
		return replace, nil
	}

	idx := strings.Index(content, search)
	if idx < 0 {
		return "", fmt.Errorf("%w: %q", model.ErrSearchTextNotFound, truncate(search, 80))
	}
	return content[:idx] + replace + content[idx+len(search):], nil
}

// truncate shortens s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
