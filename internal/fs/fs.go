package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathOutsideRoot is returned for paths that would resolve outside the root.
var ErrPathOutsideRoot = errors.New("path escapes the root directory")

// PathResolver maps repository-relative paths to absolute paths under a root.
type PathResolver struct {
	root string
}

// NewPathResolver creates a PathResolver for root. An empty root means the
// current working directory.
func NewPathResolver(root string) (*PathResolver, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root directory '%s': %w", root, err)
	}
	return &PathResolver{root: abs}, nil
}

// Root returns the absolute root directory.
func (r *PathResolver) Root() string {
	return r.root
}

// Resolve returns the absolute path of relativePath. Absolute paths and
// paths climbing out of the root are rejected.
func (r *PathResolver) Resolve(relativePath string) (string, error) {
	if relativePath == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(relativePath) || strings.HasPrefix(relativePath, "/") {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, relativePath)
	}
	abs := filepath.Join(r.root, filepath.FromSlash(relativePath))
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, relativePath)
	}
	return abs, nil
}

// Relative returns the canonical slash-separated form of relativePath, so
// that spellings such as "./a.txt" and "dir/../a.txt" name "a.txt".
func (r *PathResolver) Relative(relativePath string) (string, error) {
	abs, err := r.Resolve(relativePath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, relativePath)
	}
	return filepath.ToSlash(rel), nil
}

// ReadFile returns the content of path. A missing file is reported through
// exists rather than an error.
func ReadFile(path string) (content string, exists bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// Writer persists file contents.
type Writer interface {
	WriteFile(path, content string) error
}

// AtomicWriter replaces each file through a temp file and a rename so that a
// reader never sees a half-written file.
type AtomicWriter struct{}

// WriteFile creates missing parent directories and atomically replaces path.
// An existing file keeps its permission bits.
func (AtomicWriter) WriteFile(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory '%s': %w", dir, err)
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".melty-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.WriteString(tmp, content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write '%s': %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write '%s': %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to set mode of '%s': %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace '%s': %w", path, err)
	}
	return nil
}

// GetFileSHA256 returns the hex SHA256 of the file at path.
func GetFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
