package workset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/fs"
)

const (
	stateDirName = ".melty"
	fileName     = "workset"
	// noHash stands in for the hash of a tracked file that does not exist.
	noHash = "-"
)

// Entry is one tracked file.
type Entry struct {
	Path        string
	Edited      bool
	ContentHash string // SHA256 of the file content when it was added
}

// Workset records the files a session is working with. It is persisted as
// a small text file under <root>/.melty so later runs see the same set.
type Workset struct {
	mu        sync.Mutex
	root      string
	statePath string
	updated   int64
	entries   []Entry
	logger    *zap.Logger
}

// Open loads the workset for root, creating the state directory if needed.
// A missing file yields an empty workset.
func Open(root string, logger *zap.Logger) (*Workset, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stateDir := filepath.Join(root, stateDirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	w := &Workset{
		root:      root,
		statePath: filepath.Join(stateDir, fileName),
		logger:    logger,
	}
	if err := w.load(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workset) load() error {
	data, err := os.ReadFile(w.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}
	lines := strings.Split(content, "\n")

	ts, err := strconv.ParseInt(lines[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid workset file: could not parse timestamp from '%s': %w", lines[0], err)
	}
	w.updated = ts

	records := lines[1:]
	if len(records)%3 != 0 {
		return fmt.Errorf("invalid workset file: incomplete entry record")
	}
	for i := 0; i < len(records); i += 3 {
		edited, err := strconv.ParseBool(records[i+1])
		if err != nil {
			return fmt.Errorf("invalid workset file: bad flag for %s: %w", records[i], err)
		}
		hash := records[i+2]
		if hash == noHash {
			hash = ""
		}
		w.entries = append(w.entries, Entry{
			Path:        records[i],
			Edited:      edited,
			ContentHash: hash,
		})
	}
	return nil
}

func (w *Workset) save() error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", w.updated)
	for _, e := range w.entries {
		hash := e.ContentHash
		if hash == "" {
			hash = noHash
		}
		fmt.Fprintf(&b, "%s\n%t\n%s\n", e.Path, e.Edited, hash)
	}
	return fs.AtomicWriter{}.WriteFile(w.statePath, b.String())
}

// Add tracks path, relative to the root, or refreshes its entry. edited
// marks files changed by an applied turn rather than added by the user.
func (w *Workset) Add(path string, edited bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	hash, err := fs.GetFileSHA256(filepath.Join(w.root, path))
	if err != nil {
		// A missing file is still tracked; Changed reports it.
		hash = ""
	}
	entry := Entry{Path: path, Edited: edited, ContentHash: hash}

	replaced := false
	for i := range w.entries {
		if w.entries[i].Path == path {
			w.entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		w.entries = append(w.entries, entry)
		sort.Slice(w.entries, func(i, j int) bool {
			return w.entries[i].Path < w.entries[j].Path
		})
	}
	w.updated = time.Now().UTC().Unix()

	if err := w.save(); err != nil {
		w.logger.Warn("could not persist workset", zap.String("path", path), zap.Error(err))
	}
}

// Remove stops tracking path.
func (w *Workset) Remove(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.entries {
		if w.entries[i].Path == path {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			w.updated = time.Now().UTC().Unix()
			return w.save()
		}
	}
	return nil
}

// Entries returns the tracked files sorted by path.
func (w *Workset) Entries() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Changed lists tracked files whose content no longer matches the hash
// recorded when they were added.
func (w *Workset) Changed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var changed []string
	for _, e := range w.entries {
		hash, err := fs.GetFileSHA256(filepath.Join(w.root, e.Path))
		if err != nil || hash != e.ContentHash {
			changed = append(changed, e.Path)
		}
	}
	return changed
}
