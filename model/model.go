package model

import (
	"errors"
	"strings"
)

var (
	// ErrMalformedBlock marks a change block that lacks the required structure.
	ErrMalformedBlock = errors.New("malformed change block")
	// ErrSearchTextNotFound marks an instruction whose search text is absent
	// from the current file content.
	ErrSearchTextNotFound = errors.New("search text not found")
	// ErrApplicationIO marks a filesystem or VCS failure while applying a changeset.
	ErrApplicationIO = errors.New("failed to apply changes")
	// ErrOperationCancelled is returned once a turn observed cancellation.
	ErrOperationCancelled = errors.New("operation cancelled")
)

// EditInstruction is one search/replace edit decoded from a change block.
type EditInstruction struct {
	FilePath    string `json:"file_path"`
	SearchText  string `json:"search_text"`
	ReplaceText string `json:"replace_text"`
}

// IsCreate reports whether the instruction has creation semantics.
func (e EditInstruction) IsCreate() bool {
	return e.SearchText == ""
}

// BlockDiagnostic records a change block that was dropped during parsing.
type BlockDiagnostic struct {
	// Index is the position of the block among all blocks seen, closed or not.
	Index int
	Raw   string
	Err   error
}

// ParsedResponse is the result of one scan over the accumulated text.
type ParsedResponse struct {
	ProseChunks  []string
	Instructions []EditInstruction
	Diagnostics  []BlockDiagnostic
}

// Message joins the prose chunks the way they are shown to the user.
func (p ParsedResponse) Message() string {
	return strings.Join(p.ProseChunks, "\n")
}

// FileStat counts changed lines of one file.
type FileStat struct {
	Path    string
	Added   int
	Removed int
}

// DiffReport is a read-only projection of an applied changeset.
type DiffReport struct {
	DiffPreview      string
	FilePathsChanged []string
	Stats            []FileStat
}

// IsEmpty reports whether the report describes no changes.
func (r DiffReport) IsEmpty() bool {
	return len(r.FilePathsChanged) == 0
}

// CommitRecord identifies the commit created in autocommit mode.
type CommitRecord struct {
	ID      string
	Message string
}

// Summary holds the results of an operation for display.
type Summary struct {
	Created  []string
	Modified []string
	Failed   []string
	Message  string
}
